// Package workers contains the built-in step executors. The template
// executor resolves {{steps.<key>...}} references in a step's input against
// the outputs of its completed dependencies.
//
// Example:
//   Input:   "summary of {{steps.fetch.output.title}}"
//   Outputs: {"fetch": {"title": "Q3 launch"}}
//   Output:  "summary of Q3 launch"
//
// Resolution is case-sensitive. Unresolved references are logged as warnings
// and left unchanged rather than failing the step.
package workers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/cryptocrystian/pravado/internal/queue"
	"github.com/cryptocrystian/pravado/internal/queue/logging"
)

// TemplateStepType is the step type handled by the template executor
const TemplateStepType = "template"

// templateRefPattern matches {{steps.<key>.<path>}} references. The path is
// a dot-separated trail into the referenced step's output map; a leading
// "output" segment is accepted and skipped.
var templateRefPattern = regexp.MustCompile(`\{\{\s*steps\.([a-zA-Z0-9_-]+)((?:\.[a-zA-Z0-9_.-]+)?)\s*\}\}`)

// TemplateExecutor renders a step's input map against the outputs of its
// dependencies and returns the rendered map as the step's output
type TemplateExecutor struct {
	logger arbor.ILogger
}

// NewTemplateExecutor creates the built-in template executor
func NewTemplateExecutor(logger arbor.ILogger) *TemplateExecutor {
	return &TemplateExecutor{logger: logger}
}

// StepType returns the step type this executor handles
func (e *TemplateExecutor) StepType() string {
	return TemplateStepType
}

// Execute renders every string value in the step's input, recursing into
// nested maps and arrays. The rendered input map is the step's output.
func (e *TemplateExecutor) Execute(ctx context.Context, exec *queue.Execution) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload := exec.Job.Payload
	output := make(map[string]interface{}, len(payload.Input))
	for key, value := range payload.Input {
		output[key] = e.renderValue(value, payload.PreviousOutputs, exec.Log)
	}

	exec.Log.Infof("Rendered template step %s with %d dependency outputs", payload.StepKey, len(payload.PreviousOutputs))

	return output, nil
}

func (e *TemplateExecutor) renderValue(value interface{}, outputs map[string]map[string]interface{}, log *logging.Collector) interface{} {
	switch v := value.(type) {
	case string:
		return e.renderString(v, outputs, log)
	case map[string]interface{}:
		rendered := make(map[string]interface{}, len(v))
		for key, elem := range v {
			rendered[key] = e.renderValue(elem, outputs, log)
		}
		return rendered
	case []interface{}:
		rendered := make([]interface{}, len(v))
		for i, elem := range v {
			rendered[i] = e.renderValue(elem, outputs, log)
		}
		return rendered
	default:
		return value
	}
}

// renderString replaces each {{steps.<key>.<path>}} reference with the
// resolved value. Unresolved references stay in place.
func (e *TemplateExecutor) renderString(input string, outputs map[string]map[string]interface{}, log *logging.Collector) string {
	return templateRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := templateRefPattern.FindStringSubmatch(match)
		stepKey := groups[1]
		path := strings.Trim(groups[2], ".")

		stepOutput, exists := outputs[stepKey]
		if !exists {
			log.Warnf("Unresolved step reference %s: no output for step %s", match, stepKey)
			return match
		}

		resolved, ok := resolvePath(stepOutput, path)
		if !ok {
			log.Warnf("Unresolved step reference %s: path %q not found in output of step %s", match, path, stepKey)
			return match
		}
		return stringify(resolved)
	})
}

// resolvePath walks a dot-separated path through nested maps. An empty path
// resolves to the whole output map; a leading "output" segment is skipped.
func resolvePath(output map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return output, true
	}

	segments := strings.Split(path, ".")
	if segments[0] == "output" {
		segments = segments[1:]
	}

	var current interface{} = output
	for _, segment := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringify(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
