package workers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/cryptocrystian/pravado/internal/models"
	"github.com/cryptocrystian/pravado/internal/queue"
	"github.com/cryptocrystian/pravado/internal/queue/logging"
)

func templateExecution(input map[string]interface{}, outputs map[string]map[string]interface{}) *queue.Execution {
	logger := arbor.NewLogger()
	job := models.NewJob(models.JobTypePlaybookStep, models.JobPriorityMedium, 3, models.JobPayload{
		RunID:           "run-1",
		StepKey:         "render",
		StepType:        TemplateStepType,
		Input:           input,
		PreviousOutputs: outputs,
	})
	return &queue.Execution{
		Job:      job,
		WorkerID: "worker-1",
		Log:      logging.NewCollector(logger, job.ID),
	}
}

func TestTemplateExecutor_StepType(t *testing.T) {
	e := NewTemplateExecutor(arbor.NewLogger())
	assert.Equal(t, "template", e.StepType())
}

func TestTemplateExecutor_RendersReferences(t *testing.T) {
	e := NewTemplateExecutor(arbor.NewLogger())

	exec := templateExecution(
		map[string]interface{}{
			"prompt": "summarize {{steps.fetch.output.title}} for {{steps.audience.output.segment}}",
		},
		map[string]map[string]interface{}{
			"fetch":    {"title": "Q3 launch"},
			"audience": {"segment": "executives"},
		},
	)

	output, err := e.Execute(context.Background(), exec)
	require.NoError(t, err)
	assert.Equal(t, "summarize Q3 launch for executives", output["prompt"])
}

func TestTemplateExecutor_OutputPrefixOptional(t *testing.T) {
	e := NewTemplateExecutor(arbor.NewLogger())

	exec := templateExecution(
		map[string]interface{}{
			"with":    "{{steps.fetch.output.title}}",
			"without": "{{steps.fetch.title}}",
		},
		map[string]map[string]interface{}{
			"fetch": {"title": "Q3 launch"},
		},
	)

	output, err := e.Execute(context.Background(), exec)
	require.NoError(t, err)
	assert.Equal(t, "Q3 launch", output["with"])
	assert.Equal(t, "Q3 launch", output["without"])
}

func TestTemplateExecutor_NestedPathResolution(t *testing.T) {
	e := NewTemplateExecutor(arbor.NewLogger())

	exec := templateExecution(
		map[string]interface{}{
			"value": "{{steps.fetch.output.meta.author.name}}",
		},
		map[string]map[string]interface{}{
			"fetch": {
				"meta": map[string]interface{}{
					"author": map[string]interface{}{"name": "Jordan"},
				},
			},
		},
	)

	output, err := e.Execute(context.Background(), exec)
	require.NoError(t, err)
	assert.Equal(t, "Jordan", output["value"])
}

func TestTemplateExecutor_RecursesIntoMapsAndArrays(t *testing.T) {
	e := NewTemplateExecutor(arbor.NewLogger())

	exec := templateExecution(
		map[string]interface{}{
			"nested": map[string]interface{}{
				"prompt": "{{steps.fetch.title}}",
			},
			"list": []interface{}{"{{steps.fetch.title}}", 42},
		},
		map[string]map[string]interface{}{
			"fetch": {"title": "Q3 launch"},
		},
	)

	output, err := e.Execute(context.Background(), exec)
	require.NoError(t, err)

	nested, ok := output["nested"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Q3 launch", nested["prompt"])

	list, ok := output["list"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, "Q3 launch", list[0])
	assert.Equal(t, 42, list[1])
}

func TestTemplateExecutor_NonStringValuesUntouched(t *testing.T) {
	e := NewTemplateExecutor(arbor.NewLogger())

	exec := templateExecution(
		map[string]interface{}{
			"count":   7,
			"enabled": true,
		},
		nil,
	)

	output, err := e.Execute(context.Background(), exec)
	require.NoError(t, err)
	assert.Equal(t, 7, output["count"])
	assert.Equal(t, true, output["enabled"])
}

func TestTemplateExecutor_UnresolvedReferenceLeftInPlace(t *testing.T) {
	e := NewTemplateExecutor(arbor.NewLogger())

	exec := templateExecution(
		map[string]interface{}{
			"missingStep": "use {{steps.nope.output.title}}",
			"missingPath": "use {{steps.fetch.output.subtitle}}",
		},
		map[string]map[string]interface{}{
			"fetch": {"title": "Q3 launch"},
		},
	)

	output, err := e.Execute(context.Background(), exec)
	require.NoError(t, err)
	assert.Equal(t, "use {{steps.nope.output.title}}", output["missingStep"])
	assert.Equal(t, "use {{steps.fetch.output.subtitle}}", output["missingPath"])

	// Each unresolved reference produced a warning in the attempt log
	warnings := 0
	for _, entry := range exec.Log.Entries() {
		if entry.Level == models.LogLevelWarn {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestTemplateExecutor_NonStringValueStringified(t *testing.T) {
	e := NewTemplateExecutor(arbor.NewLogger())

	exec := templateExecution(
		map[string]interface{}{
			"text": "score is {{steps.rank.output.score}}",
		},
		map[string]map[string]interface{}{
			"rank": {"score": 98},
		},
	)

	output, err := e.Execute(context.Background(), exec)
	require.NoError(t, err)
	assert.Equal(t, "score is 98", output["text"])
}

func TestTemplateExecutor_CanceledContext(t *testing.T) {
	e := NewTemplateExecutor(arbor.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, templateExecution(map[string]interface{}{"a": "b"}, nil))
	assert.ErrorIs(t, err, context.Canceled)
}
