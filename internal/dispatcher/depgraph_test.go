package dispatcher

import (
	"reflect"
	"testing"

	"github.com/cryptocrystian/pravado/internal/models"
)

func TestStepDependencies(t *testing.T) {
	tests := []struct {
		name string
		step models.Step
		want []string
	}{
		{
			name: "no dependencies",
			step: models.Step{Key: "a"},
			want: nil,
		},
		{
			name: "explicit only",
			step: models.Step{
				Key:    "b",
				Config: models.StepConfig{Dependencies: []string{"a"}},
			},
			want: []string{"a"},
		},
		{
			name: "template reference only",
			step: models.Step{
				Key:    "b",
				Config: models.StepConfig{Input: "summarize {{steps.a.output}}"},
			},
			want: []string{"a"},
		},
		{
			name: "explicit first then template order",
			step: models.Step{
				Key: "d",
				Config: models.StepConfig{
					Dependencies: []string{"c"},
					Input:        "{{steps.b.output}} and {{steps.a.output}}",
				},
			},
			want: []string{"c", "b", "a"},
		},
		{
			name: "duplicates removed",
			step: models.Step{
				Key: "c",
				Config: models.StepConfig{
					Dependencies: []string{"a", "a"},
					Input:        "{{steps.a.output}} {{steps.b}} {{steps.b.title}}",
				},
			},
			want: []string{"a", "b"},
		},
		{
			name: "empty explicit entries skipped",
			step: models.Step{
				Key:    "b",
				Config: models.StepConfig{Dependencies: []string{"", "a", ""}},
			},
			want: []string{"a"},
		},
		{
			name: "whitespace inside braces",
			step: models.Step{
				Key:    "b",
				Config: models.StepConfig{Input: "{{ steps.a.output }}"},
			},
			want: []string{"a"},
		},
		{
			name: "hyphen and underscore keys",
			step: models.Step{
				Key:    "c",
				Config: models.StepConfig{Input: "{{steps.fetch-data.output}} {{steps.clean_up.output}}"},
			},
			want: []string{"fetch-data", "clean_up"},
		},
		{
			name: "non step references ignored",
			step: models.Step{
				Key:    "b",
				Config: models.StepConfig{Input: "{{inputs.topic}} {{config.tone}}"},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StepDependencies(tt.step)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("StepDependencies() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildDependencyGraph(t *testing.T) {
	steps := []models.Step{
		{Key: "research"},
		{Key: "outline", Config: models.StepConfig{Input: "outline from {{steps.research.output}}"}},
		{Key: "draft", Config: models.StepConfig{
			Dependencies: []string{"outline"},
			Input:        "write using {{steps.research.output}}",
		}},
	}

	graph := BuildDependencyGraph(steps)

	if len(graph) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(graph))
	}
	if len(graph["research"]) != 0 {
		t.Errorf("research should have no dependencies, got %v", graph["research"])
	}
	if !reflect.DeepEqual(graph["outline"], []string{"research"}) {
		t.Errorf("outline deps = %v", graph["outline"])
	}
	if !reflect.DeepEqual(graph["draft"], []string{"outline", "research"}) {
		t.Errorf("draft deps = %v", graph["draft"])
	}
}
