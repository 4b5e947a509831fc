package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/getpup/keypool-orchestrator"
)

// Workflow describes a pipeline: one foundation operation whose JSON output
// seeds a set of concurrently executed branches.
type Workflow struct {
	// Foundation builds the Stage 0 operation. Its output must be a JSON object
	// with a title and at least one section.
	Foundation func(input keypool.WorkflowInput) keypool.Operation

	// Branches run concurrently once the foundation succeeded.
	Branches []Branch
}

// Branch is an ordered chain of steps.
type Branch struct {
	Name string

	// Required branches fail the pipeline when they fail. Optional ones only
	// downgrade it to PartiallyCompleted.
	Required bool

	Steps []Step
}

// Step builds operations from the foundation metadata and the previous step's outputs.
// A single operation is executed directly; several run as a batch.
type Step struct {
	Name string

	// Operations builds the step's operations. prev holds the previous step's
	// outputs and is nil for the first step. Zero operations make the step a no-op.
	Operations func(meta keypool.Metadata, input keypool.WorkflowInput, prev []string) ([]keypool.Operation, error)

	// Check validates the step's outputs locally (optional). A failed check
	// fails the step as malformed output.
	Check func(outputs []string) error

	// AllowPartial lets a batch step succeed when at least one operation succeeded.
	AllowPartial bool
}

// Validate reports structural problems with the workflow.
func (w Workflow) Validate() error {
	if w.Foundation == nil {
		return errors.New("workflow has no foundation operation")
	}

	seen := make(map[string]bool, len(w.Branches))
	for _, b := range w.Branches {
		if b.Name == "" {
			return errors.New("workflow branch has no name")
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate workflow branch %q", b.Name)
		}
		seen[b.Name] = true

		if len(b.Steps) == 0 {
			return fmt.Errorf("workflow branch %q has no steps", b.Name)
		}
		for _, s := range b.Steps {
			if s.Operations == nil {
				return fmt.Errorf("step %q of branch %q has no operations builder", s.Name, b.Name)
			}
		}
	}

	return nil
}

// NonEmpty is a Check that rejects blank outputs.
func NonEmpty(outputs []string) error {
	for i, out := range outputs {
		if strings.TrimSpace(out) == "" {
			return fmt.Errorf("output %d is empty", i)
		}
	}
	return nil
}

// validMetadata reports whether foundation metadata can seed the branches.
func validMetadata(meta keypool.Metadata) bool {
	if strings.TrimSpace(meta.Title) == "" || len(meta.Sections) == 0 {
		return false
	}
	for _, s := range meta.Sections {
		if strings.TrimSpace(s) == "" {
			return false
		}
	}
	return true
}
