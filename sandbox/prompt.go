package sandbox

import (
	"fmt"
	"strings"
)

// Action selects the kind of work requested from the tool.
type Action string

const (
	ActionGenerate Action = "generate"
	ActionAnalyze  Action = "analyze"
	ActionRefactor Action = "refactor"
	ActionReview   Action = "review"
	ActionTest     Action = "test"
)

var actionInstructions = map[Action]string{
	ActionGenerate: "Generate code for the following request",
	ActionAnalyze:  "Analyze the code in this directory and answer the following request",
	ActionRefactor: "Refactor the existing code according to the following request",
	ActionReview:   "Review the code in this directory and give concrete feedback on the following request",
	ActionTest:     "Write and run tests for the following request",
}

// Actions lists the recognized actions in a stable order.
func Actions() []Action {
	return []Action{ActionGenerate, ActionAnalyze, ActionRefactor, ActionReview, ActionTest}
}

// Valid reports whether a is one of the recognized actions.
func (a Action) Valid() bool {
	_, ok := actionInstructions[a]
	return ok
}

// PromptOptions tunes BuildPrompt.
type PromptOptions struct {
	// ContextEnabled is nil unless the caller said yes or no; only an
	// explicit false disables context management.
	ContextEnabled *bool  `json:"contextEnabled,omitempty"`
	Context        string `json:"context,omitempty"`
}

// contextEnabled reports the effective setting.
func (o PromptOptions) contextEnabled() bool {
	return o.ContextEnabled == nil || *o.ContextEnabled
}

// BuildPrompt sanitizes promptText and wraps it in the instruction text
// for action. A "/clear" prompt is ordinary text here.
func (s *Sandbox) BuildPrompt(action Action, promptText string, opts PromptOptions) (string, error) {
	if !action.Valid() {
		return "", invalid(ReasonInvalidAction, fmt.Sprintf("invalid action: %q", string(action))).
			WithDetail("action", string(action))
	}
	instruction := actionInstructions[action]

	cleaned, err := s.SanitizePrompt(promptText)
	if err != nil {
		return "", err
	}

	contextFile := s.ContextFileName
	if contextFile == "" {
		contextFile = DefaultContextFileName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Working directory: %s\n\n", s.WorkingDirectory)

	if opts.contextEnabled() {
		b.WriteString("CONTEXT MANAGEMENT:\n")
		fmt.Fprintf(&b, "1. Read %s in the working directory before starting to learn what earlier sessions did.\n", contextFile)
		fmt.Fprintf(&b, "2. When finished, append a new timestamped entry to the Activity Log section of %s describing the work you performed.\n", contextFile)
		b.WriteString("3. Keep your answer consistent with the earlier entries and do not repeat work already recorded there.\n\n")
		fmt.Fprintf(&b, "TASK (%s): %s:\n%s\n", action, instruction, cleaned)
	} else {
		fmt.Fprintf(&b, "TASK (%s): %s:\n%s\n\n", action, instruction, cleaned)
		b.WriteString("Produce production-quality code that follows the conventions already present in the project.\n")
	}

	if extra := strings.TrimSpace(opts.Context); extra != "" {
		fmt.Fprintf(&b, "\nAdditional context: %s\n", extra)
	}

	return b.String(), nil
}
