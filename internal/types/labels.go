package types

// Engine-owned label constants. Every label the engine manages starts with
// LabelPrefix so they can be told apart from labels set by humans.
const (
	// LabelPrefix is shared by all engine-owned labels.
	LabelPrefix = "flakewatch"

	// LabelIssue marks issues the engine opened and manages.
	LabelIssue = "flakewatch: issue"

	// LabelFlaky marks tests that both passed and failed at the same commit.
	// Flaky issues are never closed automatically.
	LabelFlaky = "flakewatch: flaky"

	// LabelQuiet is set by users to stop new comments on an issue.
	// Quiet issues are still closed when their test passes.
	LabelQuiet = "flakewatch: quiet"

	// LabelTypeBug is the default type label on new issues.
	LabelTypeBug = "type: bug"

	// PriorityLabelPrefix and TypeLabelPrefix identify labels a human may
	// already have chosen; flaky marking keeps them.
	PriorityLabelPrefix = "priority:"
	TypeLabelPrefix     = "type:"
)

// Label is a repository label definition.
type Label struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}
