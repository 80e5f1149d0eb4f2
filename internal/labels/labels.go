// Package labels holds the label rules the engine applies to tracker issues.
//
// Engine-owned labels (types.LabelPrefix) are recomputed on every update;
// everything else on an issue belongs to humans and is preserved. A human
// choice of priority or type always wins over the engine default.
package labels

import (
	"fmt"
	"strings"

	"github.com/steveyegge/flakewatch/internal/types"
)

// Has reports whether the issue carries label.
func Has(issue *types.Issue, label string) bool {
	if issue == nil {
		return false
	}
	for _, l := range issue.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// IsFlaky reports whether the issue is marked flaky.
func IsFlaky(issue *types.Issue) bool {
	return Has(issue, types.LabelFlaky)
}

// IsQuiet reports whether users asked the engine to stop commenting.
func IsQuiet(issue *types.Issue) bool {
	return Has(issue, types.LabelQuiet)
}

// Priority returns the priority label for a configured priority, e.g. "p1".
func Priority(priority string) string {
	return fmt.Sprintf("%s %s", types.PriorityLabelPrefix, priority)
}

// ForNewIssue returns the labels applied to a freshly created issue.
func ForNewIssue(priority string) []string {
	return []string{types.LabelTypeBug, Priority(priority), types.LabelIssue}
}

// ForFlakyIssue returns the default labels of an issue marked flaky.
func ForFlakyIssue(priority string) []string {
	return append(ForNewIssue(priority), types.LabelFlaky)
}

// IsEngineLabel reports whether label is owned by the engine.
func IsEngineLabel(label string) bool {
	return strings.HasPrefix(label, types.LabelPrefix)
}

// NextLabels computes the label set after applying proposed engine labels to
// an issue that currently has existing. Engine labels in existing are
// dropped, human labels are kept, and proposed priority/type labels are
// skipped when a human already set one. The result has no duplicates.
func NextLabels(existing, proposed []string) []string {
	var preserved []string
	hasPriority, hasType := false, false
	for _, l := range existing {
		if IsEngineLabel(l) {
			continue
		}
		preserved = append(preserved, l)
		if strings.HasPrefix(l, types.PriorityLabelPrefix) {
			hasPriority = true
		}
		if strings.HasPrefix(l, types.TypeLabelPrefix) {
			hasType = true
		}
	}

	seen := make(map[string]bool, len(proposed)+len(preserved))
	next := make([]string, 0, len(proposed)+len(preserved))
	add := func(l string) {
		if !seen[l] {
			seen[l] = true
			next = append(next, l)
		}
	}
	for _, l := range proposed {
		if hasPriority && strings.HasPrefix(l, types.PriorityLabelPrefix) {
			continue
		}
		if hasType && strings.HasPrefix(l, types.TypeLabelPrefix) {
			continue
		}
		add(l)
	}
	for _, l := range preserved {
		add(l)
	}
	return next
}
