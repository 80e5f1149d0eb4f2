package labels

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/flakewatch/internal/types"
)

func TestHas(t *testing.T) {
	issue := &types.Issue{Labels: []string{types.LabelIssue, types.LabelQuiet}}

	assert.True(t, Has(issue, types.LabelIssue))
	assert.True(t, IsQuiet(issue))
	assert.False(t, IsFlaky(issue))
	assert.False(t, Has(nil, types.LabelIssue))
}

func TestForNewIssue(t *testing.T) {
	assert.Equal(t, []string{"type: bug", "priority: p1", "flakewatch: issue"}, ForNewIssue("p1"))
	assert.Equal(t, []string{"type: bug", "priority: p2", "flakewatch: issue", "flakewatch: flaky"}, ForFlakyIssue("p2"))
}

func TestNextLabels(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		want     []string
	}{
		{
			name:     "no existing labels",
			existing: nil,
			want:     []string{"type: bug", "priority: p1", "flakewatch: issue", "flakewatch: flaky"},
		},
		{
			name:     "engine labels are replaced",
			existing: []string{"flakewatch: issue", "flakewatch: quiet"},
			want:     []string{"type: bug", "priority: p1", "flakewatch: issue", "flakewatch: flaky"},
		},
		{
			name:     "human priority and type are kept",
			existing: []string{"flakewatch: flaky", "api: spanner", "priority: p2", "type: cleanup"},
			want:     []string{"flakewatch: issue", "flakewatch: flaky", "api: spanner", "priority: p2", "type: cleanup"},
		},
		{
			name:     "only priority set by human",
			existing: []string{"priority: p0"},
			want:     []string{"type: bug", "flakewatch: issue", "flakewatch: flaky", "priority: p0"},
		},
		{
			name:     "same default label is not duplicated",
			existing: []string{"type: bug"},
			want:     []string{"priority: p1", "flakewatch: issue", "flakewatch: flaky", "type: bug"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextLabels(tt.existing, ForFlakyIssue("p1"))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("NextLabels() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
