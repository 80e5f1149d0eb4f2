package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/flakewatch/internal/types"
)

func TestTitle(t *testing.T) {
	tests := []struct {
		name   string
		record types.TestRecord
		want   string
	}{
		{
			name:   "plain",
			record: types.TestRecord{Package: "pkg", TestCase: "Test"},
			want:   "pkg: Test failed",
		},
		{
			name:   "missing package",
			record: types.TestRecord{TestCase: "TestFoo"},
			want:   BuildFailedTitle,
		},
		{
			name:   "missing test case",
			record: types.TestRecord{Package: "pkg"},
			want:   BuildFailedTitle,
		},
		{
			name:   "empty record",
			record: types.TestRecord{},
			want:   BuildFailedTitle,
		},
		{
			name:   "github package",
			record: types.TestRecord{Package: "github.com/GoogleCloudPlatform/golang-samples/spanner/spanner_snippets", TestCase: "TestSample"},
			want:   "spanner/spanner_snippets: TestSample failed",
		},
		{
			name:   "java package",
			record: types.TestRecord{Package: "com.google.cloud.vision.it.ITSystemTest", TestCase: "detectLocalizedObjects"},
			want:   "vision.it.ITSystemTest: detectLocalizedObjects failed",
		},
		{
			name:   "sponge log suffix",
			record: types.TestRecord{Package: "samples.snippets(sponge_log)", TestCase: "test_quickstart"},
			want:   "samples.snippets: test_quickstart failed",
		},
		{
			name:   "cloud.google.com package",
			record: types.TestRecord{Package: "cloud.google.com/go/pubsub", TestCase: "TestPublish"},
			want:   "pubsub: TestPublish failed",
		},
		{
			name:   "subtests fold into parent",
			record: types.TestRecord{Package: "pkg", TestCase: "TestTable/case_one/nested"},
			want:   "pkg: TestTable failed",
		},
		{
			name:   "first matching shortener wins",
			record: types.TestRecord{Package: "github.com/org/repo/cloud.google.com/go/x", TestCase: "T"},
			want:   "cloud.google.com/go/x: T failed",
		},
		{
			name:   "passed flag does not matter",
			record: types.TestRecord{Package: "pkg", TestCase: "Test", Passed: true},
			want:   "pkg: Test failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Title(tt.record))
			// Deterministic across calls.
			assert.Equal(t, Title(tt.record), Title(tt.record))
		})
	}
}

func TestGroupTitle(t *testing.T) {
	assert.Equal(t, "X: many tests failed", GroupTitle("X"))
	assert.Equal(t, "storage: many tests failed", GroupTitle("github.com/org/repo/storage"))
	assert.Equal(t, Title(GroupRecord("X")), GroupTitle("X"))
	assert.False(t, GroupRecord("X").Passed)
}

func TestPackageKey(t *testing.T) {
	assert.Equal(t, "pkg", PackageKey(types.TestRecord{Package: "pkg"}))
	assert.Equal(t, DefaultPackage, PackageKey(types.TestRecord{}))
}

func TestDedupeRecords(t *testing.T) {
	records := []types.TestRecord{
		{Package: "pkg", TestCase: "TestA/one", Log: "first"},
		{Package: "pkg", TestCase: "TestB"},
		{Package: "pkg", TestCase: "TestA/two", Log: "second"},
	}

	got := DedupeRecords(records)

	assert.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Log, "last occurrence wins")
	assert.Equal(t, "TestB", got[1].TestCase)
	assert.Empty(t, DedupeRecords(nil))
}
