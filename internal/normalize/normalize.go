// Package normalize derives stable, human-readable titles from test records.
//
// The title is the join key between test results and tracker issues: two
// records are the same test exactly when their titles are equal. Shortening
// rules strip build-tool noise (VCS host prefixes, Java package roots, log
// suffixes) and fold subtests into their parent.
package normalize

import (
	"fmt"
	"regexp"

	"github.com/steveyegge/flakewatch/internal/types"
)

const (
	// BuildFailedTitle is the title for records with no test identity.
	BuildFailedTitle = "The build failed"

	// GroupTestCase is the test name of the synthetic record standing for
	// many failures in one package.
	GroupTestCase = "many tests"

	// DefaultPackage buckets failures that carry no package.
	DefaultPackage = "all"
)

// packageShorteners are tried in order. The first one that matches wins and
// its first capture group replaces the package.
var packageShorteners = []*regexp.Regexp{
	regexp.MustCompile(`github\.com/[^/]+/[^/]+/(.+)`),
	regexp.MustCompile(`com\.google\.cloud\.(.+)`),
	regexp.MustCompile(`(.+)\(sponge_log\)`),
	regexp.MustCompile(`cloud\.google\.com/go/(.+)`),
}

// nameShortener keeps "group" of "group/of/tests".
var nameShortener = regexp.MustCompile(`([^/]+)/.+`)

// Title returns the canonical title for a record. It never fails: records
// without a package or test case map to BuildFailedTitle.
func Title(r types.TestRecord) string {
	if r.IsBuildSentinel() {
		return BuildFailedTitle
	}
	return fmt.Sprintf("%s: %s failed", ShortPackage(r.Package), ShortName(r.TestCase))
}

// ShortPackage applies the first matching package shortener.
func ShortPackage(pkg string) string {
	for _, re := range packageShorteners {
		if m := re.FindStringSubmatch(pkg); m != nil {
			return m[1]
		}
	}
	return pkg
}

// ShortName truncates a test name at its first slash.
func ShortName(name string) string {
	if m := nameShortener.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return name
}

// GroupRecord returns the synthetic failing record for a package.
func GroupRecord(pkg string) types.TestRecord {
	return types.TestRecord{Package: pkg, TestCase: GroupTestCase, Passed: false}
}

// GroupTitle returns the title of the group issue for a package.
func GroupTitle(pkg string) string {
	return Title(GroupRecord(pkg))
}

// PackageKey returns the grouping bucket for a record.
func PackageKey(r types.TestRecord) string {
	if r.Package == "" {
		return DefaultPackage
	}
	return r.Package
}

// DedupeRecords drops records whose titles collide, keeping the last
// occurrence in the position of the first.
func DedupeRecords(records []types.TestRecord) []types.TestRecord {
	index := make(map[string]int, len(records))
	out := make([]types.TestRecord, 0, len(records))
	for _, r := range records {
		title := Title(r)
		if i, ok := index[title]; ok {
			out[i] = r
			continue
		}
		index[title] = len(out)
		out = append(out, r)
	}
	return out
}

// Normalizer exposes the package functions as a value so the engine can
// hold it behind an interface.
type Normalizer struct{}

// Title implements reconcile.Normalizer.
func (Normalizer) Title(r types.TestRecord) string { return Title(r) }

// GroupTitle implements reconcile.Normalizer.
func (Normalizer) GroupTitle(pkg string) string { return GroupTitle(pkg) }
