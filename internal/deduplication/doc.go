// Package deduplication closes duplicate tracker issues.
//
// # Overview
//
// Concurrent builds can race to file an issue for the same test, leaving
// several open issues with one title. Before opening or closing anything,
// the engine keeps the best of each such set and closes the rest with a
// "Closing as a duplicate of #N" comment.
//
// # Scope
//
// Only open issues whose title belongs to a test in the current build are
// considered. Issues for tests the build did not run are left alone, even
// when duplicated: nothing in the build says which of them is current.
//
// # Ordering
//
// The survivor is chosen with matcher.Compare: open first, then flaky, then
// most recently closed, then the lowest number.
//
// # Concurrency
//
// Each duplicate is closed under its per-issue lock after a fresh read. A
// duplicate that another run already closed is skipped.
package deduplication
