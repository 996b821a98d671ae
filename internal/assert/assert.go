//go:build !assertions

// Package assert implements the invariant-break handling the scheduler
// core promises: an assertion failure in debug builds, undefined (here:
// the check is skipped) in release. This follows the common Go idiom of a
// build-tag-gated no-op/panic pair; under the assertions tag a violation
// is a hard panic, since a runqueue bitmap/bucket mismatch is not
// something a caller can recover from.
package assert

// Invariant is a no-op unless built with -tags assertions.
func Invariant(cond bool, msg string) {}
