// Package build holds small, process-wide constants and debug helpers,
// mirroring the teacher's build package (referenced throughout
// modules/renter as build.DEBUG / build.Critical).
package build

import "fmt"

// DEBUG toggles additional sanity checks that are too expensive to run
// in production but are valuable during development and in tests.
const DEBUG = false

// Critical should be called when a state the program assumes can never
// happen, happens anyway. In a release build it panics like a normal
// invariant violation; it exists as a named hook so call sites read as
// intentional rather than ad-hoc panics.
func Critical(args ...interface{}) {
	panic(fmt.Sprint(args...))
}

// ExtendErr wraps err with additional context, returning nil if err is
// nil. It matches the teacher's build.ExtendErr helper used throughout
// modules/host and modules/renter.
func ExtendErr(context string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}
