// Package errors provides the error wrapping helper shared across the
// shell's packages.
package errors

import "github.com/pkg/errors"

// Wrap returns a new error annotating the passed error with the stack of
// the caller. If the passed error is nil, nil is returned, so call sites
// may wrap unconditionally.
func Wrap(err error) error {
	if err == nil {
		return nil
	}

	return errors.WithStack(err)
}
