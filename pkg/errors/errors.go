// Package errors defines the error taxonomy shared by all tsguard stages and
// re-exports the wrapping helpers used across the module.
package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Errorf is re-exported from fmt
var Errorf = fmt.Errorf

// New is an alias to Errorf
var New = Errorf

// WrapfOrNil annotates err with a formatted message and passes nil through.
func WrapfOrNil(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.WithMessage(err, fmt.Sprintf(format, args...))
}

// Wrapf is WrapfOrNil if err != nil, and Errorf otherwise: it never returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return Errorf(format, args...)
	}
	return WrapfOrNil(err, format, args...)
}

// WithStack is re-exported from github.com/pkg/errors
var WithStack = errors.WithStack

// Cause is re-exported from github.com/pkg/errors
var Cause = errors.Cause

// Category sentinels. Every failure a stage can report wraps exactly one of
// these; none are retried or downgraded.
var (
	// ErrConfiguration covers bad or missing parameters, an unresolvable
	// channel selection, and an even window size.
	ErrConfiguration = errors.New("configuration error")

	// ErrMissingArtifact covers execute runs without prior train output and
	// reconstruction runs that never produced a checkpoint.
	ErrMissingArtifact = errors.New("missing model artifact")

	// ErrDataShape covers channel/label column mismatches, ragged rows, and
	// window sizes larger than the series.
	ErrDataShape = errors.New("data shape error")
)

// Configurationf returns a configuration error with a formatted detail message.
func Configurationf(format string, args ...interface{}) error {
	return errors.WithMessagef(ErrConfiguration, format, args...)
}

// MissingArtifactf returns a missing-artifact error with a formatted detail message.
func MissingArtifactf(format string, args ...interface{}) error {
	return errors.WithMessagef(ErrMissingArtifact, format, args...)
}

// DataShapef returns a data-shape error with a formatted detail message.
func DataShapef(format string, args ...interface{}) error {
	return errors.WithMessagef(ErrDataShape, format, args...)
}

// IsConfiguration reports whether err belongs to the configuration category.
func IsConfiguration(err error) bool {
	return stderrors.Is(err, ErrConfiguration)
}

// IsMissingArtifact reports whether err belongs to the missing-artifact category.
func IsMissingArtifact(err error) bool {
	return stderrors.Is(err, ErrMissingArtifact)
}

// IsDataShape reports whether err belongs to the data-shape category.
func IsDataShape(err error) bool {
	return stderrors.Is(err, ErrDataShape)
}
