// Package errors provides the error helpers used throughout replisync.
//
// Errors are wrapped with short context strings as they bubble up, so that a
// failure deep inside a pass reads like "reconcile /replica/sub: copy a.txt:
// open a.txt: permission denied". Errors that are meant to be shown to the
// user as-is implement FriendlyMessage.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error with the given formatted message.
func New(format string, args ...interface{}) error {
	if len(args) == 0 {
		return errors.New(format)
	}
	return fmt.Errorf(format, args...)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

type contextError struct {
	context string
	err     error
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err contextError) Unwrap() error {
	return err.err
}

// WithContext annotates err with a description of what was being attempted.
// A nil error stays nil.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return contextError{context: context, err: err}
}

// RootCause strips every layer of context added by WithContext.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(contextError)
		if !ok {
			return err
		}
		err = ctxErr.err
	}
}

// FriendlyError is an error whose message is fit to be shown directly to the
// user.
type FriendlyError interface {
	error
	FriendlyMessage() string
}

type friendlyError struct {
	msg string
}

func (err friendlyError) Error() string {
	return err.msg
}

func (err friendlyError) FriendlyMessage() string {
	return err.msg
}

// NewFriendlyError creates an error that GetPrintableMessage prints without
// any of the wrapping context.
func NewFriendlyError(format string, args ...interface{}) error {
	return friendlyError{fmt.Sprintf(format, args...)}
}

// GetPrintableMessage returns the message that should be shown to the user for
// err.
func GetPrintableMessage(err error) string {
	if friendlyErr, ok := RootCause(err).(FriendlyError); ok {
		return friendlyErr.FriendlyMessage()
	}
	return err.Error()
}
