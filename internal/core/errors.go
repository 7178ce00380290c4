package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrValidation    = errors.New("validation failed")
	ErrDuplicate     = errors.New("duplicate record")
	ErrNotAuthorized = errors.New("not authorized")
	ErrUpstream      = errors.New("upstream failure")
	ErrNotFound      = errors.New("not found")
)

// ValidationError reports malformed input rejected before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// DuplicateRecordError is returned when a dues batch collides with
// existing (member, month, year) rows. Months lists every collision.
type DuplicateRecordError struct {
	MemberID int64
	Year     int
	Months   []int
}

func (e *DuplicateRecordError) Error() string {
	parts := make([]string, len(e.Months))
	for i, m := range e.Months {
		parts[i] = strconv.Itoa(m)
	}
	return fmt.Sprintf("dues already exist for member %d in %d, months: %s", e.MemberID, e.Year, strings.Join(parts, ", "))
}

func (e *DuplicateRecordError) Is(target error) bool { return target == ErrDuplicate }

// NotAuthorizedError is returned when a non-admin attempts an admin-only mutation.
type NotAuthorizedError struct {
	MemberID int64
	Action   string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("member %d is not allowed to %s", e.MemberID, e.Action)
}

func (e *NotAuthorizedError) Is(target error) bool { return target == ErrNotAuthorized }

// UpstreamError wraps a failure of the persistence layer. Operations are
// not retried.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Upstream wraps err as an UpstreamError unless it is nil or already one
// of the domain errors.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrNotAuthorized) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUpstream) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}
