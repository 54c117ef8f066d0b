// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package atlas

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/taibuivan/historyatlas/internal/platform/apperr"
)

// # Domain Errors
//
// Each typed error unwraps to the matching [apperr.AppError] so that handlers
// can pass them straight to respond.Error.

// ErrUnorderable is returned when an instance depends on a summary whose
// instance of the same tag has no order yet. The instance stays NULL until the
// bulk reorderer resolves it.
var ErrUnorderable = errors.New("atlas: tag instance cannot be ordered yet")

// MissingResourceError reports a missing story, event or tag.
type MissingResourceError struct {
	Resource string
	ID       string
}

func (e *MissingResourceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *MissingResourceError) Unwrap() error {
	return apperr.NotFound(e.Resource)
}

// NewMissing builds a [MissingResourceError] for a UUID identified resource.
func NewMissing(resource string, id uuid.UUID) *MissingResourceError {
	return &MissingResourceError{Resource: resource, ID: id.String()}
}

// UnknownManifestTypeError reports an unsupported manifest type.
type UnknownManifestTypeError struct {
	Type string
}

func (e *UnknownManifestTypeError) Error() string {
	return fmt.Sprintf("unknown manifest type %q", e.Type)
}

func (e *UnknownManifestTypeError) Unwrap() error {
	return apperr.ValidationError(e.Error(), apperr.FieldError{Field: "type", Message: "Must be one of: PERSON, PLACE, TIME"})
}

// DuplicateEventError reports an ingestion event whose index was already
// processed.
type DuplicateEventError struct {
	Index int64
}

func (e *DuplicateEventError) Error() string {
	return fmt.Sprintf("event %d already processed", e.Index)
}

func (e *DuplicateEventError) Unwrap() error {
	return apperr.Conflict(e.Error())
}

// StoryOrderConflictError reports a violation of the per-tag story order
// uniqueness. Callers retry with a recomputed order.
type StoryOrderConflictError struct {
	TagID uuid.UUID
	Order int64
	Cause error
}

func (e *StoryOrderConflictError) Error() string {
	if e.Order == 0 {
		return fmt.Sprintf("story order conflict on tag %s", e.TagID)
	}
	return fmt.Sprintf("story order %d already taken on tag %s", e.Order, e.TagID)
}

func (e *StoryOrderConflictError) Unwrap() []error {
	conflict := apperr.Conflict("Story order conflict")
	if e.Cause == nil {
		return []error{conflict}
	}
	conflict.Cause = e.Cause
	return []error{conflict, e.Cause}
}

// IsStoryOrderConflict reports whether err carries a [StoryOrderConflictError].
func IsStoryOrderConflict(err error) bool {
	var conflict *StoryOrderConflictError
	return errors.As(err, &conflict)
}

// IsMissing reports whether err carries a [MissingResourceError].
func IsMissing(err error) bool {
	var missing *MissingResourceError
	return errors.As(err, &missing)
}
