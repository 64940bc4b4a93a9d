package engine

import (
	"errors"
	"fmt"
)

// MutationError represents a failed mutation against one entity family.
//
// The local optimistic state is never rolled back when one of these is
// returned: the caller decides whether to retry, and a later reconciliation
// corrects any divergence. MutationError includes structured fields for
// diagnostics.
type MutationError struct {
	// Code identifies the error category.
	Code MutationErrorCode

	// Op is the mutation kind: "create", "update", or "delete".
	Op string

	// Family identifies the entity family.
	Family string

	// RecordID identifies the affected record, when known.
	RecordID string

	// Err is the underlying cause, when any.
	Err error
}

// MutationErrorCode categorizes mutation errors.
type MutationErrorCode string

const (
	// ErrCodeRemoteRejected indicates the remote store refused or failed the
	// commit. Local state is ahead of the remote until retried or reconciled.
	ErrCodeRemoteRejected MutationErrorCode = "REMOTE_REJECTED"

	// ErrCodeConflict indicates the record's version moved since it was read.
	ErrCodeConflict MutationErrorCode = "CONFLICT"

	// ErrCodeNotFound indicates the record does not exist in published state.
	ErrCodeNotFound MutationErrorCode = "NOT_FOUND"

	// ErrCodeUnsettled indicates the record still carries a local id: the
	// remote store cannot address it until a reconciliation settles the
	// server-assigned id.
	ErrCodeUnsettled MutationErrorCode = "UNSETTLED"
)

// Error implements the error interface.
func (e *MutationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %s/%s: %v", e.Code, e.Op, e.Family, e.RecordID, e.Err)
	}
	return fmt.Sprintf("%s: %s %s/%s", e.Code, e.Op, e.Family, e.RecordID)
}

// Unwrap returns the underlying cause.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether err is a version conflict.
// Uses errors.As to handle wrapped errors.
func IsConflict(err error) bool {
	var me *MutationError
	return errors.As(err, &me) && me.Code == ErrCodeConflict
}

// IsRemoteRejected reports whether err is a remote commit failure.
func IsRemoteRejected(err error) bool {
	var me *MutationError
	return errors.As(err, &me) && me.Code == ErrCodeRemoteRejected
}

// IsNotFound reports whether err is a missing-record failure.
func IsNotFound(err error) bool {
	var me *MutationError
	return errors.As(err, &me) && me.Code == ErrCodeNotFound
}

// IsUnsettled reports whether err is an unsettled-record failure.
func IsUnsettled(err error) bool {
	var me *MutationError
	return errors.As(err, &me) && me.Code == ErrCodeUnsettled
}

func newRemoteError(family, op, recordID string, err error) *MutationError {
	return &MutationError{Code: ErrCodeRemoteRejected, Op: op, Family: family, RecordID: recordID, Err: err}
}

func newConflictError(family, op, recordID string) *MutationError {
	return &MutationError{Code: ErrCodeConflict, Op: op, Family: family, RecordID: recordID}
}

func newNotFoundError(family, op, recordID string) *MutationError {
	return &MutationError{Code: ErrCodeNotFound, Op: op, Family: family, RecordID: recordID}
}

func newUnsettledError(family, op, recordID string) *MutationError {
	return &MutationError{Code: ErrCodeUnsettled, Op: op, Family: family, RecordID: recordID}
}
