package rolls

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingField matches any *MissingFieldError via errors.Is.
	ErrMissingField = errors.New("rolls: missing required field")
	// ErrPersistence matches any *PersistenceError via errors.Is.
	ErrPersistence = errors.New("rolls: persistence failure")
	// ErrNotFound matches any *NotFoundError via errors.Is.
	ErrNotFound = errors.New("rolls: not found")

	errMissingDatabase = errors.New("database handle is required")
)

// MissingFieldError reports blank required submission fields.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingField, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// PersistenceError wraps a datastore failure with a stable code of the form
// <operation>.<reason>.
type PersistenceError struct {
	code string
	err  error
}

func (e *PersistenceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *PersistenceError) Unwrap() error {
	return e.err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Code() string {
	return e.code
}

// NotFoundError reports a roll lookup without a match.
type NotFoundError struct {
	RollID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: roll %d", ErrNotFound, e.RollID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

const (
	opServiceNew    = "rolls.service.new"
	opSubmitRoll    = "rolls.submit_roll"
	opSearchRolls   = "rolls.search_rolls"
	opListDieTypes  = "rolls.list_die_types"
	opPingDatastore = "rolls.ping"
)

func newPersistenceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &PersistenceError{code: code, err: cause}
}
