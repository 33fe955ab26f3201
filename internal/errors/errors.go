// Package errors provides sentinel errors and custom error types for sitevc.
// Use errors.Is() and errors.As() to check for specific error types.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common conditions
var (
	// ErrNoCommonAncestor indicates that two versions share no lineage
	ErrNoCommonAncestor = errors.New("no common ancestor")

	// ErrSchemaMismatch indicates that bundles carry different schema stamps
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrDanglingReference indicates that a bundle references a missing iid
	ErrDanglingReference = errors.New("dangling reference")

	// ErrCorruptBundle indicates a structurally invalid bundle (missing root, duplicate uuid, ...)
	ErrCorruptBundle = errors.New("corrupt bundle")

	// ErrUnresolvedConflict indicates that a merge was committed with conflicts still unpicked
	ErrUnresolvedConflict = errors.New("unresolved conflict")

	// ErrStaleBranchHead indicates that a branch moved since the merge triple was read
	ErrStaleBranchHead = errors.New("stale branch head")

	// ErrBranchNotFound indicates that a branch does not exist
	ErrBranchNotFound = errors.New("branch not found")

	// ErrBranchExists indicates that a branch name is already taken
	ErrBranchExists = errors.New("branch already exists")

	// ErrVersionNotFound indicates that a version id is unknown to the store
	ErrVersionNotFound = errors.New("version not found")

	// ErrSessionNotFound indicates that a merge session does not exist
	ErrSessionNotFound = errors.New("merge session not found")

	// ErrConflictNotFound indicates that a conflict id is not part of a session
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrInvalidVersion indicates an unparsable package version
	ErrInvalidVersion = errors.New("invalid package version")

	// ErrInvalidTransition indicates an illegal merge session state change
	ErrInvalidTransition = errors.New("invalid merge state transition")

	// ErrSameBranch indicates an attempt to merge a branch into itself
	ErrSameBranch = errors.New("cannot merge a branch into itself")

	// ErrInvalidPick indicates a resolution naming an unknown side or field
	ErrInvalidPick = errors.New("invalid conflict pick")
)

// NoCommonAncestorError is returned when two versions have disjoint histories
type NoCommonAncestorError struct {
	A string
	B string
}

func (e *NoCommonAncestorError) Error() string {
	return fmt.Sprintf("versions %s and %s share no common ancestor", e.A, e.B)
}

// Is returns true if the target error is ErrNoCommonAncestor
func (e *NoCommonAncestorError) Is(target error) bool {
	return target == ErrNoCommonAncestor
}

// NewNoCommonAncestorError creates a new NoCommonAncestorError
func NewNoCommonAncestorError(a, b string) *NoCommonAncestorError {
	return &NoCommonAncestorError{A: a, B: b}
}

// SchemaMismatchError lists the stamps found on the merge inputs
type SchemaMismatchError struct {
	Stamps map[string]string // role (ancestor/left/right) -> stamp
}

func (e *SchemaMismatchError) Error() string {
	parts := make([]string, 0, len(e.Stamps))
	for _, role := range []string{"ancestor", "left", "right"} {
		if stamp, ok := e.Stamps[role]; ok {
			parts = append(parts, fmt.Sprintf("%s=%q", role, stamp))
		}
	}
	return fmt.Sprintf("bundles are not on a common schema stamp (%s); migrate them first", strings.Join(parts, ", "))
}

// Is returns true if the target error is ErrSchemaMismatch
func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// NewSchemaMismatchError creates a new SchemaMismatchError
func NewSchemaMismatchError(stamps map[string]string) *SchemaMismatchError {
	return &SchemaMismatchError{Stamps: stamps}
}

// DanglingReferenceError represents a reference to an iid missing from its bundle
type DanglingReferenceError struct {
	FromIID    string
	Field      string
	MissingIID string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("iid %s field %q references missing iid %s", e.FromIID, e.Field, e.MissingIID)
}

// Is returns true if the target error is ErrDanglingReference
func (e *DanglingReferenceError) Is(target error) bool {
	return target == ErrDanglingReference
}

// NewDanglingReferenceError creates a new DanglingReferenceError
func NewDanglingReferenceError(fromIID, field, missingIID string) *DanglingReferenceError {
	return &DanglingReferenceError{FromIID: fromIID, Field: field, MissingIID: missingIID}
}

// UnresolvedConflictError is returned when committing a merge that still has pending conflicts
type UnresolvedConflictError struct {
	SessionID string
	Pending   []string
}

func (e *UnresolvedConflictError) Error() string {
	return fmt.Sprintf("merge session %s has %d unresolved conflict(s): %s",
		e.SessionID, len(e.Pending), strings.Join(e.Pending, ", "))
}

// Is returns true if the target error is ErrUnresolvedConflict
func (e *UnresolvedConflictError) Is(target error) bool {
	return target == ErrUnresolvedConflict
}

// NewUnresolvedConflictError creates a new UnresolvedConflictError
func NewUnresolvedConflictError(sessionID string, pending []string) *UnresolvedConflictError {
	return &UnresolvedConflictError{SessionID: sessionID, Pending: pending}
}

// StaleBranchHeadError is the optimistic concurrency failure on branch updates
type StaleBranchHeadError struct {
	Branch   string
	Expected string
	Actual   string
}

func (e *StaleBranchHeadError) Error() string {
	return fmt.Sprintf("branch %s moved from %s to %s; retry the merge against the new head",
		e.Branch, e.Expected, e.Actual)
}

// Is returns true if the target error is ErrStaleBranchHead
func (e *StaleBranchHeadError) Is(target error) bool {
	return target == ErrStaleBranchHead
}

// NewStaleBranchHeadError creates a new StaleBranchHeadError
func NewStaleBranchHeadError(branch, expected, actual string) *StaleBranchHeadError {
	return &StaleBranchHeadError{Branch: branch, Expected: expected, Actual: actual}
}

// BranchNotFoundError represents an error when a branch is not found
type BranchNotFoundError struct {
	BranchName string
}

func (e *BranchNotFoundError) Error() string {
	return fmt.Sprintf("branch %s does not exist", e.BranchName)
}

// Is returns true if the target error is ErrBranchNotFound
func (e *BranchNotFoundError) Is(target error) bool {
	return target == ErrBranchNotFound
}

// NewBranchNotFoundError creates a new BranchNotFoundError
func NewBranchNotFoundError(branchName string) *BranchNotFoundError {
	return &BranchNotFoundError{BranchName: branchName}
}

// VersionNotFoundError represents an unknown version id
type VersionNotFoundError struct {
	VersionID string
	Err       error
}

func (e *VersionNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("version %s not found: %v", e.VersionID, e.Err)
	}
	return fmt.Sprintf("version %s not found", e.VersionID)
}

// Is returns true if the target error is ErrVersionNotFound
func (e *VersionNotFoundError) Is(target error) bool {
	return target == ErrVersionNotFound
}

func (e *VersionNotFoundError) Unwrap() error {
	return e.Err
}

// NewVersionNotFoundError creates a new VersionNotFoundError
func NewVersionNotFoundError(versionID string, err error) *VersionNotFoundError {
	return &VersionNotFoundError{VersionID: versionID, Err: err}
}

// InvalidTransitionError describes an illegal merge session state change
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move merge session from %s to %s", e.From, e.To)
}

// Is returns true if the target error is ErrInvalidTransition
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// NewInvalidTransitionError creates a new InvalidTransitionError
func NewInvalidTransitionError(from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{From: from, To: to}
}

// IsFatal reports whether err is a data-integrity error that aborts a merge attempt.
// Recoverable errors (unresolved conflicts, stale heads) return false.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNoCommonAncestor) ||
		errors.Is(err, ErrSchemaMismatch) ||
		errors.Is(err, ErrDanglingReference) ||
		errors.Is(err, ErrCorruptBundle)
}
