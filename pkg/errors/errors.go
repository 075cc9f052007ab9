// Package errors provides custom error types for the tagsync system.
// Every reconciliation error carries the affected identifier and the stage
// it occurred in, so a failed pass can be retried narrowly instead of
// re-running the whole reconciliation.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is, As and Join re-export the standard library helpers so callers
// importing this package under the name "errors" keep access to them.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)

// Common sentinel errors for the tagsync system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrCanceled indicates that an operation was canceled by the operator
	ErrCanceled = errors.New("operation canceled")

	// ErrDrawingAccess indicates the drawing could not be opened or read
	ErrDrawingAccess = errors.New("drawing access failed")

	// ErrTransaction indicates a store transaction failed and was rolled back
	ErrTransaction = errors.New("store transaction failed")

	// ErrClassification indicates the learned-mapping table could not be used
	ErrClassification = errors.New("classification store unavailable")

	// ErrPartialApply indicates a single drawing-side write failed
	ErrPartialApply = errors.New("partial apply")
)

// Stage identifies where in a reconciliation pass an error occurred.
type Stage string

// Reconciliation stages.
const (
	StageExtract  Stage = "extract"
	StageClassify Stage = "classify"
	StageLoad     Stage = "load"
	StageDiff     Stage = "diff"
	StageSelect   Stage = "select"
	StageTag      Stage = "tag"
	StageApply    Stage = "apply"
	StageCommit   Stage = "commit"
	StageDrawing  Stage = "drawing-write"
)

// String returns the stage name.
func (s Stage) String() string {
	return string(s)
}

// DrawingAccessError is raised when the drawing cannot be opened or read.
// It is fatal to the current operation and no partial state is produced.
type DrawingAccessError struct {
	Drawing string
	Stage   Stage
	Err     error
}

// Error implements the error interface
func (e *DrawingAccessError) Error() string {
	if e.Drawing != "" {
		return fmt.Sprintf("cannot access drawing %s during %s: %v", e.Drawing, e.Stage, e.Err)
	}
	return fmt.Sprintf("cannot access drawing during %s: %v", e.Stage, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *DrawingAccessError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *DrawingAccessError) Is(target error) bool {
	return target == ErrDrawingAccess
}

// NewDrawingAccessError creates a new DrawingAccessError
func NewDrawingAccessError(drawing string, stage Stage, err error) *DrawingAccessError {
	return &DrawingAccessError{Drawing: drawing, Stage: stage, Err: err}
}

// ClassificationError reports a corrupt or unreachable learned-mapping table.
// It is recoverable: the classifier falls back to its static rules.
type ClassificationError struct {
	Identifier string // block identifier or mapping file path
	Operation  string // "load", "save", "import"
	Stage      Stage
	Err        error
}

// Error implements the error interface
func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification %s failed for %s: %v", e.Operation, e.Identifier, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ClassificationError) Is(target error) bool {
	return target == ErrClassification
}

// NewClassificationError creates a new ClassificationError
func NewClassificationError(identifier, operation string, err error) *ClassificationError {
	return &ClassificationError{
		Identifier: identifier,
		Operation:  operation,
		Stage:      StageClassify,
		Err:        err,
	}
}

// TagValidationError reports a tag that violates the project's tag format.
type TagValidationError struct {
	Tag        string
	Mode       string
	Reason     string
	Suggestion string
	Stage      Stage
}

// Error implements the error interface
func (e *TagValidationError) Error() string {
	msg := fmt.Sprintf("tag %q is not valid in %s mode: %s", e.Tag, e.Mode, e.Reason)
	if e.Suggestion != "" && e.Suggestion != e.Tag {
		msg += fmt.Sprintf(" (suggested: %q)", e.Suggestion)
	}
	return msg
}

// Is implements errors.Is support
func (e *TagValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewTagValidationError creates a new TagValidationError
func NewTagValidationError(tag, mode, reason, suggestion string) *TagValidationError {
	return &TagValidationError{
		Tag:        tag,
		Mode:       mode,
		Reason:     reason,
		Suggestion: suggestion,
		Stage:      StageTag,
	}
}

// DuplicateTagError reports a uniqueness violation at generation or commit
// time. The operator either links to the existing record or re-enters a tag.
type DuplicateTagError struct {
	Tag        string
	ProjectID  string
	ExistingID string
	Stage      Stage
}

// Error implements the error interface
func (e *DuplicateTagError) Error() string {
	if e.ExistingID != "" {
		return fmt.Sprintf("tag %q already used in project %s by record %s", e.Tag, e.ProjectID, e.ExistingID)
	}
	return fmt.Sprintf("tag %q already used in project %s", e.Tag, e.ProjectID)
}

// Is implements errors.Is support
func (e *DuplicateTagError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// NewDuplicateTagError creates a new DuplicateTagError
func NewDuplicateTagError(projectID, tag, existingID string, stage Stage) *DuplicateTagError {
	return &DuplicateTagError{
		Tag:        tag,
		ProjectID:  projectID,
		ExistingID: existingID,
		Stage:      stage,
	}
}

// StoreTransactionError reports a failed store commit. The whole store batch
// is rolled back; drawing-side writes already applied are not reverted.
type StoreTransactionError struct {
	ProjectID string
	Stage     Stage
	Err       error
}

// Error implements the error interface
func (e *StoreTransactionError) Error() string {
	return fmt.Sprintf("store transaction for project %s failed during %s: %v", e.ProjectID, e.Stage, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *StoreTransactionError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *StoreTransactionError) Is(target error) bool {
	return target == ErrTransaction
}

// NewStoreTransactionError creates a new StoreTransactionError
func NewStoreTransactionError(projectID string, stage Stage, err error) *StoreTransactionError {
	return &StoreTransactionError{ProjectID: projectID, Stage: stage, Err: err}
}

// PartialApplyWarning reports a single drawing-side write failure. It is
// counted and does not abort the remaining objects.
type PartialApplyWarning struct {
	Handle string
	Tag    string
	Field  string
	Stage  Stage
	Err    error
}

// Error implements the error interface
func (e *PartialApplyWarning) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("write of %s to object %s (tag %s) failed: %v", e.Field, e.Handle, e.Tag, e.Err)
	}
	return fmt.Sprintf("write to object %s (tag %s) failed: %v", e.Handle, e.Tag, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *PartialApplyWarning) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *PartialApplyWarning) Is(target error) bool {
	return target == ErrPartialApply
}

// NewPartialApplyWarning creates a new PartialApplyWarning
func NewPartialApplyWarning(handle, tag, field string, err error) *PartialApplyWarning {
	return &PartialApplyWarning{
		Handle: handle,
		Tag:    tag,
		Field:  field,
		Stage:  StageDrawing,
		Err:    err,
	}
}

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "yaml", "json", "marker"
	File    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "create", "open", "close"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsCanceled checks if an error is a cancellation error
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsDrawingAccess checks if an error means the drawing was unreadable
func IsDrawingAccess(err error) bool {
	return errors.Is(err, ErrDrawingAccess)
}

// IsTransaction checks if an error is a rolled-back store transaction
func IsTransaction(err error) bool {
	return errors.Is(err, ErrTransaction)
}

// Helper wrapping functions for common patterns

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}

// WrapTransaction wraps an error as a StoreTransactionError unless it is
// already one.
func WrapTransaction(projectID string, stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var txErr *StoreTransactionError
	if errors.As(err, &txErr) {
		return err
	}
	return NewStoreTransactionError(projectID, stage, err)
}
