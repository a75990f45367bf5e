// Package errors provides centralized error definitions and error handling utilities
// for phyling. It defines the run's error taxonomy, domain-specific error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Taxonomy
//
// Errors are grouped by how a run reacts to them:
//
//   - ConfigError: missing catalog, no genomes, missing tools. Fatal, raised
//     before any external tool is invoked.
//   - SearchError: the search tool failed for one genome. Recorded, the genome
//     is excluded and the run continues.
//   - StageError: an alignment, trimming or tree stage failed for one marker.
//     Recorded, the marker is excluded and sibling markers continue.
//   - TerminalError: nothing is left to build a tree from. The run aborts with
//     a Condition naming which of the terminal conditions occurred.
//
// Coverage rejection of a marker is an expected outcome and is not an error.
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// # Usage
//
//	err := errors.NewStageError("align", errors.ErrToolFailed).
//		WithMarker("K00001").
//		WithExitCode(1).
//		WithStderr(stderr)
//
//	var stageErr *errors.StageError
//	if errors.As(err, &stageErr) { ... }
//
//	if errors.Is(err, errors.ErrZeroMarkersRetained) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that abort a run.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Catalog-related sentinel errors
var (
	// ErrCatalogNotFound indicates that the marker catalog path does not exist.
	ErrCatalogNotFound = New("marker catalog not found")
	// ErrCatalogUnreadable indicates that the marker catalog could not be parsed.
	ErrCatalogUnreadable = New("marker catalog unreadable")
	// ErrCatalogEmpty indicates that the catalog defines no markers.
	ErrCatalogEmpty = New("marker catalog is empty")
	// ErrUnknownMarker indicates a marker ID that is not part of the catalog.
	ErrUnknownMarker = New("marker not in catalog")
	// ErrMarkerNameCollision indicates two markers that map to the same
	// working file name.
	ErrMarkerNameCollision = New("markers share a file name")
)

// Input-related sentinel errors
var (
	// ErrNoGenomes indicates that no input genomes were given.
	ErrNoGenomes = New("no input genomes")
	// ErrTooFewGenomes indicates fewer genomes than a tree needs.
	ErrTooFewGenomes = New("too few input genomes")
	// ErrDuplicateGenome indicates two inputs that resolve to the same genome ID.
	ErrDuplicateGenome = New("duplicate genome identifier")
)

// Tool-related sentinel errors
var (
	// ErrToolNotFound indicates that an external tool binary is not on PATH.
	ErrToolNotFound = New("external tool not found")
	// ErrUnknownTool indicates a tool name with no registered command template.
	ErrUnknownTool = New("unknown tool")
	// ErrToolFailed indicates that an external tool exited non-zero.
	ErrToolFailed = New("external tool failed")
	// ErrEmptyOutput indicates that an external tool produced no output.
	ErrEmptyOutput = New("external tool produced empty output")
	// ErrMalformedOutput indicates output that could not be parsed.
	ErrMalformedOutput = New("malformed tool output")
)

// Run-level sentinel errors. Each terminal condition has its own sentinel so
// callers and the report can tell them apart.
var (
	// ErrZeroGenomesSearched indicates that the search failed for every genome.
	ErrZeroGenomesSearched = New("zero genomes searchable")
	// ErrZeroMarkersRetained indicates that no marker met the coverage threshold.
	ErrZeroMarkersRetained = New("zero markers retained")
	// ErrZeroMarkersSucceeded indicates that every per-marker pipeline failed.
	ErrZeroMarkersSucceeded = New("zero markers survived per-marker pipelines")
	// ErrConsensusFailed indicates that the species tree could not be built.
	ErrConsensusFailed = New("species tree construction failed")
	// ErrInvalidTransition indicates an illegal run state transition.
	ErrInvalidTransition = New("invalid run state transition")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// PhylingError is the base interface for all phyling errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type PhylingError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// ConfigError represents a fatal configuration problem detected before any
// external tool call.
//
// Example:
//
//	err := errors.NewConfigError("cannot load catalog", errors.ErrCatalogNotFound).
//		WithPath("/data/markers")
//	fmt.Println(err) // "config error [path=/data/markers]: cannot load catalog: marker catalog not found"
type ConfigError struct {
	baseError
	Path string
	Key  string
}

// NewConfigError creates a new ConfigError.
func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithPath adds the offending file or directory.
func (e *ConfigError) WithPath(path string) *ConfigError {
	e.Path = path
	return e
}

// WithKey adds the offending configuration key.
func (e *ConfigError) WithKey(key string) *ConfigError {
	e.Key = key
	return e
}

// Error returns the formatted error message.
func (e *ConfigError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	if e.Key != "" {
		parts = append(parts, fmt.Sprintf("key=%s", e.Key))
	}
	return e.format("config error", parts)
}

// Is checks if this error matches the target.
func (e *ConfigError) Is(target error) bool {
	if _, ok := target.(*ConfigError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// SearchError represents a failed profile search for one genome.
//
// Example:
//
//	err := errors.NewSearchError("hmmsearch failed", errors.ErrToolFailed).
//		WithGenome("ecoli").WithExitCode(1)
type SearchError struct {
	baseError
	Genome   string
	ExitCode int
	Stderr   string
	TimedOut bool
}

// NewSearchError creates a new SearchError.
func NewSearchError(message string, cause error) *SearchError {
	return &SearchError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ExitCode: -1, // -1 indicates not set
	}
}

// WithGenome adds the genome ID to the error context.
func (e *SearchError) WithGenome(id string) *SearchError {
	e.Genome = id
	return e
}

// WithTimedOut marks the search as having exceeded its per-call timeout.
func (e *SearchError) WithTimedOut(timedOut bool) *SearchError {
	e.TimedOut = timedOut
	e.retryable = timedOut
	return e
}

// WithExitCode records the search tool's exit status.
func (e *SearchError) WithExitCode(code int) *SearchError {
	e.ExitCode = code
	return e
}

// WithStderr records diagnostic output of the search tool.
func (e *SearchError) WithStderr(stderr string) *SearchError {
	e.Stderr = stderr
	return e
}

// Error returns the formatted error message.
func (e *SearchError) Error() string {
	var parts []string
	if e.Genome != "" {
		parts = append(parts, fmt.Sprintf("genome=%s", e.Genome))
	}
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	return e.format("search error", parts)
}

// Is checks if this error matches the target.
func (e *SearchError) Is(target error) bool {
	if _, ok := target.(*SearchError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// StageError represents a failed stage of one marker's pipeline.
//
// Example:
//
//	err := errors.NewStageError("align", errors.ErrToolFailed).
//		WithMarker("K00001").WithTool("muscle").WithExitCode(2)
//	fmt.Println(err) // "stage error [marker=K00001, stage=align, tool=muscle, exit=2]: align: external tool failed"
type StageError struct {
	baseError
	Marker   string
	Stage    string
	Tool     string
	ExitCode int
	Stderr   string
	TimedOut bool
}

// NewStageError creates a new StageError for the named stage.
func NewStageError(stage string, cause error) *StageError {
	return &StageError{
		baseError: baseError{
			message:    stage,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		Stage:    stage,
		ExitCode: -1, // -1 indicates not set
	}
}

// WithMarker adds the marker ID to the error context.
func (e *StageError) WithMarker(id string) *StageError {
	e.Marker = id
	return e
}

// WithTool adds the tool name to the error context.
func (e *StageError) WithTool(name string) *StageError {
	e.Tool = name
	return e
}

// WithExitCode records the tool's exit status.
func (e *StageError) WithExitCode(code int) *StageError {
	e.ExitCode = code
	return e
}

// WithStderr records diagnostic output of the tool.
func (e *StageError) WithStderr(stderr string) *StageError {
	e.Stderr = stderr
	return e
}

// WithTimedOut marks the stage as having exceeded its per-call timeout.
func (e *StageError) WithTimedOut(timedOut bool) *StageError {
	e.TimedOut = timedOut
	e.retryable = timedOut
	return e
}

// Error returns the formatted error message.
func (e *StageError) Error() string {
	var parts []string
	if e.Marker != "" {
		parts = append(parts, fmt.Sprintf("marker=%s", e.Marker))
	}
	if e.Stage != "" {
		parts = append(parts, fmt.Sprintf("stage=%s", e.Stage))
	}
	if e.Tool != "" {
		parts = append(parts, fmt.Sprintf("tool=%s", e.Tool))
	}
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	if e.TimedOut {
		parts = append(parts, "timeout")
	}
	return e.format("stage error", parts)
}

// Is checks if this error matches the target.
func (e *StageError) Is(target error) bool {
	if _, ok := target.(*StageError); ok {
		return true
	}
	if e.TimedOut && errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// Condition names a terminal run failure.
type Condition string

const (
	ConditionZeroGenomes   Condition = "zero_genomes_searched"
	ConditionZeroRetained  Condition = "zero_markers_retained"
	ConditionZeroSucceeded Condition = "zero_markers_succeeded"
	ConditionConsensus     Condition = "consensus_failed"
)

// conditionSentinels maps each terminal condition to its sentinel.
var conditionSentinels = map[Condition]error{
	ConditionZeroGenomes:   ErrZeroGenomesSearched,
	ConditionZeroRetained:  ErrZeroMarkersRetained,
	ConditionZeroSucceeded: ErrZeroMarkersSucceeded,
	ConditionConsensus:     ErrConsensusFailed,
}

// TerminalError aborts a run. It always matches the sentinel of its
// Condition, so errors.Is(err, ErrZeroMarkersRetained) works without a cause.
//
// Example:
//
//	err := errors.NewTerminalError(errors.ConditionZeroRetained, "no marker reached 80% coverage")
type TerminalError struct {
	baseError
	Condition Condition
	State     string
}

// NewTerminalError creates a new TerminalError.
func NewTerminalError(cond Condition, message string) *TerminalError {
	return &TerminalError{
		baseError: baseError{
			message:    message,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
		Condition: cond,
	}
}

// WithCause adds a cause to the error.
func (e *TerminalError) WithCause(cause error) *TerminalError {
	e.cause = cause
	return e
}

// WithState records the run state in which the failure occurred.
func (e *TerminalError) WithState(state string) *TerminalError {
	e.State = state
	return e
}

// Error returns the formatted error message.
func (e *TerminalError) Error() string {
	parts := []string{fmt.Sprintf("condition=%s", e.Condition)}
	if e.State != "" {
		parts = append(parts, fmt.Sprintf("state=%s", e.State))
	}
	return e.format("run aborted", parts)
}

// Is checks if this error matches the target.
func (e *TerminalError) Is(target error) bool {
	if _, ok := target.(*TerminalError); ok {
		return true
	}
	if sentinel, ok := conditionSentinels[e.Condition]; ok && target == sentinel {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("sequence", "WP_000001.1")
//	fmt.Println(err) // "sequence 'WP_000001.1' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("alignment rows differ in width")
//	err = err.WithField("K00001").WithValue(118)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("muscle on K00001", 30*time.Minute)
//	fmt.Println(err) // "timeout error: muscle on K00001 (timeout: 30m0s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing PhylingError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var phylingErr PhylingError
	if As(err, &phylingErr) {
		return phylingErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var phylingErr PhylingError
	if As(err, &phylingErr) {
		return phylingErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement PhylingError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var phylingErr PhylingError
	if As(err, &phylingErr) {
		return phylingErr.Severity()
	}

	return SeverityError
}

// IsRecoverable reports whether err is a per-unit failure (a single genome or
// marker) that a run absorbs into its report instead of aborting.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}

	var searchErr *SearchError
	var stageErr *StageError
	return As(err, &searchErr) || As(err, &stageErr)
}

// IsTerminal reports whether err aborts the run.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}

	var terminal *TerminalError
	var config *ConfigError
	return As(err, &terminal) || As(err, &config)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike a bare fmt.Errorf, this is nil-safe.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to load catalog")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to read genome %s", id)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
