// Package apperrors provides the typed error taxonomy used across SynqX's
// control plane and executor, following spec §7.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one of the taxonomy's error classes.
type Kind string

const (
	KindConfiguration       Kind = "CONFIGURATION"
	KindConnectionFailed    Kind = "CONNECTION_FAILED"
	KindAuthentication      Kind = "AUTHENTICATION"
	KindSchemaDiscovery     Kind = "SCHEMA_DISCOVERY"
	KindDataTransfer        Kind = "DATA_TRANSFER"
	KindTransformation      Kind = "TRANSFORMATION"
	KindPipelineExecution   Kind = "PIPELINE_EXECUTION"
	KindNotFound            Kind = "NOT_FOUND"
	KindForbidden           Kind = "FORBIDDEN"
	KindNoAgentsAvailable   Kind = "NO_AGENTS_AVAILABLE"
	KindConflict            Kind = "CONFLICT"
)

// Error is a structured error carrying a Kind, a human message, the HTTP
// status the control plane's surface should answer with, optional
// structured details, and an optionally wrapped cause.
type Error struct {
	Kind       Kind                   `json:"kind"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	// Retryable reflects spec §7's per-kind retry guidance: DataTransferError
	// and TransformationError(runtime) are retryable per node policy;
	// TransformationError(compile) and PipelineExecutionError are not.
	Retryable bool  `json:"retryable"`
	Err       error `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is comparisons against another *Error by Kind alone,
// so callers can do errors.Is(err, apperrors.New(apperrors.KindNotFound, "", 0)).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// WithDetails attaches a key/value to the error's Details map and returns e
// for chaining.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an unwrapped Error of the given kind.
func New(kind Kind, message string, httpStatus int) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: httpStatus}
}

// Wrap creates an Error of the given kind wrapping a lower-level cause.
func Wrap(kind Kind, message string, httpStatus int, err error) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Configuration-time errors

func Configuration(component, reason string) *Error {
	return New(KindConfiguration, "invalid configuration", http.StatusBadRequest).
		WithDetails("component", component).
		WithDetails("reason", reason)
}

// Connection / authentication errors

func ConnectionFailed(connectorKind string, err error) *Error {
	e := Wrap(KindConnectionFailed, "connection failed", http.StatusServiceUnavailable, err).
		WithDetails("connector_kind", connectorKind)
	e.Retryable = true
	return e
}

func Authentication(message string) *Error {
	return New(KindAuthentication, message, http.StatusUnauthorized)
}

// Schema discovery — not fatal when the node declares an explicit schema;
// callers decide whether to treat this as terminal.

func SchemaDiscovery(asset string, err error) *Error {
	return Wrap(KindSchemaDiscovery, "schema discovery failed", http.StatusBadGateway, err).
		WithDetails("asset", asset)
}

// Data transfer — retryable per node policy.

func DataTransfer(operation string, err error) *Error {
	e := Wrap(KindDataTransfer, "data transfer failed", http.StatusBadGateway, err).
		WithDetails("operation", operation)
	e.Retryable = true
	return e
}

// Transformation — compile errors are never retryable, runtime errors are.

func TransformationCompile(operatorClass string, err error) *Error {
	return Wrap(KindTransformation, "transform compilation failed", http.StatusBadRequest, err).
		WithDetails("operator_class", operatorClass).
		WithDetails("phase", "compile")
}

func TransformationRuntime(operatorClass string, err error) *Error {
	e := Wrap(KindTransformation, "transform execution failed", http.StatusInternalServerError, err).
		WithDetails("operator_class", operatorClass).
		WithDetails("phase", "runtime")
	e.Retryable = true
	return e
}

// Pipeline execution — terminal for the run (cycle, DQ threshold, guardrail).

func PipelineExecution(reason string, err error) *Error {
	return Wrap(KindPipelineExecution, reason, http.StatusUnprocessableEntity, err)
}

// Control-plane API surface errors

func NotFound(resource, id string) *Error {
	return New(KindNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, message, http.StatusForbidden)
}

func Conflict(message string) *Error {
	return New(KindConflict, message, http.StatusConflict)
}

func NoAgentsAvailable(group string) *Error {
	return New(KindNoAgentsAvailable, "no agents available for group", http.StatusServiceUnavailable).
		WithDetails("group", group)
}

// Helpers

// As extracts an *Error from err's chain, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus returns the HTTP status to answer with for err, defaulting to
// 500 when err is not a *Error.
func HTTPStatus(err error) int {
	if e, ok := As(err); ok {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether err, if a *Error, is marked retryable.
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable
}
