package pipeline

import "net/http"

// Kind is the error taxonomy. Every stage failure maps to exactly one kind
// at the stage's own boundary; nothing propagates as an opaque fault.
type Kind string

const (
	KindNone                   Kind = ""
	KindRateLimited            Kind = "RateLimited"
	KindUnsafeInput            Kind = "UnsafeInput"
	KindInputTooLong           Kind = "InputTooLong"
	KindGenerationFailure      Kind = "GenerationFailure"
	KindMultiStatementDetected Kind = "MultiStatementDetected"
	KindGuardViolation         Kind = "GuardViolation"
	KindExecutionTimeout       Kind = "ExecutionTimeout"
	KindExecutionError         Kind = "ExecutionError"
	KindConnectionError        Kind = "ConnectionError"
	KindCompositionFailure     Kind = "CompositionFailure"
	KindInternal               Kind = "Internal"
)

// HTTPStatus maps a kind onto the response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNone:
		return http.StatusOK
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnsafeInput, KindInputTooLong, KindGuardViolation, KindMultiStatementDetected:
		return http.StatusBadRequest
	case KindGenerationFailure, KindCompositionFailure:
		return http.StatusBadGateway
	case KindExecutionTimeout:
		return http.StatusGatewayTimeout
	case KindConnectionError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns the sanitized, user-facing text for a kind. Internal
// detail (driver errors, schema names) stays in the logs.
func (k Kind) UserMessage() string {
	switch k {
	case KindRateLimited:
		return "Too many requests. Please slow down and try again."
	case KindUnsafeInput:
		return "Your input contains patterns that are not allowed."
	case KindInputTooLong:
		return "Your question is too long. Please shorten it and try again."
	case KindGenerationFailure:
		return "Unable to generate a query from your question. Please try rephrasing it."
	case KindMultiStatementDetected:
		return "The generated query was rejected for safety reasons."
	case KindGuardViolation:
		return "The generated query was rejected for safety reasons."
	case KindExecutionTimeout:
		return "The query took too long to run and was cancelled."
	case KindExecutionError:
		return "Failed to execute the database query."
	case KindConnectionError:
		return "The database is currently unavailable. Please try again shortly."
	case KindCompositionFailure:
		return "The results were retrieved but a summary could not be generated."
	default:
		return "An unexpected error occurred while processing your request."
	}
}
