package apperr

import "net/http"

// Kind groups codes into the categories callers branch on.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
	KindDependency   Kind = "dependency"
	KindUnauthorized Kind = "unauthorized"
	KindTimeout      Kind = "timeout"
	KindInternal     Kind = "internal"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeInvalidRequest  Code = "INVALID_REQUEST"
	CodeInvalidProblems Code = "INVALID_PROBLEMS"
	CodeInvalidDecision Code = "INVALID_DECISION"
	CodeInvalidMetadata Code = "INVALID_METADATA"
	CodeInvalidTimings  Code = "INVALID_TIMINGS"
	CodeUnknownProblem  Code = "UNKNOWN_PROBLEM"
	CodeUnsupportedLang Code = "UNSUPPORTED_LANGUAGE"

	// Identity errors
	CodeUnauthenticated Code = "UNAUTHENTICATED"

	// Session errors
	CodeSessionNotFound      Code = "SESSION_NOT_FOUND"
	CodeSessionCompleted     Code = "SESSION_COMPLETED"
	CodeSessionFull          Code = "SESSION_FULL"
	CodeHostCannotJoin       Code = "HOST_CANNOT_JOIN"
	CodeNotHost              Code = "NOT_HOST"
	CodeNotMember            Code = "NOT_MEMBER"
	CodeSwitchInProgress     Code = "SWITCH_IN_PROGRESS"
	CodeProblemAlreadyActive Code = "PROBLEM_ALREADY_ACTIVE"
	CodeStaleSession         Code = "STALE_SESSION"

	// Dependency errors
	CodeProviderFailed   Code = "PROVIDER_FAILED"
	CodeExecutionFailed  Code = "EXECUTION_FAILED"
	CodeExecutionTimeout Code = "EXECUTION_TIMEOUT"
	CodeStorageFailed    Code = "STORAGE_FAILED"
)

// Kind returns the category the code belongs to.
func (c Code) Kind() Kind {
	switch c {
	case CodeInvalidRequest, CodeInvalidProblems, CodeInvalidDecision, CodeInvalidMetadata,
		CodeInvalidTimings, CodeUnknownProblem, CodeUnsupportedLang:
		return KindValidation
	case CodeUnauthenticated:
		return KindUnauthorized
	case CodeSessionNotFound:
		return KindNotFound
	case CodeNotHost, CodeNotMember:
		return KindForbidden
	case CodeSessionCompleted, CodeSessionFull, CodeHostCannotJoin, CodeSwitchInProgress,
		CodeProblemAlreadyActive, CodeStaleSession:
		return KindConflict
	case CodeProviderFailed, CodeExecutionFailed:
		return KindDependency
	case CodeExecutionTimeout:
		return KindTimeout
	default:
		return KindInternal
	}
}

// HTTPStatus maps the code to the status returned at the REST boundary.
func (c Code) HTTPStatus() int {
	// Joining or ending a completed session and self-join are reported as bad requests.
	switch c {
	case CodeSessionCompleted, CodeHostCannotJoin:
		return http.StatusBadRequest
	}

	switch c.Kind() {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindDependency:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
