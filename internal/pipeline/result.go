package pipeline

import "time"

// Code is a stable failure classification persisted with a failed pass.
type Code string

const (
	CodeMissingCredential  Code = "missing_credential"
	CodeMissingDependency  Code = "missing_dependency"
	CodeMissingInput       Code = "missing_input"
	CodeRateLimited        Code = "rate_limited"
	CodeRateLimitExhausted Code = "rate_limit_exhausted"
	CodeTransportError     Code = "transport_error"
	CodeEmptyResponse      Code = "empty_response"
	CodeUpstreamError      Code = "upstream_error"
	CodeStorageError       Code = "storage_error"
	CodeScheduleFailed     Code = "schedule_failed"
	CodeInternalError      Code = "internal_error"
)

// Kind is the outcome class of one stage call.
type Kind string

const (
	KindSuccess     Kind = "success"
	KindRateLimited Kind = "rate_limited"
	KindFailed      Kind = "failed"
)

// Result is what a stage processor returns; it never panics or returns a bare error.
type Result struct {
	Kind     Kind
	Artifact Artifact
	Wait     time.Duration
	Code     Code
	Err      error
}

// Success wraps a produced artifact.
func Success(a Artifact) Result {
	return Result{Kind: KindSuccess, Artifact: a}
}

// RateLimited asks the caller to retry after wait.
func RateLimited(wait time.Duration, err error) Result {
	return Result{Kind: KindRateLimited, Wait: wait, Code: CodeRateLimited, Err: err}
}

// Failed is a permanent failure for this pass.
func Failed(code Code, err error) Result {
	return Result{Kind: KindFailed, Code: code, Err: err}
}
