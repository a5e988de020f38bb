package domain

import (
	"fmt"
	"time"
)

// OutcomeKind classifies the result of probing a single resource. All kinds
// other than OutcomeOK are expected failures recorded as Findings, never
// surfaced as errors past the checker.
type OutcomeKind string

const (
	OutcomeOK                 OutcomeKind = "ok"
	OutcomeBroken             OutcomeKind = "broken"
	OutcomeSlow               OutcomeKind = "slow"
	OutcomeTimeout            OutcomeKind = "timeout"
	OutcomeConnectionError    OutcomeKind = "connection_error"
	OutcomeSSLError           OutcomeKind = "ssl_error"
	OutcomeInvalidContentType OutcomeKind = "invalid_content_type"
	OutcomeProviderDenied     OutcomeKind = "provider_denied"
	OutcomeOther              OutcomeKind = "other"
)

// Outcome is the result of verifying one resource reference. It is folded
// into Findings and never persisted on its own.
type Outcome struct {
	Kind        OutcomeKind
	StatusCode  int // 0 when the failure happened below HTTP
	Elapsed     time.Duration
	ContentType string
	Message     string
}

var statusMessages = map[int]string{
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden - Access Denied",
	404: "Not Found - Resource does not exist",
	405: "Method Not Allowed",
	408: "Request Timeout",
	410: "Gone - Resource permanently removed",
	429: "Too Many Requests",
	500: "Internal Server Error",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
}

// StatusMessage returns a human-readable message for an HTTP status code,
// distinct from the raw code itself.
func StatusMessage(code int) string {
	if msg, ok := statusMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("HTTP Error %d", code)
}
