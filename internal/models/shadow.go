package models

import (
	"strings"
	"time"
)

// Strategy selects how the sampler turns a request into an accept/reject
// decision.
type Strategy string

const (
	StrategyRandom     Strategy = "random"
	StrategyStableHash Strategy = "stable_hash"
)

// Outcome classifies a completed shadow pipeline run.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeMismatch Outcome = "mismatch"
	OutcomeError    Outcome = "error"
)

// RequestPayload is the captured slice of an inbound request that the shadow
// pipeline needs. It is a transient value: scrub may rewrite it, dispatch
// reads it, nothing retains it afterwards.
type RequestPayload struct {
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Query   string              `json:"query,omitempty"`
	Headers map[string][]string `json:"headers"`
	Body    []byte              `json:"body,omitempty"`
}

// ContentType returns the first content-type header value, if any.
func (p *RequestPayload) ContentType() string {
	return firstHeader(p.Headers, "Content-Type")
}

// ResponsePayload is a captured response, either the original one returned to
// the caller or the one the shadow target produced.
type ResponsePayload struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers"`
	Body    []byte              `json:"body,omitempty"`
}

// ContentType returns the first content-type header value, if any.
func (p *ResponsePayload) ContentType() string {
	return firstHeader(p.Headers, "Content-Type")
}

// Summary reduces a response to the fields carried on report events.
func (p *ResponsePayload) Summary() *ResponseSummary {
	if p == nil {
		return nil
	}
	return &ResponseSummary{Status: p.Status, BodyBytes: len(p.Body)}
}

// ResponseSummary is the compact response view attached to report events.
type ResponseSummary struct {
	Status    int `json:"status"`
	BodyBytes int `json:"body_bytes"`
}

// MismatchKind discriminates the Mismatch record.
type MismatchKind string

const (
	MismatchStatus         MismatchKind = "status"
	MismatchHeader         MismatchKind = "header"
	MismatchBodyText       MismatchKind = "body_text"
	MismatchBodyJSON       MismatchKind = "body_json"
	MismatchBodyParseError MismatchKind = "body_json_parse_error"
)

// Mismatch records one detected difference between the original and shadow
// responses. Which fields are set depends on Kind:
//
//	status                → Original/Shadow hold the integer codes
//	header                → Key holds the header name, Original/Shadow the
//	                        values (nil when the side lacks the header)
//	body_text             → Original/Shadow hold the raw body strings
//	body_json             → Original/Shadow hold the normalized JSON trees
//	body_json_parse_error → Message holds the parse error, OriginalRaw and
//	                        ShadowRaw the untouched bodies
type Mismatch struct {
	Kind        MismatchKind `json:"kind"`
	Key         string       `json:"key,omitempty"`
	Original    interface{}  `json:"original,omitempty"`
	Shadow      interface{}  `json:"shadow,omitempty"`
	Message     string       `json:"message,omitempty"`
	OriginalRaw string       `json:"original_raw,omitempty"`
	ShadowRaw   string       `json:"shadow_raw,omitempty"`
}

// ErrorDescriptor describes a pipeline failure on error events.
type ErrorDescriptor struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ReportEvent is the structured payload published on the event bus for every
// completed shadow pipeline run.
type ReportEvent struct {
	ID         string           `json:"id"`
	Outcome    Outcome          `json:"outcome"`
	Request    RequestPayload   `json:"request"`
	Original   *ResponseSummary `json:"original,omitempty"`
	Shadow     *ResponseSummary `json:"shadow,omitempty"`
	Mismatches []Mismatch       `json:"mismatches,omitempty"`
	Error      *ErrorDescriptor `json:"error,omitempty"`
	ObservedAt time.Time        `json:"observed_at"`
}

func firstHeader(headers map[string][]string, name string) string {
	for key, values := range headers {
		if len(values) > 0 && strings.EqualFold(key, name) {
			return values[0]
		}
	}
	return ""
}
