package provider

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind classifies a failed generation call for retry decisions.
type Kind int

const (
	// KindTransient covers network errors, 5xx responses, timeouts and
	// anything unrecognised. Worth retrying with a short backoff.
	KindTransient Kind = iota
	// KindRateLimited covers HTTP 429 and quota exhaustion. Worth retrying
	// with a long backoff.
	KindRateLimited
	// KindFatal covers credential failures and caller cancellation. Retrying
	// cannot succeed.
	KindFatal
)

// String implements fmt.Stringer; the values are used as metric labels.
func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindFatal:
		return "fatal"
	default:
		return "transient"
	}
}

// CallError wraps an error returned by a generation backend together with
// its classification.
type CallError struct {
	// Kind is the retry classification.
	Kind Kind
	// Err is the underlying backend error.
	Err error
}

// Error implements error.
func (e *CallError) Error() string {
	return fmt.Sprintf("provider: generate (%s): %v", e.Kind, e.Err)
}

// Unwrap returns the underlying backend error.
func (e *CallError) Unwrap() error { return e.Err }

// KindOf returns the classification of err. A [*CallError] anywhere in the
// chain is authoritative; otherwise the error text is inspected.
func KindOf(err error) Kind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Classify(err)
}

// statusPattern finds an HTTP status code in status context, e.g.
// "status code: 429", "Error 403" or `"StatusCode":401`. Bare digits
// elsewhere in a message (request IDs, ports, token counts) never match.
var statusPattern = regexp.MustCompile(`\b(?:status(?:[ _]?code)?|error|http(?:/\d(?:\.\d)?)?)["']?\s*[:=]?\s*(\d{3})\b`)

// rateLimitMarkers and fatalMarkers are matched case-insensitively against
// the error text. Backend SDKs surface HTTP status only through the message.
var (
	rateLimitMarkers = []string{"rate limit", "ratelimit", "too many requests", "resource_exhausted", "quota"}
	fatalMarkers     = []string{"unauthorized", "forbidden", "invalid api key", "incorrect api key", "permission denied"}
)

// Classify inspects a raw backend error and returns its [Kind].
func Classify(err error) Kind {
	if err == nil {
		return KindTransient
	}
	if errors.Is(err, context.Canceled) {
		return KindFatal
	}
	msg := strings.ToLower(err.Error())
	for _, m := range statusPattern.FindAllStringSubmatch(msg, -1) {
		switch m[1] {
		case "429":
			return KindRateLimited
		case "401", "403":
			return KindFatal
		}
	}
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return KindRateLimited
		}
	}
	for _, m := range fatalMarkers {
		if strings.Contains(msg, m) {
			return KindFatal
		}
	}
	return KindTransient
}
