package scanning

import (
	"fmt"
	"net/http"
)

// EncodingError reports image data that cannot be turned into a request
type EncodingError struct {
	Reason string
	Err    error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encoding image: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("encoding image: %s", e.Reason)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// TransportKind classifies a failed provider call
type TransportKind int

const (
	KindNetwork TransportKind = iota
	KindTimeout
	KindTLS
	KindHTTPStatus
	// KindBlocked is a provider refusing to answer, such as a safety block
	KindBlocked
)

func (k TransportKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindTLS:
		return "tls"
	case KindHTTPStatus:
		return "http_status"
	case KindBlocked:
		return "blocked"
	default:
		return "network"
	}
}

// TransportError is returned by recognizers when the provider could not be reached
// or answered with a non-2xx status
type TransportError struct {
	Kind       TransportKind
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		if e.Body != "" {
			return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
		}
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("provider %s failure: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("provider %s failure", e.Kind)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed
func (e *TransportError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork:
		return true
	case KindHTTPStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}
