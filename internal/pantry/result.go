package pantry

import (
	"errors"
	"net/http"

	"github.com/zombor/shelf-scanner/internal/scanning"
)

// Stage is a step of the recognition pipeline
type Stage string

const (
	StageIdle       Stage = "idle"
	StageEncoding   Stage = "encoding"
	StageInvoking   Stage = "invoking"
	StageParsing    Stage = "parsing"
	StageValidating Stage = "validating"
	StagePersisting Stage = "persisting"
	StageSkipped    Stage = "skipped"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Error kinds reported to callers
const (
	KindEncoding       = "encoding"
	KindTimeout        = "timeout"
	KindNetwork        = "network"
	KindTLS            = "tls"
	KindAuth           = "auth"
	KindForbidden      = "forbidden"
	KindNotFound       = "not_found"
	KindHTTP           = "http"
	KindBlocked        = "blocked"
	KindPersistence    = "persistence"
	KindRecordNotFound = "record_not_found"
	KindUnknown        = "unknown"
)

// ErrorDescriptor is the caller-facing form of a pipeline failure
type ErrorDescriptor struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// DescribeError maps an error to a descriptor with a user-facing message
func DescribeError(err error) *ErrorDescriptor {
	if err == nil {
		return nil
	}
	d := &ErrorDescriptor{Detail: err.Error()}

	var (
		encodingErr    *scanning.EncodingError
		transportErr   *scanning.TransportError
		persistenceErr *PersistenceError
	)
	switch {
	case errors.As(err, &encodingErr):
		d.Kind = KindEncoding
		d.Message = "The image could not be processed. Try a different photo."
	case errors.As(err, &transportErr):
		describeTransport(d, transportErr)
	case errors.Is(err, ErrNotFound):
		d.Kind = KindRecordNotFound
		d.Message = "The record no longer exists."
	case errors.As(err, &persistenceErr):
		d.Kind = KindPersistence
		d.Message = "The result could not be saved to history."
	default:
		d.Kind = KindUnknown
		d.Message = "Recognition failed. Please try again."
	}
	return d
}

func describeTransport(d *ErrorDescriptor, err *scanning.TransportError) {
	switch err.Kind {
	case scanning.KindTimeout:
		d.Kind = KindTimeout
		d.Message = "The request timed out. Check your connection and try again."
	case scanning.KindTLS:
		d.Kind = KindTLS
		d.Message = "A secure connection to the recognition service could not be established."
	case scanning.KindNetwork:
		d.Kind = KindNetwork
		d.Message = "The recognition service could not be reached. Check your network settings."
	case scanning.KindBlocked:
		d.Kind = KindBlocked
		d.Message = "The recognition service declined to analyze this image. Try a different photo."
	case scanning.KindHTTPStatus:
		switch err.StatusCode {
		case http.StatusUnauthorized:
			d.Kind = KindAuth
			d.Message = "The API key was rejected. Check your provider configuration."
		case http.StatusForbidden:
			d.Kind = KindForbidden
			d.Message = "Access to the recognition service was denied."
		case http.StatusNotFound:
			d.Kind = KindNotFound
			d.Message = "The recognition endpoint was not found. Check the base URL and model."
		default:
			d.Kind = KindHTTP
			d.Message = "The recognition service returned an error. Please try again later."
		}
	default:
		d.Kind = KindUnknown
		d.Message = "Recognition failed. Please try again."
	}
}

// Result is the outcome of one recognition
type Result struct {
	Items      []scanning.Item  `json:"items"`
	Saved      bool             `json:"saved"`
	Record     *Record          `json:"record,omitempty"`
	Stage      Stage            `json:"stage"`
	Shape      string           `json:"shape,omitempty"`
	Degraded   bool             `json:"degraded"`
	Fallback   bool             `json:"fallback"`
	Err        *ErrorDescriptor `json:"error"`
	PersistErr *ErrorDescriptor `json:"persist_error,omitempty"`
}

// DemoItems is the placeholder list returned when a recognition fails and the
// caller asked for demo output
func DemoItems() []scanning.Item {
	return []scanning.Item{
		{Name: "bread", ShelfLife: scanning.Days(3)},
		{Name: "milk", ShelfLife: scanning.Days(7)},
		{Name: "fruit", ShelfLife: scanning.Days(5)},
		{Name: "eggs", ShelfLife: scanning.Days(10)},
		{Name: "vegetables", ShelfLife: scanning.Days(4)},
	}
}
