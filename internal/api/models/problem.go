package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
// TraceID repeats the X-Request-Id header so it survives copy and paste
// from the app's error screen.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError names one invalid request field by its JSON path.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://api.mradl.de/problems/"

// Problem type URIs.
const (
	ProblemTypeValidation      = problemBase + "validation-error"
	ProblemTypeUnauthorized    = problemBase + "unauthorized"
	ProblemTypeForbidden       = problemBase + "forbidden"
	ProblemTypeNotFound        = problemBase + "not-found"
	ProblemTypeConflict        = problemBase + "conflict"
	ProblemTypeNoRoute         = problemBase + "no-route"
	ProblemTypeUnsupportedType = problemBase + "unsupported-media-type"
	ProblemTypeTooManyRequests = problemBase + "too-many-requests"
	ProblemTypeInternal        = problemBase + "internal-error"
	ProblemTypeUnavailable     = problemBase + "service-unavailable"
	ProblemTypeTLSRequired     = problemBase + "tls-required"
)

type problemKind struct {
	typ    string
	title  string
	status int
}

func (k problemKind) new(traceID, detail string) *Problem {
	return &Problem{Type: k.typ, Title: k.title, Status: k.status, Detail: detail, TraceID: traceID}
}

var (
	kindValidation   = problemKind{ProblemTypeValidation, "Validation error", http.StatusBadRequest}
	kindUnauthorized = problemKind{ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized}
	kindForbidden    = problemKind{ProblemTypeForbidden, "Forbidden", http.StatusForbidden}
	kindTLSRequired  = problemKind{ProblemTypeTLSRequired, "TLS required", http.StatusForbidden}
	kindNotFound     = problemKind{ProblemTypeNotFound, "Not found", http.StatusNotFound}
	kindConflict     = problemKind{ProblemTypeConflict, "Conflict", http.StatusConflict}
	kindUnsupported  = problemKind{ProblemTypeUnsupportedType, "Unsupported media type", http.StatusUnsupportedMediaType}
	kindNoRoute      = problemKind{ProblemTypeNoRoute, "No route", http.StatusUnprocessableEntity}
	kindTooMany      = problemKind{ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests}
	kindInternal     = problemKind{ProblemTypeInternal, "Internal server error", http.StatusInternalServerError}
	kindUnavailable  = problemKind{ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable}
)

// Write sends the problem with its status code.
func (p *Problem) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		h.Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest is a 400 with optional field errors.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := kindValidation.new(traceID, detail)
	p.Errors = errors
	return p
}

func NewUnauthorized(traceID, detail string) *Problem { return kindUnauthorized.new(traceID, detail) }

func NewForbidden(traceID, detail string) *Problem { return kindForbidden.new(traceID, detail) }

// NewTLSRequired is a 403 for plain HTTP behind the load balancer.
func NewTLSRequired(traceID, detail string) *Problem { return kindTLSRequired.new(traceID, detail) }

func NewNotFound(traceID, detail string) *Problem { return kindNotFound.new(traceID, detail) }

func NewConflict(traceID, detail string) *Problem { return kindConflict.new(traceID, detail) }

// NewUnsupportedMediaType is a 415 for request bodies that are not JSON.
func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return kindUnsupported.new(traceID, detail)
}

// NewNoRoute is a 422 for a destination no routing profile could reach.
func NewNoRoute(traceID, detail string) *Problem { return kindNoRoute.new(traceID, detail) }

func NewTooManyRequests(traceID, detail string) *Problem { return kindTooMany.new(traceID, detail) }

func NewInternalError(traceID, detail string) *Problem { return kindInternal.new(traceID, detail) }

// NewServiceUnavailable is a 503, used when an upstream provider is down.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return kindUnavailable.new(traceID, detail)
}
