package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

type Kind string

const (
	KindMalformedSourceRecord    Kind = "MalformedSourceRecord"
	KindOverrideProtected        Kind = "OverrideProtected"
	KindVendorNotFound           Kind = "VendorNotFound"
	KindIdenticalVendorIds       Kind = "IdenticalVendorIds"
	KindArchivedVendor           Kind = "ArchivedVendor"
	KindIncompleteMergeDecisions Kind = "IncompleteMergeDecisions"
	KindInvalidCollisionTarget   Kind = "InvalidCollisionTarget"
	KindInvalidFieldDecision     Kind = "InvalidFieldDecision"
	KindMergeInProgress          Kind = "MergeInProgress"
	KindOptimisticConflict       Kind = "OptimisticConflict"
	KindStoreFailure             Kind = "StoreFailure"
	KindSessionNotFound          Kind = "SessionNotFound"
	KindExecutionNotFound        Kind = "ExecutionNotFound"
	KindInvalidSessionState      Kind = "InvalidSessionState"
	KindUnknownField             Kind = "UnknownField"
	KindMissingActor             Kind = "MissingActor"
)

var statusByKind = map[Kind]int{
	KindMalformedSourceRecord:    http.StatusBadRequest,
	KindOverrideProtected:        http.StatusConflict,
	KindVendorNotFound:           http.StatusNotFound,
	KindIdenticalVendorIds:       http.StatusUnprocessableEntity,
	KindArchivedVendor:           http.StatusUnprocessableEntity,
	KindIncompleteMergeDecisions: http.StatusUnprocessableEntity,
	KindInvalidCollisionTarget:   http.StatusUnprocessableEntity,
	KindInvalidFieldDecision:     http.StatusUnprocessableEntity,
	KindMergeInProgress:          http.StatusConflict,
	KindOptimisticConflict:       http.StatusConflict,
	KindStoreFailure:             http.StatusInternalServerError,
	KindSessionNotFound:          http.StatusNotFound,
	KindExecutionNotFound:        http.StatusNotFound,
	KindInvalidSessionState:      http.StatusConflict,
	KindUnknownField:             http.StatusBadRequest,
	KindMissingActor:             http.StatusUnauthorized,
}

// StatusCode returns the HTTP status a kind is reported with.
func (k Kind) StatusCode() int {
	if code, ok := statusByKind[k]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// ValidationError addresses a single missing or invalid merge input so a review UI can highlight it.
type ValidationError struct {
	Kind       Kind   `json:"kind"`
	Key        string `json:"key"`
	Field      string `json:"field,omitempty"`
	OfferingID string `json:"offering_id,omitempty"`
	Message    string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Key, v.Message)
}

type Error struct {
	Kind    Kind
	Message string
	Details []ValidationError
	Err     error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// WithDetails attaches field-addressable entries.
func (e *Error) WithDetails(details ...ValidationError) *Error {
	e.Details = append(e.Details, details...)
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for _, d := range e.Details {
			keys = append(keys, d.Key)
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(keys, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) ToHTTPError() *httperror.HTTPError {
	herr := httperror.NewHTTPError(e.Kind.StatusCode(), e.Message).AddMetaValue("kind", string(e.Kind))
	if len(e.Details) > 0 {
		herr.AddMetaValue("details", e.Details)
	}
	return herr
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
