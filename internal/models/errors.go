package models

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode: the document is malformed or in an unsupported format.
	ErrDecode = errors.New("decode error")
	// ErrTruncated: fewer pages could be decoded than the document declares.
	ErrTruncated = errors.New("truncated document")
	// ErrRuleDefinition: a rule definition is unknown or malformed.
	ErrRuleDefinition = errors.New("rule definition error")
	// ErrStoreUnavailable: the alert store could not serve the request.
	ErrStoreUnavailable = errors.New("alert store unavailable")
	// ErrDocumentNotFound: no document exists for the given identifier.
	ErrDocumentNotFound = errors.New("document not found")
)

// AnalysisError carries the document and page an extraction failure refers to.
type AnalysisError struct {
	Kind       error
	DocumentID string
	Page       int
	Cause      error
}

func (e *AnalysisError) Error() string {
	msg := e.Kind.Error()
	if e.DocumentID != "" {
		msg = fmt.Sprintf("%s: document %s", msg, e.DocumentID)
	}
	if e.Page >= 0 {
		msg = fmt.Sprintf("%s: page %d", msg, e.Page)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Is matches the error kind so callers can use errors.Is(err, ErrDecode).
func (e *AnalysisError) Is(target error) bool {
	return target == e.Kind
}

func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// NewDecodeError wraps cause as a decode failure. Pass page -1 when the failure
// is not tied to a page.
func NewDecodeError(documentID string, page int, cause error) error {
	return &AnalysisError{Kind: ErrDecode, DocumentID: documentID, Page: page, Cause: cause}
}

// NewTruncatedError reports a page that the document declares but cannot be decoded.
func NewTruncatedError(documentID string, page int, cause error) error {
	return &AnalysisError{Kind: ErrTruncated, DocumentID: documentID, Page: page, Cause: cause}
}

// RuleDefinitionError describes an invalid rule in a rule set.
type RuleDefinitionError struct {
	RuleID string
	Index  int
	Reason string
}

func (e *RuleDefinitionError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("rule definition error: %s", e.Reason)
	}
	if e.RuleID != "" {
		return fmt.Sprintf("rule definition error: rule %q: %s", e.RuleID, e.Reason)
	}
	return fmt.Sprintf("rule definition error: rule #%d: %s", e.Index, e.Reason)
}

func (e *RuleDefinitionError) Is(target error) bool {
	return target == ErrRuleDefinition
}

// StoreError wraps a backend failure as ErrStoreUnavailable.
func StoreError(op string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, cause)
}
