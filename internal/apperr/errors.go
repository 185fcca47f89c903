package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the ingestion and retrieval paths react to it.
type Kind string

const (
	KindTransientNetwork     Kind = "transient_network"
	KindRateLimit            Kind = "rate_limit"
	KindBlockedContent       Kind = "blocked_content"
	KindValidation           Kind = "validation"
	KindDuplicate            Kind = "duplicate"
	KindEmbeddingUnavailable Kind = "embedding_unavailable"
	KindStorage              Kind = "storage"
	// KindNotConfigured marks an optional collaborator with no credentials.
	KindNotConfigured Kind = "not_configured"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and the operation that produced it.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" if none.
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
