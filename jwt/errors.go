package jwtkit

import (
	"errors"
	"fmt"
)

// Kind identifies one failure class in the token error taxonomy. The set is
// closed: every error returned by VerifyAndDecodeToken, DecodeUnsafe, or
// VerificationKey carries exactly one Kind, and no two stages of the
// verification pipeline share a Kind.
type Kind uint8

const (
	// KindUnknown is the zero value, returned by KindOf for errors that did
	// not originate in this package.
	KindUnknown Kind = iota
	// KindTokenExpired: signature and structure valid, but past exp plus leeway.
	KindTokenExpired
	// KindInvalidSignature: structurally valid token, resolvable key,
	// cryptographic verification failed.
	KindInvalidSignature
	// KindInvalidIssuer: signature valid, iss does not match the configured issuer.
	KindInvalidIssuer
	// KindInvalidAudience: signature valid, aud does not match the configured audience.
	KindInvalidAudience
	// KindMalformedToken: segments, header, or payload not parseable, or a
	// required claim (sub/iat/exp) or the kid header field is missing.
	KindMalformedToken
	// KindUnknownKeyID: the header's kid is not present in the verifier's keyset.
	KindUnknownKeyID
	// KindInvalidAlgorithm: the header's alg is not the pinned algorithm.
	KindInvalidAlgorithm
)

func (k Kind) String() string {
	switch k {
	case KindTokenExpired:
		return "token_expired"
	case KindInvalidSignature:
		return "invalid_signature"
	case KindInvalidIssuer:
		return "invalid_issuer"
	case KindInvalidAudience:
		return "invalid_audience"
	case KindMalformedToken:
		return "malformed_token"
	case KindUnknownKeyID:
		return "unknown_key_id"
	case KindInvalidAlgorithm:
		return "invalid_algorithm"
	default:
		return "unknown"
	}
}

// Error is the error type returned by all token operations. Two errors match
// under errors.Is when they carry the same Kind, so callers can compare
// against the exported sentinel values below regardless of the attached
// message or cause.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

// Sentinel values for each Kind. Match with errors.Is, or switch on KindOf
// when exhaustiveness matters.
var (
	ErrTokenExpired     = &Error{kind: KindTokenExpired, msg: "token has expired"}
	ErrInvalidSignature = &Error{kind: KindInvalidSignature, msg: "invalid token signature"}
	ErrInvalidIssuer    = &Error{kind: KindInvalidIssuer, msg: "invalid token issuer"}
	ErrInvalidAudience  = &Error{kind: KindInvalidAudience, msg: "invalid token audience"}
	ErrMalformedToken   = &Error{kind: KindMalformedToken, msg: "token is malformed"}
	ErrUnknownKeyID     = &Error{kind: KindUnknownKeyID, msg: "unknown key id"}
	ErrInvalidAlgorithm = &Error{kind: KindInvalidAlgorithm, msg: "invalid signing algorithm"}
)

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("jwtkit: %s: %v", e.msg, e.cause)
	}
	return "jwtkit: " + e.msg
}

// Kind returns the failure class of this error.
func (e *Error) Kind() Kind { return e.kind }

// Unwrap exposes the underlying library error, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is matches errors by Kind so sentinel comparisons work across instances.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.kind == e.kind
}

// KindOf extracts the Kind from an error chain. Errors that did not come from
// this package report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}
