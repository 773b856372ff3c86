package ballot

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced to callers of the vote service.
type Kind string

const (
	KindNotRegistered       Kind = "not_registered"
	KindElectionNotActive   Kind = "election_not_active"
	KindAlreadyVoted        Kind = "already_voted"
	KindNotLedgerRegistered Kind = "not_ledger_registered"
	KindSubmissionFailed    Kind = "submission_failed"
	KindConfirmationTimeout Kind = "confirmation_timeout"
	KindLedgerUnavailable   Kind = "ledger_unavailable"
	KindLedgerProtocol      Kind = "ledger_protocol_error"
	KindConfiguration       Kind = "configuration_error"
	KindNotFound            Kind = "not_found"
	KindInvalid             Kind = "invalid_request"
)

// Error is a classified failure. Err holds the underlying cause, which may
// contain ledger or database detail and is never shown to voters.
type Error struct {
	Kind Kind
	Op   string
	Err  error
	// TxID is set when a submission reached the ledger but was not confirmed.
	TxID string
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrAlreadyVoted)
// works whatever Op or cause the error carries.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Public returns the message voters may see.
func (e *Error) Public() string {
	switch e.Kind {
	case KindNotRegistered:
		return "voter is not registered"
	case KindElectionNotActive:
		return "election is not active"
	case KindAlreadyVoted:
		return "you have already voted in this election"
	case KindNotLedgerRegistered:
		return "your ledger account is not registered for this election"
	case KindNotFound:
		return "not found"
	case KindInvalid:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "invalid request"
	}
	return "internal error"
}

var (
	ErrNotRegistered       = &Error{Kind: KindNotRegistered}
	ErrElectionNotActive   = &Error{Kind: KindElectionNotActive}
	ErrAlreadyVoted        = &Error{Kind: KindAlreadyVoted}
	ErrNotLedgerRegistered = &Error{Kind: KindNotLedgerRegistered}
	ErrSubmissionFailed    = &Error{Kind: KindSubmissionFailed}
	ErrConfirmationTimeout = &Error{Kind: KindConfirmationTimeout}
	ErrLedgerUnavailable   = &Error{Kind: KindLedgerUnavailable}
	ErrLedgerProtocol      = &Error{Kind: KindLedgerProtocol}
	ErrConfiguration       = &Error{Kind: KindConfiguration}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalid             = &Error{Kind: KindInvalid}
)

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
