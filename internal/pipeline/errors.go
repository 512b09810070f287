package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies why a request did not finish.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindInvalidInput Kind = "invalid_input"
	KindAcquisition  Kind = "acquisition"
	KindInspection   Kind = "inspection"
	KindSegment      Kind = "segment"
	KindInternal     Kind = "internal"
)

var (
	ErrUnauthorized = errors.New("requester is not a channel member")
	ErrInvalidInput = errors.New("unsupported link")
	ErrAcquisition  = errors.New("acquisition failed")
	ErrInspection   = errors.New("source unreadable")
	ErrSegment      = errors.New("segment failed")
	ErrInternal     = errors.New("internal error")
)

var sentinels = map[Kind]error{
	KindUnauthorized: ErrUnauthorized,
	KindInvalidInput: ErrInvalidInput,
	KindAcquisition:  ErrAcquisition,
	KindInspection:   ErrInspection,
	KindSegment:      ErrSegment,
	KindInternal:     ErrInternal,
}

// Failure is the single error a request ends with. It matches both its
// kind's sentinel and the underlying cause with errors.Is.
type Failure struct {
	Kind  Kind
	Index int // segment index, KindSegment only
	Err   error
}

func (f *Failure) Error() string {
	msg := string(f.Kind)
	if f.Kind == KindSegment {
		msg = fmt.Sprintf("%s %d", msg, f.Index)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() []error {
	errs := []error{sentinels[f.Kind]}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	return errs
}

func fail(kind Kind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

func failSegment(index int, err error) *Failure {
	return &Failure{Kind: KindSegment, Index: index, Err: err}
}
