package mail

import "errors"

// Kind classifies adapter failures so callers can branch without matching
// on error text.
type Kind int

const (
	// KindUnknown covers failures the adapter does not classify, such as
	// credential storage faults.
	KindUnknown Kind = iota
	// KindNotAuthenticated means the user has to run the login flow again.
	KindNotAuthenticated
	// KindInvalidParams means the call arguments were rejected before any remote call.
	KindInvalidParams
	// KindRemote wraps a failure reported by the Gmail API.
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindInvalidParams:
		return "invalid_params"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Error is returned by Adapter operations for classified failures.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
