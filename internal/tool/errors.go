package tool

import (
	"errors"
	"strings"

	"github.com/hal9000y/gmail-sse-mcp/internal/mail"
)

// Category is the machine readable part of a tool error.
type Category string

const (
	CategoryNotAuthenticated Category = "not_authenticated"
	CategoryInvalidParams    Category = "invalid_params"
	CategoryInternal         Category = "internal_error"
)

// Error is the single envelope every failed tool call is reported with.
// Its text form is "<category>: <message>".
type Error struct {
	Category Category
	Message  string
}

func (e *Error) Error() string {
	return string(e.Category) + ": " + e.Message
}

// ParseError reads an envelope back from its text form.
func ParseError(text string) (*Error, bool) {
	category, message, ok := strings.Cut(text, ": ")
	if !ok {
		return nil, false
	}

	switch c := Category(category); c {
	case CategoryNotAuthenticated, CategoryInvalidParams, CategoryInternal:
		return &Error{Category: c, Message: message}, true
	default:
		return nil, false
	}
}

func normalize(err error) *Error {
	var envelope *Error
	if errors.As(err, &envelope) {
		return envelope
	}

	var mailErr *mail.Error
	if errors.As(err, &mailErr) {
		switch mailErr.Kind {
		case mail.KindNotAuthenticated:
			return &Error{Category: CategoryNotAuthenticated, Message: mailErr.Msg}
		case mail.KindInvalidParams:
			return &Error{Category: CategoryInvalidParams, Message: mailErr.Msg}
		}
	}

	return &Error{
		Category: CategoryInternal,
		Message:  "An unexpected error occurred: " + err.Error(),
	}
}
