package panel

import (
	"errors"
	"fmt"
)

// ValidationError reports a missing or malformed input caught before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError reports a board or webhook setting that does not exist.
type NotFoundError struct {
	Kind string
	Key  string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// UpstreamError is a non-2xx answer from the backend or from Trello.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// AnomalyError is a success response that lacks a field the caller depends on.
type AnomalyError struct {
	Reason string
}

func (e *AnomalyError) Error() string { return e.Reason }

// StatusCode returns the HTTP status carried by an UpstreamError in err's chain, or 0.
func StatusCode(err error) int {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode
	}
	return 0
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a user-facing message produced at the end of an operation.
type Notice struct {
	Level   Level
	Title   string
	Message string
}

func (n Notice) String() string {
	if n.Message == "" {
		return n.Title
	}
	return n.Title + ": " + n.Message
}

func infoNotice(title, msg string) Notice {
	return Notice{Level: LevelInfo, Title: title, Message: msg}
}

// ErrorNotice converts err into the notice shown to the user under title.
func ErrorNotice(title string, err error) Notice {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		upstream   *UpstreamError
	)
	msg := err.Error()
	switch {
	case errors.As(err, &validation):
		msg = validation.Error()
	case errors.As(err, &upstream):
		msg = upstream.Message
	case errors.As(err, &notFound):
		msg = notFound.Error()
	}
	return Notice{Level: LevelError, Title: title, Message: msg}
}
