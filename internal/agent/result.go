package agent

import (
	"errors"
	"fmt"

	"github.com/Keyring-Network/gavryn-tutor/internal/knowledge"
)

type Kind string

const (
	KindAnswer            Kind = "answer"
	KindRejected          Kind = "rejected"
	KindNeedsConfirmation Kind = "needs_confirmation"
)

// Source labels where an answer came from. The values are shown to students.
type Source string

const (
	SourceDirect        Source = "Direct LLM"
	SourceKnowledgeBase Source = "Knowledge Base"
	SourceInternet      Source = "Internet Source"
)

// Result is the outcome of one turn. Text is set for answers and rejections;
// Question and Message are set when the caller must confirm a web search.
type Result struct {
	Kind     Kind
	Text     string
	Source   Source
	Question string
	Message  string
	Match    *knowledge.Match
}

// Display renders the result the way students see it in the chat.
func (r Result) Display() string {
	switch r.Kind {
	case KindAnswer:
		return r.Text + "\n\n Source: " + string(r.Source)
	case KindNeedsConfirmation:
		return r.Message
	default:
		return r.Text
	}
}

type ErrorKind string

const (
	ErrClassificationRejected ErrorKind = "classification-rejected"
	ErrProviderUnavailable    ErrorKind = "provider-unavailable"
	ErrProviderError          ErrorKind = "provider-error"
	ErrStorage                ErrorKind = "storage-error"
)

type Error struct {
	Kind ErrorKind
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

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr.Kind
	}
	return ""
}
