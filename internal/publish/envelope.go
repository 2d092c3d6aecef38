package publish

import (
	"encoding/json"
	"errors"
	"strings"

	"fetch404/internal/fault"
)

// Envelope is the single message delivered for a job.
type Envelope struct {
	Success   bool            `json:"success"`
	Type      string          `json:"type"`
	Indicator string          `json:"indicator,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    *Result         `json:"result,omitempty"`
	Error     *ErrorBody      `json:"error,omitempty"`

	// RunID is kept for local records and is not sent.
	RunID string `json:"-"`
}

// Result holds the items under "tweets" or "users" depending on the kind of
// job, which is what collectors expect.
type Result struct {
	Metadata any `json:"metadata"`
	Profile  any `json:"profile"`
	Tweets   any `json:"tweets,omitempty"`
	Users    any `json:"users,omitempty"`
}

type ErrorBody struct {
	Kind    fault.Kind `json:"kind"`
	Message string     `json:"message"`
	// Stack lists the messages of the wrapped errors, outermost first.
	Stack string `json:"stack"`
}

func NewErrorBody(err error) *ErrorBody {
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e.Error())
	}
	return &ErrorBody{
		Kind:    fault.KindOf(err),
		Message: fault.Message(err),
		Stack:   strings.Join(chain, "\n"),
	}
}

func Failure(kind, indicator, runID string, params json.RawMessage, err error) Envelope {
	return Envelope{
		Success:   false,
		Type:      kind,
		Indicator: indicator,
		Params:    params,
		Error:     NewErrorBody(err),
		RunID:     runID,
	}
}

func Success(kind, indicator, runID string, params json.RawMessage, result Result) Envelope {
	return Envelope{
		Success:   true,
		Type:      kind,
		Indicator: indicator,
		Params:    params,
		Result:    &result,
		RunID:     runID,
	}
}

// Kind returns the error kind of a failed envelope.
func (e Envelope) Kind() fault.Kind {
	if e.Error == nil {
		return ""
	}
	return e.Error.Kind
}
