package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"fetch404/internal/fault"
)

// Request is a job request as received from the CLI or the HTTP intake.
type Request struct {
	Type        string          `json:"type"`
	Params      json.RawMessage `json:"params,omitempty"`
	CallbackURL string          `json:"callback_url,omitempty"`
	Indicator   string          `json:"indicator,omitempty"`
}

type Params struct {
	Username string `json:"username"`
	Query    string `json:"query"`
	Limit    *int   `json:"limit"`
}

func ParseRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, fault.Wrap(fault.InvalidJob, fmt.Errorf("parse request: %w", err))
	}
	if req.Type == "" {
		return Request{}, fault.New(fault.InvalidJob, "request has no type")
	}
	return req, nil
}

// ReadPayload accepts either inline JSON or the path to a JSON file.
func ReadPayload(arg string) ([]byte, error) {
	trimmed := bytes.TrimSpace([]byte(arg))
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return trimmed, nil
	}
	content, err := os.ReadFile(arg)
	if err != nil {
		return nil, fault.Wrap(fault.InvalidJob, fmt.Errorf("read payload: %w", err))
	}
	return content, nil
}

func (r Request) params() (Params, error) {
	var p Params
	if len(r.Params) == 0 || string(r.Params) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(r.Params, &p); err != nil {
		return p, fault.Wrap(fault.InvalidJob, fmt.Errorf("parse params: %w", err))
	}
	return p, nil
}
