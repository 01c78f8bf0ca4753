package domain

import "time"

// EnvelopeMessage is the message body of a non-terminal stream envelope.
type EnvelopeMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images"`
}

// StreamEnvelope is one newline-delimited JSON object on the client stream.
// Non-terminal envelopes carry a message; the terminal envelope drops the
// message and carries the statistics fields instead, zero-filled when this
// side did not receive the backend's real numbers.
type StreamEnvelope struct {
	Model     string           `json:"model"`
	CreatedAt string           `json:"created_at"`
	Message   *EnvelopeMessage `json:"message,omitempty"`
	Done      bool             `json:"done"`

	TotalDuration      *int64 `json:"total_duration,omitempty"`
	LoadDuration       *int64 `json:"load_duration,omitempty"`
	PromptEvalCount    *int64 `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration *int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          *int64 `json:"eval_count,omitempty"`
	EvalDuration       *int64 `json:"eval_duration,omitempty"`
}

// NewDeltaEnvelope builds a non-terminal envelope carrying text.
func NewDeltaEnvelope(model, text string) StreamEnvelope {
	return StreamEnvelope{
		Model:     model,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Message: &EnvelopeMessage{
			Role:    "assistant",
			Content: text,
			Images:  nil,
		},
		Done: false,
	}
}

// NewTerminalEnvelope builds the terminal envelope with zero-filled
// statistics placeholders.
func NewTerminalEnvelope(model string) StreamEnvelope {
	var zero int64
	return StreamEnvelope{
		Model:              model,
		CreatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
		Done:               true,
		TotalDuration:      &zero,
		LoadDuration:       &zero,
		PromptEvalCount:    &zero,
		PromptEvalDuration: &zero,
		EvalCount:          &zero,
		EvalDuration:       &zero,
	}
}
