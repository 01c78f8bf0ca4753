package domain

import (
	"encoding/json"
	"strings"
)

// Origin identifies which enrichment source produced a context block.
type Origin string

const (
	OriginImage     Origin = "image"
	OriginRetrieval Origin = "retrieval"
	OriginWeb       Origin = "web"
)

// ContentPart is one element of a multipart message content or legacy
// multipart prompt. Non-text parts keep their original JSON so they can be
// forwarded verbatim.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`

	raw json.RawMessage
}

// UnmarshalJSON decodes a part and retains the raw bytes.
func (p *ContentPart) UnmarshalJSON(data []byte) error {
	type alias ContentPart
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = ContentPart(a)
	p.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the original bytes when available.
func (p ContentPart) MarshalJSON() ([]byte, error) {
	if p.raw != nil {
		return p.raw, nil
	}
	type alias ContentPart
	return json.Marshal(alias(p))
}

// Content is a message's content: either a plain string or the multipart
// form [{type:"text",...}, {type:"image_url",...}]. The inbound shape is
// resolved once here; downstream code never re-branches on it.
type Content struct {
	Text  string
	Parts []ContentPart
}

// PlainContent builds a plain-string content.
func PlainContent(text string) Content {
	return Content{Text: text}
}

// IsMultipart reports whether the content arrived in the multipart form.
func (c Content) IsMultipart() bool {
	return c.Parts != nil
}

// PlainText returns the text of the content. Multipart content has its
// text-typed parts joined with single spaces.
func (c Content) PlainText() string {
	if c.Parts == nil {
		return c.Text
	}
	var texts []string
	for _, p := range c.Parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

// UnmarshalJSON accepts both the string and the multipart array form.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var parts []ContentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		if parts == nil {
			parts = []ContentPart{}
		}
		c.Parts = parts
		c.Text = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	c.Text = s
	c.Parts = nil
	return nil
}

// MarshalJSON emits the form the content arrived in.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// Message is one chat message in the canonical request shape.
type Message struct {
	Role    string   `json:"role"`
	Content Content  `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// Options carries the enrichment switches of the inbound body. A nil pointer
// means the client did not set the flag.
type Options struct {
	AutoDetect       *bool `json:"auto_detect,omitempty"`
	RetrievalEnabled *bool `json:"retrieval_enabled,omitempty"`
	WebSearchEnabled *bool `json:"web_search_enabled,omitempty"`
}

// AutoDetectEnabled reports whether heuristic intent detection should run.
// Defaults to true when the flag is absent.
func (o Options) AutoDetectEnabled() bool {
	return o.AutoDetect == nil || *o.AutoDetect
}

// ChatRequest is the canonical internal request shape. Normalization
// guarantees Messages is non-empty; the legacy prompt field and the options
// field are already folded in and removed.
type ChatRequest struct {
	RequestID string
	Model     string
	Messages  []Message
	Options   Options

	// Extra holds the remaining top-level fields of the inbound body
	// (temperature, stream, ...) for verbatim forwarding.
	Extra map[string]json.RawMessage
}

// LatestUserIndex returns the index of the most recent user message, or -1.
func (r *ChatRequest) LatestUserIndex() int {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return i
		}
	}
	return -1
}

// LatestUserText returns the content of the most recent user message, or ""
// when the request has none.
func (r *ChatRequest) LatestUserText() string {
	if i := r.LatestUserIndex(); i >= 0 {
		return r.Messages[i].Content.PlainText()
	}
	return ""
}

// SetLatestUserContent replaces the content of the most recent user message,
// appending a new user message when the request has none.
func (r *ChatRequest) SetLatestUserContent(text string) {
	if i := r.LatestUserIndex(); i >= 0 {
		r.Messages[i].Content = PlainContent(text)
		return
	}
	r.Messages = append(r.Messages, Message{Role: "user", Content: PlainContent(text)})
}

// BackendBody marshals the request for the inference backend: model, the
// messages with image payloads stripped, and the passthrough fields. The
// options key never reaches the backend.
func (r *ChatRequest) BackendBody() ([]byte, error) {
	body := make(map[string]json.RawMessage, len(r.Extra)+2)
	for k, v := range r.Extra {
		body[k] = v
	}
	model, err := json.Marshal(r.Model)
	if err != nil {
		return nil, err
	}
	body["model"] = model

	stripped := make([]Message, len(r.Messages))
	for i, m := range r.Messages {
		m.Images = nil
		stripped[i] = m
	}
	messages, err := json.Marshal(stripped)
	if err != nil {
		return nil, err
	}
	body["messages"] = messages

	return json.Marshal(body)
}

// ImagePayload is one image handed to the vision collaborator.
type ImagePayload struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// EnrichmentContext is one immutable context block produced by a subtask.
type EnrichmentContext struct {
	Text   string
	Origin Origin
}

// KBResult is one knowledge-base search hit.
type KBResult struct {
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Paragraph is one page paragraph attached to a web search hit.
type Paragraph struct {
	Text string `json:"text"`
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title      string      `json:"title"`
	Link       string      `json:"link"`
	Snippet    string      `json:"snippet"`
	Paragraphs []Paragraph `json:"paragraphs,omitempty"`
}

// ModelCapabilities describes what a backend model can do.
type ModelCapabilities struct {
	Vision bool `json:"vision"`
}
