package service

import (
	"encoding/json"
	"fmt"

	"github.com/liliang-cn/ragproxy/internal/domain"
)

// top-level keys consumed during normalization; everything else is forwarded
// to the backend untouched.
var consumedKeys = map[string]bool{
	"model":    true,
	"messages": true,
	"prompt":   true,
	"options":  true,
}

// Normalize parses an inbound body into the canonical chat shape. The two
// inbound forms (modern messages, legacy prompt) are resolved here once;
// after normalization Messages is never empty and the prompt and options
// keys are gone from the forwarded fields.
func Normalize(raw []byte) (*domain.ChatRequest, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedRequest, err)
	}
	if body == nil {
		return nil, fmt.Errorf("%w: not a JSON object", domain.ErrMalformedRequest)
	}

	req := &domain.ChatRequest{
		Extra: make(map[string]json.RawMessage),
	}

	if rawModel, ok := body["model"]; ok {
		if err := json.Unmarshal(rawModel, &req.Model); err != nil {
			return nil, fmt.Errorf("%w: model: %v", domain.ErrMalformedRequest, err)
		}
	}

	if rawOptions, ok := body["options"]; ok {
		if err := json.Unmarshal(rawOptions, &req.Options); err != nil {
			return nil, fmt.Errorf("%w: options: %v", domain.ErrMalformedRequest, err)
		}
	}

	messages, err := convertToChatFormat(body)
	if err != nil {
		return nil, err
	}
	req.Messages = messages

	for k, v := range body {
		if !consumedKeys[k] {
			req.Extra[k] = v
		}
	}

	return req, nil
}

// convertToChatFormat resolves the messages/prompt duality: messages pass
// through (an empty array becomes one empty user message), a legacy prompt
// is synthesized into one user message, and a body with neither yields one
// empty user message.
func convertToChatFormat(body map[string]json.RawMessage) ([]domain.Message, error) {
	if rawMessages, ok := body["messages"]; ok && string(rawMessages) != "null" {
		var messages []domain.Message
		if err := json.Unmarshal(rawMessages, &messages); err != nil {
			return nil, fmt.Errorf("%w: messages: %v", domain.ErrMalformedRequest, err)
		}
		if len(messages) == 0 {
			messages = []domain.Message{{Role: "user", Content: domain.PlainContent("")}}
		}
		return messages, nil
	}

	rawPrompt, ok := body["prompt"]
	if !ok || string(rawPrompt) == "null" {
		return []domain.Message{{Role: "user", Content: domain.PlainContent("")}}, nil
	}

	var prompt string
	if err := json.Unmarshal(rawPrompt, &prompt); err == nil {
		return []domain.Message{{Role: "user", Content: domain.PlainContent(prompt)}}, nil
	}

	var parts []domain.ContentPart
	if err := json.Unmarshal(rawPrompt, &parts); err != nil {
		return nil, fmt.Errorf("%w: prompt: %v", domain.ErrMalformedRequest, err)
	}

	// Multipart legacy prompt: text parts concatenate, image parts collect
	// into the message's images list.
	var text string
	var images []string
	for _, p := range parts {
		switch p.Type {
		case "text":
			text += p.Text
		case "image":
			images = append(images, p.Data)
		}
	}
	msg := domain.Message{Role: "user", Content: domain.PlainContent(text)}
	if len(images) > 0 {
		msg.Images = images
	}
	return []domain.Message{msg}, nil
}
