package service

import (
	"encoding/base64"
	"strings"

	"github.com/liliang-cn/ragproxy/internal/domain"
)

// ExtractImages collects the image payloads attached to a request's messages,
// cleaning each base64 blob. A request that carries images but none of them
// survive cleaning is malformed beyond repair and returns
// domain.ErrUnrecoverableImage.
func ExtractImages(req *domain.ChatRequest) ([]domain.ImagePayload, error) {
	var raw []string
	for _, msg := range req.Messages {
		raw = append(raw, msg.Images...)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	images := make([]domain.ImagePayload, 0, len(raw))
	for _, data := range raw {
		cleaned := cleanBase64(data)
		if cleaned == "" {
			continue
		}
		images = append(images, domain.ImagePayload{
			Data:     cleaned,
			MimeType: "image/jpeg",
		})
	}
	if len(images) == 0 {
		return nil, domain.ErrUnrecoverableImage
	}
	return images, nil
}

// cleanBase64 strips whitespace and data-URL prefixes, restores padding, and
// verifies the result decodes. Returns "" for data that cannot be repaired.
func cleanBase64(data string) string {
	if data == "" {
		return ""
	}

	cleaned := strings.Join(strings.Fields(data), "")
	if i := strings.Index(cleaned, "base64,"); i >= 0 {
		cleaned = cleaned[i+len("base64,"):]
	}
	if pad := len(cleaned) % 4; pad != 0 {
		cleaned += strings.Repeat("=", 4-pad)
	}

	if _, err := base64.StdEncoding.DecodeString(cleaned); err != nil {
		return ""
	}
	return cleaned
}
