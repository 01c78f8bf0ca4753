package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/liliang-cn/ragproxy/internal/domain"
	"go.uber.org/zap"
)

const visionSystemPrompt = "你是一个图像描述专家。请详细描述这张图片的内容，" +
	"包括图片中的主要对象、场景、文本、布局等关键信息。描述要清晰全面，重点突出，" +
	"使人能通过你的描述了解图片的完整信息。使用中文回复。"

// Vision describes images through an OpenAI-compatible chat-completions
// endpoint, one call per image.
type Vision struct {
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewVision creates a vision describer client with a 60s per-call timeout.
func NewVision(apiURL, apiKey, model string, logger *zap.Logger) *Vision {
	return &Vision{
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

type visionContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *visionImageURL `json:"image_url,omitempty"`
}

type visionImageURL struct {
	URL string `json:"url"`
}

type visionMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type visionRequest struct {
	Model       string          `json:"model"`
	Messages    []visionMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	TopP        float64         `json:"top_p"`
	Stream      bool            `json:"stream"`
}

type visionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Describe returns a combined description of all images. A failure on one
// image becomes an inline failure note; only a request where every call
// failed returns an error.
func (v *Vision) Describe(ctx context.Context, images []domain.ImagePayload, progress func(string)) (string, error) {
	if len(images) == 0 {
		return "", nil
	}

	var descriptions []string
	failures := 0
	for i, img := range images {
		if progress != nil {
			progress(fmt.Sprintf("正在分析第%d张图片...", i+1))
		}
		desc, err := v.describeOne(ctx, img)
		if err != nil {
			v.logger.Warn("vision call failed", zap.Int("image", i+1), zap.Error(err))
			descriptions = append(descriptions, fmt.Sprintf("[图片%d处理失败: %v]", i+1, err))
			failures++
			continue
		}
		if desc == "" {
			descriptions = append(descriptions, fmt.Sprintf("[图片%d描述为空]", i+1))
			continue
		}
		descriptions = append(descriptions, fmt.Sprintf("[图片%d]\n%s", i+1, desc))
	}

	if failures == len(images) {
		return "", fmt.Errorf("vision describe: all %d image calls failed", len(images))
	}
	return strings.Join(descriptions, "\n\n"), nil
}

func (v *Vision) describeOne(ctx context.Context, img domain.ImagePayload) (string, error) {
	mimeType := img.MimeType
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/" + strings.TrimPrefix(mimeType, "image/")
	}

	payload := visionRequest{
		Model: v.model,
		Messages: []visionMessage{
			{Role: "system", Content: visionSystemPrompt},
			{Role: "user", Content: []visionContentPart{
				{Type: "text", Text: "请描述这张图片："},
				{Type: "image_url", ImageURL: &visionImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", mimeType, img.Data),
				}},
			}},
		},
		Temperature: 0.7,
		TopP:        0.95,
		Stream:      false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set(headerContentType, mimeJSON)
	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, raw)
	}

	var parsed visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode vision response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}
