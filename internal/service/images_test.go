package service

import (
	"testing"

	"github.com/liliang-cn/ragproxy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWithImages(t *testing.T, images ...string) *domain.ChatRequest {
	t.Helper()
	req := &domain.ChatRequest{
		Model: "m",
		Messages: []domain.Message{
			{Role: "user", Content: domain.PlainContent("看看这张图"), Images: images},
		},
	}
	return req
}

func TestExtractImagesNone(t *testing.T) {
	req := &domain.ChatRequest{
		Messages: []domain.Message{{Role: "user", Content: domain.PlainContent("no images")}},
	}
	images, err := ExtractImages(req)
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestExtractImagesValid(t *testing.T) {
	images, err := ExtractImages(requestWithImages(t, "aGVsbG8="))
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "aGVsbG8=", images[0].Data)
	assert.Equal(t, "image/jpeg", images[0].MimeType)
}

func TestExtractImagesCleansDataURL(t *testing.T) {
	images, err := ExtractImages(requestWithImages(t, "data:image/png;base64,aGVsbG8="))
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "aGVsbG8=", images[0].Data)
}

func TestExtractImagesCleansWhitespaceAndPadding(t *testing.T) {
	// whitespace stripped, missing padding restored
	images, err := ExtractImages(requestWithImages(t, "aGVs\nbG8"))
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "aGVsbG8=", images[0].Data)
}

func TestExtractImagesAllInvalidIsUnrecoverable(t *testing.T) {
	_, err := ExtractImages(requestWithImages(t, "!!!!", "????"))
	assert.ErrorIs(t, err, domain.ErrUnrecoverableImage)
}

func TestExtractImagesDropsInvalidKeepsValid(t *testing.T) {
	images, err := ExtractImages(requestWithImages(t, "!!!!", "aGVsbG8="))
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "aGVsbG8=", images[0].Data)
}
