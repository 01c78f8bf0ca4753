package service

import (
	"testing"

	"github.com/liliang-cn/ragproxy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMessagesPassthrough(t *testing.T) {
	body := []byte(`{"model":"m","messages":[{"role":"user","content":"hi"}],"stream":true,"temperature":0.2}`)

	req, err := Normalize(body)
	require.NoError(t, err)

	assert.Equal(t, "m", req.Model)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "hi", req.Messages[0].Content.PlainText())

	// stream and temperature survive for forwarding, options and prompt never do
	assert.Contains(t, req.Extra, "stream")
	assert.Contains(t, req.Extra, "temperature")
	assert.NotContains(t, req.Extra, "options")
	assert.NotContains(t, req.Extra, "prompt")
}

func TestNormalizeEmptyMessages(t *testing.T) {
	req, err := Normalize([]byte(`{"model":"m","messages":[]}`))
	require.NoError(t, err)

	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "", req.Messages[0].Content.PlainText())
}

func TestNormalizeLegacyStringPrompt(t *testing.T) {
	req, err := Normalize([]byte(`{"model":"m","prompt":"who are you"}`))
	require.NoError(t, err)

	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "who are you", req.Messages[0].Content.PlainText())
	assert.NotContains(t, req.Extra, "prompt")
}

func TestNormalizeLegacyMultipartPrompt(t *testing.T) {
	body := []byte(`{
		"model": "m",
		"prompt": [
			{"type": "text", "text": "describe "},
			{"type": "image", "data": "aGVsbG8=", "mime_type": "image/png"},
			{"type": "text", "text": "this"}
		]
	}`)

	req, err := Normalize(body)
	require.NoError(t, err)

	require.Len(t, req.Messages, 1)
	assert.Equal(t, "describe this", req.Messages[0].Content.PlainText())
	assert.Equal(t, []string{"aGVsbG8="}, req.Messages[0].Images)
}

func TestNormalizeNeitherShape(t *testing.T) {
	req, err := Normalize([]byte(`{"model":"m"}`))
	require.NoError(t, err)

	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "", req.Messages[0].Content.PlainText())
}

func TestNormalizeMalformed(t *testing.T) {
	for _, body := range []string{"not json at all", `"just a string"`, `[1,2,3]`} {
		_, err := Normalize([]byte(body))
		assert.ErrorIs(t, err, domain.ErrMalformedRequest, "body: %s", body)
	}
}

func TestNormalizeOptionsExtracted(t *testing.T) {
	body := []byte(`{
		"model": "m",
		"messages": [{"role":"user","content":"q"}],
		"options": {"auto_detect": false, "web_search_enabled": true, "num_ctx": 4096}
	}`)

	req, err := Normalize(body)
	require.NoError(t, err)

	assert.False(t, req.Options.AutoDetectEnabled())
	require.NotNil(t, req.Options.WebSearchEnabled)
	assert.True(t, *req.Options.WebSearchEnabled)
	assert.Nil(t, req.Options.RetrievalEnabled)
}

func TestLatestUserText(t *testing.T) {
	req, err := Normalize([]byte(`{
		"messages": [
			{"role":"user","content":"first"},
			{"role":"assistant","content":"answer"},
			{"role":"user","content":"second"},
			{"role":"assistant","content":"another"}
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "second", req.LatestUserText())
}

func TestLatestUserTextMultipart(t *testing.T) {
	req, err := Normalize([]byte(`{
		"messages": [
			{"role":"user","content":[
				{"type":"text","text":"part one"},
				{"type":"image_url","image_url":{"url":"data:image/png;base64,aGk="}},
				{"type":"text","text":"part two"}
			]}
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "part one part two", req.LatestUserText())
}
