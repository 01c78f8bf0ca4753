package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeltaEnvelopeShape(t *testing.T) {
	env := NewDeltaEnvelope("qwen2.5", "你好")

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "qwen2.5", decoded["model"])
	assert.Equal(t, false, decoded["done"])

	msg, ok := decoded["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "assistant", msg["role"])
	assert.Equal(t, "你好", msg["content"])
	assert.Contains(t, msg, "images")
	assert.Nil(t, msg["images"])

	// statistics belong to the terminal envelope only
	assert.NotContains(t, decoded, "total_duration")
	assert.NotContains(t, decoded, "eval_count")

	_, err = time.Parse(time.RFC3339Nano, decoded["created_at"].(string))
	assert.NoError(t, err)
}

func TestTerminalEnvelopeShape(t *testing.T) {
	env := NewTerminalEnvelope("qwen2.5")

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, true, decoded["done"])
	assert.NotContains(t, decoded, "message")

	for _, key := range []string{
		"total_duration", "load_duration",
		"prompt_eval_count", "prompt_eval_duration",
		"eval_count", "eval_duration",
	} {
		require.Contains(t, decoded, key)
		assert.Equal(t, float64(0), decoded[key])
	}
}
