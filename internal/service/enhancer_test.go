package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnhancePromptIdentity(t *testing.T) {
	assert.Equal(t, "原样返回", EnhancePrompt("原样返回", nil))
	assert.Equal(t, "原样返回", EnhancePrompt("原样返回", []string{}))
}

func TestEnhancePromptOrder(t *testing.T) {
	out := EnhancePrompt("这是我的问题", []string{"上下文一", "上下文二"})

	i1 := strings.Index(out, "===参考信息 1===\n上下文一")
	i2 := strings.Index(out, "===参考信息 2===\n上下文二")
	iq := strings.Index(out, "===我的问题===\n这是我的问题")

	require.GreaterOrEqual(t, i1, 0)
	require.GreaterOrEqual(t, i2, 0)
	require.GreaterOrEqual(t, iq, 0)

	// preamble, ordered sections, delimiter, query, trailing instruction
	assert.True(t, strings.HasPrefix(out, enhancePreamble))
	assert.Less(t, i1, i2)
	assert.Less(t, i2, iq)
	assert.True(t, strings.HasSuffix(out, trailingInstruction))
}

func TestEnhancePromptSkipsBlankContexts(t *testing.T) {
	out := EnhancePrompt("q", []string{"  \n ", "实际内容"})

	assert.NotContains(t, out, "===参考信息 1===")
	// numbering follows the input position, not the emitted count
	assert.Contains(t, out, "===参考信息 2===\n实际内容")
}

func TestEnhancePromptTrimsContextBody(t *testing.T) {
	out := EnhancePrompt("q", []string{"\n  两边有空白  \n"})

	assert.Contains(t, out, "===参考信息 1===\n两边有空白\n")
}
