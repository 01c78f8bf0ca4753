package service

import (
	"fmt"
	"strings"
)

const (
	enhancePreamble = "我有一个问题，但在回答前，请考虑我提供的以下参考信息：\n\n"

	questionDelimiter = "===我的问题===\n"

	trailingInstruction = "\n\n请基于以上参考信息回答我的问题。" +
		"如果参考信息与我的问题无关，请告诉我并尽力回答。" +
		"如果参考信息已经过时，请明确指出并提供你知道的最新信息。"
)

// EnhancePrompt folds context blocks and the original query into one
// augmented prompt: preamble, numbered sections in input order, question
// delimiter, the query, and a trailing instruction. With no contexts the
// query passes through untouched.
func EnhancePrompt(original string, contexts []string) string {
	if len(contexts) == 0 {
		return original
	}

	var b strings.Builder
	b.WriteString(enhancePreamble)

	for i, context := range contexts {
		trimmed := strings.TrimSpace(context)
		if trimmed == "" {
			continue
		}
		fmt.Fprintf(&b, "===参考信息 %d===\n%s\n\n", i+1, trimmed)
	}

	b.WriteString(questionDelimiter)
	b.WriteString(original)
	b.WriteString(trailingInstruction)

	return b.String()
}
