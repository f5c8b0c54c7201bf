package translator

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaudeToOpenAIRequestMapsCoreFields(t *testing.T) {
	input := `{
		"model": "claude-3-5-sonnet",
		"max_tokens": 1024,
		"temperature": 0.5,
		"system": "be terse",
		"messages": [
			{"role": "user", "content": "hi"}
		]
	}`

	out := ClaudeToOpenAIRequest("claude-3-5-sonnet", []byte(input), false)

	assert.Equal(t, "claude-3-5-sonnet", gjson.GetBytes(out, "model").String())
	assert.Equal(t, int64(1024), gjson.GetBytes(out, "max_tokens").Int())
	assert.Equal(t, "system", gjson.GetBytes(out, "messages.0.role").String())
	assert.Equal(t, "be terse", gjson.GetBytes(out, "messages.0.content").String())
	assert.Equal(t, "hi", gjson.GetBytes(out, "messages.1.content").String())
}

func TestClaudeToOpenAIRequestFlattensContentBlocks(t *testing.T) {
	input := `{
		"model": "claude-3-5-sonnet",
		"messages": [
			{"role": "user", "content": [{"type": "text", "text": "part one"}]}
		]
	}`

	out := ClaudeToOpenAIRequest("", []byte(input), false)
	assert.Equal(t, "part one", gjson.GetBytes(out, "messages.0.content").String())
}

func TestOpenAIToClaudeResponseBuildsMessageEnvelope(t *testing.T) {
	input := `{
		"id": "chatcmpl-1",
		"choices": [{"message": {"content": "hello there"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 5, "completion_tokens": 3}
	}`

	out, err := OpenAIToClaudeResponse(context.Background(), "claude-3-5-sonnet", []byte(input))
	require.NoError(t, err)

	assert.Equal(t, "message", gjson.GetBytes(out, "type").String())
	assert.Equal(t, "assistant", gjson.GetBytes(out, "role").String())
	assert.Equal(t, "end_turn", gjson.GetBytes(out, "stop_reason").String())
	assert.Equal(t, "hello there", gjson.GetBytes(out, "content.0.text").String())
	assert.Equal(t, int64(5), gjson.GetBytes(out, "usage.input_tokens").Int())
}

func TestOpenAIToClaudeStreamEmitsEventGrammar(t *testing.T) {
	upstream := strings.NewReader(
		"data: {\"choices\":[{\"delta\":{\"content\":\"He\"}}]}\n\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"llo\"}}]}\n\n" +
			"data: [DONE]\n\n",
	)

	out, err := OpenAIToClaudeStream(context.Background(), "claude-3-5-sonnet", upstream)
	require.NoError(t, err)

	var buf bytes.Buffer
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteString("\n")
	}

	got := buf.String()
	assert.Contains(t, got, "event: message_start")
	assert.Contains(t, got, "content_block_start")
	assert.Contains(t, got, "\"text\":\"He\"")
	assert.Contains(t, got, "\"text\":\"llo\"")
	assert.Contains(t, got, "event: message_stop")
}
