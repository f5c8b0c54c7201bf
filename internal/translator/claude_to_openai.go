package translator

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func init() {
	Register(FormatClaude, FormatOpenAI, TranslatorConfig{
		RequestTransform: ClaudeToOpenAIRequest,
	})
	Register(FormatOpenAI, FormatClaude, TranslatorConfig{
		ResponseTransform: OpenAIToClaudeResponse,
		StreamTransform:   OpenAIToClaudeStream,
	})
}

// ClaudeToOpenAIRequest converts a Claude /v1/messages request body
// into an OpenAI /v1/chat/completions request body.
func ClaudeToOpenAIRequest(model string, rawJSON []byte, stream bool) []byte {
	out := `{}`
	out, _ = sjson.Set(out, "model", firstNonEmptyClaudeModel(model, rawJSON))
	out, _ = sjson.Set(out, "stream", stream)

	if v := gjson.GetBytes(rawJSON, "max_tokens"); v.Exists() {
		out, _ = sjson.Set(out, "max_tokens", v.Int())
	}
	if v := gjson.GetBytes(rawJSON, "temperature"); v.Exists() {
		out, _ = sjson.Set(out, "temperature", v.Float())
	}
	if v := gjson.GetBytes(rawJSON, "top_p"); v.Exists() {
		out, _ = sjson.Set(out, "top_p", v.Float())
	}
	if v := gjson.GetBytes(rawJSON, "stop_sequences"); v.IsArray() {
		stops := make([]string, 0)
		v.ForEach(func(_, val gjson.Result) bool {
			stops = append(stops, val.String())
			return true
		})
		stopsJSON, _ := json.Marshal(stops)
		out, _ = sjson.SetRaw(out, "stop", string(stopsJSON))
	}

	messages := make([]map[string]interface{}, 0)
	if sys := gjson.GetBytes(rawJSON, "system"); sys.Exists() {
		messages = append(messages, map[string]interface{}{
			"role":    "system",
			"content": claudeSystemToText(sys),
		})
	}

	gjson.GetBytes(rawJSON, "messages").ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role").String()
		content := msg.Get("content")
		messages = append(messages, map[string]interface{}{
			"role":    role,
			"content": claudeContentToOpenAIText(content),
		})
		return true
	})

	messagesJSON, _ := json.Marshal(messages)
	out, _ = sjson.SetRaw(out, "messages", string(messagesJSON))

	return []byte(out)
}

func firstNonEmptyClaudeModel(model string, rawJSON []byte) string {
	if model != "" {
		return model
	}
	return gjson.GetBytes(rawJSON, "model").String()
}

func claudeSystemToText(sys gjson.Result) string {
	if sys.Type == gjson.String {
		return sys.String()
	}
	var buf []byte
	sys.ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			buf = append(buf, block.Get("text").String()...)
			buf = append(buf, '\n')
		}
		return true
	})
	return string(buf)
}

// claudeContentToOpenAIText flattens Claude's content-block array (or
// bare string) into plain text; tool_use/tool_result blocks are
// rendered as a best-effort textual summary since the OpenAI
// tool-calling wire shape diverges structurally enough that a full
// round-trip is out of scope here.
func claudeContentToOpenAIText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	var buf []byte
	content.ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			buf = append(buf, block.Get("text").String()...)
		case "tool_result":
			buf = append(buf, block.Get("content").String()...)
		}
		return true
	})
	return string(buf)
}

// OpenAIToClaudeResponse converts a non-streaming OpenAI chat
// completion response into a Claude /v1/messages response.
func OpenAIToClaudeResponse(ctx context.Context, model string, responseBody []byte) ([]byte, error) {
	text := gjson.GetBytes(responseBody, "choices.0.message.content").String()
	finish := gjson.GetBytes(responseBody, "choices.0.finish_reason").String()

	out := `{"type":"message","role":"assistant"}`
	out, _ = sjson.Set(out, "id", gjson.GetBytes(responseBody, "id").String())
	out, _ = sjson.Set(out, "model", model)
	out, _ = sjson.Set(out, "stop_reason", mapOpenAIFinishReason(finish))

	contentJSON, _ := json.Marshal([]map[string]string{{"type": "text", "text": text}})
	out, _ = sjson.SetRaw(out, "content", string(contentJSON))

	usage := map[string]int64{
		"input_tokens":  gjson.GetBytes(responseBody, "usage.prompt_tokens").Int(),
		"output_tokens": gjson.GetBytes(responseBody, "usage.completion_tokens").Int(),
	}
	usageJSON, _ := json.Marshal(usage)
	out, _ = sjson.SetRaw(out, "usage", string(usageJSON))

	return []byte(out), nil
}

func mapOpenAIFinishReason(reason string) string {
	switch reason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	default:
		return "end_turn"
	}
}
