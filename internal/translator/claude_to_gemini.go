package translator

import (
	"context"
	"io"
)

func init() {
	Register(FormatClaude, FormatGemini, TranslatorConfig{
		RequestTransform: ClaudeToGeminiRequest,
	})
	Register(FormatGemini, FormatClaude, TranslatorConfig{
		ResponseTransform: GeminiToClaudeResponse,
		StreamTransform:   GeminiToClaudeStream,
	})
}

// ClaudeToGeminiRequest converts a Claude /v1/messages request into a
// Gemini generateContent request by routing through the OpenAI shape,
// since Claude and Gemini never talk to each other directly in the
// upstream provider set.
func ClaudeToGeminiRequest(model string, rawJSON []byte, stream bool) []byte {
	openAIJSON := ClaudeToOpenAIRequest(model, rawJSON, stream)
	return OpenAIToGeminiRequest(model, openAIJSON, stream)
}

// GeminiToClaudeResponse converts a non-streaming Gemini response into
// a Claude /v1/messages response via the OpenAI intermediate shape.
func GeminiToClaudeResponse(ctx context.Context, model string, responseBody []byte) ([]byte, error) {
	openAIJSON, err := GeminiToOpenAIResponse(ctx, model, responseBody)
	if err != nil {
		return nil, err
	}
	return OpenAIToClaudeResponse(ctx, model, openAIJSON)
}

// GeminiToClaudeStream converts a streaming Gemini response into the
// Claude SSE event grammar by chaining the existing Gemini->OpenAI
// stream transform into the OpenAI->Claude one.
func GeminiToClaudeStream(ctx context.Context, model string, reader io.Reader) (io.Reader, error) {
	openAIStream, err := GeminiToOpenAIStream(ctx, model, reader)
	if err != nil {
		return nil, err
	}
	return OpenAIToClaudeStream(ctx, model, openAIStream)
}
