package translator

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/kestrel-oss/credrelay/internal/handlers/common"
	"github.com/tidwall/gjson"
)

// OpenAIToClaudeStream re-emits an OpenAI SSE chunk stream
// ("data: {...}\n\n", terminated by "data: [DONE]") as the Claude SSE
// event grammar (message_start, content_block_start/delta/stop,
// message_delta, message_stop), generalized from the
// "data: {...}\n\n" framing in internal/handlers/openai/chat_stream.go.
func OpenAIToClaudeStream(ctx context.Context, model string, reader io.Reader) (io.Reader, error) {
	pr, pw := io.Pipe()
	go func() {
		bw := &claudeSSEWriter{w: pw}
		defer func() {
			bw.closeBlockIfOpen()
			bw.writeEvent("message_delta", map[string]interface{}{
				"type":  "message_delta",
				"delta": map[string]string{"stop_reason": "end_turn"},
			})
			bw.writeEvent("message_stop", map[string]interface{}{"type": "message_stop"})
			pw.Close()
		}()

		bw.writeEvent("message_start", map[string]interface{}{
			"type": "message_start",
			"message": map[string]interface{}{
				"id":    "msg_stream",
				"type":  "message",
				"role":  "assistant",
				"model": model,
			},
		})

		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				break
			}
			delta := gjson.Get(payload, "choices.0.delta.content").String()
			if delta == "" {
				continue
			}
			bw.ensureBlockOpen()
			bw.writeEvent("content_block_delta", map[string]interface{}{
				"type":  "content_block_delta",
				"index": 0,
				"delta": map[string]string{"type": "text_delta", "text": delta},
			})
		}
	}()
	return pr, nil
}

// claudeSSEWriter tracks whether a content_block has been opened so
// callers can emit content_block_start lazily on first delta, instead
// of always opening an empty block.
type claudeSSEWriter struct {
	w         io.Writer
	blockOpen bool
}

func (b *claudeSSEWriter) ensureBlockOpen() {
	if b.blockOpen {
		return
	}
	b.writeEvent("content_block_start", map[string]interface{}{
		"type":          "content_block_start",
		"index":         0,
		"content_block": map[string]string{"type": "text", "text": ""},
	})
	b.blockOpen = true
}

func (b *claudeSSEWriter) closeBlockIfOpen() {
	if !b.blockOpen {
		return
	}
	b.writeEvent("content_block_stop", map[string]interface{}{"type": "content_block_stop", "index": 0})
	b.blockOpen = false
}

func (b *claudeSSEWriter) writeEvent(event string, payload interface{}) {
	_ = common.SSEWriteEvent(nopResponseWriter{b.w}, nil, event, payload)
}

// nopResponseWriter adapts a plain io.Writer to http.ResponseWriter so
// it can be passed to common.SSEWriteEvent, which only ever calls
// Write on it in this pipe-to-pipe usage.
type nopResponseWriter struct{ io.Writer }

func (nopResponseWriter) Header() http.Header { return http.Header{} }
func (nopResponseWriter) WriteHeader(int)      {}
