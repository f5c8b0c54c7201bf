// Package streamproxy sits above internal/translator's format registry
// and adds the request-scoped concerns a raw translation call doesn't
// carry: thinking-block signature continuity and upstream cancellation
// propagation.
package streamproxy

import (
	"context"
	"io"

	"github.com/kestrel-oss/credrelay/internal/translator"
)

// Proxy translates a single request/response (or request/stream) pair
// between a client-facing dialect and an upstream dialect.
type Proxy struct {
	signatures *SignatureCache
}

// New constructs a Proxy with its own signature cache.
func New() *Proxy {
	return &Proxy{signatures: NewSignatureCache()}
}

// Close releases background resources (the signature cache sweep).
func (p *Proxy) Close() {
	p.signatures.Stop()
}

// TranslateRequest converts a client request body into the upstream
// dialect's shape.
func (p *Proxy) TranslateRequest(from, to translator.Format, model string, rawJSON []byte, stream bool) []byte {
	return translator.TranslateRequest(from, to, model, rawJSON, stream)
}

// TranslateResponse converts a non-streaming upstream response back
// into the client's dialect.
func (p *Proxy) TranslateResponse(ctx context.Context, from, to translator.Format, model string, body []byte) ([]byte, error) {
	return translator.TranslateResponse(ctx, from, to, model, body)
}

// TranslateStream converts an upstream SSE stream into the client's
// dialect, stopping promptly when ctx is cancelled since the
// translators read from io.Reader in a goroutine that only observes
// cancellation via the reader returning an error or EOF — callers must
// wrap the upstream reader with a context-aware one (see
// ctxReader) before handing it to TranslateStream.
func (p *Proxy) TranslateStream(ctx context.Context, from, to translator.Format, model string, reader io.Reader) (io.Reader, error) {
	return translator.TranslateStream(ctx, from, to, model, WithCancellation(ctx, reader))
}

// RememberThinkingSignature caches a thinking-block signature for a
// message id so a later turn in the same conversation can replay it to
// the upstream provider.
func (p *Proxy) RememberThinkingSignature(messageID, signature string) {
	if messageID == "" || signature == "" {
		return
	}
	p.signatures.Put(messageID, signature)
}

// ThinkingSignature returns a previously cached signature, if any.
func (p *Proxy) ThinkingSignature(messageID string) (string, bool) {
	return p.signatures.Get(messageID)
}

// ctxReader wraps an io.Reader so Read returns ctx.Err() once the
// context is cancelled, letting a blocked SSE scanner unwind promptly
// instead of waiting on the next upstream byte.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

// WithCancellation wraps r so reads fail fast once ctx is done.
func WithCancellation(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	select {
	case <-c.ctx.Done():
		return 0, c.ctx.Err()
	default:
	}
	return c.r.Read(p)
}
