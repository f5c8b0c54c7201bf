package claude

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/kestrel-oss/credrelay/internal/apikey"
	"github.com/kestrel-oss/credrelay/internal/credential"
	apierrors "github.com/kestrel-oss/credrelay/internal/errors"
	common "github.com/kestrel-oss/credrelay/internal/handlers/common"
	"github.com/kestrel-oss/credrelay/internal/pricing"
	"github.com/kestrel-oss/credrelay/internal/selector"
	"github.com/kestrel-oss/credrelay/internal/translator"
	"github.com/kestrel-oss/credrelay/internal/upstream"
	"github.com/kestrel-oss/credrelay/internal/usage"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

const stickyTTL = 10 * time.Minute

// PostMessages handles POST /v1/messages: the Claude-dialect entry
// point fanning out across every registered upstream provider.
func (h *Handler) PostMessages(c *gin.Context) {
	h.handleMessages(c, "")
}

// PostAntigravityMessages handles POST /gemini-antigravity/v1/messages,
// pinning dispatch to the antigravity provider only.
func (h *Handler) PostAntigravityMessages(c *gin.Context) {
	h.handleMessages(c, "antigravity")
}

// callerKey extracts the identity the per-key concurrency, rate and
// cost ceilings are enforced against. No admin-managed key registry is
// wired into the auth middleware yet, so the raw header value is used
// directly as the apikey.Key id.
func callerKey(c *gin.Context) string {
	if k := c.GetHeader("x-api-key"); k != "" {
		return k
	}
	return c.GetHeader("Authorization")
}

func (h *Handler) handleMessages(c *gin.Context, provider string) {
	rawJSON, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, claudeErrorBody("invalid_request_error", err.Error()))
		return
	}

	var parsed struct {
		Model  string `json:"model"`
		Stream bool   `json:"stream"`
	}
	if err := json.Unmarshal(rawJSON, &parsed); err != nil {
		c.JSON(http.StatusBadRequest, claudeErrorBody("invalid_request_error", "invalid json"))
		return
	}

	rawKey := callerKey(c)
	apiKey := h.resolveKey(rawKey)
	now := time.Now()

	if h.perMinute != nil && !h.perMinute.Allow(rawKey) {
		writeClaudeError(c, apierrors.New(http.StatusTooManyRequests, "rate_limited", "rate_limit_error", "too many requests for this API key"))
		return
	}
	if h.limiter != nil && apiKey != nil && !h.limiter.Allow(apiKey, now) {
		writeClaudeError(c, apierrors.New(http.StatusTooManyRequests, "quota_exceeded", "rate_limit_error", "API key request/cost ceiling reached"))
		return
	}

	concurrencyKey := rawKey + ":" + c.ClientIP()
	release, ok := h.tryAcquireConcurrency(concurrencyKey)
	if !ok {
		writeClaudeError(c, apierrors.New(http.StatusTooManyRequests, "too_many_concurrent", "rate_limit_error", "too many concurrent requests for this API key"))
		return
	}
	defer release()

	candidates := h.candidates(provider)
	if len(candidates) == 0 {
		c.JSON(http.StatusServiceUnavailable, claudeErrorBody("overloaded_error", "no credentials available"))
		return
	}

	stickyKey := rawKey + ":" + parsed.Model

	if parsed.Stream {
		h.dispatchStream(c, candidates, stickyKey, parsed.Model, rawJSON, apiKey, now)
		return
	}
	h.dispatchOnce(c, candidates, stickyKey, parsed.Model, rawJSON, apiKey, now)
}

// resolveKey builds the apikey.Key used for limiter bookkeeping, or
// nil when the handler has no key resolver wired (e.g. in tests).
func (h *Handler) resolveKey(rawKey string) *apikey.Key {
	if h.keyFor == nil || rawKey == "" {
		return nil
	}
	return h.keyFor(rawKey)
}

func (h *Handler) tryAcquireConcurrency(key string) (func(), bool) {
	if h.concurrency == nil {
		return func() {}, true
	}
	return h.concurrency.TryAcquire(key)
}

func (h *Handler) dispatchOnce(c *gin.Context, candidates []selector.Candidate, stickyKey, model string, rawJSON []byte, apiKey *apikey.Key, start time.Time) {
	var respBody []byte
	var usedCred *credential.Credential

	dispatch := func(ctx context.Context, credID string) error {
		cred, ok := h.credMgr.GetCredentialByID(credID)
		if !ok {
			return apierrors.New(http.StatusNotFound, "not_found", "invalid_request_error", "credential not found")
		}
		usedCred = cred
		provider := h.providers.ProviderFor(model)
		if provider == nil {
			return apierrors.New(http.StatusServiceUnavailable, "unavailable", "api_error", "no upstream provider registered")
		}
		format, ok := targetFormat(cred.Provider)
		if !ok {
			return apierrors.New(http.StatusNotImplemented, "unsupported_provider", "api_error", "no translator registered for provider "+cred.Provider)
		}

		body := translator.TranslateRequest(translator.FormatClaude, format, model, rawJSON, false)
		result := provider.Generate(upstream.RequestContext{Ctx: ctx, Credential: cred, BaseModel: model, Body: body})
		if result.Err != nil {
			return apierrors.MapNetworkError(result.Err)
		}
		defer result.Resp.Body.Close()
		upstreamBody, err := io.ReadAll(result.Resp.Body)
		if err != nil {
			return apierrors.New(http.StatusBadGateway, "upstream_error", "api_error", err.Error())
		}
		if result.Resp.StatusCode >= 400 {
			return apierrors.MapHTTPError(result.Resp.StatusCode, upstreamBody)
		}

		translated, err := translator.TranslateResponse(ctx, format, translator.FormatClaude, model, upstreamBody)
		if err != nil {
			return apierrors.New(http.StatusInternalServerError, "translation_error", "api_error", err.Error())
		}
		respBody = translated
		return nil
	}

	err := h.executor.Run(c.Request.Context(), selector.StrategyHybrid, candidates, stickyKey, stickyTTL, h.refresh, dispatch)
	if err != nil {
		h.recordCompletion(usedCred, model, apiKey, start, false, nil)
		writeClaudeError(c, err)
		return
	}

	tokens := tokenUsageFromClaudeResponse(respBody)
	h.recordCompletion(usedCred, model, apiKey, start, true, tokens)
	c.Data(http.StatusOK, "application/json", respBody)
}

func (h *Handler) dispatchStream(c *gin.Context, candidates []selector.Candidate, stickyKey, model string, rawJSON []byte, apiKey *apikey.Key, start time.Time) {
	w, fl := common.PrepareSSE(c)
	var usedCred *credential.Credential

	dispatch := func(ctx context.Context, credID string) error {
		cred, ok := h.credMgr.GetCredentialByID(credID)
		if !ok {
			return apierrors.New(http.StatusNotFound, "not_found", "invalid_request_error", "credential not found")
		}
		usedCred = cred
		provider := h.providers.ProviderFor(model)
		if provider == nil {
			return apierrors.New(http.StatusServiceUnavailable, "unavailable", "api_error", "no upstream provider registered")
		}
		format, ok := targetFormat(cred.Provider)
		if !ok {
			return apierrors.New(http.StatusNotImplemented, "unsupported_provider", "api_error", "no translator registered for provider "+cred.Provider)
		}

		body := translator.TranslateRequest(translator.FormatClaude, format, model, rawJSON, true)
		result := provider.Stream(upstream.RequestContext{Ctx: ctx, Credential: cred, BaseModel: model, Body: body})
		if result.Err != nil {
			return apierrors.MapNetworkError(result.Err)
		}
		if result.Resp.StatusCode >= 400 {
			upstreamBody, _ := io.ReadAll(result.Resp.Body)
			result.Resp.Body.Close()
			return apierrors.MapHTTPError(result.Resp.StatusCode, upstreamBody)
		}
		defer result.Resp.Body.Close()

		translated, err := h.proxy.TranslateStream(ctx, format, translator.FormatClaude, model, result.Resp.Body)
		if err != nil {
			return apierrors.New(http.StatusInternalServerError, "translation_error", "api_error", err.Error())
		}
		sw := &sseUsageWriter{sseWriter: sseWriter{w, fl}}
		_, copyErr := io.Copy(sw, translated)
		if copyErr == nil {
			h.recordCompletion(usedCred, model, apiKey, start, true, sw.tokens())
		}
		return copyErr
	}

	ctx, cancel := common.WithUpstreamTimeout(c.Request.Context(), true)
	defer cancel()

	if err := h.executor.Run(ctx, selector.StrategyHybrid, candidates, stickyKey, stickyTTL, h.refresh, dispatch); err != nil {
		h.recordCompletion(usedCred, model, apiKey, start, false, nil)
		writeClaudeError(c, err)
	}
}

// recordCompletion feeds the Usage Meter and the API-key limiter once
// a request has finished (successfully or not), computing cost from
// the pricing table when token counts are available.
func (h *Handler) recordCompletion(cred *credential.Credential, model string, apiKey *apikey.Key, start time.Time, success bool, tokens *usage.TokenUsage) {
	var costUSD float64
	if tokens != nil && h.pricer != nil {
		rate, ok := h.pricer.Resolve(context.Background(), model)
		if ok {
			costUSD = pricing.CostUSD(rate, tokens.InputTokens, tokens.OutputTokens, 0, tokens.CachedTokens)
		}
	}

	if h.limiter != nil && apiKey != nil {
		h.limiter.Record(apiKey, time.Now(), costUSD)
	}

	if h.usage != nil {
		credID := ""
		if cred != nil {
			credID = cred.ID
		}
		h.usage.Record(&usage.RequestRecord{
			Timestamp:    start,
			CredentialID: credID,
			API:          "claude",
			Model:        model,
			Success:      success,
			Tokens:       tokens,
		})
	}
}

// tokenUsageFromClaudeResponse extracts token counts from a
// Claude-dialect non-streaming response body for cost/usage
// accounting.
func tokenUsageFromClaudeResponse(body []byte) *usage.TokenUsage {
	input := gjson.GetBytes(body, "usage.input_tokens").Int()
	output := gjson.GetBytes(body, "usage.output_tokens").Int()
	cached := gjson.GetBytes(body, "usage.cache_read_input_tokens").Int()
	if input == 0 && output == 0 && cached == 0 {
		return nil
	}
	return &usage.TokenUsage{
		InputTokens:  input,
		OutputTokens: output,
		CachedTokens: cached,
		TotalTokens:  input + output,
	}
}

// sseWriter adapts a (ResponseWriter, Flusher) pair to io.Writer,
// flushing after every chunk so the client sees bytes as they arrive.
type sseWriter struct {
	w  gin.ResponseWriter
	fl http.Flusher
}

func (s sseWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if s.fl != nil {
		s.fl.Flush()
	}
	return n, err
}

// sseUsageWriter wraps sseWriter to also scan the final message_delta
// event for the usage block Claude's SSE grammar emits at stream end.
type sseUsageWriter struct {
	sseWriter
	buf []byte
}

func (s *sseUsageWriter) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return s.sseWriter.Write(p)
}

func (s *sseUsageWriter) tokens() *usage.TokenUsage {
	input := gjson.GetBytes(s.buf, "usage.input_tokens").Int()
	output := gjson.GetBytes(s.buf, "usage.output_tokens").Int()
	if input == 0 && output == 0 {
		return nil
	}
	return &usage.TokenUsage{InputTokens: input, OutputTokens: output, TotalTokens: input + output}
}

func claudeErrorBody(errType, message string) gin.H {
	return gin.H{
		"type": "error",
		"error": gin.H{
			"type":    errType,
			"message": message,
		},
	}
}

func writeClaudeError(c *gin.Context, err error) {
	var apiErr *apierrors.APIError
	if goerrors.As(err, &apiErr) {
		body, jsonErr := apiErr.ToJSON(apierrors.FormatClaude)
		if jsonErr == nil {
			c.Data(apiErr.HTTPStatus, "application/json", body)
			return
		}
	}
	c.JSON(http.StatusBadGateway, claudeErrorBody("api_error", err.Error()))
}
