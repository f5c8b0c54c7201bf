// Package anthropic implements upstream.Provider for credentials whose
// provider is "anthropic" — a native pass-through to Anthropic's
// Messages API, since the Claude-dialect surface already speaks the
// wire format the upstream expects.
package anthropic

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kestrel-oss/credrelay/internal/config"
	"github.com/kestrel-oss/credrelay/internal/constants"
	"github.com/kestrel-oss/credrelay/internal/upstream"
)

const defaultBaseURL = "https://api.anthropic.com"
const anthropicVersion = "2023-06-01"

// Provider talks directly to the Anthropic Messages API.
type Provider struct {
	baseURL string
	cli     *http.Client
}

// New builds a Provider. An empty baseURL falls back to Anthropic's
// public API, letting callers override it for a private gateway or
// test double.
func New(cfg *config.Config, baseURL string) *Provider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	dialTO := durationOrDefault(cfg.DialTimeoutSec, constants.DefaultDialTimeout)
	tlsTO := durationOrDefault(cfg.TLSHandshakeTimeoutSec, constants.DefaultTLSHandshakeTimeout)
	hdrTO := durationOrDefault(cfg.ResponseHeaderTimeoutSec, constants.DefaultResponseHeaderTimeout)
	expTO := durationOrDefault(cfg.ExpectContinueTimeoutSec, constants.DefaultExpectContinueTimeout)

	tr := &http.Transport{
		Proxy: proxyFunc(cfg.ProxyURL),
		DialContext: (&net.Dialer{
			Timeout:   dialTO,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   tlsTO,
		ResponseHeaderTimeout: hdrTO,
		ExpectContinueTimeout: expTO,
		MaxIdleConns:          constants.BaseMaxIdleConns,
		MaxIdleConnsPerHost:   constants.BaseMaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Provider{baseURL: strings.TrimRight(baseURL, "/"), cli: &http.Client{Transport: tr, Timeout: 0}}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func proxyFunc(proxyURL string) func(*http.Request) (*url.URL, error) {
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			return http.ProxyURL(parsed)
		}
	}
	return http.ProxyFromEnvironment
}

func (p *Provider) Name() string { return "anthropic" }

// SupportsModel claims any "claude-*" base model, mirroring Gemini's
// "gemini-*" prefix gate in gemini.Provider.SupportsModel.
func (p *Provider) SupportsModel(baseModel string) bool {
	return strings.HasPrefix(strings.ToLower(baseModel), "claude-")
}

func (p *Provider) do(ctx context.Context, reqCtx upstream.RequestContext) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(reqCtx.Body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", anthropicVersion)
	if reqCtx.Credential != nil {
		key := reqCtx.Credential.APIKey
		if key == "" {
			key = reqCtx.Credential.AccessToken
		}
		req.Header.Set("x-api-key", key)
	}
	for k, vs := range reqCtx.HeaderOverrides {
		if strings.EqualFold(k, "x-api-key") || strings.EqualFold(k, "Content-Type") || strings.EqualFold(k, "anthropic-version") {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return p.cli.Do(req)
}

func (p *Provider) Generate(reqCtx upstream.RequestContext) upstream.ProviderResponse {
	ctx := reqCtx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := p.do(ctx, reqCtx)
	return upstream.ProviderResponse{Resp: resp, UsedModel: reqCtx.BaseModel, Err: err, Credential: reqCtx.Credential}
}

// Stream hits the same /v1/messages endpoint; the caller sets
// "stream": true in the request body, matching the Anthropic API's
// single-endpoint streaming convention.
func (p *Provider) Stream(reqCtx upstream.RequestContext) upstream.ProviderResponse {
	return p.Generate(reqCtx)
}

// ListModels is unsupported: the Claude-dialect surface uses a static
// model table, not upstream discovery, for Anthropic-native credentials.
func (p *Provider) ListModels(reqCtx upstream.RequestContext) upstream.ProviderListResponse {
	return upstream.ProviderListResponse{Credential: reqCtx.Credential}
}

// Invalidate is a no-op: Provider caches no per-credential client state.
func (p *Provider) Invalidate(credID string) {}
