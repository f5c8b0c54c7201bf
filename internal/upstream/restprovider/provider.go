// Package restprovider implements upstream.Provider for the
// Credential-Pool Runtime's bearer-token REST upstreams (Kiro/
// CodeWhisperer, Orchids, Warp, Vertex, Bedrock) that don't carry the
// Gemini Code Assist client's OAuth-refresh-aware request shaping.
// Each upstream gets its own instance, parameterized by base URL,
// generate/stream paths and model prefix; the wire body is forwarded
// as-is, since no translator.Format leg exists yet for these dialects
// (see internal/handlers/claude/handler.go's targetFormat).
package restprovider

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
	"github.com/kestrel-oss/credrelay/internal/credential"
	"github.com/kestrel-oss/credrelay/internal/upstream"
)

// Config parameterizes a single REST upstream.
type Config struct {
	// Name is the upstream.Provider name, matching a Credential.Provider
	// value (kiro|orchids|warp|vertex|bedrock).
	Name string
	// BaseURL is the upstream's API root, e.g. "https://codewhisperer.us-east-1.amazonaws.com".
	BaseURL string
	// GeneratePath and StreamPath are appended to BaseURL for
	// non-streaming and streaming requests respectively.
	GeneratePath string
	StreamPath   string
	// ModelPrefix, when non-empty, is required (case-insensitively) of
	// any baseModel this provider claims to support.
	ModelPrefix string
}

// Provider is a bearer-token authenticated REST upstream.Provider.
type Provider struct {
	cfg    Config
	cli    *http.Client
	global *config.Config
}

// New builds a Provider from cfg, reusing the same dial/TLS/header
// timeout knobs the Gemini Code Assist client reads from global.
func New(global *config.Config, cfg Config) *Provider {
	dialTO := durationOrDefault(global.DialTimeoutSec, constants.DefaultDialTimeout)
	tlsTO := durationOrDefault(global.TLSHandshakeTimeoutSec, constants.DefaultTLSHandshakeTimeout)
	hdrTO := durationOrDefault(global.ResponseHeaderTimeoutSec, constants.DefaultResponseHeaderTimeout)
	expTO := durationOrDefault(global.ExpectContinueTimeoutSec, constants.DefaultExpectContinueTimeout)

	tr := &http.Transport{
		Proxy: proxyFunc(global.ProxyURL),
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
	return &Provider{cfg: cfg, cli: &http.Client{Transport: tr, Timeout: 0}, global: global}
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

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) SupportsModel(baseModel string) bool {
	if p.cfg.ModelPrefix == "" {
		return baseModel == ""
	}
	return strings.HasPrefix(strings.ToLower(baseModel), strings.ToLower(p.cfg.ModelPrefix))
}

func (p *Provider) bearerFor(cred *credential.Credential) string {
	if cred == nil {
		return ""
	}
	if cred.AccessToken != "" {
		return cred.AccessToken
	}
	return cred.APIKey
}

func (p *Provider) do(ctx context.Context, path string, reqCtx upstream.RequestContext) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(reqCtx.Body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := p.bearerFor(reqCtx.Credential); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, vs := range reqCtx.HeaderOverrides {
		if strings.EqualFold(k, "Authorization") || strings.EqualFold(k, "Content-Type") {
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
	resp, err := p.do(ctx, p.cfg.GeneratePath, reqCtx)
	return upstream.ProviderResponse{Resp: resp, UsedModel: reqCtx.BaseModel, Err: err, Credential: reqCtx.Credential}
}

func (p *Provider) Stream(reqCtx upstream.RequestContext) upstream.ProviderResponse {
	ctx := reqCtx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := p.do(ctx, p.cfg.StreamPath, reqCtx)
	return upstream.ProviderResponse{Resp: resp, UsedModel: reqCtx.BaseModel, Err: err, Credential: reqCtx.Credential}
}

// ListModels is unsupported for these upstreams; none of spec.md's
// non-Gemini providers expose a model-listing endpoint this gateway
// needs at runtime (Kiro's ListAvailableModels feeds the Quota
// Tracker, not model discovery).
func (p *Provider) ListModels(reqCtx upstream.RequestContext) upstream.ProviderListResponse {
	return upstream.ProviderListResponse{Credential: reqCtx.Credential}
}

// Invalidate is a no-op: this provider caches no per-credential client
// state (unlike gemini.Provider's OAuth-bound client cache).
func (p *Provider) Invalidate(credID string) {}
