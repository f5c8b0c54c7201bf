package server

import (
	ch "github.com/kestrel-oss/credrelay/internal/handlers/claude"
	mw "github.com/kestrel-oss/credrelay/internal/middleware"
	"github.com/kestrel-oss/credrelay/internal/config"
	"github.com/gin-gonic/gin"
)

// RegisterClaudeRoutes mounts the Claude-compatible endpoints under
// the given router group, mirroring RegisterOpenAIRoutes'/
// RegisterGeminiRoutes' gin.RouterGroup + auth-middleware wiring.
func RegisterClaudeRoutes(root *gin.RouterGroup, cfg *config.Config, deps Dependencies, rt *ClaudeRuntime) *ch.Handler {
	var claudeAuth gin.HandlerFunc
	if cm := config.GetConfigManager(); cm != nil {
		if fc := cm.GetConfig(); fc != nil && len(fc.APIKeys) > 0 {
			claudeAuth = mw.MultiKeyAuth(fc.APIKeys)
		}
	}
	if claudeAuth == nil {
		claudeAuth = mw.UnifiedAuth(mw.AuthConfig{RequiredKey: cfg.Upstream.OpenAIKey})
	}

	handler := ch.New(ch.Deps{
		CredMgr:     deps.CredentialManager,
		Providers:   rt.Providers,
		Health:      rt.Health,
		Locks:       rt.Locks,
		Sel:         rt.Selector,
		Pricer:      rt.Pricing,
		Limiter:     rt.Limiter,
		Tracker:     rt.Usage,
		Concurrency: rt.Concurrency,
		PerMinute:   rt.PerMinute,
		KeyFor:      rt.KeyFor,
		Refresh:     rt.RefreshIfDue(deps.CredentialManager),
	})

	v1 := root.Group("/v1")
	v1.Use(claudeAuth)
	v1.POST("/messages", handler.PostMessages)

	antigravity := root.Group("/gemini-antigravity/v1")
	antigravity.Use(claudeAuth)
	antigravity.POST("/messages", handler.PostAntigravityMessages)

	return handler
}
