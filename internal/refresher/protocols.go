package refresher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kestrel-oss/credrelay/internal/credential"
)

// httpDo is the shared request/response plumbing every protocol below
// builds on, grounded on oauth.Manager.RefreshToken's form-POST shape.
func httpDo(ctx context.Context, client *http.Client, tokenURL string, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	return &tr, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
}

func applyTokenResponse(cred *credential.Credential, tr *tokenResponse) {
	cred.AccessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		cred.RefreshToken = tr.RefreshToken
	}
	if tr.ExpiresIn > 0 {
		cred.ExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
}

const (
	kiroRefreshURLTemplate = "https://prod.%s.auth.desktop.kiro.dev/refreshToken"
	oidcTokenURLTemplate   = "https://oidc.%s.amazonaws.com/token"
	geminiAntigravityURL   = "https://oauth2.googleapis.com/token"
	warpRefreshURL         = "https://app.warp.dev/proxy/token"
)

// SocialProtocol refreshes Kiro/CodeWhisperer "social" (Google/GitHub
// sign-in via the Kiro auth service) credentials, region-templated
// per the credential's Region field.
func SocialProtocol(client *http.Client) Protocol {
	return func(ctx context.Context, cred *credential.Credential) error {
		region := firstNonEmpty(cred.Region, "us-east-1")
		refreshURL := fmt.Sprintf(kiroRefreshURLTemplate, region)
		form := url.Values{"refreshToken": {cred.RefreshToken}}
		tr, err := httpDo(ctx, client, refreshURL, form)
		if err != nil {
			return err
		}
		applyTokenResponse(cred, tr)
		return nil
	}
}

// BuilderIDProtocol / IdCProtocol refresh AWS Builder ID / Identity
// Center credentials via the regional OIDC token endpoint with a
// client-credentials-shaped refresh grant.
func BuilderIDProtocol(client *http.Client) Protocol {
	return oidcProtocol(client)
}

func IdCProtocol(client *http.Client) Protocol {
	return oidcProtocol(client)
}

func oidcProtocol(client *http.Client) Protocol {
	return func(ctx context.Context, cred *credential.Credential) error {
		region := firstNonEmpty(cred.Region, "us-east-1")
		tokenURL := fmt.Sprintf(oidcTokenURLTemplate, region)
		form := url.Values{
			"grantType":    {"refresh_token"},
			"refreshToken": {cred.RefreshToken},
			"clientId":     {cred.ClientID},
			"clientSecret": {cred.ClientSecret},
		}
		tr, err := httpDo(ctx, client, tokenURL, form)
		if err != nil {
			return err
		}
		applyTokenResponse(cred, tr)
		return nil
	}
}

// GeminiAntigravityProtocol refreshes Gemini Antigravity credentials
// via Google's standard OAuth2 token endpoint — the one protocol that
// is already exactly what the teacher's oauth.Manager.RefreshToken
// does, reused nearly verbatim. When the credential has no ProjectID
// yet, it runs the loadCodeAssist/onboardUser discovery handshake
// with the freshly-refreshed access token and persists the result,
// matching the Gemini Code Assist onboarding flow every request
// needs a project id for.
func GeminiAntigravityProtocol(client *http.Client) Protocol {
	return func(ctx context.Context, cred *credential.Credential) error {
		if cred.RefreshToken == "" {
			return fmt.Errorf("no refresh token available")
		}
		form := url.Values{
			"client_id":     {cred.ClientID},
			"client_secret": {cred.ClientSecret},
			"refresh_token": {cred.RefreshToken},
			"grant_type":    {"refresh_token"},
		}
		tr, err := httpDo(ctx, client, geminiAntigravityURL, form)
		if err != nil {
			return err
		}
		applyTokenResponse(cred, tr)

		if cred.ProjectID == "" {
			projectID, err := DiscoverProject(ctx, client, cred.AccessToken)
			if err != nil {
				return fmt.Errorf("discover project: %w", err)
			}
			cred.ProjectID = projectID
		}
		return nil
	}
}

// WarpProtocol refreshes Warp-issued credentials via Warp's token
// proxy endpoint.
func WarpProtocol(client *http.Client) Protocol {
	return func(ctx context.Context, cred *credential.Credential) error {
		form := url.Values{
			"refresh_token": {cred.RefreshToken},
			"grant_type":    {"refresh_token"},
		}
		tr, err := httpDo(ctx, client, warpRefreshURL, form)
		if err != nil {
			return err
		}
		applyTokenResponse(cred, tr)
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// RegisterDefaultProtocols wires every known authMethod protocol into r.
func RegisterDefaultProtocols(r *Refresher, client *http.Client) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	r.Register("social", SocialProtocol(client))
	r.Register("builder-id", BuilderIDProtocol(client))
	r.Register("idc", IdCProtocol(client))
	r.Register("gemini-antigravity", GeminiAntigravityProtocol(client))
	r.Register("warp", WarpProtocol(client))
}
