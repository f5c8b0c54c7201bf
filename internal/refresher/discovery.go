package refresher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	loadCodeAssistURL = "https://cloudcode-pa.googleapis.com/v1internal:loadCodeAssist"
	onboardUserURL     = "https://cloudcode-pa.googleapis.com/v1internal:onboardUser"
)

// DiscoverProject runs the Gemini Code Assist project-discovery
// handshake: loadCodeAssist returns either an existing cloud project
// (done) or an onboarding operation that must be polled up to 30
// times at a 2s interval, grounded on the retry/backoff style of
// oauth.ProjectDetector.EnableAPI.
func DiscoverProject(ctx context.Context, client *http.Client, accessToken string) (string, error) {
	var resp loadCodeAssistResponse
	if err := postJSON(ctx, client, loadCodeAssistURL, accessToken, map[string]interface{}{
		"metadata": map[string]string{"pluginType": "GEMINI"},
	}, &resp); err != nil {
		return "", fmt.Errorf("loadCodeAssist: %w", err)
	}
	if resp.CloudaicompanionProject != "" {
		return resp.CloudaicompanionProject, nil
	}

	var onboard onboardUserResponse
	for attempt := 0; attempt < 30; attempt++ {
		if err := postJSON(ctx, client, onboardUserURL, accessToken, map[string]interface{}{
			"metadata": map[string]string{"pluginType": "GEMINI"},
		}, &onboard); err != nil {
			return "", fmt.Errorf("onboardUser: %w", err)
		}
		if onboard.Done {
			if onboard.Response.CloudaicompanionProject.ID != "" {
				return onboard.Response.CloudaicompanionProject.ID, nil
			}
			return "", fmt.Errorf("onboardUser completed without a project id")
		}
		log.WithField("attempt", attempt+1).Debug("onboardUser still pending, polling")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return "", fmt.Errorf("onboardUser did not complete after 30 polls")
}

type loadCodeAssistResponse struct {
	CloudaicompanionProject string `json:"cloudaicompanionProject,omitempty"`
}

type onboardUserResponse struct {
	Done     bool `json:"done"`
	Response struct {
		CloudaicompanionProject struct {
			ID string `json:"id"`
		} `json:"cloudaicompanionProject"`
	} `json:"response"`
}

func postJSON(ctx context.Context, client *http.Client, url, accessToken string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
