package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kestrel-oss/credrelay/internal/credential"
)

const kiroUsageLimitsURLTemplate = "https://codewhisperer.%s.amazonaws.com/getUsageLimits"

// KiroProvider calls AWS Q/CodeWhisperer's getUsageLimits endpoint
// (spec.md line 156), region-templated the same way
// internal/refresher/protocols.go's SocialProtocol templates Kiro's
// refresh endpoint.
type KiroProvider struct {
	cli *http.Client
}

// NewKiroProvider builds a Provider bound to client.
func NewKiroProvider(client *http.Client) *KiroProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &KiroProvider{cli: client}
}

type kiroUsageLimitsResponse struct {
	UsageBreakdownList []struct {
		CurrentUsage float64 `json:"currentUsage"`
		UsageLimit   float64 `json:"usageLimit"`
	} `json:"usageBreakdownList"`
}

func (p *KiroProvider) GetUsageLimits(ctx context.Context, cred *credential.Credential) (Usage, error) {
	region := cred.Region
	if region == "" {
		region = "us-east-1"
	}
	url := fmt.Sprintf(kiroUsageLimitsURLTemplate, region)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return Usage{}, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.cli.Do(req)
	if err != nil {
		return Usage{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Usage{}, fmt.Errorf("getUsageLimits: status %d", resp.StatusCode)
	}

	var out kiroUsageLimitsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Usage{}, fmt.Errorf("decode getUsageLimits response: %w", err)
	}
	var used, limit float64
	for _, b := range out.UsageBreakdownList {
		used += b.CurrentUsage
		limit += b.UsageLimit
	}
	return Usage{Used: used, Limit: limit}, nil
}
