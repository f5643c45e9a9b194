package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jwalitptl/waba-sync/internal/config"
	"github.com/jwalitptl/waba-sync/internal/model"
)

// Client is the read-only Graph API surface used for auto-provisioning:
// account details and the channel-number listing, fetched with the
// system-user credential.
type Client interface {
	GetAccountDetails(ctx context.Context, wabaID string) (*AccountDetails, error)
	ListPhoneNumbers(ctx context.Context, wabaID string) ([]model.PhoneNumber, error)
}

type AccountDetails struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type client struct {
	baseURL    string
	apiVersion string
	token      string
	httpClient *http.Client
}

func NewClient(cfg config.MetaConfig) Client {
	return &client{
		baseURL:    cfg.BaseURL,
		apiVersion: cfg.APIVersion,
		token:      cfg.SystemUserToken,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewClientWithHTTP is used by tests to point the client at a test server.
func NewClientWithHTTP(cfg config.MetaConfig, httpClient *http.Client) Client {
	c := NewClient(cfg).(*client)
	c.httpClient = httpClient
	return c
}

func (c *client) GetAccountDetails(ctx context.Context, wabaID string) (*AccountDetails, error) {
	var out struct {
		AccountDetails
		Error *apiError `json:"error"`
	}
	if err := c.get(ctx, wabaID, url.Values{"fields": {"name"}}, &out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, fmt.Errorf("meta api error getting account details: %s", out.Error.Message)
	}
	return &out.AccountDetails, nil
}

func (c *client) ListPhoneNumbers(ctx context.Context, wabaID string) ([]model.PhoneNumber, error) {
	fields := "verified_name,display_phone_number,id,quality_rating,code_verification_status,platform_type,throughput"
	var out struct {
		Data  []model.PhoneNumber `json:"data"`
		Error *apiError           `json:"error"`
	}
	if err := c.get(ctx, wabaID+"/phone_numbers", url.Values{"fields": {fields}}, &out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, fmt.Errorf("meta api error getting phone numbers: %s", out.Error.Message)
	}
	return out.Data, nil
}

func (c *client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	params.Set("access_token", c.token)
	endpoint := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, c.apiVersion, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("meta api request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode meta api response: %w", err)
	}
	return nil
}
