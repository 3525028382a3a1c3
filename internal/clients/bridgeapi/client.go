// Package bridgeapi is the HTTP client for the Bridge bank-aggregation API.
package bridgeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crediflow/bankbridge/internal/app/ports"
	"github.com/crediflow/bankbridge/internal/domain/banking"
)

const (
	versionHeader  = "Bridge-Version"
	defaultVersion = "2021-06-01"

	transactionPageLimit = 500
)

// Client talks to the Bridge API. App credentials are service level and can be
// overridden per tenant through the aggregator config.
type Client struct {
	baseURL      string
	version      string
	clientID     string
	clientSecret string
	http         *http.Client
}

var _ ports.AggregatorClient = (*Client)(nil)

// New constructs a Bridge API client.
func New(baseURL, clientID, clientSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		version:      defaultVersion,
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         &http.Client{Timeout: timeout},
	}
}

// GenerateRedirectURL creates a connect-item funnel URL for the customer.
func (c *Client) GenerateRedirectURL(ctx context.Context, customerID, callbackURL, email string, cfg ports.AggregatorConfig) (string, error) {
	body := map[string]string{
		"context":       customerID,
		"callback_url":  callbackURL,
		"prefill_email": email,
	}
	var response struct {
		RedirectURL string `json:"redirect_url"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/connect/items/add/url", "", body, &response, cfg); err != nil {
		return "", err
	}
	return response.RedirectURL, nil
}

// GetAccessToken authenticates the customer against Bridge and returns the
// scoped access token with the Bridge-side user identity.
func (c *Client) GetAccessToken(ctx context.Context, customerID string, cfg ports.AggregatorConfig) (ports.AggregatorUser, error) {
	body := map[string]string{"external_user_id": customerID}
	var response struct {
		AccessToken string `json:"access_token"`
		User        struct {
			UUID string `json:"uuid"`
		} `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/authenticate", "", body, &response, cfg); err != nil {
		return ports.AggregatorUser{}, err
	}
	return ports.AggregatorUser{AccessToken: response.AccessToken, UserUUID: response.User.UUID}, nil
}

// Refresh triggers an aggregator-side re-pull of the user's bank data.
func (c *Client) Refresh(ctx context.Context, userID, accessToken string, cfg ports.AggregatorConfig) error {
	return c.do(ctx, http.MethodPost, "/v2/users/"+url.PathEscape(userID)+"/refresh", accessToken, nil, nil, cfg)
}

// GetRefreshStatus reports the state of the user's in-flight refresh.
func (c *Client) GetRefreshStatus(ctx context.Context, userID, accessToken string, cfg ports.AggregatorConfig) (string, error) {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/users/"+url.PathEscape(userID)+"/refresh/status", accessToken, nil, &response, cfg); err != nil {
		return "", err
	}
	return response.Status, nil
}

// GetAccounts lists the user's aggregated bank accounts.
func (c *Client) GetAccounts(ctx context.Context, accessToken string, cfg ports.AggregatorConfig) ([]banking.SourceAccount, error) {
	var response struct {
		Resources []accountResource `json:"resources"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/accounts", accessToken, nil, &response, cfg); err != nil {
		return nil, err
	}
	accounts := make([]banking.SourceAccount, 0, len(response.Resources))
	for _, resource := range response.Resources {
		accounts = append(accounts, banking.SourceAccount{
			ID:       resource.ID,
			ItemID:   resource.ItemID,
			Name:     resource.Name,
			Balance:  resource.Balance,
			Currency: resource.CurrencyCode,
			IBAN:     resource.IBAN,
			Type:     resource.Type,
		})
	}
	return accounts, nil
}

// GetUserPersonalInformation fetches identity data per bank item.
func (c *Client) GetUserPersonalInformation(ctx context.Context, accessToken string, cfg ports.AggregatorConfig) ([]banking.PersonalInformation, error) {
	var response struct {
		Resources []personalInformationResource `json:"resources"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/users/me/personal-information", accessToken, nil, &response, cfg); err != nil {
		return nil, err
	}
	infos := make([]banking.PersonalInformation, 0, len(response.Resources))
	for _, resource := range response.Resources {
		infos = append(infos, banking.PersonalInformation{
			ItemID:    resource.ItemID,
			FirstName: resource.FirstName,
			LastName:  resource.LastName,
		})
	}
	return infos, nil
}

// GetTransactions fetches one page of transactions updated after since. A zero
// since fetches from the beginning of the user's history.
func (c *Client) GetTransactions(ctx context.Context, accessToken string, since time.Time, cfg ports.AggregatorConfig) ([]banking.SourceTransaction, error) {
	values := url.Values{}
	values.Set("limit", fmt.Sprintf("%d", transactionPageLimit))
	if !since.IsZero() {
		values.Set("since", since.UTC().Format(time.RFC3339))
	}
	var response struct {
		Resources []transactionResource `json:"resources"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/transactions/updated?"+values.Encode(), accessToken, nil, &response, cfg); err != nil {
		return nil, err
	}
	transactions := make([]banking.SourceTransaction, 0, len(response.Resources))
	for _, resource := range response.Resources {
		date, err := time.Parse("2006-01-02", resource.Date)
		if err != nil {
			return nil, fmt.Errorf("parse transaction date %q: %w", resource.Date, err)
		}
		transactions = append(transactions, banking.SourceTransaction{
			AccountID:   resource.AccountID,
			Date:        date,
			Description: resource.CleanDescription,
			Amount:      resource.Amount,
			Currency:    resource.CurrencyCode,
		})
	}
	return transactions, nil
}

// DeleteUser removes the Bridge-side user after a successful synchronization.
func (c *Client) DeleteUser(ctx context.Context, request ports.DeleteUserRequest, cfg ports.AggregatorConfig) error {
	return c.do(ctx, http.MethodDelete, "/v2/users/"+url.PathEscape(request.UserUUID), request.AccessToken, nil, nil, cfg)
}

type accountResource struct {
	ID           int64   `json:"id"`
	ItemID       int64   `json:"item_id"`
	Name         string  `json:"name"`
	Balance      float64 `json:"balance"`
	CurrencyCode string  `json:"currency_code"`
	IBAN         string  `json:"iban"`
	Type         string  `json:"type"`
}

type personalInformationResource struct {
	ItemID    int64  `json:"item_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type transactionResource struct {
	AccountID        int64   `json:"account_id"`
	Date             string  `json:"date"`
	CleanDescription string  `json:"clean_description"`
	Amount           float64 `json:"amount"`
	CurrencyCode     string  `json:"currency_code"`
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, body, out any, cfg ports.AggregatorConfig) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set(versionHeader, c.version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	clientID, clientSecret := c.clientID, c.clientSecret
	if cfg.ClientID != "" {
		clientID, clientSecret = cfg.ClientID, cfg.ClientSecret
	}
	req.Header.Set("Client-Id", clientID)
	req.Header.Set("Client-Secret", clientSecret)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<14))
		return fmt.Errorf("bridge api %s %s: status=%s body=%s", method, path, resp.Status, strings.TrimSpace(string(payload)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode bridge api response: %w", err)
	}
	return nil
}
