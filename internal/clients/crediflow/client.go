// Package crediflow is the HTTP client for the lending platform's core API:
// authentication, customers, analyses and event acknowledgments.
package crediflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crediflow/bankbridge/internal/app/ports"
	"github.com/crediflow/bankbridge/internal/domain/banking"
)

// Client talks to the Crediflow core API. It holds no authenticated state:
// sessions are explicit values returned by Authenticate and passed to every
// downstream call.
type Client struct {
	baseURL string
	http    *http.Client
}

var (
	_ ports.LendingClient     = (*Client)(nil)
	_ ports.EventAcknowledger = (*Client)(nil)
)

// New constructs a lending-platform client.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Authenticate exchanges tenant credentials for an API session.
func (c *Client) Authenticate(ctx context.Context, clientID, clientSecret string) (ports.Session, error) {
	body := map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     clientID,
		"client_secret": clientSecret,
	}
	var response struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(ctx, http.MethodPost, "/oauth/token", ports.Session{}, body, &response); err != nil {
		return ports.Session{}, err
	}
	return ports.Session{AccessToken: response.AccessToken}, nil
}

// GetCustomerByID fetches a customer record.
func (c *Client) GetCustomerByID(ctx context.Context, session ports.Session, customerID string) (ports.Customer, error) {
	var response customerResource
	if err := c.do(ctx, http.MethodGet, "/v1/customers/"+url.PathEscape(customerID), session, nil, &response); err != nil {
		return ports.Customer{}, err
	}
	return ports.Customer{
		ID: response.ID,
		AggregationDetails: ports.AggregationDetails{
			Mode:        ports.AggregationMode(response.AggregationDetails.Mode),
			UserID:      response.AggregationDetails.UserID,
			CallbackURL: response.AggregationDetails.CallbackURL,
		},
		PersonalDetails: ports.PersonalDetails{
			FirstName: response.PersonalDetails.FirstName,
			LastName:  response.PersonalDetails.LastName,
			Email:     response.PersonalDetails.Email,
		},
	}, nil
}

// UpdateCustomer applies a partial customer update.
func (c *Client) UpdateCustomer(ctx context.Context, session ports.Session, customerID string, patch ports.CustomerPatch) error {
	body := map[string]any{}
	if patch.AggregationDetails != nil {
		body["aggregationDetails"] = map[string]string{
			"aggregator":  patch.AggregationDetails.Aggregator,
			"redirectUrl": patch.AggregationDetails.RedirectURL,
		}
	}
	return c.do(ctx, http.MethodPatch, "/v1/customers/"+url.PathEscape(customerID), session, body, nil)
}

// UpdateAnalysis applies a partial analysis update.
func (c *Client) UpdateAnalysis(ctx context.Context, session ports.Session, customerID, analysisID string, patch ports.AnalysisPatch) error {
	body := map[string]any{}
	if patch.Accounts != nil {
		body["accounts"] = mapAccountsPayload(patch.Accounts)
	}
	if patch.Status != "" {
		body["status"] = string(patch.Status)
	}
	if patch.Error != nil {
		body["error"] = map[string]string{"code": patch.Error.Code, "message": patch.Error.Message}
	}
	path := "/v1/customers/" + url.PathEscape(customerID) + "/analyses/" + url.PathEscape(analysisID)
	return c.do(ctx, http.MethodPatch, path, session, body, nil)
}

// UpdateEvent reports a terminal acknowledgment status for an inbound event.
// It authenticates with the tenant's credentials; an event already in the
// reported state is a no-op rather than an error.
func (c *Client) UpdateEvent(ctx context.Context, account ports.ServiceAccount, eventID string, status ports.AckStatus) error {
	session, err := c.Authenticate(ctx, account.ClientID, account.ClientSecret)
	if err != nil {
		return fmt.Errorf("authenticate for acknowledgment: %w", err)
	}
	body := map[string]string{"status": string(status)}
	err = c.do(ctx, http.MethodPatch, "/v1/events/"+url.PathEscape(eventID), session, body, nil)
	if isConflict(err) {
		return nil
	}
	return err
}

type customerResource struct {
	ID                 string `json:"id"`
	AggregationDetails struct {
		Mode        string `json:"mode"`
		UserID      string `json:"userId"`
		CallbackURL string `json:"callbackUrl"`
	} `json:"aggregationDetails"`
	PersonalDetails struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
	} `json:"personalDetails"`
}

type accountPayload struct {
	Name         string               `json:"name"`
	Balance      float64              `json:"balance"`
	Currency     string               `json:"currency"`
	IBAN         string               `json:"iban,omitempty"`
	Type         string               `json:"type,omitempty"`
	Holder       string               `json:"holder,omitempty"`
	Transactions []transactionPayload `json:"transactions,omitempty"`
}

type transactionPayload struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
}

func mapAccountsPayload(accounts []banking.Account) []accountPayload {
	payload := make([]accountPayload, 0, len(accounts))
	for _, account := range accounts {
		mapped := accountPayload{
			Name:     account.Name,
			Balance:  account.Balance,
			Currency: account.Currency,
			IBAN:     account.IBAN,
			Type:     account.Type,
			Holder:   account.Holder,
		}
		for _, transaction := range account.Transactions {
			mapped.Transactions = append(mapped.Transactions, transactionPayload{
				Date:        transaction.Date.Format("2006-01-02"),
				Description: transaction.Description,
				Amount:      transaction.Amount,
				Currency:    transaction.Currency,
			})
		}
		payload = append(payload, mapped)
	}
	return payload
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("crediflow api: status=%d body=%s", e.status, e.body)
}

func isConflict(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusConflict
}

func (c *Client) do(ctx context.Context, method, path string, session ports.Session, body, out any) error {
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
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<14))
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(payload))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode crediflow api response: %w", err)
	}
	return nil
}
