package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/crediflow/bankbridge/internal/app/ports"
	"github.com/crediflow/bankbridge/internal/app/services"
	"github.com/crediflow/bankbridge/internal/domain/banking"
)

type stubRegistry struct {
	accounts map[string]ports.ServiceAccount
}

func (s *stubRegistry) GetServiceAccountBySubscriptionID(_ context.Context, subscriptionID string) (ports.ServiceAccount, error) {
	account, ok := s.accounts[subscriptionID]
	if !ok {
		return ports.ServiceAccount{}, ports.ErrServiceAccountNotFound
	}
	return account, nil
}

type stubAcks struct {
	mu       sync.Mutex
	statuses []ports.AckStatus
}

func (s *stubAcks) UpdateEvent(_ context.Context, _ ports.ServiceAccount, _ string, status ports.AckStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *stubAcks) recorded() []ports.AckStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.AckStatus(nil), s.statuses...)
}

type stubLending struct{}

func (stubLending) Authenticate(context.Context, string, string) (ports.Session, error) {
	return ports.Session{AccessToken: "session"}, nil
}

func (stubLending) GetCustomerByID(_ context.Context, _ ports.Session, customerID string) (ports.Customer, error) {
	return ports.Customer{
		ID: customerID,
		AggregationDetails: ports.AggregationDetails{
			Mode:        ports.AggregationModeRedirect,
			CallbackURL: "https://lender.example.com/callback",
		},
	}, nil
}

func (stubLending) UpdateCustomer(context.Context, ports.Session, string, ports.CustomerPatch) error {
	return nil
}

func (stubLending) UpdateAnalysis(context.Context, ports.Session, string, string, ports.AnalysisPatch) error {
	return nil
}

type stubAggregator struct{}

func (stubAggregator) GenerateRedirectURL(context.Context, string, string, string, ports.AggregatorConfig) (string, error) {
	return "https://bridge.example.com/connect/abc", nil
}

func (stubAggregator) GetAccessToken(context.Context, string, ports.AggregatorConfig) (ports.AggregatorUser, error) {
	return ports.AggregatorUser{AccessToken: "tok", UserUUID: "uuid"}, nil
}

func (stubAggregator) Refresh(context.Context, string, string, ports.AggregatorConfig) error {
	return nil
}

func (stubAggregator) GetRefreshStatus(context.Context, string, string, ports.AggregatorConfig) (string, error) {
	return "finished", nil
}

func (stubAggregator) GetAccounts(context.Context, string, ports.AggregatorConfig) ([]banking.SourceAccount, error) {
	return nil, nil
}

func (stubAggregator) GetUserPersonalInformation(context.Context, string, ports.AggregatorConfig) ([]banking.PersonalInformation, error) {
	return nil, nil
}

func (stubAggregator) GetTransactions(context.Context, string, time.Time, ports.AggregatorConfig) ([]banking.SourceTransaction, error) {
	return nil, nil
}

func (stubAggregator) DeleteUser(context.Context, ports.DeleteUserRequest, ports.AggregatorConfig) error {
	return nil
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newHandlerForTest(registry *stubRegistry, acks *stubAcks) (*Handler, *services.Dispatcher) {
	auth := services.NewAuthenticator(registry)
	link := services.NewLinkWorkflow(stubLending{}, stubAggregator{})
	syncWorkflow := services.NewSyncWorkflow(stubLending{}, stubAggregator{}, services.SyncDefaults{}, nil)
	dispatcher := services.NewDispatcher(acks, link, syncWorkflow, nil)
	return NewHandler(auth, dispatcher), dispatcher
}

func serve(t *testing.T, handler *Handler, body string, signature string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/events", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	handler.Handle(c.Response(), c.Request())
	return rec
}

func registeredAccount() ports.ServiceAccount {
	return ports.ServiceAccount{
		ID:            "sa-1",
		ClientID:      "client",
		ClientSecret:  "secret",
		Subscriptions: []ports.Subscription{{ID: "sub-1", SigningSecret: "signing"}},
	}
}

func TestHandleRejectsUnknownSubscription(t *testing.T) {
	handler, _ := newHandlerForTest(&stubRegistry{accounts: map[string]ports.ServiceAccount{}}, &stubAcks{})

	body := `{"id":"evt-1","subscription":{"id":"sub-missing","eventName":"AGGREGATOR_LINK_REQUIRED"},"payload":{"customerId":"cus-1"}}`
	rec := serve(t, handler, body, "sig")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleRejectsInvalidSignature(t *testing.T) {
	acks := &stubAcks{}
	handler, _ := newHandlerForTest(&stubRegistry{accounts: map[string]ports.ServiceAccount{"sub-1": registeredAccount()}}, acks)

	body := `{"id":"evt-1","subscription":{"id":"sub-1","eventName":"AGGREGATOR_LINK_REQUIRED"},"payload":{"customerId":"cus-1"}}`
	rec := serve(t, handler, body, "not-the-signature")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(acks.recorded()) != 0 {
		t.Fatal("expected no acknowledgment for rejected event")
	}
}

func TestHandleIgnoresEventWithoutMatchingSubscription(t *testing.T) {
	account := registeredAccount()
	account.Subscriptions = []ports.Subscription{{ID: "sub-other", SigningSecret: "signing"}}
	acks := &stubAcks{}
	handler, _ := newHandlerForTest(&stubRegistry{accounts: map[string]ports.ServiceAccount{"sub-1": account}}, acks)

	body := `{"id":"evt-1","subscription":{"id":"sub-1","eventName":"AGGREGATOR_LINK_REQUIRED"},"payload":{"customerId":"cus-1"}}`
	rec := serve(t, handler, body, "sig")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ignored") {
		t.Fatalf("expected ignored response, got %q", rec.Body.String())
	}
	if len(acks.recorded()) != 0 {
		t.Fatal("expected no acknowledgment for ignored event")
	}
}

func TestHandleRejectsMalformedEnvelope(t *testing.T) {
	handler, _ := newHandlerForTest(&stubRegistry{accounts: map[string]ports.ServiceAccount{}}, &stubAcks{})

	rec := serve(t, handler, `{"subscription":{}}`, "sig")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleAcceptsValidEventAndProcessesAsync(t *testing.T) {
	acks := &stubAcks{}
	handler, dispatcher := newHandlerForTest(&stubRegistry{accounts: map[string]ports.ServiceAccount{"sub-1": registeredAccount()}}, acks)

	body := `{"id":"evt-1","subscription":{"id":"sub-1","eventName":"AGGREGATOR_LINK_REQUIRED"},"payload":{"customerId":"cus-1"}}`
	rec := serve(t, handler, body, sign([]byte(body), "signing"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	dispatcher.Drain()
	statuses := acks.recorded()
	if len(statuses) != 1 || statuses[0] != ports.AckProcessed {
		t.Fatalf("expected a single PROCESSED acknowledgment, got %v", statuses)
	}
}
