package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/crediflow/bankbridge/internal/app/ports"
	"github.com/crediflow/bankbridge/internal/domain/banking"
)

type fakeRegistry struct {
	accounts map[string]ports.ServiceAccount
}

func (f *fakeRegistry) GetServiceAccountBySubscriptionID(_ context.Context, subscriptionID string) (ports.ServiceAccount, error) {
	account, ok := f.accounts[subscriptionID]
	if !ok {
		return ports.ServiceAccount{}, ports.ErrServiceAccountNotFound
	}
	return account, nil
}

type ackCall struct {
	eventID string
	status  ports.AckStatus
}

type fakeAcks struct {
	mu    sync.Mutex
	calls []ackCall
	err   error
}

func (f *fakeAcks) UpdateEvent(_ context.Context, _ ports.ServiceAccount, eventID string, status ports.AckStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ackCall{eventID: eventID, status: status})
	return f.err
}

func (f *fakeAcks) recorded() []ackCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ackCall(nil), f.calls...)
}

type analysisCall struct {
	customerID string
	analysisID string
	patch      ports.AnalysisPatch
}

type fakeLending struct {
	mu sync.Mutex

	authErr           error
	customer          ports.Customer
	customerErr       error
	updateCustomerErr error
	updateAnalysisErr error

	customerPatches []ports.CustomerPatch
	analysisCalls   []analysisCall
}

func (f *fakeLending) Authenticate(_ context.Context, clientID, _ string) (ports.Session, error) {
	if f.authErr != nil {
		return ports.Session{}, f.authErr
	}
	return ports.Session{AccessToken: "session-" + clientID}, nil
}

func (f *fakeLending) GetCustomerByID(_ context.Context, _ ports.Session, customerID string) (ports.Customer, error) {
	if f.customerErr != nil {
		return ports.Customer{}, f.customerErr
	}
	customer := f.customer
	if customer.ID == "" {
		customer.ID = customerID
	}
	return customer, nil
}

func (f *fakeLending) UpdateCustomer(_ context.Context, _ ports.Session, _ string, patch ports.CustomerPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customerPatches = append(f.customerPatches, patch)
	return f.updateCustomerErr
}

func (f *fakeLending) UpdateAnalysis(_ context.Context, _ ports.Session, customerID, analysisID string, patch ports.AnalysisPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analysisCalls = append(f.analysisCalls, analysisCall{customerID: customerID, analysisID: analysisID, patch: patch})
	return f.updateAnalysisErr
}

func (f *fakeLending) recordedAnalysisCalls() []analysisCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]analysisCall(nil), f.analysisCalls...)
}

type fakeAggregator struct {
	mu sync.Mutex

	redirectURL string
	redirectErr error

	user     ports.AggregatorUser
	tokenErr error

	refreshErr       error
	refreshCalls     int
	refreshStatuses  []string
	refreshStatusErr error
	statusCalls      int

	accounts    []banking.SourceAccount
	accountsErr error

	infos    []banking.PersonalInformation
	infosErr error

	pages     [][]banking.SourceTransaction
	pageErrAt int // 1-based call index that fails; 0 means never
	pageCalls int

	deleteRequests []ports.DeleteUserRequest
	deleteErr      error
}

var errNoMorePages = errors.New("no more transaction pages")

func (f *fakeAggregator) GenerateRedirectURL(_ context.Context, _, _, _ string, _ ports.AggregatorConfig) (string, error) {
	return f.redirectURL, f.redirectErr
}

func (f *fakeAggregator) GetAccessToken(_ context.Context, _ string, _ ports.AggregatorConfig) (ports.AggregatorUser, error) {
	if f.tokenErr != nil {
		return ports.AggregatorUser{}, f.tokenErr
	}
	user := f.user
	if user.AccessToken == "" {
		user.AccessToken = "bridge-token"
	}
	if user.UserUUID == "" {
		user.UserUUID = "bridge-uuid"
	}
	return user, nil
}

func (f *fakeAggregator) Refresh(_ context.Context, _, _ string, _ ports.AggregatorConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	return f.refreshErr
}

func (f *fakeAggregator) GetRefreshStatus(_ context.Context, _, _ string, _ ports.AggregatorConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshStatusErr != nil {
		return "", f.refreshStatusErr
	}
	index := f.statusCalls
	f.statusCalls++
	if index >= len(f.refreshStatuses) {
		return "running", nil
	}
	return f.refreshStatuses[index], nil
}

func (f *fakeAggregator) GetAccounts(_ context.Context, _ string, _ ports.AggregatorConfig) ([]banking.SourceAccount, error) {
	return f.accounts, f.accountsErr
}

func (f *fakeAggregator) GetUserPersonalInformation(_ context.Context, _ string, _ ports.AggregatorConfig) ([]banking.PersonalInformation, error) {
	return f.infos, f.infosErr
}

func (f *fakeAggregator) GetTransactions(_ context.Context, _ string, _ time.Time, _ ports.AggregatorConfig) ([]banking.SourceTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls++
	if f.pageErrAt > 0 && f.pageCalls >= f.pageErrAt {
		return nil, errNoMorePages
	}
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeAggregator) DeleteUser(_ context.Context, request ports.DeleteUserRequest, _ ports.AggregatorConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteRequests = append(f.deleteRequests, request)
	return f.deleteErr
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
