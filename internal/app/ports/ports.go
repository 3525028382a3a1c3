package ports

import (
	"context"
	"errors"
	"time"

	"github.com/crediflow/bankbridge/internal/domain/banking"
)

// ErrServiceAccountNotFound indicates no service account is registered for a
// subscription id.
var ErrServiceAccountNotFound = errors.New("service account not found")

// Subscription is a registered webhook channel with its signing secret.
type Subscription struct {
	ID            string
	SigningSecret string
}

// AggregatorConfig carries per-tenant aggregation settings. Zero values mean
// "use the service defaults".
type AggregatorConfig struct {
	NbOfMonths                 int
	SynchronizationTimeout     time.Duration
	SynchronizationWaitingTime time.Duration

	// Optional per-tenant override of the service-level aggregator app
	// credentials.
	ClientID     string
	ClientSecret string
}

// ServiceAccount is a tenant-level credential and subscription bundle.
type ServiceAccount struct {
	ID            string
	Name          string
	ClientID      string
	ClientSecret  string
	Config        AggregatorConfig
	Subscriptions []Subscription
}

// SubscriptionByID finds the subscription with the given id on the account.
func (a ServiceAccount) SubscriptionByID(id string) (Subscription, bool) {
	for _, subscription := range a.Subscriptions {
		if subscription.ID == id {
			return subscription, true
		}
	}
	return Subscription{}, false
}

// ServiceAccountRegistry resolves tenants from inbound subscription ids.
type ServiceAccountRegistry interface {
	GetServiceAccountBySubscriptionID(ctx context.Context, subscriptionID string) (ServiceAccount, error)
}

// AckStatus is a terminal event acknowledgment status.
type AckStatus string

const (
	AckProcessed AckStatus = "PROCESSED"
	AckError     AckStatus = "ERROR"
	AckFailed    AckStatus = "FAILED"
)

// EventAcknowledger reports the terminal processing status of an inbound event
// back to the event source.
type EventAcknowledger interface {
	UpdateEvent(ctx context.Context, account ServiceAccount, eventID string, status AckStatus) error
}

// Session is an authenticated lending-platform credential, threaded explicitly
// through every downstream call of one workflow invocation.
type Session struct {
	AccessToken string
}

// AggregationMode selects how a customer links their bank.
type AggregationMode string

// AggregationModeRedirect is the only supported linking mode.
const AggregationModeRedirect AggregationMode = "REDIRECT"

// AggregationDetails is the customer's bank-linking state.
type AggregationDetails struct {
	Mode        AggregationMode
	UserID      string
	CallbackURL string
}

// PersonalDetails is the customer identity subset the bridge needs.
type PersonalDetails struct {
	FirstName string
	LastName  string
	Email     string
}

// Customer is a lending-platform customer record.
type Customer struct {
	ID                 string
	AggregationDetails AggregationDetails
	PersonalDetails    PersonalDetails
}

// AggregationDetailsPatch updates a customer's bank-linking details.
type AggregationDetailsPatch struct {
	Aggregator  string
	RedirectURL string
}

// CustomerPatch is a partial customer update.
type CustomerPatch struct {
	AggregationDetails *AggregationDetailsPatch
}

// AnalysisStatus is the lifecycle status pushed onto an analysis.
type AnalysisStatus string

// AnalysisStatusError marks an analysis as failed.
const AnalysisStatusError AnalysisStatus = "ERROR"

// AnalysisError describes a terminal analysis failure.
type AnalysisError struct {
	Code    string
	Message string
}

// AnalysisPatch is a partial analysis update.
type AnalysisPatch struct {
	Accounts []banking.Account
	Status   AnalysisStatus
	Error    *AnalysisError
}

// LendingClient talks to the lending platform's customer and analysis
// services. Every call after Authenticate takes the session explicitly; the
// client holds no per-tenant authenticated state.
type LendingClient interface {
	Authenticate(ctx context.Context, clientID, clientSecret string) (Session, error)
	GetCustomerByID(ctx context.Context, session Session, customerID string) (Customer, error)
	UpdateCustomer(ctx context.Context, session Session, customerID string, patch CustomerPatch) error
	UpdateAnalysis(ctx context.Context, session Session, customerID, analysisID string, patch AnalysisPatch) error
}

// AggregatorUser is an aggregator-side access token and user identity.
type AggregatorUser struct {
	AccessToken string
	UserUUID    string
}

// DeleteUserRequest identifies the aggregator-side user to remove after a
// successful synchronization.
type DeleteUserRequest struct {
	AggregatorUserID string
	UserUUID         string
	AccessToken      string
}

// AggregatorClient talks to the bank-aggregation provider.
type AggregatorClient interface {
	GenerateRedirectURL(ctx context.Context, customerID, callbackURL, email string, cfg AggregatorConfig) (string, error)
	GetAccessToken(ctx context.Context, customerID string, cfg AggregatorConfig) (AggregatorUser, error)
	Refresh(ctx context.Context, userID, accessToken string, cfg AggregatorConfig) error
	GetRefreshStatus(ctx context.Context, userID, accessToken string, cfg AggregatorConfig) (string, error)
	GetAccounts(ctx context.Context, accessToken string, cfg AggregatorConfig) ([]banking.SourceAccount, error)
	GetUserPersonalInformation(ctx context.Context, accessToken string, cfg AggregatorConfig) ([]banking.PersonalInformation, error)
	GetTransactions(ctx context.Context, accessToken string, since time.Time, cfg AggregatorConfig) ([]banking.SourceTransaction, error)
	DeleteUser(ctx context.Context, request DeleteUserRequest, cfg AggregatorConfig) error
}
