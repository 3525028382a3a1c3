package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crediflow/bankbridge/internal/app/ports"
	"github.com/crediflow/bankbridge/internal/domain/banking"
)

const (
	refreshStatusFinished = "finished"

	internalErrorCode    = "INTERNAL_ERROR"
	internalErrorMessage = "Bank data synchronization failed due to an internal error."
)

// SyncDefaults are the polling parameters used when a tenant's configuration
// leaves them unset.
type SyncDefaults struct {
	NbOfMonths  int
	Timeout     time.Duration
	WaitingTime time.Duration
}

// SyncWorkflow performs an end-to-end bank-data pull for one customer and
// pushes the result into the customer's analysis. All steps of one run are
// strictly sequential; concurrent runs for the same (customer, analysis) pair
// are serialized by a keyed mutex.
type SyncWorkflow struct {
	lending    ports.LendingClient
	aggregator ports.AggregatorClient
	defaults   SyncDefaults
	log        *slog.Logger

	inflight keyedMutex

	// test seams, defaulting to the real clock
	now   func() time.Time
	sleep func(time.Duration)
}

// NewSyncWorkflow constructs the synchronization orchestrator.
func NewSyncWorkflow(lending ports.LendingClient, aggregator ports.AggregatorClient, defaults SyncDefaults, log *slog.Logger) *SyncWorkflow {
	if log == nil {
		log = slog.Default()
	}
	if defaults.NbOfMonths <= 0 {
		defaults.NbOfMonths = 3
	}
	if defaults.Timeout <= 0 {
		defaults.Timeout = 5 * time.Minute
	}
	if defaults.WaitingTime <= 0 {
		defaults.WaitingTime = 4 * time.Second
	}
	return &SyncWorkflow{lending: lending, aggregator: aggregator, defaults: defaults, log: log}
}

// Run handles one BANK_DETAILS_REQUIRED event for the given tenant. On a
// failure before the accounts reach the analysis it pushes a terminal ERROR
// analysis status best-effort and returns the original error so the
// dispatcher also acknowledges ERROR.
func (w *SyncWorkflow) Run(ctx context.Context, account ports.ServiceAccount, customerID, analysisID string) error {
	unlock := w.inflight.lock(customerID + "/" + analysisID)
	defer unlock()

	var session ports.Session
	delivered, err := w.synchronize(ctx, &session, account, customerID, analysisID)
	if err == nil {
		return nil
	}
	if delivered {
		// The accounts patch already landed; only cleanup failed afterwards.
		// The event still acknowledges ERROR, but the delivered analysis must
		// not be overwritten with an ERROR status.
		return err
	}

	patch := ports.AnalysisPatch{
		Status: ports.AnalysisStatusError,
		Error:  &ports.AnalysisError{Code: internalErrorCode, Message: internalErrorMessage},
	}
	if updateErr := w.lending.UpdateAnalysis(ctx, session, customerID, analysisID, patch); updateErr != nil {
		w.log.Error("failed to push error analysis status", "customer_id", customerID, "analysis_id", analysisID, "error", updateErr)
	}
	return err
}

// synchronize runs the sync steps in order. delivered reports whether the
// accounts patch reached the analysis before the returned error occurred.
func (w *SyncWorkflow) synchronize(ctx context.Context, session *ports.Session, account ports.ServiceAccount, customerID, analysisID string) (delivered bool, err error) {
	cfg := w.normalize(account.Config)

	authenticated, err := w.lending.Authenticate(ctx, account.ClientID, account.ClientSecret)
	if err != nil {
		return false, fmt.Errorf("authenticate to lending platform: %w", err)
	}
	*session = authenticated

	customer, err := w.lending.GetCustomerByID(ctx, authenticated, customerID)
	if err != nil {
		return false, fmt.Errorf("fetch customer %s: %w", customerID, err)
	}

	user, err := w.aggregator.GetAccessToken(ctx, customerID, cfg)
	if err != nil {
		return false, fmt.Errorf("obtain aggregator access token: %w", err)
	}

	if linkedUserID := customer.AggregationDetails.UserID; linkedUserID != "" {
		if err := w.aggregator.Refresh(ctx, linkedUserID, user.AccessToken, cfg); err != nil {
			return false, fmt.Errorf("trigger refresh: %w", err)
		}
		if err := w.awaitRefresh(ctx, linkedUserID, user.AccessToken, cfg); err != nil {
			return false, fmt.Errorf("await refresh: %w", err)
		}
	}

	sourceAccounts, err := w.aggregator.GetAccounts(ctx, user.AccessToken, cfg)
	if err != nil {
		return false, fmt.Errorf("fetch accounts: %w", err)
	}

	// Personal information is an optional enrichment: its failure is logged
	// and accounts proceed without it.
	infos, err := w.aggregator.GetUserPersonalInformation(ctx, user.AccessToken, cfg)
	if err != nil {
		w.log.Warn("personal information fetch failed, continuing without it", "customer_id", customerID, "error", err)
		infos = nil
	}

	accounts := banking.MapAccounts(sourceAccounts, infos)

	transactions, err := w.collectTransactions(ctx, user.AccessToken, cfg)
	if err != nil {
		return false, fmt.Errorf("fetch transactions: %w", err)
	}
	banking.AttachTransactions(accounts, transactions)

	if err := w.lending.UpdateAnalysis(ctx, authenticated, customerID, analysisID, ports.AnalysisPatch{Accounts: accounts}); err != nil {
		return false, fmt.Errorf("push analysis accounts: %w", err)
	}

	if err := w.aggregator.DeleteUser(ctx, ports.DeleteUserRequest{
		AggregatorUserID: customer.AggregationDetails.UserID,
		UserUUID:         user.UserUUID,
		AccessToken:      user.AccessToken,
	}, cfg); err != nil {
		return true, fmt.Errorf("delete aggregator user: %w", err)
	}
	return true, nil
}

// awaitRefresh polls the refresh status until it reports "finished" or the
// configured deadline passes. A timed-out refresh is not distinguished from a
// finished one downstream.
func (w *SyncWorkflow) awaitRefresh(ctx context.Context, userID, accessToken string, cfg ports.AggregatorConfig) error {
	var status string
	return w.newPoller(cfg).Run(ctx, func(ctx context.Context) error {
		observed, err := w.aggregator.GetRefreshStatus(ctx, userID, accessToken, cfg)
		if err != nil {
			return err
		}
		status = observed
		return nil
	}, func() bool {
		return status != refreshStatusFinished
	})
}

// collectTransactions pages through the aggregator's transactions until the
// accumulated history reaches the configured number of months or the deadline
// passes. The accumulated set stays sorted ascending by date after every page.
func (w *SyncWorkflow) collectTransactions(ctx context.Context, accessToken string, cfg ports.AggregatorConfig) ([]banking.SourceTransaction, error) {
	horizon := w.clock()().AddDate(0, -cfg.NbOfMonths, 0)

	var held []banking.SourceTransaction
	var since time.Time
	err := w.newPoller(cfg).Run(ctx, func(ctx context.Context) error {
		page, err := w.aggregator.GetTransactions(ctx, accessToken, since, cfg)
		if err != nil {
			return err
		}
		held = append(held, page...)
		banking.SortTransactions(held)
		if n := len(held); n > 0 {
			since = held[n-1].Date
		}
		return nil
	}, func() bool {
		earliest, ok := banking.EarliestDate(held)
		if !ok {
			// Empty history ends the loop rather than waiting out the deadline.
			return false
		}
		return earliest.After(horizon)
	})
	if err != nil {
		return nil, err
	}
	return held, nil
}

func (w *SyncWorkflow) normalize(cfg ports.AggregatorConfig) ports.AggregatorConfig {
	if cfg.NbOfMonths <= 0 {
		cfg.NbOfMonths = w.defaults.NbOfMonths
	}
	if cfg.SynchronizationTimeout <= 0 {
		cfg.SynchronizationTimeout = w.defaults.Timeout
	}
	if cfg.SynchronizationWaitingTime <= 0 {
		cfg.SynchronizationWaitingTime = w.defaults.WaitingTime
	}
	return cfg
}

func (w *SyncWorkflow) newPoller(cfg ports.AggregatorConfig) *Poller {
	poller := NewPoller(cfg.SynchronizationWaitingTime, cfg.SynchronizationTimeout)
	poller.now = w.now
	poller.sleep = w.sleep
	return poller
}

func (w *SyncWorkflow) clock() func() time.Time {
	if w.now != nil {
		return w.now
	}
	return time.Now
}
