package services

import (
	"context"
	"fmt"

	"github.com/crediflow/bankbridge/internal/app/ports"
)

// AggregatorName identifies the aggregation provider in customer updates.
const AggregatorName = "BRIDGE"

// LinkWorkflow generates a bank-link redirect URL for a customer and pushes it
// back as a customer update. Single round trip per external call, no polling.
type LinkWorkflow struct {
	lending    ports.LendingClient
	aggregator ports.AggregatorClient
}

// NewLinkWorkflow constructs the link-required workflow.
func NewLinkWorkflow(lending ports.LendingClient, aggregator ports.AggregatorClient) *LinkWorkflow {
	return &LinkWorkflow{lending: lending, aggregator: aggregator}
}

// Run handles one AGGREGATOR_LINK_REQUIRED event for the given tenant.
func (w *LinkWorkflow) Run(ctx context.Context, account ports.ServiceAccount, customerID string) error {
	session, err := w.lending.Authenticate(ctx, account.ClientID, account.ClientSecret)
	if err != nil {
		return fmt.Errorf("authenticate to lending platform: %w", err)
	}

	customer, err := w.lending.GetCustomerByID(ctx, session, customerID)
	if err != nil {
		return fmt.Errorf("fetch customer %s: %w", customerID, err)
	}

	if customer.AggregationDetails.Mode != ports.AggregationModeRedirect {
		return fmt.Errorf("unsupported aggregation mode %q for customer %s", customer.AggregationDetails.Mode, customerID)
	}

	redirectURL, err := w.aggregator.GenerateRedirectURL(ctx, customerID, customer.AggregationDetails.CallbackURL, customer.PersonalDetails.Email, account.Config)
	if err != nil {
		return fmt.Errorf("generate redirect url: %w", err)
	}

	patch := ports.CustomerPatch{AggregationDetails: &ports.AggregationDetailsPatch{
		Aggregator:  AggregatorName,
		RedirectURL: redirectURL,
	}}
	if err := w.lending.UpdateCustomer(ctx, session, customerID, patch); err != nil {
		return fmt.Errorf("push aggregation details: %w", err)
	}
	return nil
}
