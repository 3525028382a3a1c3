package banking

import "time"

// SourceAccount is an account as reported by the aggregation provider.
type SourceAccount struct {
	ID       int64
	ItemID   int64
	Name     string
	Balance  float64
	Currency string
	IBAN     string
	Type     string
}

// SourceTransaction is a transaction as reported by the aggregation provider.
type SourceTransaction struct {
	AccountID   int64
	Date        time.Time
	Description string
	Amount      float64
	Currency    string
}

// PersonalInformation is provider-side identity data attached to a bank item.
type PersonalInformation struct {
	ItemID    int64
	FirstName string
	LastName  string
}

// Account is the canonical account model pushed into an analysis.
type Account struct {
	AggregatorID int64
	Name         string
	Balance      float64
	Currency     string
	IBAN         string
	Type         string
	Holder       string
	// Transactions stays nil when no transaction matched the account.
	Transactions []Transaction
}

// Transaction is the canonical transaction model attached to an account.
type Transaction struct {
	Date        time.Time
	Description string
	Amount      float64
	Currency    string
}
