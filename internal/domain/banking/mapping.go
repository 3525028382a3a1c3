package banking

import (
	"sort"
	"strings"
	"time"
)

// MapAccounts converts provider accounts to the canonical model. Personal
// information is an optional enrichment: when an entry matches an account's
// item id its name becomes the account holder, otherwise the holder stays
// empty.
func MapAccounts(src []SourceAccount, infos []PersonalInformation) []Account {
	holders := make(map[int64]string, len(infos))
	for _, info := range infos {
		name := strings.TrimSpace(strings.TrimSpace(info.FirstName) + " " + strings.TrimSpace(info.LastName))
		if name != "" {
			holders[info.ItemID] = name
		}
	}

	accounts := make([]Account, 0, len(src))
	for _, account := range src {
		accounts = append(accounts, Account{
			AggregatorID: account.ID,
			Name:         account.Name,
			Balance:      account.Balance,
			Currency:     account.Currency,
			IBAN:         account.IBAN,
			Type:         account.Type,
			Holder:       holders[account.ItemID],
		})
	}
	return accounts
}

// SortTransactions orders transactions by date ascending, in place.
func SortTransactions(transactions []SourceTransaction) {
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].Date.Before(transactions[j].Date)
	})
}

// EarliestDate returns the date of the earliest held transaction. The second
// return is false when no transactions are held.
func EarliestDate(transactions []SourceTransaction) (time.Time, bool) {
	if len(transactions) == 0 {
		return time.Time{}, false
	}
	earliest := transactions[0].Date
	for _, transaction := range transactions[1:] {
		if transaction.Date.Before(earliest) {
			earliest = transaction.Date
		}
	}
	return earliest, true
}

// AttachTransactions partitions the date-sorted transaction set per account by
// aggregator account id and attaches each non-empty partition. Accounts that
// match nothing keep a nil transaction list.
func AttachTransactions(accounts []Account, transactions []SourceTransaction) {
	byAccount := make(map[int64][]Transaction)
	for _, transaction := range transactions {
		byAccount[transaction.AccountID] = append(byAccount[transaction.AccountID], Transaction{
			Date:        transaction.Date,
			Description: transaction.Description,
			Amount:      transaction.Amount,
			Currency:    transaction.Currency,
		})
	}
	for i := range accounts {
		if matched := byAccount[accounts[i].AggregatorID]; len(matched) > 0 {
			accounts[i].Transactions = matched
		}
	}
}
