// Package domain provides core domain types shared across modules.
package domain

// Currency represents a currency code
type Currency string

const (
	CurrencyBRL Currency = "BRL"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// ValidCurrency reports whether c is one of the supported currency codes.
func ValidCurrency(c Currency) bool {
	switch c {
	case CurrencyBRL, CurrencyUSD, CurrencyEUR:
		return true
	}
	return false
}

// AssetType represents the kind of investment an asset is.
// Stored as text, so new types can be introduced without a migration.
type AssetType string

const (
	// AssetTypeStock represents exchange-listed shares
	AssetTypeStock AssetType = "STOCK"
	// AssetTypeFII represents Brazilian real estate investment funds
	AssetTypeFII AssetType = "FII"
)

// TransactionKind represents the type of a ledger entry
type TransactionKind string

const (
	KindBuy      TransactionKind = "BUY"
	KindSell     TransactionKind = "SELL"
	KindDividend TransactionKind = "DIVIDEND"
)

// ValidTransactionKind reports whether k is a known ledger entry kind.
func ValidTransactionKind(k TransactionKind) bool {
	switch k {
	case KindBuy, KindSell, KindDividend:
		return true
	}
	return false
}

// Ownable is implemented by entities that belong to a single user.
// Services check ownership through this interface before touching any data.
type Ownable interface {
	OwnedBy(userID int64) bool
}
