package enums

import "fmt"

// TransactionType maps to the transaction_type_enum enum in Postgres.
type TransactionType string

const (
	TransactionTypeRegistration TransactionType = "REGISTRATION"
	TransactionTypeEarned       TransactionType = "EARNED"
	TransactionTypeRedeemed     TransactionType = "REDEEMED"
	TransactionTypeExpired      TransactionType = "EXPIRED"
	TransactionTypeAdjusted     TransactionType = "ADJUSTED"
	TransactionTypeRefunded     TransactionType = "REFUNDED"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeRegistration,
	TransactionTypeEarned,
	TransactionTypeRedeemed,
	TransactionTypeExpired,
	TransactionTypeAdjusted,
	TransactionTypeRefunded,
}

// TransactionTypes returns the canonical enum values in declaration order.
func TransactionTypes() []TransactionType {
	out := make([]TransactionType, len(validTransactionTypes))
	copy(out, validTransactionTypes)
	return out
}

// IsValid reports whether the value matches the canonical transaction enum.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsCredit reports whether the type only admits non-negative amounts.
// ADJUSTED is treated as a debit: the stored validation has always rejected
// positive adjustments, so positive corrections go through REFUNDED.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionTypeRegistration, TransactionTypeEarned, TransactionTypeRefunded:
		return true
	}
	return false
}

// IsDebit reports whether the type only admits non-positive amounts.
func (t TransactionType) IsDebit() bool {
	switch t {
	case TransactionTypeRedeemed, TransactionTypeExpired, TransactionTypeAdjusted:
		return true
	}
	return false
}

// ParseTransactionType converts raw input into TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
