package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tablepoints/tablepoints-backend/pkg/enums"
)

// Transaction records an immutable point change for a customer. The ledger is
// append-only: corrections are modeled as new offsetting entries, never edits.
// BalanceAfter snapshots the running total immediately after this entry.
type Transaction struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CustomerID   uuid.UUID             `gorm:"column:customer_id;type:uuid;not null;index" json:"customerId"`
	RestaurantID uuid.UUID             `gorm:"column:restaurant_id;type:uuid;not null;index" json:"restaurantId"`
	Type         enums.TransactionType `gorm:"column:type;type:transaction_type_enum;not null" json:"type"`
	Amount       int64                 `gorm:"column:amount;not null" json:"amount"`
	Description  string                `gorm:"column:description;type:text;not null" json:"description"`
	BalanceAfter int64                 `gorm:"column:balance_after;not null" json:"balanceAfter"`
	Metadata     json.RawMessage       `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedBy    *string               `gorm:"column:created_by;type:text" json:"createdBy,omitempty"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
