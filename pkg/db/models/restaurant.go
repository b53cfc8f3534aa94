package models

import (
	"time"

	"github.com/google/uuid"
)

// Restaurant is the tenant scope every ledger entry and member code belongs to.
type Restaurant struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string    `gorm:"column:name;type:text;not null" json:"name"`
	Email     *string   `gorm:"column:email;type:text" json:"email,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
