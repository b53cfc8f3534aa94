package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Customer is a loyalty program member. MemberCode is assigned exactly once at
// registration and never reassigned; uniqueness is scoped to the restaurant
// (globally when the customer has no home restaurant).
type Customer struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name            *string        `gorm:"column:name;type:text" json:"name,omitempty"`
	Email           string         `gorm:"column:email;type:text;not null" json:"email"`
	Phone           *string        `gorm:"column:phone;type:text" json:"phone,omitempty"`
	PhoneNormalized *string        `gorm:"column:phone_normalized;type:text;index" json:"-"`
	MemberCode      *string        `gorm:"column:member_code;type:text" json:"memberCode,omitempty"`
	DateOfBirth     *time.Time     `gorm:"column:date_of_birth;type:date" json:"dateOfBirth,omitempty"`
	RestaurantID    *uuid.UUID     `gorm:"column:restaurant_id;type:uuid;index" json:"restaurantId,omitempty"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
	DeletedAt       gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}
