package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationPermission holds one row per (customer, restaurant) pair. The push
// subscription columns are cleared, not the row deleted, when the provider reports
// the endpoint as permanently gone.
type NotificationPermission struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CustomerID        uuid.UUID `gorm:"column:customer_id;type:uuid;not null;uniqueIndex:idx_notification_permission_pair" json:"customerId"`
	RestaurantID      uuid.UUID `gorm:"column:restaurant_id;type:uuid;not null;uniqueIndex:idx_notification_permission_pair" json:"restaurantId"`
	PermissionGranted bool      `gorm:"column:permission_granted;not null;default:false" json:"permissionGranted"`
	Endpoint          *string   `gorm:"column:endpoint;type:text" json:"-"`
	P256dh            *string   `gorm:"column:p256dh;type:text" json:"-"`
	Auth              *string   `gorm:"column:auth;type:text" json:"-"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// HasSubscription reports whether the row carries a usable push subscription.
func (p NotificationPermission) HasSubscription() bool {
	return p.Endpoint != nil && *p.Endpoint != "" &&
		p.P256dh != nil && *p.P256dh != "" &&
		p.Auth != nil && *p.Auth != ""
}
