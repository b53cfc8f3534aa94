package notifications

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tablepoints/tablepoints-backend/pkg/db/models"
)

// Repository manages notification permission rows, one per
// (customer, restaurant) pair.
type Repository interface {
	Upsert(ctx context.Context, permission *models.NotificationPermission) error
	Find(ctx context.Context, customerID, restaurantID uuid.UUID) (*models.NotificationPermission, error)
	ListGrantees(ctx context.Context, restaurantID uuid.UUID) ([]models.NotificationPermission, error)
	ClearSubscription(ctx context.Context, customerID, restaurantID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a notification permission repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Upsert inserts or refreshes the pair row. The pair constraint keeps repeat
// grants idempotent; a re-grant overwrites the stored subscription.
func (r *repository) Upsert(ctx context.Context, permission *models.NotificationPermission) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "customer_id"}, {Name: "restaurant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"permission_granted", "endpoint", "p256dh", "auth", "updated_at",
			}),
		}).
		Create(permission).Error
}

func (r *repository) Find(ctx context.Context, customerID, restaurantID uuid.UUID) (*models.NotificationPermission, error) {
	var permission models.NotificationPermission
	if err := r.db.WithContext(ctx).
		Where("customer_id = ? AND restaurant_id = ?", customerID, restaurantID).
		First(&permission).Error; err != nil {
		return nil, err
	}
	return &permission, nil
}

func (r *repository) ListGrantees(ctx context.Context, restaurantID uuid.UUID) ([]models.NotificationPermission, error) {
	var grantees []models.NotificationPermission
	if err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND permission_granted = ?", restaurantID, true).
		Find(&grantees).Error; err != nil {
		return nil, err
	}
	return grantees, nil
}

// ClearSubscription nulls the subscription columns but keeps the row, so the
// grant survives a dead endpoint and a later re-subscribe reuses the pair.
func (r *repository) ClearSubscription(ctx context.Context, customerID, restaurantID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.NotificationPermission{}).
		Where("customer_id = ? AND restaurant_id = ?", customerID, restaurantID).
		Updates(map[string]any{
			"endpoint": nil,
			"p256dh":   nil,
			"auth":     nil,
		}).Error
}
