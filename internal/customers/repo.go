package customers

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablepoints/tablepoints-backend/pkg/db/models"
)

// Repository manages customer persistence. Email lookups are case-insensitive
// and soft-deleted rows are invisible to every query here.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, customer *models.Customer) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	FindByEmail(ctx context.Context, email string) (*models.Customer, error)
	ExistsMemberCode(ctx context.Context, restaurantID *uuid.UUID, code string) (bool, error)
	SearchByEmail(ctx context.Context, restaurantID *uuid.UUID, email string) ([]models.Customer, error)
	SearchByMemberCode(ctx context.Context, restaurantID *uuid.UUID, code string) ([]models.Customer, error)
	SearchByPhone(ctx context.Context, restaurantID *uuid.UUID, normalized, raw string) ([]models.Customer, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a customer repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repository) ExistsMemberCode(ctx context.Context, restaurantID *uuid.UUID, code string) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("member_code = ?", code)
	query = scopeToRestaurant(query, restaurantID)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) SearchByEmail(ctx context.Context, restaurantID *uuid.UUID, email string) ([]models.Customer, error) {
	query := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(email))
	return r.collect(scopeToRestaurant(query, restaurantID))
}

func (r *repository) SearchByMemberCode(ctx context.Context, restaurantID *uuid.UUID, code string) ([]models.Customer, error) {
	query := r.db.WithContext(ctx).
		Where("member_code = ?", code)
	return r.collect(scopeToRestaurant(query, restaurantID))
}

func (r *repository) SearchByPhone(ctx context.Context, restaurantID *uuid.UUID, normalized, raw string) ([]models.Customer, error) {
	query := r.db.WithContext(ctx).
		Where("phone_normalized = ? OR phone = ?", normalized, raw)
	return r.collect(scopeToRestaurant(query, restaurantID))
}

func (r *repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Customer{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) collect(query *gorm.DB) ([]models.Customer, error) {
	var matches []models.Customer
	if err := query.
		Order("created_at DESC").
		Find(&matches).Error; err != nil {
		return nil, err
	}
	return matches, nil
}

func scopeToRestaurant(query *gorm.DB, restaurantID *uuid.UUID) *gorm.DB {
	if restaurantID == nil {
		return query
	}
	return query.Where("restaurant_id = ?", *restaurantID)
}
