package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablepoints/tablepoints-backend/pkg/db/models"
	"github.com/tablepoints/tablepoints-backend/pkg/pagination"
)

// Repository manages persistence for ledger entries. The ledger is append-only:
// there is deliberately no update or delete surface here.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.Transaction) error
	SumAmounts(ctx context.Context, customerID uuid.UUID) (int64, error)
	List(ctx context.Context, customerID uuid.UUID, page pagination.Params) ([]models.Transaction, int64, error)
	ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, limit int) ([]FeedEntry, error)
}

// FeedEntry is a ledger entry enriched with the owning customer's display
// fields for operator UIs.
type FeedEntry struct {
	models.Transaction
	CustomerName  *string `json:"customerName,omitempty"`
	CustomerEmail string  `json:"customerEmail"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.Transaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) SumAmounts(ctx context.Context, customerID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("customer_id = ?", customerID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repository) List(ctx context.Context, customerID uuid.UUID, page pagination.Params) ([]models.Transaction, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("customer_id = ?", customerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.Transaction
	if err := query.
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *repository) ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, limit int) ([]FeedEntry, error) {
	var entries []FeedEntry
	if err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("transactions.*, customers.name AS customer_name, customers.email AS customer_email").
		Joins("JOIN customers ON customers.id = transactions.customer_id").
		Where("transactions.restaurant_id = ?", restaurantID).
		Order("transactions.created_at DESC, transactions.id DESC").
		Limit(limit).
		Scan(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
