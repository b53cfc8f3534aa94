package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablepoints/tablepoints-backend/pkg/db/models"
	"github.com/tablepoints/tablepoints-backend/pkg/enums"
	pkgerrors "github.com/tablepoints/tablepoints-backend/pkg/errors"
	"github.com/tablepoints/tablepoints-backend/pkg/metrics"
	"github.com/tablepoints/tablepoints-backend/pkg/pagination"
)

// EventTransactionCreated is the fan-out event kind for committed entries.
const EventTransactionCreated = "transaction.created"

// Event is the payload broadcast to restaurant-scoped subscribers after a
// ledger entry commits.
type Event struct {
	Kind  string             `json:"kind"`
	Entry models.Transaction `json:"entry"`
}

// Publisher delivers committed ledger events to restaurant-scoped observers.
// Best-effort: a publish failure never affects the committed entry.
type Publisher interface {
	Publish(restaurantID uuid.UUID, event Event)
}

type customerDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
}

// Service is the ledger's balance engine and posting lifecycle.
type Service interface {
	CurrentBalance(ctx context.Context, customerID uuid.UUID) (int64, error)
	ValidateProposedEntry(txType enums.TransactionType, amount int64) error
	Post(ctx context.Context, input PostInput) (*PostResult, error)
	History(ctx context.Context, customerID uuid.UUID, page pagination.Params) (*HistoryResult, error)
	RestaurantFeed(ctx context.Context, restaurantID uuid.UUID, limit int) ([]FeedEntry, error)
	RecordRegistration(ctx context.Context, tx *gorm.DB, customer *models.Customer, bonus int64) (*models.Transaction, error)
}

type service struct {
	repo      Repository
	customers customerDirectory
	publisher Publisher
	metrics   *metrics.LoyaltyMetrics
	locks     *customerLocks
}

// NewService wires the ledger service. Publisher and metrics may be nil.
func NewService(repo Repository, customers customerDirectory, publisher Publisher, m *metrics.LoyaltyMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if customers == nil {
		return nil, fmt.Errorf("customer directory required")
	}
	return &service{
		repo:      repo,
		customers: customers,
		publisher: publisher,
		metrics:   m,
		locks:     newCustomerLocks(),
	}, nil
}

// PostInput captures an operator-initiated ledger posting.
type PostInput struct {
	CustomerID   uuid.UUID             `json:"customerId"`
	RestaurantID uuid.UUID             `json:"restaurantId"`
	Type         enums.TransactionType `json:"type"`
	Amount       int64                 `json:"amount"`
	Description  string                `json:"description"`
	Metadata     json.RawMessage       `json:"metadata,omitempty"`
	CreatedBy    *string               `json:"createdBy,omitempty"`
}

// PostResult is the committed entry plus the customer's resulting balance.
type PostResult struct {
	Entry   models.Transaction `json:"entry"`
	Balance int64              `json:"balance"`
}

// HistoryResult pages a customer's ledger. Balance is always the current
// total, not the page's subtotal.
type HistoryResult struct {
	Entries  []models.Transaction `json:"entries"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
	Balance  int64                `json:"balance"`
}

func (s *service) CurrentBalance(ctx context.Context, customerID uuid.UUID) (int64, error) {
	if customerID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if _, err := s.customers.FindByID(ctx, customerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	balance, err := s.repo.SumAmounts(ctx, customerID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger amounts")
	}
	return balance, nil
}

// ValidateProposedEntry enforces the sign-by-type rules. Zero is accepted for
// every type; it is used for audit-only registrations with no bonus.
func (s *service) ValidateProposedEntry(txType enums.TransactionType, amount int64) error {
	if !txType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", txType))
	}
	if txType.IsCredit() && amount < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s transactions must have a positive amount", txType))
	}
	if txType.IsDebit() && amount > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s transactions must have a negative amount", txType))
	}
	return nil
}

func (s *service) Post(ctx context.Context, input PostInput) (*PostResult, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if input.RestaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id required")
	}
	if input.Description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description required")
	}

	if _, err := s.customers.FindByID(ctx, input.CustomerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}

	if err := s.ValidateProposedEntry(input.Type, input.Amount); err != nil {
		return nil, err
	}

	started := time.Now()

	// Serialize the read-balance-then-insert window per customer so the
	// balanceAfter snapshot stays a strict running sum.
	unlock := s.locks.Lock(input.CustomerID)
	defer unlock()

	balance, err := s.repo.SumAmounts(ctx, input.CustomerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger amounts")
	}

	entry := models.Transaction{
		CustomerID:   input.CustomerID,
		RestaurantID: input.RestaurantID,
		Type:         input.Type,
		Amount:       input.Amount,
		Description:  input.Description,
		BalanceAfter: balance + input.Amount,
		Metadata:     input.Metadata,
		CreatedBy:    input.CreatedBy,
	}

	if err := s.repo.Create(ctx, &entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert ledger entry")
	}

	s.metrics.IncTransaction(string(input.Type))
	s.metrics.ObservePosting(string(input.Type), time.Since(started))

	if s.publisher != nil {
		s.publisher.Publish(entry.RestaurantID, Event{Kind: EventTransactionCreated, Entry: entry})
	}

	return &PostResult{Entry: entry, Balance: entry.BalanceAfter}, nil
}

func (s *service) History(ctx context.Context, customerID uuid.UUID, page pagination.Params) (*HistoryResult, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if _, err := s.customers.FindByID(ctx, customerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}

	normalized := pagination.Normalize(page)
	entries, total, err := s.repo.List(ctx, customerID, normalized)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}

	balance, err := s.repo.SumAmounts(ctx, customerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger amounts")
	}

	return &HistoryResult{
		Entries:  entries,
		Total:    total,
		Page:     normalized.Page,
		PageSize: normalized.PageSize,
		Balance:  balance,
	}, nil
}

func (s *service) RestaurantFeed(ctx context.Context, restaurantID uuid.UUID, limit int) ([]FeedEntry, error) {
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id required")
	}
	if limit <= 0 {
		limit = 20
	}
	entries, err := s.repo.ListByRestaurant(ctx, restaurantID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list restaurant feed")
	}
	return entries, nil
}

// RecordRegistration inserts the REGISTRATION entry for a newly created
// customer inside the registration transaction. The entry is the customer's
// first, so balanceAfter equals the bonus itself. The caller publishes the
// fan-out event after the transaction commits.
func (s *service) RecordRegistration(ctx context.Context, tx *gorm.DB, customer *models.Customer, bonus int64) (*models.Transaction, error) {
	if customer == nil || customer.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer required")
	}
	if customer.RestaurantID == nil || *customer.RestaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer has no restaurant scope")
	}
	if bonus < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "REGISTRATION transactions must have a positive amount")
	}

	description := "Customer registration"
	if bonus > 0 {
		description = fmt.Sprintf("Customer registration (welcome bonus: %d points)", bonus)
	}

	entry := models.Transaction{
		CustomerID:   customer.ID,
		RestaurantID: *customer.RestaurantID,
		Type:         enums.TransactionTypeRegistration,
		Amount:       bonus,
		Description:  description,
		BalanceAfter: bonus,
	}

	if err := s.repo.WithTx(tx).Create(ctx, &entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert registration entry")
	}

	s.metrics.IncTransaction(string(enums.TransactionTypeRegistration))
	return &entry, nil
}
