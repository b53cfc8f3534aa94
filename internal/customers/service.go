package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablepoints/tablepoints-backend/internal/ledger"
	"github.com/tablepoints/tablepoints-backend/internal/membercode"
	"github.com/tablepoints/tablepoints-backend/pkg/config"
	"github.com/tablepoints/tablepoints-backend/pkg/db"
	"github.com/tablepoints/tablepoints-backend/pkg/db/models"
	"github.com/tablepoints/tablepoints-backend/pkg/email"
	pkgerrors "github.com/tablepoints/tablepoints-backend/pkg/errors"
	"github.com/tablepoints/tablepoints-backend/pkg/logger"
)

const (
	memberCodeConstraint = "customers_member_code_key"
	emailConstraint      = "customers_email_key"

	// Fresh-draw retries after losing the unique-index race to a concurrent
	// registration. The allocator pre-check makes collisions rare, so a small
	// budget is plenty.
	insertRetries = 3
)

var validate = validator.New()

// TxRunner executes fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service registers and looks up loyalty customers.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*RegisterResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	Search(ctx context.Context, restaurantID *uuid.UUID, query string) (*models.Customer, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo      Repository
	ledger    ledger.Service
	allocator *membercode.Allocator
	tx        TxRunner
	publisher ledger.Publisher
	mailer    email.Mailer
	logg      *logger.Logger
	loyalty   config.LoyaltyConfig
}

// NewService wires the customer service. Publisher and mailer may be nil.
func NewService(
	repo Repository,
	ledgerSvc ledger.Service,
	allocator *membercode.Allocator,
	tx TxRunner,
	publisher ledger.Publisher,
	mailer email.Mailer,
	logg *logger.Logger,
	loyalty config.LoyaltyConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if allocator == nil {
		return nil, fmt.Errorf("member code allocator required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:      repo,
		ledger:    ledgerSvc,
		allocator: allocator,
		tx:        tx,
		publisher: publisher,
		mailer:    mailer,
		logg:      logg,
		loyalty:   loyalty,
	}, nil
}

// RegisterInput captures a new member signup.
type RegisterInput struct {
	Name         *string    `json:"name,omitempty"`
	Email        string     `json:"email"`
	Phone        *string    `json:"phone,omitempty"`
	DateOfBirth  *time.Time `json:"dateOfBirth,omitempty"`
	RestaurantID *uuid.UUID `json:"restaurantId,omitempty"`
}

// RegisterResult is the created customer plus the REGISTRATION ledger entry.
// Entry is nil for customers registered without a restaurant: a ledger balance
// is always restaurant-scoped, so no entry is written for them.
type RegisterResult struct {
	Customer models.Customer     `json:"customer"`
	Entry    *models.Transaction `json:"entry,omitempty"`
	Balance  int64               `json:"balance"`
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	address := strings.TrimSpace(strings.ToLower(input.Email))
	if address == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email required")
	}
	if err := validate.Var(address, "email"); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid email %q", input.Email))
	}

	if _, err := s.repo.FindByEmail(ctx, address); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a customer with this email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check email availability")
	}

	var phoneNormalized *string
	if input.Phone != nil {
		if digits := normalizePhone(*input.Phone); digits != "" {
			phoneNormalized = &digits
		}
	}

	bonus := s.loyalty.WelcomeBonusPoints

	var (
		customer models.Customer
		entry    *models.Transaction
	)

	// The allocator pre-check races with concurrent registrations, so the
	// unique index on (restaurant, member_code) is the final arbiter. On a
	// violation we discard the candidate and draw again.
	var lastErr error
	for attempt := 0; attempt < insertRetries; attempt++ {
		code, err := s.allocator.Allocate(ctx, input.RestaurantID)
		if err != nil {
			return nil, err
		}

		customer = models.Customer{
			Name:            input.Name,
			Email:           address,
			Phone:           input.Phone,
			PhoneNormalized: phoneNormalized,
			MemberCode:      &code,
			DateOfBirth:     input.DateOfBirth,
			RestaurantID:    input.RestaurantID,
		}

		txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.WithTx(tx).Create(ctx, &customer); err != nil {
				return err
			}
			if input.RestaurantID == nil {
				// No restaurant scope, no ledger entry: balances are always
				// restaurant-scoped.
				return nil
			}
			created, err := s.ledger.RecordRegistration(ctx, tx, &customer, bonus)
			if err != nil {
				return err
			}
			entry = created
			return nil
		})
		if txErr == nil {
			lastErr = nil
			break
		}

		if db.IsUniqueViolation(txErr, emailConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a customer with this email already exists")
		}
		if db.IsUniqueViolation(txErr, memberCodeConstraint) {
			lastErr = txErr
			continue
		}
		if appErr := pkgerrors.As(txErr); appErr != nil {
			return nil, appErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "register customer")
	}
	if lastErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAllocationExhausted, lastErr,
			"could not persist a unique member code")
	}

	result := &RegisterResult{Customer: customer}
	if entry != nil {
		result.Entry = entry
		result.Balance = entry.BalanceAfter
		if s.publisher != nil {
			s.publisher.Publish(entry.RestaurantID, ledger.Event{
				Kind:  ledger.EventTransactionCreated,
				Entry: *entry,
			})
		}
	}

	s.sendWelcome(ctx, customer)

	return result, nil
}

// sendWelcome is fire-and-forget: a mail failure is logged and never surfaces
// to the registration response.
func (s *service) sendWelcome(ctx context.Context, customer models.Customer) {
	if s.mailer == nil || customer.MemberCode == nil {
		return
	}

	name := ""
	if customer.Name != nil {
		name = *customer.Name
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.mailer.SendWelcome(sendCtx, customer.Email, name, *customer.MemberCode); err != nil && s.logg != nil {
			s.logg.Error(s.logg.WithCustomerID(context.Background(), customer.ID.String()),
				"welcome email delivery failed", err)
		}
	}()
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	customer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	return customer, nil
}

// Search dispatches on the shape of the query. An "@" means email, short
// all-digit input or a "#" prefix means member code, anything else is tried
// as a phone number (normalized digits first, raw value as fallback). The
// lookup resolves to exactly one customer within the restaurant scope.
func (s *service) Search(ctx context.Context, restaurantID *uuid.UUID, query string) (*models.Customer, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "search query required")
	}

	var (
		matches []models.Customer
		err     error
	)
	switch {
	case strings.Contains(trimmed, "@"):
		matches, err = s.repo.SearchByEmail(ctx, restaurantID, trimmed)
	case looksLikeMemberCode(trimmed):
		matches, err = s.repo.SearchByMemberCode(ctx, restaurantID, strings.TrimPrefix(trimmed, "#"))
	default:
		matches, err = s.repo.SearchByPhone(ctx, restaurantID, normalizePhone(trimmed), trimmed)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search customers")
	}
	if len(matches) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no customer matches this query")
	}
	return &matches[0], nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	// Soft delete: the ledger keeps every entry for audit, and the member
	// code stays reserved within its restaurant scope.
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete customer")
	}
	return nil
}

func looksLikeMemberCode(query string) bool {
	if strings.HasPrefix(query, "#") {
		return true
	}
	if len(query) > 6 {
		return false
	}
	for _, r := range query {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func normalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
