package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablepoints/tablepoints-backend/pkg/db/models"
	"github.com/tablepoints/tablepoints-backend/pkg/enums"
	pkgerrors "github.com/tablepoints/tablepoints-backend/pkg/errors"
	"github.com/tablepoints/tablepoints-backend/pkg/pagination"
)

type fakeRepo struct {
	mu      sync.Mutex
	entries []models.Transaction
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) Create(ctx context.Context, entry *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeRepo) SumAmounts(ctx context.Context, customerID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, e := range f.entries {
		if e.CustomerID == customerID {
			total += e.Amount
		}
	}
	return total, nil
}

func (f *fakeRepo) List(ctx context.Context, customerID uuid.UUID, page pagination.Params) ([]models.Transaction, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []models.Transaction
	for _, e := range f.entries {
		if e.CustomerID == customerID {
			matched = append(matched, e)
		}
	}
	total := int64(len(matched))
	// Newest first, mirroring the SQL ordering.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	start := page.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + page.Limit()
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (f *fakeRepo) ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, limit int) ([]FeedEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []FeedEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].RestaurantID == restaurantID {
			out = append(out, FeedEntry{Transaction: f.entries[i]})
		}
	}
	return out, nil
}

type fakeDirectory struct {
	known map[uuid.UUID]bool
}

func (f *fakeDirectory) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	if f.known[id] {
		return &models.Customer{ID: id}, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakePublisher struct {
	mu     sync.Mutex
	events []Event
	scopes []uuid.UUID
}

func (f *fakePublisher) Publish(restaurantID uuid.UUID, event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scopes = append(f.scopes, restaurantID)
	f.events = append(f.events, event)
}

func newTestService(t *testing.T, customerIDs ...uuid.UUID) (Service, *fakeRepo, *fakePublisher) {
	t.Helper()
	repo := &fakeRepo{}
	dir := &fakeDirectory{known: map[uuid.UUID]bool{}}
	for _, id := range customerIDs {
		dir.known[id] = true
	}
	pub := &fakePublisher{}
	svc, err := NewService(repo, dir, pub, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, repo, pub
}

func TestPostKeepsRunningBalance(t *testing.T) {
	customerID := uuid.New()
	restaurantID := uuid.New()
	svc, _, _ := newTestService(t, customerID)
	ctx := context.Background()

	steps := []struct {
		txType enums.TransactionType
		amount int64
		want   int64
	}{
		{enums.TransactionTypeEarned, 100, 100},
		{enums.TransactionTypeEarned, 50, 150},
		{enums.TransactionTypeRedeemed, -30, 120},
	}

	for _, step := range steps {
		result, err := svc.Post(ctx, PostInput{
			CustomerID:   customerID,
			RestaurantID: restaurantID,
			Type:         step.txType,
			Amount:       step.amount,
			Description:  "order points",
		})
		if err != nil {
			t.Fatalf("Post(%s %d): %v", step.txType, step.amount, err)
		}
		if result.Balance != step.want {
			t.Fatalf("balance after %s %d = %d, want %d", step.txType, step.amount, result.Balance, step.want)
		}
		if result.Entry.BalanceAfter != step.want {
			t.Fatalf("balanceAfter snapshot = %d, want %d", result.Entry.BalanceAfter, step.want)
		}
	}

	balance, err := svc.CurrentBalance(ctx, customerID)
	if err != nil {
		t.Fatalf("CurrentBalance: %v", err)
	}
	if balance != 120 {
		t.Fatalf("CurrentBalance = %d, want 120", balance)
	}
}

func TestPostRejectsWrongSign(t *testing.T) {
	cases := []struct {
		txType  enums.TransactionType
		amount  int64
		message string
	}{
		{enums.TransactionTypeRegistration, -1, "REGISTRATION transactions must have a positive amount"},
		{enums.TransactionTypeEarned, -10, "EARNED transactions must have a positive amount"},
		{enums.TransactionTypeRefunded, -5, "REFUNDED transactions must have a positive amount"},
		{enums.TransactionTypeRedeemed, 10, "REDEEMED transactions must have a negative amount"},
		{enums.TransactionTypeExpired, 1, "EXPIRED transactions must have a negative amount"},
		{enums.TransactionTypeAdjusted, 25, "ADJUSTED transactions must have a negative amount"},
	}

	customerID := uuid.New()
	svc, repo, _ := newTestService(t, customerID)
	ctx := context.Background()

	for _, tc := range cases {
		_, err := svc.Post(ctx, PostInput{
			CustomerID:   customerID,
			RestaurantID: uuid.New(),
			Type:         tc.txType,
			Amount:       tc.amount,
			Description:  "bad sign",
		})
		if err == nil {
			t.Fatalf("Post(%s %d) succeeded, want validation error", tc.txType, tc.amount)
		}
		appErr := pkgerrors.As(err)
		if appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
			t.Fatalf("Post(%s %d) error = %v, want validation code", tc.txType, tc.amount, err)
		}
		if appErr.Message() != tc.message {
			t.Fatalf("Post(%s %d) message = %q, want %q", tc.txType, tc.amount, appErr.Message(), tc.message)
		}
	}

	if len(repo.entries) != 0 {
		t.Fatalf("rejected postings left %d entries in the ledger", len(repo.entries))
	}
}

func TestPostAcceptsZeroAmountForEveryType(t *testing.T) {
	customerID := uuid.New()
	svc, _, _ := newTestService(t, customerID)
	ctx := context.Background()

	for _, txType := range enums.TransactionTypes() {
		_, err := svc.Post(ctx, PostInput{
			CustomerID:   customerID,
			RestaurantID: uuid.New(),
			Type:         txType,
			Amount:       0,
			Description:  "zero amount",
		})
		if err != nil {
			t.Fatalf("Post(%s 0): %v", txType, err)
		}
	}
}

func TestPostUnknownCustomer(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Post(context.Background(), PostInput{
		CustomerID:   uuid.New(),
		RestaurantID: uuid.New(),
		Type:         enums.TransactionTypeEarned,
		Amount:       10,
		Description:  "points",
	})
	if err == nil {
		t.Fatal("Post succeeded for unknown customer")
	}
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestPostPublishesToRestaurantScope(t *testing.T) {
	customerID := uuid.New()
	restaurantID := uuid.New()
	svc, _, pub := newTestService(t, customerID)

	result, err := svc.Post(context.Background(), PostInput{
		CustomerID:   customerID,
		RestaurantID: restaurantID,
		Type:         enums.TransactionTypeEarned,
		Amount:       40,
		Description:  "dinner",
	})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	if pub.scopes[0] != restaurantID {
		t.Fatalf("published to restaurant %s, want %s", pub.scopes[0], restaurantID)
	}
	if pub.events[0].Kind != EventTransactionCreated {
		t.Fatalf("event kind = %q, want %q", pub.events[0].Kind, EventTransactionCreated)
	}
	if pub.events[0].Entry.ID != result.Entry.ID {
		t.Fatal("published entry does not match the committed entry")
	}
}

func TestConcurrentPostingsKeepSumInvariant(t *testing.T) {
	customerID := uuid.New()
	svc, repo, _ := newTestService(t, customerID)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Post(ctx, PostInput{
				CustomerID:   customerID,
				RestaurantID: uuid.New(),
				Type:         enums.TransactionTypeEarned,
				Amount:       int64(n + 1),
				Description:  fmt.Sprintf("visit %d", n),
			})
			if err != nil {
				t.Errorf("Post: %v", err)
			}
		}(i)
	}
	wg.Wait()

	var want int64
	for i := 0; i < workers; i++ {
		want += int64(i + 1)
	}

	balance, err := svc.CurrentBalance(ctx, customerID)
	if err != nil {
		t.Fatalf("CurrentBalance: %v", err)
	}
	if balance != want {
		t.Fatalf("balance = %d, want %d", balance, want)
	}

	// Every snapshot must equal the sum of amounts up to and including its
	// own entry; with serialized postings the snapshots are all distinct.
	seen := map[int64]bool{}
	for _, e := range repo.entries {
		if seen[e.BalanceAfter] {
			t.Fatalf("duplicate balanceAfter snapshot %d", e.BalanceAfter)
		}
		seen[e.BalanceAfter] = true
	}
}

func TestHistoryPagesNewestFirst(t *testing.T) {
	customerID := uuid.New()
	restaurantID := uuid.New()
	svc, _, _ := newTestService(t, customerID)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Post(ctx, PostInput{
			CustomerID:   customerID,
			RestaurantID: restaurantID,
			Type:         enums.TransactionTypeEarned,
			Amount:       int64(10 * (i + 1)),
			Description:  fmt.Sprintf("visit %d", i),
		}); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}

	result, err := svc.History(ctx, customerID, pagination.Params{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if result.Total != 5 {
		t.Fatalf("total = %d, want 5", result.Total)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("page size = %d, want 2", len(result.Entries))
	}
	if result.Entries[0].Amount != 50 {
		t.Fatalf("first entry amount = %d, want the newest (50)", result.Entries[0].Amount)
	}
	if result.Balance != 150 {
		t.Fatalf("balance = %d, want 150", result.Balance)
	}
}

func TestRecordRegistrationSeedsBalance(t *testing.T) {
	customerID := uuid.New()
	restaurantID := uuid.New()
	svc, repo, pub := newTestService(t, customerID)

	customer := &models.Customer{ID: customerID, RestaurantID: &restaurantID}
	entry, err := svc.RecordRegistration(context.Background(), nil, customer, 100)
	if err != nil {
		t.Fatalf("RecordRegistration: %v", err)
	}
	if entry.Type != enums.TransactionTypeRegistration {
		t.Fatalf("type = %s, want REGISTRATION", entry.Type)
	}
	if entry.Amount != 100 || entry.BalanceAfter != 100 {
		t.Fatalf("amount/balanceAfter = %d/%d, want 100/100", entry.Amount, entry.BalanceAfter)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("ledger has %d entries, want 1", len(repo.entries))
	}
	// Registration happens inside a wider transaction; the caller publishes
	// after commit, not the ledger.
	if len(pub.events) != 0 {
		t.Fatalf("RecordRegistration published %d events, want 0", len(pub.events))
	}
}

func TestRecordRegistrationRejectsNegativeBonus(t *testing.T) {
	customerID := uuid.New()
	restaurantID := uuid.New()
	svc, _, _ := newTestService(t, customerID)

	customer := &models.Customer{ID: customerID, RestaurantID: &restaurantID}
	_, err := svc.RecordRegistration(context.Background(), nil, customer, -10)
	if err == nil {
		t.Fatal("RecordRegistration accepted a negative bonus")
	}
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("error = %v, want validation code", err)
	}
}
