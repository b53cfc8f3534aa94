package notifications

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/tablepoints/tablepoints-backend/pkg/db/models"
	pkgerrors "github.com/tablepoints/tablepoints-backend/pkg/errors"
	"github.com/tablepoints/tablepoints-backend/pkg/push"
)

type pairKey struct {
	customerID   uuid.UUID
	restaurantID uuid.UUID
}

type fakeRepo struct {
	mu          sync.Mutex
	permissions map[pairKey]models.NotificationPermission
	cleared     []pairKey
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{permissions: map[pairKey]models.NotificationPermission{}}
}

func (f *fakeRepo) Upsert(ctx context.Context, permission *models.NotificationPermission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey{permission.CustomerID, permission.RestaurantID}
	if existing, ok := f.permissions[key]; ok {
		permission.ID = existing.ID
	} else if permission.ID == uuid.Nil {
		permission.ID = uuid.New()
	}
	f.permissions[key] = *permission
	return nil
}

func (f *fakeRepo) Find(ctx context.Context, customerID, restaurantID uuid.UUID) (*models.NotificationPermission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.permissions[pairKey{customerID, restaurantID}]; ok {
		copied := p
		return &copied, nil
	}
	return nil, errors.New("record not found")
}

func (f *fakeRepo) ListGrantees(ctx context.Context, restaurantID uuid.UUID) ([]models.NotificationPermission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.NotificationPermission
	for _, p := range f.permissions {
		if p.RestaurantID == restaurantID && p.PermissionGranted {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) ClearSubscription(ctx context.Context, customerID, restaurantID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey{customerID, restaurantID}
	f.cleared = append(f.cleared, key)
	if p, ok := f.permissions[key]; ok {
		p.Endpoint, p.P256dh, p.Auth = nil, nil, nil
		f.permissions[key] = p
	}
	return nil
}

type fakeSender struct {
	mu        sync.Mutex
	sent      []push.Subscription
	goneFor   map[string]bool
	failAll   bool
}

func (f *fakeSender) Send(ctx context.Context, sub push.Subscription, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("provider unavailable")
	}
	if f.goneFor[sub.Endpoint] {
		return push.ErrSubscriptionGone
	}
	f.sent = append(f.sent, sub)
	return nil
}

func strPtr(s string) *string { return &s }

func grant(t *testing.T, svc Service, restaurantID uuid.UUID, endpoint string) uuid.UUID {
	t.Helper()
	customerID := uuid.New()
	input := PermissionInput{
		CustomerID:        customerID,
		RestaurantID:      restaurantID,
		PermissionGranted: true,
	}
	if endpoint != "" {
		input.Endpoint = strPtr(endpoint)
		input.P256dh = strPtr("p256dh-key")
		input.Auth = strPtr("auth-secret")
	}
	if _, err := svc.UpsertPermission(context.Background(), input); err != nil {
		t.Fatalf("UpsertPermission: %v", err)
	}
	return customerID
}

func TestUpsertPermissionRejectsPartialSubscription(t *testing.T) {
	repo := newFakeRepo()
	svc, err := NewService(repo, &fakeSender{}, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.UpsertPermission(context.Background(), PermissionInput{
		CustomerID:        uuid.New(),
		RestaurantID:      uuid.New(),
		PermissionGranted: true,
		Endpoint:          strPtr("https://push.example.com/ep"),
	})
	if err == nil {
		t.Fatal("UpsertPermission accepted a partial subscription")
	}
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("error = %v, want validation code", err)
	}
}

func TestUpsertPermissionIsIdempotentPerPair(t *testing.T) {
	repo := newFakeRepo()
	svc, err := NewService(repo, &fakeSender{}, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	customerID := uuid.New()
	restaurantID := uuid.New()
	for i := 0; i < 3; i++ {
		result, err := svc.UpsertPermission(context.Background(), PermissionInput{
			CustomerID:        customerID,
			RestaurantID:      restaurantID,
			PermissionGranted: true,
			Endpoint:          strPtr("https://push.example.com/ep"),
			P256dh:            strPtr("key"),
			Auth:              strPtr("secret"),
		})
		if err != nil {
			t.Fatalf("UpsertPermission #%d: %v", i, err)
		}
		if !result.HasSubscription {
			t.Fatalf("UpsertPermission #%d lost the subscription", i)
		}
	}
	if len(repo.permissions) != 1 {
		t.Fatalf("repo holds %d rows for one pair, want 1", len(repo.permissions))
	}
}

func TestSendBroadcastsToSubscribedGrantees(t *testing.T) {
	repo := newFakeRepo()
	sender := &fakeSender{}
	svc, err := NewService(repo, sender, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	restaurantID := uuid.New()
	grant(t, svc, restaurantID, "https://push.example.com/a")
	grant(t, svc, restaurantID, "https://push.example.com/b")
	grant(t, svc, restaurantID, "") // granted but never subscribed
	grant(t, svc, uuid.New(), "https://push.example.com/other-restaurant")

	result, err := svc.SendToRestaurant(context.Background(), SendInput{
		RestaurantID: restaurantID,
		Title:        "Double points tonight",
		Body:         "Visit before 9pm",
	})
	if err != nil {
		t.Fatalf("SendToRestaurant: %v", err)
	}
	if result.Sent != 2 {
		t.Fatalf("sent = %d, want 2", result.Sent)
	}
	if result.Failed != 0 {
		t.Fatalf("failed = %d, want 0 (unsubscribed grantees are skipped on broadcast)", result.Failed)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("provider saw %d sends, want 2", len(sender.sent))
	}
}

func TestSendRejectsEmptyCustomerList(t *testing.T) {
	repo := newFakeRepo()
	svc, err := NewService(repo, &fakeSender{}, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	empty := []uuid.UUID{}
	_, err = svc.SendToRestaurant(context.Background(), SendInput{
		RestaurantID: uuid.New(),
		Title:        "t",
		Body:         "b",
		CustomerIDs:  &empty,
	})
	if err == nil {
		t.Fatal("SendToRestaurant accepted an empty customerIds list")
	}
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("error = %v, want validation code", err)
	}
}

func TestSendTargetedListFiltersSilently(t *testing.T) {
	repo := newFakeRepo()
	sender := &fakeSender{}
	svc, err := NewService(repo, sender, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	restaurantID := uuid.New()
	subscribed := grant(t, svc, restaurantID, "https://push.example.com/a")
	unsubscribed := grant(t, svc, restaurantID, "")
	stranger := uuid.New()

	// Listed customers without a grant or subscription are dropped from the
	// target set, not counted as failures.
	ids := []uuid.UUID{subscribed, unsubscribed, stranger}
	result, err := svc.SendToRestaurant(context.Background(), SendInput{
		RestaurantID: restaurantID,
		Title:        "t",
		Body:         "b",
		CustomerIDs:  &ids,
	})
	if err != nil {
		t.Fatalf("SendToRestaurant: %v", err)
	}
	if result.Sent != 1 {
		t.Fatalf("sent = %d, want 1", result.Sent)
	}
	if result.Failed != 0 {
		t.Fatalf("failed = %d, want 0 for undeliverable listed customers", result.Failed)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("errors = %+v, want none", result.Errors)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("provider saw %d sends, want 1", len(sender.sent))
	}
}

func TestSendPrunesGoneSubscriptions(t *testing.T) {
	repo := newFakeRepo()
	sender := &fakeSender{goneFor: map[string]bool{"https://push.example.com/dead": true}}
	svc, err := NewService(repo, sender, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	restaurantID := uuid.New()
	alive := grant(t, svc, restaurantID, "https://push.example.com/alive")
	dead := grant(t, svc, restaurantID, "https://push.example.com/dead")

	result, err := svc.SendToRestaurant(context.Background(), SendInput{
		RestaurantID: restaurantID,
		Title:        "t",
		Body:         "b",
	})
	if err != nil {
		t.Fatalf("SendToRestaurant: %v", err)
	}
	if result.Sent != 1 || result.Failed != 1 {
		t.Fatalf("sent/failed = %d/%d, want 1/1", result.Sent, result.Failed)
	}

	if len(repo.cleared) != 1 || repo.cleared[0].customerID != dead {
		t.Fatalf("cleared pairs = %+v, want the dead subscription only", repo.cleared)
	}

	// The permission row survives with its subscription nulled.
	row, err := repo.Find(context.Background(), dead, restaurantID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !row.PermissionGranted {
		t.Fatal("prune revoked the permission grant")
	}
	if row.HasSubscription() {
		t.Fatal("prune left the dead subscription in place")
	}

	if _, err := repo.Find(context.Background(), alive, restaurantID); err != nil {
		t.Fatalf("Find(alive): %v", err)
	}

	// A second send skips the pruned target entirely: no new provider call
	// for it and no second prune.
	again, err := svc.SendToRestaurant(context.Background(), SendInput{
		RestaurantID: restaurantID,
		Title:        "t",
		Body:         "b",
	})
	if err != nil {
		t.Fatalf("SendToRestaurant (second): %v", err)
	}
	if again.Sent != 1 || again.Failed != 0 {
		t.Fatalf("second send sent/failed = %d/%d, want 1/0", again.Sent, again.Failed)
	}
	if len(repo.cleared) != 1 {
		t.Fatalf("ClearSubscription ran %d times, want once", len(repo.cleared))
	}
	if len(sender.sent) != 2 {
		t.Fatalf("provider saw %d total sends, want 2 (alive endpoint only)", len(sender.sent))
	}
}

func TestSendWithoutProviderFailsHard(t *testing.T) {
	repo := newFakeRepo()
	svc, err := NewService(repo, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.SendToRestaurant(context.Background(), SendInput{
		RestaurantID: uuid.New(),
		Title:        "t",
		Body:         "b",
	})
	if err == nil {
		t.Fatal("SendToRestaurant succeeded without a configured provider")
	}
	if !strings.Contains(err.Error(), "not configured") {
		appErr := pkgerrors.As(err)
		if appErr == nil || appErr.Code() != pkgerrors.CodeDependency {
			t.Fatalf("error = %v, want dependency code", err)
		}
	}
}
