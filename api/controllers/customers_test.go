package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablepoints/tablepoints-backend/api/middleware"
	"github.com/tablepoints/tablepoints-backend/internal/customers"
	"github.com/tablepoints/tablepoints-backend/internal/ledger"
	"github.com/tablepoints/tablepoints-backend/pkg/db/models"
	"github.com/tablepoints/tablepoints-backend/pkg/enums"
	pkgerrors "github.com/tablepoints/tablepoints-backend/pkg/errors"
	"github.com/tablepoints/tablepoints-backend/pkg/pagination"
)

type fakeCustomersService struct {
	lastRegister *customers.RegisterInput
	lastSearch   struct {
		restaurantID *uuid.UUID
		query        string
	}
	registerResult *customers.RegisterResult
	searchResult   *models.Customer
	err            error
}

func (f *fakeCustomersService) Register(_ context.Context, input customers.RegisterInput) (*customers.RegisterResult, error) {
	f.lastRegister = &input
	if f.err != nil {
		return nil, f.err
	}
	return f.registerResult, nil
}

func (f *fakeCustomersService) Get(context.Context, uuid.UUID) (*models.Customer, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCustomersService) Search(_ context.Context, restaurantID *uuid.UUID, query string) (*models.Customer, error) {
	f.lastSearch.restaurantID = restaurantID
	f.lastSearch.query = query
	if f.err != nil {
		return nil, f.err
	}
	return f.searchResult, nil
}

func (f *fakeCustomersService) Delete(context.Context, uuid.UUID) error {
	return f.err
}

type fakeLedgerService struct {
	lastPost *ledger.PostInput
	balance  int64
	feed     []ledger.FeedEntry
	err      error
}

func (f *fakeLedgerService) CurrentBalance(context.Context, uuid.UUID) (int64, error) {
	return f.balance, f.err
}

func (f *fakeLedgerService) ValidateProposedEntry(enums.TransactionType, int64) error {
	return nil
}

func (f *fakeLedgerService) Post(_ context.Context, input ledger.PostInput) (*ledger.PostResult, error) {
	f.lastPost = &input
	if f.err != nil {
		return nil, f.err
	}
	return &ledger.PostResult{Entry: models.Transaction{ID: uuid.New()}, Balance: f.balance}, nil
}

func (f *fakeLedgerService) History(context.Context, uuid.UUID, pagination.Params) (*ledger.HistoryResult, error) {
	return &ledger.HistoryResult{Entries: []models.Transaction{}}, f.err
}

func (f *fakeLedgerService) RestaurantFeed(context.Context, uuid.UUID, int) ([]ledger.FeedEntry, error) {
	return f.feed, f.err
}

func (f *fakeLedgerService) RecordRegistration(context.Context, *gorm.DB, *models.Customer, int64) (*models.Transaction, error) {
	return nil, f.err
}

func scopedRequest(method, target, body, restaurantID string) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	ctx := middleware.WithStaffID(req.Context(), uuid.NewString())
	if restaurantID != "" {
		ctx = middleware.WithRestaurantID(ctx, restaurantID)
	}
	return req.WithContext(ctx)
}

func TestCustomerRegisterUsesTokenScope(t *testing.T) {
	scope := uuid.New()
	svc := &fakeCustomersService{
		registerResult: &customers.RegisterResult{Balance: 100},
	}

	req := scopedRequest(http.MethodPost, "/api/v1/customers",
		`{"email":"ana@example.com"}`, scope.String())
	w := httptest.NewRecorder()
	CustomerRegister(svc, nil)(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if svc.lastRegister == nil || svc.lastRegister.RestaurantID == nil {
		t.Fatal("register input missing restaurant scope")
	}
	if *svc.lastRegister.RestaurantID != scope {
		t.Fatalf("restaurant = %s, want token scope %s", svc.lastRegister.RestaurantID, scope)
	}
}

func TestCustomerRegisterRejectsForeignScope(t *testing.T) {
	svc := &fakeCustomersService{}

	body := `{"email":"ana@example.com","restaurantId":"` + uuid.NewString() + `"}`
	req := scopedRequest(http.MethodPost, "/api/v1/customers", body, uuid.NewString())
	w := httptest.NewRecorder()
	CustomerRegister(svc, nil)(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if svc.lastRegister != nil {
		t.Fatal("service must not be called on a scope mismatch")
	}
}

func TestCustomerRegisterAdminMayOmitRestaurant(t *testing.T) {
	svc := &fakeCustomersService{
		registerResult: &customers.RegisterResult{},
	}

	req := scopedRequest(http.MethodPost, "/api/v1/customers",
		`{"email":"ana@example.com"}`, "")
	w := httptest.NewRecorder()
	CustomerRegister(svc, nil)(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if svc.lastRegister == nil {
		t.Fatal("register never reached the service")
	}
	if svc.lastRegister.RestaurantID != nil {
		t.Fatalf("restaurant = %v, want unscoped registration", svc.lastRegister.RestaurantID)
	}
}

func TestCustomerRegisterRejectsBadDateOfBirth(t *testing.T) {
	svc := &fakeCustomersService{}

	body := `{"email":"ana@example.com","dateOfBirth":"03/14/1990"}`
	req := scopedRequest(http.MethodPost, "/api/v1/customers", body, uuid.NewString())
	w := httptest.NewRecorder()
	CustomerRegister(svc, nil)(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCustomerSearchPassesScopeAndTrimsQuery(t *testing.T) {
	scope := uuid.New()
	svc := &fakeCustomersService{searchResult: &models.Customer{ID: uuid.New()}}

	req := scopedRequest(http.MethodGet, "/api/v1/customers/search?q=+12345+", "", scope.String())
	w := httptest.NewRecorder()
	CustomerSearch(svc, nil)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if svc.lastSearch.restaurantID == nil || *svc.lastSearch.restaurantID != scope {
		t.Fatalf("search scope = %v, want %s", svc.lastSearch.restaurantID, scope)
	}
	if svc.lastSearch.query != "12345" {
		t.Fatalf("query = %q, want trimmed %q", svc.lastSearch.query, "12345")
	}
}

func TestCustomerSearchAdminScopesByQueryParam(t *testing.T) {
	requested := uuid.New()
	svc := &fakeCustomersService{searchResult: &models.Customer{ID: uuid.New()}}

	req := scopedRequest(http.MethodGet,
		"/api/v1/customers/search?q=12345&restaurantId="+requested.String(), "", "")
	w := httptest.NewRecorder()
	CustomerSearch(svc, nil)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if svc.lastSearch.restaurantID == nil || *svc.lastSearch.restaurantID != requested {
		t.Fatalf("search scope = %v, want %s", svc.lastSearch.restaurantID, requested)
	}
}

func TestCustomerSearchReturnsSingleCustomer(t *testing.T) {
	customerID := uuid.New()
	svc := &fakeCustomersService{searchResult: &models.Customer{ID: customerID, Email: "ana@example.com"}}

	req := scopedRequest(http.MethodGet, "/api/v1/customers/search?q=ana@example.com", "", uuid.NewString())
	w := httptest.NewRecorder()
	CustomerSearch(svc, nil)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var envelope struct {
		Data struct {
			ID uuid.UUID `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if envelope.Data.ID != customerID {
		t.Fatalf("data.id = %s, want the matched customer %s", envelope.Data.ID, customerID)
	}
}

func TestCustomerSearchNoMatchIsNotFound(t *testing.T) {
	svc := &fakeCustomersService{err: pkgerrors.New(pkgerrors.CodeNotFound, "no customer matches this query")}

	req := scopedRequest(http.MethodGet, "/api/v1/customers/search?q=12345", "", uuid.NewString())
	w := httptest.NewRecorder()
	CustomerSearch(svc, nil)(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when nothing matches", w.Code)
	}
}

func TestCustomerSearchRejectsForeignScopeParam(t *testing.T) {
	svc := &fakeCustomersService{}

	req := scopedRequest(http.MethodGet,
		"/api/v1/customers/search?q=12345&restaurantId="+uuid.NewString(), "", uuid.NewString())
	w := httptest.NewRecorder()
	CustomerSearch(svc, nil)(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestCustomerBalanceEnvelope(t *testing.T) {
	customerID := uuid.New()
	svc := &fakeLedgerService{balance: 230}

	router := chi.NewRouter()
	router.Get("/api/v1/customers/{customerId}/balance", CustomerBalance(svc, nil))

	req := scopedRequest(http.MethodGet, "/api/v1/customers/"+customerID.String()+"/balance", "", uuid.NewString())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var envelope struct {
		Data struct {
			CustomerID uuid.UUID `json:"customerId"`
			Balance    int64     `json:"balance"`
		} `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if envelope.Data.CustomerID != customerID {
		t.Fatalf("customerId = %s, want %s", envelope.Data.CustomerID, customerID)
	}
	if envelope.Data.Balance != 230 {
		t.Fatalf("balance = %d, want 230", envelope.Data.Balance)
	}
}

func TestCustomerBalanceRejectsBadID(t *testing.T) {
	svc := &fakeLedgerService{}

	router := chi.NewRouter()
	router.Get("/api/v1/customers/{customerId}/balance", CustomerBalance(svc, nil))

	req := scopedRequest(http.MethodGet, "/api/v1/customers/not-a-uuid/balance", "", uuid.NewString())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
