package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/cardledger/internal/adapter/http/dto"
	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/usecase"
)

type creditCardServiceStub struct {
	createFn func(ctx context.Context, input usecase.CreateCreditCardInput) (*domain.CreditCard, error)
	getFn    func(ctx context.Context, id string) (*domain.CreditCard, error)
	listFn   func(ctx context.Context, limit, offset int) ([]*domain.CreditCard, error)
	updateFn func(ctx context.Context, input usecase.UpdateCreditCardInput) (*domain.CreditCard, error)
	limitFn  func(ctx context.Context, creditCardID string) (*domain.AvailableLimit, error)
}

func (s *creditCardServiceStub) CreateCreditCard(ctx context.Context, input usecase.CreateCreditCardInput) (*domain.CreditCard, error) {
	return s.createFn(ctx, input)
}

func (s *creditCardServiceStub) GetCreditCard(ctx context.Context, id string) (*domain.CreditCard, error) {
	return s.getFn(ctx, id)
}

func (s *creditCardServiceStub) ListCreditCards(ctx context.Context, limit, offset int) ([]*domain.CreditCard, error) {
	return s.listFn(ctx, limit, offset)
}

func (s *creditCardServiceStub) UpdateCreditCard(ctx context.Context, input usecase.UpdateCreditCardInput) (*domain.CreditCard, error) {
	return s.updateFn(ctx, input)
}

func (s *creditCardServiceStub) AvailableLimit(ctx context.Context, creditCardID string) (*domain.AvailableLimit, error) {
	return s.limitFn(ctx, creditCardID)
}

func newCreditCardHandler(stub *creditCardServiceStub) *CreditCardHandler {
	return NewCreditCardHandler(stub, stub)
}

func TestCreditCardHandler_Create_Success(t *testing.T) {
	var captured usecase.CreateCreditCardInput
	handler := newCreditCardHandler(&creditCardServiceStub{
		createFn: func(ctx context.Context, input usecase.CreateCreditCardInput) (*domain.CreditCard, error) {
			captured = input
			return &domain.CreditCard{ID: "card-1", Name: input.Name, CreditLimit: input.CreditLimit, Version: 1}, nil
		},
	})

	body, _ := json.Marshal(dto.CreateCreditCardRequest{
		Name:        "Gold",
		CreditLimit: decimal.NewFromInt(5000),
		ClosingDay:  10,
		DueDay:      20,
	})

	req := httptest.NewRequest(http.MethodPost, "/credit-cards", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	if captured.Name != "Gold" || captured.ClosingDay != 10 || captured.DueDay != 20 {
		t.Fatalf("expected input to match request, got %+v", captured)
	}

	if etag := rec.Header().Get("ETag"); etag != `"1"` {
		t.Fatalf("expected ETag \"1\", got %s", etag)
	}

	var resp dto.CreditCardResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "card-1" || !resp.CreditLimit.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreditCardHandler_Create_InvalidJSON(t *testing.T) {
	handler := newCreditCardHandler(&creditCardServiceStub{
		createFn: func(ctx context.Context, input usecase.CreateCreditCardInput) (*domain.CreditCard, error) {
			t.Fatal("CreateCreditCard should not be called for invalid payload")
			return nil, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/credit-cards", bytes.NewBufferString("{invalid json"))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreditCardHandler_Create_ValidationError(t *testing.T) {
	handler := newCreditCardHandler(&creditCardServiceStub{
		createFn: func(ctx context.Context, input usecase.CreateCreditCardInput) (*domain.CreditCard, error) {
			return nil, domain.ErrInvalidDay
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/credit-cards", bytes.NewBufferString(`{"name":"x","closing_day":40}`))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var resp dto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if resp.Code != "invalid_input" {
		t.Fatalf("expected invalid_input code, got %+v", resp)
	}
}

func TestCreditCardHandler_Get_NotFound(t *testing.T) {
	handler := newCreditCardHandler(&creditCardServiceStub{
		getFn: func(ctx context.Context, id string) (*domain.CreditCard, error) {
			return nil, domain.ErrCreditCardNotFound
		},
	})

	req := setChiURLParam(httptest.NewRequest(http.MethodGet, "/credit-cards/card-1", nil), "id", "card-1")
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreditCardHandler_List(t *testing.T) {
	handler := newCreditCardHandler(&creditCardServiceStub{
		listFn: func(ctx context.Context, limit, offset int) ([]*domain.CreditCard, error) {
			if limit != 5 || offset != 2 {
				t.Fatalf("expected limit=5 offset=2, got %d %d", limit, offset)
			}
			return []*domain.CreditCard{{ID: "a"}, {ID: "b"}}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/credit-cards?limit=5&offset=2", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp []dto.CreditCardResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(resp))
	}
}

func TestCreditCardHandler_Update(t *testing.T) {
	tests := []struct {
		name        string
		ifMatch     string
		err         error
		wantStatus  int
		wantVersion int64
	}{
		{name: "if-match carried as expected version", ifMatch: `"3"`, wantStatus: http.StatusOK, wantVersion: 3},
		{name: "stale version", ifMatch: "2", err: domain.ErrVersionConflict, wantStatus: http.StatusConflict, wantVersion: 2},
		{name: "malformed if-match", ifMatch: "abc", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured usecase.UpdateCreditCardInput
			handler := newCreditCardHandler(&creditCardServiceStub{
				updateFn: func(ctx context.Context, input usecase.UpdateCreditCardInput) (*domain.CreditCard, error) {
					captured = input
					if tt.err != nil {
						return nil, tt.err
					}
					return &domain.CreditCard{ID: input.ID, Version: *input.ExpectedVersion + 1}, nil
				},
			})

			req := httptest.NewRequest(http.MethodPatch, "/credit-cards/card-1", bytes.NewBufferString(`{"due_day":15}`))
			req.Header.Set("If-Match", tt.ifMatch)
			req = setChiURLParam(req, "id", "card-1")
			rec := httptest.NewRecorder()

			handler.Update(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantVersion == 0 {
				return
			}
			if captured.ExpectedVersion == nil || *captured.ExpectedVersion != tt.wantVersion {
				t.Fatalf("expected version %d, got %v", tt.wantVersion, captured.ExpectedVersion)
			}
			if captured.DueDay == nil || *captured.DueDay != 15 || captured.Name != nil {
				t.Fatalf("expected only due day in update, got %+v", captured)
			}
		})
	}
}

func TestCreditCardHandler_AvailableLimit(t *testing.T) {
	handler := newCreditCardHandler(&creditCardServiceStub{
		limitFn: func(ctx context.Context, creditCardID string) (*domain.AvailableLimit, error) {
			if creditCardID == "missing" {
				return nil, domain.ErrCreditCardNotFound
			}
			return &domain.AvailableLimit{CreditCardID: creditCardID, AvailableLimit: decimal.NewFromInt(900)}, nil
		},
	})

	req := setChiURLParam(httptest.NewRequest(http.MethodGet, "/credit-cards/card-1/available-limit", nil), "id", "card-1")
	rec := httptest.NewRecorder()
	handler.AvailableLimit(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp dto.AvailableLimitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.AvailableLimit.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("expected 900 available, got %s", resp.AvailableLimit)
	}

	req = setChiURLParam(httptest.NewRequest(http.MethodGet, "/credit-cards/missing/available-limit", nil), "id", "missing")
	rec = httptest.NewRecorder()
	handler.AvailableLimit(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreditCardHandler_InternalError(t *testing.T) {
	handler := newCreditCardHandler(&creditCardServiceStub{
		listFn: func(ctx context.Context, limit, offset int) ([]*domain.CreditCard, error) {
			return nil, errors.New("db error")
		},
	})

	rec := httptest.NewRecorder()
	handler.List(rec, httptest.NewRequest(http.MethodGet, "/credit-cards", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func setChiURLParam(r *http.Request, key, value string) *http.Request {
	return setChiURLParams(r, map[string]string{key: value})
}

func setChiURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
