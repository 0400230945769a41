package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"fuelstation/backend/internal/cache"
	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/service"
	"fuelstation/backend/internal/store/memory"
)

// newTestAPI builds a full API over an in-memory store with a real
// AuthManager and Service so handler tests exercise the whole request path.
func newTestAPI(t *testing.T) (*API, *memory.Store) {
	t.Helper()

	repo := memory.New()
	repo.AddStation(domain.Station{
		ID: "st-1", Name: "Main Station", Status: "active",
		PetrolPricePerLitre: decimal.NewFromFloat(650.5),
		DieselPricePerLitre: decimal.NewFromFloat(980),
		PetrolVolume:        decimal.NewFromInt(5000),
		DieselVolume:        decimal.NewFromInt(2500),
	})
	repo.AddPump(domain.Pump{ID: "P1", PumpNumber: 1, DispensedProduct: domain.ProductPetrol, StationID: "st-1"})
	repo.AddUserAccount(domain.UserAccount{
		ID: "usr-manager", Email: "manager@station.local", Name: "Manager",
		Password: mustHashPassword(t, "manager-pass"), Role: domain.RoleManager, Active: true,
	})
	repo.AddUserAccount(domain.UserAccount{
		ID: "usr-director", Email: "director@station.local", Name: "Director",
		Password: mustHashPassword(t, "director-pass"), Role: domain.RoleDirector, Active: true,
	})

	svc := service.New(repo, cache.NoopReportCache{}, time.Second)
	auth := NewAuthManager("test-secret-key-that-is-long-enough", time.Hour, repo)
	return New(svc, auth, "*"), repo
}

func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func loginToken(t *testing.T, api *API, email string, password string) string {
	t.Helper()
	resp, err := api.auth.Login(context.Background(), domain.LoginRequest{Email: email, Password: password})
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return resp.AccessToken
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodGet, "/healthz", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Email:    "manager@station.local",
		Password: "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Email:    "manager@station.local",
		Password: "manager-pass",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" || resp.Role != domain.RoleManager {
		t.Fatalf("unexpected login response: %+v", resp)
	}
}

func TestCreateSaleEndToEnd(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, api, "manager@station.local", "manager-pass")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"product":               "PETROL",
		"opening_meter_reading": 1000,
		"closing_meter_reading": 1200,
		"pump_id":               "P1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var sale domain.Sale
	if err := json.NewDecoder(rec.Body).Decode(&sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if !sale.TotalPrice.Equal(decimal.NewFromInt(130100)) {
		t.Fatalf("expected total 130100, got %s", sale.TotalPrice)
	}
	if sale.RecordedByID != "usr-manager" {
		t.Fatalf("expected recording user from token, got %s", sale.RecordedByID)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales?page=1&limit=10", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list domain.SaleListResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || len(list.Sales) != 1 {
		t.Fatalf("expected one sale, got total=%d len=%d", list.Total, len(list.Sales))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+sale.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for sale by id, got %d", rec.Code)
	}
}

func TestSalesRequireAuth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sales", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rec.Code)
	}
}

func TestDirectorCannotRecordSales(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, api, "director@station.local", "director-pass")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"product":               "PETROL",
		"opening_meter_reading": 0,
		"closing_meter_reading": 10,
		"pump_id":               "P1",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for director sale creation, got %d", rec.Code)
	}
}

func TestErrorTaxonomyMapping(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, api, "manager@station.local", "manager-pass")

	// InvalidInput -> 400
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"product":               "PETROL",
		"opening_meter_reading": 1200,
		"closing_meter_reading": 1000,
		"pump_id":               "P1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-monotonic readings, got %d", rec.Code)
	}

	// NotFound -> 404
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/sale-missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing sale, got %d", rec.Code)
	}

	// Method not allowed -> 405
	rec = doJSON(t, handler, http.MethodPut, "/api/v1/sales", token, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSupplyWorkflowOverHTTP(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()
	manager := loginToken(t, api, "manager@station.local", "manager-pass")
	director := loginToken(t, api, "director@station.local", "director-pass")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/supplies/request", manager, map[string]any{
		"station_id": "st-1",
		"product":    "PETROL",
		"quantity":   2000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for supply request, got %d: %s", rec.Code, rec.Body.String())
	}
	var supply domain.Supply
	if err := json.NewDecoder(rec.Body).Decode(&supply); err != nil {
		t.Fatalf("decode supply: %v", err)
	}

	// Managers cannot move the workflow.
	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/supplies/"+supply.ID+"/status", manager, domain.SupplyStatusRequest{Status: "APPROVED"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for manager approval, got %d", rec.Code)
	}

	// StateConflict -> 409: delivery without approval.
	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/supplies/"+supply.ID+"/status", director, domain.SupplyStatusRequest{Status: "DELIVERED"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for PENDING->DELIVERED, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/supplies/"+supply.ID+"/status", director, domain.SupplyStatusRequest{Status: "APPROVED"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for approval, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/supplies/"+supply.ID+"/status", director, domain.SupplyStatusRequest{Status: "DELIVERED"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for delivery, got %d: %s", rec.Code, rec.Body.String())
	}

	station, err := repo.FindStation(context.Background(), "st-1")
	if err != nil {
		t.Fatalf("find station: %v", err)
	}
	if !station.PetrolVolume.Equal(decimal.NewFromInt(7000)) {
		t.Fatalf("expected petrol volume 7000 after delivery, got %s", station.PetrolVolume)
	}

	// Unknown status string -> 400, terminal replay -> 409.
	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/supplies/"+supply.ID+"/status", director, domain.SupplyStatusRequest{Status: "SHIPPED"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/supplies/"+supply.ID+"/status", director, domain.SupplyStatusRequest{Status: "DELIVERED"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for re-delivery, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/supplies/station/st-1/last-restock", manager, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for last restock, got %d", rec.Code)
	}
	var restock domain.LastRestockResponse
	if err := json.NewDecoder(rec.Body).Decode(&restock); err != nil {
		t.Fatalf("decode restock: %v", err)
	}
	if restock.Petrol == nil || !restock.Petrol.Quantity.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("expected petrol restock of 2000, got %+v", restock.Petrol)
	}
}

func TestStationRecordEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, api, "manager@station.local", "manager-pass")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/stations/record", token, map[string]any{
		"pump_id":       "P1",
		"record_date":   "2026-08-30",
		"volume_sold":   150,
		"total_revenue": 97575,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/stations/st-1/daily-records?date=2026-08-30", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Records []domain.PumpDailyRecord `json:"records"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(body.Records) != 1 || !body.Records[0].VolumeSold.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("unexpected records: %+v", body.Records)
	}
}

func TestAnalyticsRequireDirectorOrAdmin(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	manager := loginToken(t, api, "manager@station.local", "manager-pass")
	director := loginToken(t, api, "director@station.local", "director-pass")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/analytics/sales/daily-stats", manager, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for manager analytics, got %d", rec.Code)
	}

	for _, path := range []string{
		"/api/v1/analytics/sales/monthly-comparison",
		"/api/v1/analytics/sales/trend-30days",
		"/api/v1/analytics/sales/product-comparison",
		"/api/v1/analytics/sales/station-performance",
		"/api/v1/analytics/sales/daily-stats",
		"/api/v1/analytics/sales/station-daily-trend",
	} {
		rec := doJSON(t, handler, http.MethodGet, path, director, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, rec.Code, rec.Body.String())
		}
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/analytics/sales/unknown-report", director, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown report, got %d", rec.Code)
	}
}

func TestSaleReportsRequireDirectorOrAdmin(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	manager := loginToken(t, api, "manager@station.local", "manager-pass")
	director := loginToken(t, api, "director@station.local", "director-pass")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sales/report/total", manager, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for manager report access, got %d", rec.Code)
	}

	for _, path := range []string{
		"/api/v1/sales/report/total",
		"/api/v1/sales/report/weekly",
		"/api/v1/sales/report/monthly",
		"/api/v1/sales/report/station/st-1/total",
		"/api/v1/sales/report/daily/station/st-1",
	} {
		rec := doJSON(t, handler, http.MethodGet, path, director, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestLoginRateLimiting(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	// httptest requests share one RemoteAddr, so the limiter sees one client.
	for i := 0; i < 5; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
			Email:    "manager@station.local",
			Password: "wrong",
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Email:    "manager@station.local",
		Password: "wrong",
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", rec.Code)
	}
}
