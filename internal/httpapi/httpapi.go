package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/service"
	"fuelstation/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, domain.RoleManager, domain.RoleDirector, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/sales/", a.requireAuth(a.handleSaleRoutes, domain.RoleManager, domain.RoleDirector, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/stations/record", a.requireAuth(a.handleStationRecord, domain.RoleManager, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/stations/", a.requireAuth(a.handleStationRoutes, domain.RoleManager, domain.RoleDirector, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/supplies", a.requireAuth(a.handleSupplies, domain.RoleManager, domain.RoleDirector, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/supplies/request", a.requireAuth(a.handleSupplyRequest, domain.RoleManager, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/supplies/", a.requireAuth(a.handleSupplyRoutes, domain.RoleManager, domain.RoleDirector, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/analytics/sales/", a.requireAuth(a.handleAnalytics, domain.RoleDirector, domain.RoleAdmin))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		principal, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if !Authorize(principal, roles...) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithPrincipal(r.Context(), principal)))
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Sales ---

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		page := parsePositiveInt(r.URL.Query().Get("page"), 1, 0)
		limit := parsePositiveInt(r.URL.Query().Get("limit"), 20, 200)
		resp, err := a.service.ListSales(r.Context(), page, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)

	case http.MethodPost:
		principal, _ := service.PrincipalFromContext(r.Context())
		if !Authorize(principal, domain.RoleManager, domain.RoleAdmin) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}
		var req domain.SaleCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sale, err := a.service.CreateSale(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sale)

	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleRoutes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/v1/sales/")
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	switch parts[0] {
	case "report":
		a.handleSaleReports(w, r, parts[1:])
	case "station":
		if len(parts) != 2 || r.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, errors.New("not found"))
			return
		}
		sales, err := a.service.ListSalesByStation(r.Context(), parts[1])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
	default:
		if len(parts) != 1 {
			writeError(w, http.StatusNotFound, errors.New("not found"))
			return
		}
		a.handleSaleByID(w, r, parts[0])
	}
}

func (a *API) handleSaleByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		sale, err := a.service.GetSale(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sale)

	case http.MethodPatch:
		principal, _ := service.PrincipalFromContext(r.Context())
		if !Authorize(principal, domain.RoleManager, domain.RoleAdmin) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}
		var patch domain.SaleUpdateRequest
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sale, err := a.service.UpdateSale(r.Context(), id, patch)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sale)

	case http.MethodDelete:
		principal, _ := service.PrincipalFromContext(r.Context())
		if !Authorize(principal, domain.RoleAdmin) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}
		if err := a.service.DeleteSale(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})

	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleReports(w http.ResponseWriter, r *http.Request, parts []string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	principal, _ := service.PrincipalFromContext(r.Context())
	if !Authorize(principal, domain.RoleDirector, domain.RoleAdmin) {
		writeError(w, http.StatusForbidden, errors.New("forbidden role"))
		return
	}

	switch {
	case len(parts) == 1 && parts[0] == "total":
		total, err := a.service.TotalSales(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"total_sales": total})

	case len(parts) == 1 && parts[0] == "weekly":
		points, err := a.service.WeeklySalesReport(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"weekly": points})

	case len(parts) == 1 && parts[0] == "monthly":
		points, err := a.service.MonthlySalesReport(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"monthly": points})

	case len(parts) == 3 && parts[0] == "station" && parts[2] == "total":
		total, err := a.service.TotalSalesByStation(r.Context(), parts[1])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"station_id": parts[1], "total_sales": total})

	case len(parts) == 3 && parts[0] == "daily" && parts[1] == "station":
		points, err := a.service.DailySalesByStation(r.Context(), parts[2])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"station_id": parts[2], "daily": points})

	default:
		writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

// --- Pump daily records ---

func (a *API) handleStationRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.PumpDayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := a.service.RecordPumpDay(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleStationRoutes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/v1/stations/")
	if len(parts) != 2 || parts[1] != "daily-records" || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	records, err := a.service.ListDailyRecordsByStation(r.Context(), parts[0], r.URL.Query().Get("date"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// --- Supplies ---

func (a *API) handleSupplies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	supplies, err := a.service.ListSupplies(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"supplies": supplies})
}

func (a *API) handleSupplyRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.SupplyCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	supply, err := a.service.CreateSupply(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, supply)
}

func (a *API) handleSupplyRoutes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/v1/supplies/")

	switch {
	case len(parts) == 2 && parts[0] == "stats" && parts[1] == "trends":
		a.handleRefuelTrends(w, r, r.URL.Query().Get("station_id"))

	case len(parts) == 2 && parts[0] == "station":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		supplies, err := a.service.ListSuppliesByStation(r.Context(), parts[1])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"supplies": supplies})

	case len(parts) == 4 && parts[0] == "station" && parts[2] == "stats" && parts[3] == "trends":
		a.handleRefuelTrends(w, r, parts[1])

	case len(parts) == 3 && parts[0] == "station" && parts[2] == "last-restock":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		resp, err := a.service.GetLastRestock(r.Context(), parts[1])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)

	case len(parts) == 2 && parts[1] == "status":
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w)
			return
		}
		principal, _ := service.PrincipalFromContext(r.Context())
		if !Authorize(principal, domain.RoleDirector, domain.RoleAdmin) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}
		var req domain.SupplyStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		supply, err := a.service.UpdateSupplyStatus(r.Context(), parts[0], req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, supply)

	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		supply, err := a.service.GetSupply(r.Context(), parts[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, supply)

	default:
		writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (a *API) handleRefuelTrends(w http.ResponseWriter, r *http.Request, stationID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	days := parsePositiveInt(r.URL.Query().Get("days"), 30, 365)
	points, err := a.service.GetRefuelTrends(r.Context(), strings.TrimSpace(stationID), days)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trends": points})
}

// --- Analytics ---

func (a *API) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	var payload any
	var err error
	switch strings.TrimPrefix(r.URL.Path, "/api/v1/analytics/sales/") {
	case "monthly-comparison":
		payload, err = a.service.MonthlySalesComparison(r.Context())
	case "trend-30days":
		var points []domain.TrendPoint
		points, err = a.service.SalesTrend30Days(r.Context())
		payload = map[string]any{"trend": points}
	case "product-comparison":
		payload, err = a.service.ProductComparison(r.Context())
	case "station-performance":
		payload, err = a.service.StationPerformanceYesterday(r.Context())
	case "daily-stats":
		payload, err = a.service.DailyStats(r.Context())
	case "station-daily-trend":
		var trends []domain.StationDailyTrend
		trends, err = a.service.StationDailyTrends(r.Context())
		payload = map[string]any{"stations": trends}
	default:
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// --- Plumbing ---

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func splitPath(path string, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveInt(raw string, fallback int, max int) int {
	value := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			value = parsed
		}
	}
	if max > 0 && value > max {
		return max
	}
	return value
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeServiceError translates the store's sentinel errors into their HTTP
// statuses; anything unrecognized is an internal error.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrStateConflict):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic so persistence error text never becomes part
	// of the API contract.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
