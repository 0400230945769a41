package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fuelstation/backend/internal/cache"
	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store"
)

type principalContextKey struct{}

func WithPrincipal(ctx context.Context, principal domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(domain.Principal)
	return principal, ok
}

type Service struct {
	repo     store.Repository
	reports  cache.ReportCache
	cacheTTL time.Duration
}

func New(repo store.Repository, reports cache.ReportCache, cacheTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if cacheTTL < time.Second {
		cacheTTL = 30 * time.Second
	}

	return &Service{
		repo:     repo,
		reports:  reports,
		cacheTTL: cacheTTL,
	}
}

// --- Sales ---

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return domain.Sale{}, fmt.Errorf("authenticated principal required")
	}

	product, valid := domain.ParseProduct(strings.ToUpper(strings.TrimSpace(req.Product)))
	if !valid {
		return domain.Sale{}, store.ErrInvalidInput
	}
	req.PumpID = strings.TrimSpace(req.PumpID)
	if req.PumpID == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if req.OpeningMeterReading.IsNegative() || req.ClosingMeterReading.Cmp(req.OpeningMeterReading) <= 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}

	pump, err := s.repo.FindPumpWithStation(ctx, req.PumpID)
	if err != nil {
		return domain.Sale{}, err
	}
	user, err := s.repo.FindUser(ctx, principal.UserID)
	if err != nil {
		return domain.Sale{}, err
	}

	price := resolvePrice(pump.Station, product, req.PricePerLitre)
	if !price.IsPositive() {
		return domain.Sale{}, store.ErrInvalidInput
	}

	volume := req.ClosingMeterReading.Sub(req.OpeningMeterReading)
	sale := domain.Sale{
		Product:             product,
		PricePerLitre:       price,
		OpeningMeterReading: req.OpeningMeterReading,
		ClosingMeterReading: req.ClosingMeterReading,
		TotalPrice:          volume.Mul(price).Round(4),
		PumpID:              pump.ID,
		StationID:           pump.StationID,
		RecordedByID:        user.ID,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}
	return *created, nil
}

// resolvePrice picks the charge per litre. The station's configured price
// for the product wins; an unset product price falls back to the station's
// petrol price; only when both are unset does the caller-supplied price
// apply, which is logged because it trusts client input.
func resolvePrice(station domain.Station, product domain.Product, clientPrice decimal.Decimal) decimal.Decimal {
	if price := station.ProductPrice(product); price.IsPositive() {
		return price
	}
	if station.PetrolPricePerLitre.IsPositive() {
		return station.PetrolPricePerLitre
	}
	if clientPrice.IsPositive() {
		log.Printf("[service] WARN: station %s has no configured price for %s, using client-supplied price %s", station.ID, product, clientPrice)
	}
	return clientPrice
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, page int, limit int) (domain.SaleListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 20
	}

	sales, total, err := s.repo.ListSales(ctx, page, limit)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	return domain.SaleListResponse{Sales: sales, Page: page, Limit: limit, Total: total}, nil
}

func (s *Service) ListSalesByStation(ctx context.Context, stationID string) ([]domain.Sale, error) {
	if _, err := s.repo.FindStation(ctx, stationID); err != nil {
		return nil, err
	}
	return s.repo.ListSalesByStation(ctx, stationID)
}

func (s *Service) UpdateSale(ctx context.Context, id string, patch domain.SaleUpdateRequest) (domain.Sale, error) {
	existing, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}

	merged := *existing
	if patch.Product != nil {
		product, valid := domain.ParseProduct(strings.ToUpper(strings.TrimSpace(*patch.Product)))
		if !valid {
			return domain.Sale{}, store.ErrInvalidInput
		}
		merged.Product = product
	}
	if patch.PricePerLitre != nil {
		merged.PricePerLitre = *patch.PricePerLitre
	}
	if patch.OpeningMeterReading != nil {
		merged.OpeningMeterReading = *patch.OpeningMeterReading
	}
	if patch.ClosingMeterReading != nil {
		merged.ClosingMeterReading = *patch.ClosingMeterReading
	}

	if merged.OpeningMeterReading.IsNegative() || merged.ClosingMeterReading.Cmp(merged.OpeningMeterReading) <= 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if !merged.PricePerLitre.IsPositive() {
		return domain.Sale{}, store.ErrInvalidInput
	}

	// Total is always recomputed from the merged readings, never accepted
	// from the caller.
	merged.TotalPrice = merged.Volume().Mul(merged.PricePerLitre).Round(4)

	updated, err := s.repo.UpdateSale(ctx, merged)
	if err != nil {
		return domain.Sale{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteSale(ctx context.Context, id string) error {
	return s.repo.DeleteSale(ctx, id)
}

// --- Pump daily records ---

// RecordPumpDay is the manual correction path: it accumulates the supplied
// deltas into the (pump, date) rollup. Negative deltas are allowed so an
// operator can back out a bad entry.
func (s *Service) RecordPumpDay(ctx context.Context, req domain.PumpDayRequest) (domain.PumpDailyRecord, error) {
	req.PumpID = strings.TrimSpace(req.PumpID)
	if req.PumpID == "" {
		return domain.PumpDailyRecord{}, store.ErrInvalidInput
	}
	recordDate := strings.TrimSpace(req.RecordDate)
	if recordDate == "" {
		recordDate = store.DateOf(time.Now())
	} else if _, err := time.Parse(store.DateLayout, recordDate); err != nil {
		return domain.PumpDailyRecord{}, store.ErrInvalidInput
	}

	pump, err := s.repo.FindPumpWithStation(ctx, req.PumpID)
	if err != nil {
		return domain.PumpDailyRecord{}, err
	}

	rec, err := s.repo.UpsertPumpDay(ctx, pump.ID, pump.StationID, recordDate, req.VolumeSold, req.TotalRevenue)
	if err != nil {
		return domain.PumpDailyRecord{}, err
	}
	return *rec, nil
}

func (s *Service) ListDailyRecordsByStation(ctx context.Context, stationID string, recordDate string) ([]domain.PumpDailyRecord, error) {
	recordDate = strings.TrimSpace(recordDate)
	if recordDate != "" {
		if _, err := time.Parse(store.DateLayout, recordDate); err != nil {
			return nil, store.ErrInvalidInput
		}
	}
	if _, err := s.repo.FindStation(ctx, stationID); err != nil {
		return nil, err
	}
	return s.repo.ListPumpDaysByStation(ctx, stationID, recordDate)
}

// --- Supplies ---

func (s *Service) CreateSupply(ctx context.Context, req domain.SupplyCreateRequest) (domain.Supply, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return domain.Supply{}, fmt.Errorf("authenticated principal required")
	}

	product, valid := domain.ParseProduct(strings.ToUpper(strings.TrimSpace(req.Product)))
	if !valid {
		return domain.Supply{}, store.ErrInvalidInput
	}
	req.StationID = strings.TrimSpace(req.StationID)
	if req.StationID == "" {
		return domain.Supply{}, store.ErrInvalidInput
	}
	if req.Quantity.Cmp(decimal.NewFromInt(1)) < 0 {
		return domain.Supply{}, store.ErrInvalidInput
	}

	if _, err := s.repo.FindStation(ctx, req.StationID); err != nil {
		return domain.Supply{}, err
	}
	requester, err := s.repo.FindUser(ctx, principal.UserID)
	if err != nil {
		return domain.Supply{}, err
	}

	supply := domain.Supply{
		StationID:   req.StationID,
		Product:     product,
		Quantity:    req.Quantity,
		RequestedBy: requester.ID,
	}
	created, err := s.repo.CreateSupply(ctx, supply)
	if err != nil {
		return domain.Supply{}, err
	}
	return *created, nil
}

func (s *Service) GetSupply(ctx context.Context, id string) (domain.Supply, error) {
	supply, err := s.repo.GetSupply(ctx, id)
	if err != nil {
		return domain.Supply{}, err
	}
	return *supply, nil
}

func (s *Service) ListSupplies(ctx context.Context) ([]domain.Supply, error) {
	return s.repo.ListSupplies(ctx)
}

func (s *Service) ListSuppliesByStation(ctx context.Context, stationID string) ([]domain.Supply, error) {
	if _, err := s.repo.FindStation(ctx, stationID); err != nil {
		return nil, err
	}
	return s.repo.ListSuppliesByStation(ctx, stationID)
}

func (s *Service) UpdateSupplyStatus(ctx context.Context, id string, req domain.SupplyStatusRequest) (domain.Supply, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return domain.Supply{}, fmt.Errorf("authenticated principal required")
	}

	next, valid := domain.ParseSupplyStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !valid {
		return domain.Supply{}, store.ErrInvalidInput
	}

	updated, err := s.repo.TransitionSupply(ctx, id, next, principal.UserID, time.Now().UTC())
	if err != nil {
		return domain.Supply{}, err
	}
	return *updated, nil
}

func (s *Service) GetRefuelTrends(ctx context.Context, stationID string, days int) ([]domain.RefuelTrendPoint, error) {
	if days < 1 || days > 365 {
		days = 30
	}
	if stationID != "" {
		if _, err := s.repo.FindStation(ctx, stationID); err != nil {
			return nil, err
		}
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	return s.repo.RefuelTrends(ctx, stationID, since)
}

func (s *Service) GetLastRestock(ctx context.Context, stationID string) (domain.LastRestockResponse, error) {
	if _, err := s.repo.FindStation(ctx, stationID); err != nil {
		return domain.LastRestockResponse{}, err
	}
	return s.repo.LastRestock(ctx, stationID)
}
