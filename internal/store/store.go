package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"fuelstation/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrStateConflict = errors.New("state conflict")
)

// DateLayout is the calendar-day format used for record dates.
const DateLayout = "2006-01-02"

// DateOf truncates a timestamp to its UTC calendar day.
func DateOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DateProductRevenue is one (day, product) revenue bucket from the sale ledger.
type DateProductRevenue struct {
	Date    string
	Product domain.Product
	Revenue decimal.Decimal
}

// StationDailyRevenue is one (station, day) revenue bucket from the sale ledger.
type StationDailyRevenue struct {
	StationID   string
	StationName string
	Date        string
	Product     domain.Product
	Revenue     decimal.Decimal
}

// StationDirectory resolves the externally-owned station, pump and user
// records this core references. Station volume credits happen inside
// TransitionSupply so they stay atomic with the status write.
type StationDirectory interface {
	FindPumpWithStation(ctx context.Context, pumpID string) (*domain.Pump, error)
	FindStation(ctx context.Context, stationID string) (*domain.Station, error)
	FindUser(ctx context.Context, userID string) (*domain.User, error)
}

// UserStore is the credential lookup surface consumed by the auth manager.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
}

type Repository interface {
	StationDirectory
	UserStore

	// Sales. CreateSale persists the sale and accumulates the matching
	// pump daily record in one atomic unit; UpdateSale and DeleteSale
	// apply the compensating volume/revenue delta to the daily record of
	// the sale's original calendar day within the same unit.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, page int, limit int) ([]domain.Sale, int64, error)
	ListSalesByStation(ctx context.Context, stationID string) ([]domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error

	// Pump daily records.
	UpsertPumpDay(ctx context.Context, pumpID string, stationID string, recordDate string, volumeDelta decimal.Decimal, revenueDelta decimal.Decimal) (*domain.PumpDailyRecord, error)
	ListPumpDaysByStation(ctx context.Context, stationID string, recordDate string) ([]domain.PumpDailyRecord, error)

	// Supplies. TransitionSupply performs the status write and, on
	// DELIVERED, the station volume credit in one atomic unit; concurrent
	// transitions on the same supply are serialized.
	CreateSupply(ctx context.Context, supply domain.Supply) (*domain.Supply, error)
	GetSupply(ctx context.Context, id string) (*domain.Supply, error)
	ListSupplies(ctx context.Context) ([]domain.Supply, error)
	ListSuppliesByStation(ctx context.Context, stationID string) ([]domain.Supply, error)
	TransitionSupply(ctx context.Context, id string, next domain.SupplyStatus, approverID string, at time.Time) (*domain.Supply, error)
	RefuelTrends(ctx context.Context, stationID string, since time.Time) ([]domain.RefuelTrendPoint, error)
	LastRestock(ctx context.Context, stationID string) (domain.LastRestockResponse, error)

	// Read-only aggregates over the sale ledger.
	SumSales(ctx context.Context, stationID string, from time.Time, to time.Time) (decimal.Decimal, error)
	RevenueByDateProduct(ctx context.Context, from time.Time) ([]DateProductRevenue, error)
	VolumeByProduct(ctx context.Context, from time.Time, to time.Time) (map[domain.Product]decimal.Decimal, error)
	StationRevenue(ctx context.Context, from time.Time, to time.Time) ([]domain.StationSalesTotal, error)
	StationDailyRevenue(ctx context.Context, from time.Time) ([]StationDailyRevenue, error)
	WeeklySales(ctx context.Context) ([]domain.WeeklySalesPoint, error)
	MonthlySales(ctx context.Context) ([]domain.MonthlySalesPoint, error)
}
