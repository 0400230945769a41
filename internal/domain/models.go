package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the type of fuel dispensed by a pump or delivered by a supply.
type Product string

const (
	ProductPetrol   Product = "PETROL"
	ProductDiesel   Product = "DIESEL"
	ProductGas      Product = "GAS"
	ProductKerosene Product = "KEROSENE"
)

func ParseProduct(raw string) (Product, bool) {
	switch Product(raw) {
	case ProductPetrol, ProductDiesel, ProductGas, ProductKerosene:
		return Product(raw), true
	}
	return "", false
}

// SupplyStatus is the lifecycle state of a restock request.
type SupplyStatus string

const (
	SupplyPending   SupplyStatus = "PENDING"
	SupplyApproved  SupplyStatus = "APPROVED"
	SupplyRejected  SupplyStatus = "REJECTED"
	SupplyDelivered SupplyStatus = "DELIVERED"
)

func ParseSupplyStatus(raw string) (SupplyStatus, bool) {
	switch SupplyStatus(raw) {
	case SupplyPending, SupplyApproved, SupplyRejected, SupplyDelivered:
		return SupplyStatus(raw), true
	}
	return "", false
}

// supplyTransitions is the full set of legal status moves. Anything not in
// this table is rejected; DELIVERED and REJECTED have no outgoing edges.
var supplyTransitions = map[SupplyStatus][]SupplyStatus{
	SupplyPending:  {SupplyApproved, SupplyRejected},
	SupplyApproved: {SupplyDelivered},
}

func (s SupplyStatus) CanTransitionTo(next SupplyStatus) bool {
	for _, allowed := range supplyTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s SupplyStatus) IsTerminal() bool {
	return s == SupplyDelivered || s == SupplyRejected
}

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleDirector Role = "director"
	RoleManager  Role = "manager"
)

// Station is owned by the station directory; this core reads its prices and
// mutates its volume counters on delivered supplies.
type Station struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Address             string          `json:"address"`
	Status              string          `json:"status"`
	PetrolPricePerLitre decimal.Decimal `json:"petrol_price_per_litre"`
	DieselPricePerLitre decimal.Decimal `json:"diesel_price_per_litre"`
	PetrolVolume        decimal.Decimal `json:"petrol_volume"`
	DieselVolume        decimal.Decimal `json:"diesel_volume"`
}

// ProductPrice returns the station's configured price for a product.
// Only petrol and diesel carry station pricing; other products report zero.
func (s Station) ProductPrice(product Product) decimal.Decimal {
	switch product {
	case ProductPetrol:
		return s.PetrolPricePerLitre
	case ProductDiesel:
		return s.DieselPricePerLitre
	}
	return decimal.Zero
}

type Pump struct {
	ID               string  `json:"id"`
	PumpNumber       int     `json:"pump_number"`
	DispensedProduct Product `json:"dispensed_product"`
	StationID        string  `json:"station_id"`
	Station          Station `json:"station"`
}

type User struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Active bool   `json:"active"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Email     string
	Name      string
	Password  string
	Role      Role
	Active    bool
	CreatedAt time.Time
}

// Sale is one fuel-dispensing transaction. TotalPrice is always derived
// from the meter readings and the resolved price, never taken from input.
type Sale struct {
	ID                  string          `json:"id"`
	Product             Product         `json:"product"`
	PricePerLitre       decimal.Decimal `json:"price_per_litre"`
	OpeningMeterReading decimal.Decimal `json:"opening_meter_reading"`
	ClosingMeterReading decimal.Decimal `json:"closing_meter_reading"`
	TotalPrice          decimal.Decimal `json:"total_price"`
	PumpID              string          `json:"pump_id"`
	StationID           string          `json:"station_id"`
	RecordedByID        string          `json:"recorded_by_id"`
	Pump                *Pump           `json:"pump,omitempty"`
	Station             *Station        `json:"station,omitempty"`
	RecordedBy          *User           `json:"recorded_by,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Volume is the litres dispensed, closing minus opening.
func (s Sale) Volume() decimal.Decimal {
	return s.ClosingMeterReading.Sub(s.OpeningMeterReading)
}

type SaleCreateRequest struct {
	Product             string          `json:"product"`
	PricePerLitre       decimal.Decimal `json:"price_per_litre"`
	OpeningMeterReading decimal.Decimal `json:"opening_meter_reading"`
	ClosingMeterReading decimal.Decimal `json:"closing_meter_reading"`
	PumpID              string          `json:"pump_id"`
}

type SaleUpdateRequest struct {
	Product             *string          `json:"product,omitempty"`
	PricePerLitre       *decimal.Decimal `json:"price_per_litre,omitempty"`
	OpeningMeterReading *decimal.Decimal `json:"opening_meter_reading,omitempty"`
	ClosingMeterReading *decimal.Decimal `json:"closing_meter_reading,omitempty"`
}

type SaleListResponse struct {
	Sales []Sale `json:"sales"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Total int64  `json:"total"`
}

// PumpDailyRecord is the rolling per-pump, per-calendar-day rollup of
// volume and revenue. Exactly one row exists per (pump, record date).
type PumpDailyRecord struct {
	ID           string          `json:"id"`
	PumpID       string          `json:"pump_id"`
	StationID    string          `json:"station_id"`
	RecordDate   string          `json:"record_date"`
	VolumeSold   decimal.Decimal `json:"volume_sold"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	CreatedAt    time.Time       `json:"created_at"`
}

type PumpDayRequest struct {
	PumpID       string          `json:"pump_id"`
	RecordDate   string          `json:"record_date"`
	VolumeSold   decimal.Decimal `json:"volume_sold"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

// Supply is a restock request moving through the PENDING ->
// APPROVED/REJECTED -> DELIVERED lifecycle.
type Supply struct {
	ID           string          `json:"id"`
	StationID    string          `json:"station_id"`
	Product      Product         `json:"product"`
	Quantity     decimal.Decimal `json:"quantity"`
	Status       SupplyStatus    `json:"status"`
	RequestedBy  string          `json:"requested_by"`
	ApprovedBy   string          `json:"approved_by,omitempty"`
	DeliveryDate *time.Time      `json:"delivery_date,omitempty"`
	Station      *Station        `json:"station,omitempty"`
	Requester    *User           `json:"requester,omitempty"`
	Approver     *User           `json:"approver,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type SupplyCreateRequest struct {
	StationID string          `json:"station_id"`
	Product   string          `json:"product"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type SupplyStatusRequest struct {
	Status string `json:"status"`
}

type RefuelTrendPoint struct {
	Date          string          `json:"date"`
	Product       Product         `json:"product"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
}

type LastRestockEntry struct {
	Quantity decimal.Decimal `json:"quantity"`
	Date     *time.Time      `json:"date"`
}

type LastRestockResponse struct {
	Petrol *LastRestockEntry `json:"petrol"`
	Diesel *LastRestockEntry `json:"diesel"`
}

// --- Analytics shapes ---

type MonthlyComparison struct {
	CurrentMonthTotal decimal.Decimal `json:"current_month_total"`
	LastMonthTotal    decimal.Decimal `json:"last_month_total"`
	PercentageChange  float64         `json:"percentage_change"`
}

type TrendPoint struct {
	Date   string          `json:"date"`
	Petrol decimal.Decimal `json:"petrol"`
	Diesel decimal.Decimal `json:"diesel"`
}

type ProductComparison struct {
	PetrolTotalVolume decimal.Decimal `json:"petrol_total_volume"`
	DieselTotalVolume decimal.Decimal `json:"diesel_total_volume"`
}

type StationSalesTotal struct {
	StationID   string          `json:"station_id"`
	StationName string          `json:"station_name"`
	TotalSales  decimal.Decimal `json:"total_sales"`
}

type StationPerformance struct {
	Top3    []StationSalesTotal `json:"top3"`
	Bottom3 []StationSalesTotal `json:"bottom3"`
}

type DailyStats struct {
	MonthRevenueTotal decimal.Decimal `json:"month_revenue_total"`
	TodayVolumeTotal  decimal.Decimal `json:"today_volume_total"`
	TodayPetrolVolume decimal.Decimal `json:"today_petrol_volume"`
	TodayDieselVolume decimal.Decimal `json:"today_diesel_volume"`
}

type StationDailyTrend struct {
	StationID   string       `json:"station_id"`
	StationName string       `json:"station_name"`
	Days        []TrendPoint `json:"days"`
}

type DailySalesPoint struct {
	Date      string          `json:"date"`
	TotalSale decimal.Decimal `json:"total_sale"`
}

type WeeklySalesPoint struct {
	Week      string          `json:"week"`
	TotalSale decimal.Decimal `json:"total_sale"`
}

type MonthlySalesPoint struct {
	Month     string          `json:"month"`
	TotalSale decimal.Decimal `json:"total_sale"`
}

// --- Auth shapes ---

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        Role   `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Principal is the authenticated identity attached to a request context.
type Principal struct {
	UserID string
	Email  string
	Role   Role
}
