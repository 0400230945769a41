package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store"
	"fuelstation/backend/internal/xid"
)

// Store is the in-memory repository used for dev mode and tests. A single
// RW mutex stands in for the database transaction boundary: every write
// path mutates the sale ledger and its daily rollup under one lock hold.
type Store struct {
	mu           sync.RWMutex
	stations     map[string]domain.Station
	pumps        map[string]domain.Pump
	users        map[string]domain.UserAccount
	usersByEmail map[string]string
	sales        map[string]domain.Sale
	pumpDays     map[string]domain.PumpDailyRecord
	supplies     map[string]domain.Supply
}

func New() *Store {
	return &Store{
		stations:     make(map[string]domain.Station),
		pumps:        make(map[string]domain.Pump),
		users:        make(map[string]domain.UserAccount),
		usersByEmail: make(map[string]string),
		sales:        make(map[string]domain.Sale),
		pumpDays:     make(map[string]domain.PumpDailyRecord),
		supplies:     make(map[string]domain.Supply),
	}
}

// NewSeeded builds a store pre-loaded with a small station network and the
// default operator accounts for dev/demo mode. Credentials come from
// SEED_ADMIN_PASSWORD / SEED_DIRECTOR_PASSWORD / SEED_MANAGER_PASSWORD; if
// unset, dev defaults are used with a warning. Production deployments use
// PostgreSQL (DATABASE_URL) and never touch these.
func NewSeeded() *Store {
	s := New()

	stations := []domain.Station{
		{
			ID: "st-ikeja-01", Name: "Ikeja Along Station", Address: "Awolowo Way, Ikeja",
			Status:              "active",
			PetrolPricePerLitre: decimal.NewFromFloat(650.5),
			DieselPricePerLitre: decimal.NewFromFloat(980.25),
			PetrolVolume:        decimal.NewFromInt(18000),
			DieselVolume:        decimal.NewFromInt(9500),
		},
		{
			ID: "st-surulere-01", Name: "Surulere Station", Address: "Adeniran Ogunsanya, Surulere",
			Status:              "active",
			PetrolPricePerLitre: decimal.NewFromFloat(648),
			DieselPricePerLitre: decimal.NewFromFloat(975),
			PetrolVolume:        decimal.NewFromInt(12000),
			DieselVolume:        decimal.NewFromInt(7000),
		},
		{
			ID: "st-epe-01", Name: "Epe Expressway Station", Address: "Lekki-Epe Expressway",
			Status:       "active",
			PetrolVolume: decimal.NewFromInt(5000),
			DieselVolume: decimal.NewFromInt(2500),
		},
	}
	for _, st := range stations {
		s.AddStation(st)
	}

	pumpNo := 0
	for _, st := range stations {
		for _, product := range []domain.Product{domain.ProductPetrol, domain.ProductPetrol, domain.ProductDiesel} {
			pumpNo++
			s.AddPump(domain.Pump{
				ID:               fmt.Sprintf("pump-%02d", pumpNo),
				PumpNumber:       pumpNo,
				DispensedProduct: product,
				StationID:        st.ID,
			})
		}
	}

	for _, acct := range seedUsers() {
		s.AddUserAccount(acct)
	}

	return s
}

func seedUsers() []domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	directorPwd := envOr("SEED_DIRECTOR_PASSWORD", "director123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_*_PASSWORD variables to override.")
	}

	now := time.Now().UTC()
	accounts := make([]domain.UserAccount, 0, 3)
	for _, u := range []struct {
		id       string
		email    string
		name     string
		password string
		role     domain.Role
	}{
		{"usr-admin", "admin@station.local", "Head Office Admin", adminPwd, domain.RoleAdmin},
		{"usr-director", "director@station.local", "Operations Director", directorPwd, domain.RoleDirector},
		{"usr-manager", "manager@station.local", "Ikeja Station Manager", managerPwd, domain.RoleManager},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		accounts = append(accounts, domain.UserAccount{
			ID:        u.id,
			Email:     u.email,
			Name:      u.name,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		})
	}
	return accounts
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// --- Directory seeding (used by NewSeeded and tests) ---

func (s *Store) AddStation(station domain.Station) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stations[station.ID] = station
}

func (s *Store) AddPump(pump domain.Pump) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pumps[pump.ID] = pump
}

func (s *Store) AddUserAccount(acct domain.UserAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[acct.ID] = acct
	s.usersByEmail[strings.ToLower(acct.Email)] = acct.ID
}

// --- StationDirectory ---

func (s *Store) FindPumpWithStation(_ context.Context, pumpID string) (*domain.Pump, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pump, ok := s.pumps[pumpID]
	if !ok {
		return nil, store.ErrNotFound
	}
	station, ok := s.stations[pump.StationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	pump.Station = station
	return &pump, nil
}

func (s *Store) FindStation(_ context.Context, stationID string) (*domain.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	station, ok := s.stations[stationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &station, nil
}

func (s *Store) FindUser(_ context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := accountToUser(acct)
	return &user, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, store.ErrNotFound
	}
	acct := s.users[id]
	return &acct, nil
}

func accountToUser(acct domain.UserAccount) domain.User {
	return domain.User{
		ID:     acct.ID,
		Email:  acct.Email,
		Name:   acct.Name,
		Role:   acct.Role,
		Active: acct.Active,
	}
}

// --- Sales ---

func pumpDayKey(pumpID string, recordDate string) string {
	return pumpID + "|" + recordDate
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pumps[sale.PumpID]; !ok {
		return nil, store.ErrNotFound
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.UpdatedAt = sale.CreatedAt

	s.sales[sale.ID] = sale
	s.applyPumpDayDeltaLocked(sale.PumpID, sale.StationID, store.DateOf(sale.CreatedAt), sale.Volume(), sale.TotalPrice)

	created := sale
	s.attachSaleRelationsLocked(&created)
	return &created, nil
}

// applyPumpDayDeltaLocked accumulates into the (pump, date) rollup,
// creating the row on first touch. Callers must hold the write lock.
func (s *Store) applyPumpDayDeltaLocked(pumpID string, stationID string, recordDate string, volumeDelta decimal.Decimal, revenueDelta decimal.Decimal) domain.PumpDailyRecord {
	key := pumpDayKey(pumpID, recordDate)
	rec, ok := s.pumpDays[key]
	if !ok {
		rec = domain.PumpDailyRecord{
			ID:           xid.New("pdr"),
			PumpID:       pumpID,
			StationID:    stationID,
			RecordDate:   recordDate,
			VolumeSold:   decimal.Zero,
			TotalRevenue: decimal.Zero,
			CreatedAt:    time.Now().UTC(),
		}
	}
	rec.VolumeSold = rec.VolumeSold.Add(volumeDelta)
	rec.TotalRevenue = rec.TotalRevenue.Add(revenueDelta)
	s.pumpDays[key] = rec
	return rec
}

func (s *Store) attachSaleRelationsLocked(sale *domain.Sale) {
	if pump, ok := s.pumps[sale.PumpID]; ok {
		if station, ok := s.stations[pump.StationID]; ok {
			pump.Station = station
		}
		sale.Pump = &pump
	}
	if station, ok := s.stations[sale.StationID]; ok {
		sale.Station = &station
	}
	if acct, ok := s.users[sale.RecordedByID]; ok {
		user := accountToUser(acct)
		sale.RecordedBy = &user
	}
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	s.attachSaleRelationsLocked(&sale)
	return &sale, nil
}

func (s *Store) ListSales(_ context.Context, page int, limit int) ([]domain.Sale, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sortedSalesLocked()
	total := int64(len(all))

	start := (page - 1) * limit
	if start >= len(all) {
		return []domain.Sale{}, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	out := make([]domain.Sale, 0, end-start)
	for _, sale := range all[start:end] {
		s.attachSaleRelationsLocked(&sale)
		out = append(out, sale)
	}
	return out, total, nil
}

func (s *Store) ListSalesByStation(_ context.Context, stationID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, 32)
	for _, sale := range s.sortedSalesLocked() {
		if sale.StationID != stationID {
			continue
		}
		s.attachSaleRelationsLocked(&sale)
		out = append(out, sale)
	}
	return out, nil
}

// sortedSalesLocked returns all sales newest first.
func (s *Store) sortedSalesLocked() []domain.Sale {
	all := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		all = append(all, sale)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all
}

func (s *Store) UpdateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.sales[sale.ID]
	if !ok {
		return nil, store.ErrNotFound
	}

	sale.CreatedAt = old.CreatedAt
	sale.UpdatedAt = time.Now().UTC()
	s.sales[sale.ID] = sale

	// Compensate the rollup of the sale's original calendar day so the
	// ledger and the aggregate cannot drift apart.
	volumeDelta := sale.Volume().Sub(old.Volume())
	revenueDelta := sale.TotalPrice.Sub(old.TotalPrice)
	s.applyPumpDayDeltaLocked(old.PumpID, old.StationID, store.DateOf(old.CreatedAt), volumeDelta, revenueDelta)

	updated := sale
	s.attachSaleRelationsLocked(&updated)
	return &updated, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.sales, id)
	s.applyPumpDayDeltaLocked(sale.PumpID, sale.StationID, store.DateOf(sale.CreatedAt), sale.Volume().Neg(), sale.TotalPrice.Neg())
	return nil
}

// --- Pump daily records ---

func (s *Store) UpsertPumpDay(_ context.Context, pumpID string, stationID string, recordDate string, volumeDelta decimal.Decimal, revenueDelta decimal.Decimal) (*domain.PumpDailyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pumps[pumpID]; !ok {
		return nil, store.ErrNotFound
	}
	rec := s.applyPumpDayDeltaLocked(pumpID, stationID, recordDate, volumeDelta, revenueDelta)
	return &rec, nil
}

func (s *Store) ListPumpDaysByStation(_ context.Context, stationID string, recordDate string) ([]domain.PumpDailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PumpDailyRecord, 0, 16)
	for _, rec := range s.pumpDays {
		if rec.StationID != stationID {
			continue
		}
		if recordDate != "" && rec.RecordDate != recordDate {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RecordDate == out[j].RecordDate {
			return out[i].PumpID < out[j].PumpID
		}
		return out[i].RecordDate > out[j].RecordDate
	})
	return out, nil
}

// --- Supplies ---

func (s *Store) CreateSupply(_ context.Context, supply domain.Supply) (*domain.Supply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stations[supply.StationID]; !ok {
		return nil, store.ErrNotFound
	}
	if supply.ID == "" {
		supply.ID = xid.New("sup")
	}
	now := time.Now().UTC()
	if supply.CreatedAt.IsZero() {
		supply.CreatedAt = now
	}
	supply.UpdatedAt = supply.CreatedAt
	supply.Status = domain.SupplyPending

	s.supplies[supply.ID] = supply
	created := supply
	s.attachSupplyRelationsLocked(&created)
	return &created, nil
}

func (s *Store) attachSupplyRelationsLocked(supply *domain.Supply) {
	if station, ok := s.stations[supply.StationID]; ok {
		supply.Station = &station
	}
	if acct, ok := s.users[supply.RequestedBy]; ok {
		user := accountToUser(acct)
		supply.Requester = &user
	}
	if supply.ApprovedBy != "" {
		if acct, ok := s.users[supply.ApprovedBy]; ok {
			user := accountToUser(acct)
			supply.Approver = &user
		}
	}
}

func (s *Store) GetSupply(_ context.Context, id string) (*domain.Supply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supply, ok := s.supplies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	s.attachSupplyRelationsLocked(&supply)
	return &supply, nil
}

func (s *Store) ListSupplies(_ context.Context) ([]domain.Supply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listSuppliesLocked(""), nil
}

func (s *Store) ListSuppliesByStation(_ context.Context, stationID string) ([]domain.Supply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listSuppliesLocked(stationID), nil
}

func (s *Store) listSuppliesLocked(stationID string) []domain.Supply {
	out := make([]domain.Supply, 0, len(s.supplies))
	for _, supply := range s.supplies {
		if stationID != "" && supply.StationID != stationID {
			continue
		}
		s.attachSupplyRelationsLocked(&supply)
		out = append(out, supply)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) TransitionSupply(_ context.Context, id string, next domain.SupplyStatus, approverID string, at time.Time) (*domain.Supply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supply, ok := s.supplies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if supply.Status.IsTerminal() || !supply.Status.CanTransitionTo(next) {
		return nil, store.ErrStateConflict
	}

	supply.Status = next
	supply.ApprovedBy = approverID
	supply.UpdatedAt = at

	if next == domain.SupplyDelivered {
		delivered := at
		supply.DeliveryDate = &delivered

		// Credit the station counter under the same lock hold so the
		// credit and the status write land together, exactly once.
		station := s.stations[supply.StationID]
		switch supply.Product {
		case domain.ProductPetrol:
			station.PetrolVolume = station.PetrolVolume.Add(supply.Quantity)
		case domain.ProductDiesel:
			station.DieselVolume = station.DieselVolume.Add(supply.Quantity)
		}
		s.stations[supply.StationID] = station
	}

	s.supplies[id] = supply
	updated := supply
	s.attachSupplyRelationsLocked(&updated)
	return &updated, nil
}

func (s *Store) RefuelTrends(_ context.Context, stationID string, since time.Time) ([]domain.RefuelTrendPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := make(map[string]decimal.Decimal)
	for _, supply := range s.supplies {
		if supply.Status != domain.SupplyDelivered || supply.DeliveryDate == nil {
			continue
		}
		if stationID != "" && supply.StationID != stationID {
			continue
		}
		if supply.DeliveryDate.Before(since) {
			continue
		}
		key := store.DateOf(*supply.DeliveryDate) + "|" + string(supply.Product)
		buckets[key] = buckets[key].Add(supply.Quantity)
	}

	out := make([]domain.RefuelTrendPoint, 0, len(buckets))
	for key, qty := range buckets {
		parts := strings.SplitN(key, "|", 2)
		out = append(out, domain.RefuelTrendPoint{
			Date:          parts[0],
			Product:       domain.Product(parts[1]),
			TotalQuantity: qty,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date == out[j].Date {
			return out[i].Product < out[j].Product
		}
		return out[i].Date < out[j].Date
	})
	return out, nil
}

func (s *Store) LastRestock(_ context.Context, stationID string) (domain.LastRestockResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var resp domain.LastRestockResponse
	for _, supply := range s.supplies {
		if supply.StationID != stationID || supply.Status != domain.SupplyDelivered || supply.DeliveryDate == nil {
			continue
		}
		entry := &domain.LastRestockEntry{Quantity: supply.Quantity, Date: supply.DeliveryDate}
		switch supply.Product {
		case domain.ProductPetrol:
			if resp.Petrol == nil || resp.Petrol.Date.Before(*supply.DeliveryDate) {
				resp.Petrol = entry
			}
		case domain.ProductDiesel:
			if resp.Diesel == nil || resp.Diesel.Date.Before(*supply.DeliveryDate) {
				resp.Diesel = entry
			}
		}
	}
	return resp, nil
}

// --- Sale-ledger aggregates ---

func (s *Store) SumSales(_ context.Context, stationID string, from time.Time, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, sale := range s.sales {
		if stationID != "" && sale.StationID != stationID {
			continue
		}
		if !inRange(sale.CreatedAt, from, to) {
			continue
		}
		total = total.Add(sale.TotalPrice)
	}
	return total, nil
}

func inRange(at time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}

func (s *Store) RevenueByDateProduct(_ context.Context, from time.Time) ([]store.DateProductRevenue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := make(map[string]decimal.Decimal)
	for _, sale := range s.sales {
		if sale.CreatedAt.Before(from) {
			continue
		}
		key := store.DateOf(sale.CreatedAt) + "|" + string(sale.Product)
		buckets[key] = buckets[key].Add(sale.TotalPrice)
	}

	out := make([]store.DateProductRevenue, 0, len(buckets))
	for key, revenue := range buckets {
		parts := strings.SplitN(key, "|", 2)
		out = append(out, store.DateProductRevenue{
			Date:    parts[0],
			Product: domain.Product(parts[1]),
			Revenue: revenue,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *Store) VolumeByProduct(_ context.Context, from time.Time, to time.Time) (map[domain.Product]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.Product]decimal.Decimal)
	for _, sale := range s.sales {
		if !inRange(sale.CreatedAt, from, to) {
			continue
		}
		out[sale.Product] = out[sale.Product].Add(sale.Volume())
	}
	return out, nil
}

func (s *Store) StationRevenue(_ context.Context, from time.Time, to time.Time) ([]domain.StationSalesTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := make(map[string]decimal.Decimal)
	for _, sale := range s.sales {
		if !inRange(sale.CreatedAt, from, to) {
			continue
		}
		buckets[sale.StationID] = buckets[sale.StationID].Add(sale.TotalPrice)
	}

	out := make([]domain.StationSalesTotal, 0, len(buckets))
	for stationID, total := range buckets {
		name := stationID
		if station, ok := s.stations[stationID]; ok {
			name = station.Name
		}
		out = append(out, domain.StationSalesTotal{StationID: stationID, StationName: name, TotalSales: total})
	}
	sort.Slice(out, func(i, j int) bool {
		cmp := out[i].TotalSales.Cmp(out[j].TotalSales)
		if cmp == 0 {
			return out[i].StationID < out[j].StationID
		}
		return cmp > 0
	})
	return out, nil
}

func (s *Store) StationDailyRevenue(_ context.Context, from time.Time) ([]store.StationDailyRevenue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucketKey struct {
		stationID string
		date      string
		product   domain.Product
	}
	buckets := make(map[bucketKey]decimal.Decimal)
	for _, sale := range s.sales {
		if sale.CreatedAt.Before(from) {
			continue
		}
		key := bucketKey{sale.StationID, store.DateOf(sale.CreatedAt), sale.Product}
		buckets[key] = buckets[key].Add(sale.TotalPrice)
	}

	out := make([]store.StationDailyRevenue, 0, len(buckets))
	for key, revenue := range buckets {
		name := key.stationID
		if station, ok := s.stations[key.stationID]; ok {
			name = station.Name
		}
		out = append(out, store.StationDailyRevenue{
			StationID:   key.stationID,
			StationName: name,
			Date:        key.date,
			Product:     key.product,
			Revenue:     revenue,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StationID == out[j].StationID {
			return out[i].Date < out[j].Date
		}
		return out[i].StationID < out[j].StationID
	})
	return out, nil
}

func (s *Store) WeeklySales(_ context.Context) ([]domain.WeeklySalesPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := make(map[string]decimal.Decimal)
	for _, sale := range s.sales {
		year, week := sale.CreatedAt.UTC().ISOWeek()
		key := fmt.Sprintf("%d-W%02d", year, week)
		buckets[key] = buckets[key].Add(sale.TotalPrice)
	}

	out := make([]domain.WeeklySalesPoint, 0, len(buckets))
	for week, total := range buckets {
		out = append(out, domain.WeeklySalesPoint{Week: week, TotalSale: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Week < out[j].Week })
	return out, nil
}

func (s *Store) MonthlySales(_ context.Context) ([]domain.MonthlySalesPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := make(map[string]decimal.Decimal)
	for _, sale := range s.sales {
		key := sale.CreatedAt.UTC().Format("2006-01")
		buckets[key] = buckets[key].Add(sale.TotalPrice)
	}

	out := make([]domain.MonthlySalesPoint, 0, len(buckets))
	for month, total := range buckets {
		out = append(out, domain.MonthlySalesPoint{Month: month, TotalSale: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}
