package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store"
	"fuelstation/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS stations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			petrol_price_per_litre NUMERIC(20,4) NOT NULL DEFAULT 0,
			diesel_price_per_litre NUMERIC(20,4) NOT NULL DEFAULT 0,
			petrol_volume NUMERIC(20,4) NOT NULL DEFAULT 0,
			diesel_volume NUMERIC(20,4) NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS pumps (
			id TEXT PRIMARY KEY,
			pump_number INTEGER NOT NULL,
			dispensed_product TEXT NOT NULL,
			station_id TEXT NOT NULL REFERENCES stations(id)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			product TEXT NOT NULL,
			price_per_litre NUMERIC(20,4) NOT NULL,
			opening_meter_reading NUMERIC(20,4) NOT NULL,
			closing_meter_reading NUMERIC(20,4) NOT NULL,
			total_price NUMERIC(20,4) NOT NULL,
			pump_id TEXT NOT NULL REFERENCES pumps(id),
			station_id TEXT NOT NULL REFERENCES stations(id),
			recorded_by TEXT NOT NULL REFERENCES users(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_station_created ON sales (station_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS pump_daily_records (
			id TEXT PRIMARY KEY,
			pump_id TEXT NOT NULL REFERENCES pumps(id),
			station_id TEXT NOT NULL REFERENCES stations(id),
			record_date DATE NOT NULL,
			volume_sold NUMERIC(20,4) NOT NULL DEFAULT 0,
			total_revenue NUMERIC(20,4) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (pump_id, record_date)
		)`,
		`CREATE TABLE IF NOT EXISTS supplies (
			id TEXT PRIMARY KEY,
			station_id TEXT NOT NULL REFERENCES stations(id),
			product TEXT NOT NULL,
			quantity NUMERIC(20,4) NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			requested_by TEXT NOT NULL REFERENCES users(id),
			approved_by TEXT REFERENCES users(id),
			delivery_date TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_supplies_station_status ON supplies (station_id, status)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// --- Station directory ---

func (s *Store) FindPumpWithStation(ctx context.Context, pumpID string) (*domain.Pump, error) {
	var pump domain.Pump
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.pump_number, p.dispensed_product, p.station_id,
			st.id, st.name, st.address, st.status,
			st.petrol_price_per_litre, st.diesel_price_per_litre,
			st.petrol_volume, st.diesel_volume
		FROM pumps p
		JOIN stations st ON st.id = p.station_id
		WHERE p.id = $1
	`, pumpID).Scan(
		&pump.ID, &pump.PumpNumber, &pump.DispensedProduct, &pump.StationID,
		&pump.Station.ID, &pump.Station.Name, &pump.Station.Address, &pump.Station.Status,
		&pump.Station.PetrolPricePerLitre, &pump.Station.DieselPricePerLitre,
		&pump.Station.PetrolVolume, &pump.Station.DieselVolume,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &pump, nil
}

func (s *Store) FindStation(ctx context.Context, stationID string) (*domain.Station, error) {
	var station domain.Station
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, address, status,
			petrol_price_per_litre, diesel_price_per_litre,
			petrol_volume, diesel_volume
		FROM stations
		WHERE id = $1
	`, stationID).Scan(
		&station.ID, &station.Name, &station.Address, &station.Status,
		&station.PetrolPricePerLitre, &station.DieselPricePerLitre,
		&station.PetrolVolume, &station.DieselVolume,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &station, nil
}

func (s *Store) FindUser(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, active
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var acct domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password, role, active, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, email).Scan(&acct.ID, &acct.Email, &acct.Name, &acct.Password, &acct.Role, &acct.Active, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	acct.CreatedAt = acct.CreatedAt.UTC()
	return &acct, nil
}

// --- Sales ---

const saleColumns = `
	s.id, s.product, s.price_per_litre, s.opening_meter_reading, s.closing_meter_reading,
	s.total_price, s.pump_id, s.station_id, s.recorded_by, s.created_at, s.updated_at,
	p.id, p.pump_number, p.dispensed_product, p.station_id,
	st.id, st.name, st.address, st.status,
	st.petrol_price_per_litre, st.diesel_price_per_litre, st.petrol_volume, st.diesel_volume,
	u.id, u.email, u.name, u.role, u.active`

const saleJoins = `
	FROM sales s
	JOIN pumps p ON p.id = s.pump_id
	JOIN stations st ON st.id = s.station_id
	JOIN users u ON u.id = s.recorded_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var pump domain.Pump
	var station domain.Station
	var user domain.User
	err := row.Scan(
		&sale.ID, &sale.Product, &sale.PricePerLitre, &sale.OpeningMeterReading, &sale.ClosingMeterReading,
		&sale.TotalPrice, &sale.PumpID, &sale.StationID, &sale.RecordedByID, &sale.CreatedAt, &sale.UpdatedAt,
		&pump.ID, &pump.PumpNumber, &pump.DispensedProduct, &pump.StationID,
		&station.ID, &station.Name, &station.Address, &station.Status,
		&station.PetrolPricePerLitre, &station.DieselPricePerLitre, &station.PetrolVolume, &station.DieselVolume,
		&user.ID, &user.Email, &user.Name, &user.Role, &user.Active,
	)
	if err != nil {
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()
	pump.Station = station
	sale.Pump = &pump
	sale.Station = &station
	sale.RecordedBy = &user
	return &sale, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.UpdatedAt = sale.CreatedAt

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, product, price_per_litre, opening_meter_reading, closing_meter_reading,
			total_price, pump_id, station_id, recorded_by, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.Product, sale.PricePerLitre, sale.OpeningMeterReading, sale.ClosingMeterReading,
		sale.TotalPrice, sale.PumpID, sale.StationID, sale.RecordedByID, sale.CreatedAt, sale.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if err := upsertPumpDayTx(ctx, tx, sale.PumpID, sale.StationID, store.DateOf(sale.CreatedAt), sale.Volume(), sale.TotalPrice); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, sale.ID)
}

// upsertPumpDayTx accumulates into the unique (pump_id, record_date) row.
// The ON CONFLICT arm makes concurrent first writes for the same key collapse
// into one row instead of erroring.
func upsertPumpDayTx(ctx context.Context, tx *sql.Tx, pumpID string, stationID string, recordDate string, volumeDelta decimal.Decimal, revenueDelta decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pump_daily_records (id, pump_id, station_id, record_date, volume_sold, total_revenue, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
		ON CONFLICT (pump_id, record_date)
		DO UPDATE SET
			volume_sold = pump_daily_records.volume_sold + EXCLUDED.volume_sold,
			total_revenue = pump_daily_records.total_revenue + EXCLUDED.total_revenue
	`, xid.New("pdr"), pumpID, stationID, recordDate, volumeDelta, revenueDelta)
	return err
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+saleJoins+` WHERE s.id = $1`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, page int, limit int) ([]domain.Sale, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+saleJoins+`
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT $1 OFFSET $2
	`, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return sales, total, nil
}

func (s *Store) ListSalesByStation(ctx context.Context, stationID string) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+saleJoins+`
		WHERE s.station_id = $1
		ORDER BY s.created_at DESC, s.id DESC
	`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var old domain.Sale
	err = tx.QueryRowContext(ctx, `
		SELECT id, opening_meter_reading, closing_meter_reading, total_price, pump_id, station_id, created_at
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, sale.ID).Scan(&old.ID, &old.OpeningMeterReading, &old.ClosingMeterReading, &old.TotalPrice, &old.PumpID, &old.StationID, &old.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	old.CreatedAt = old.CreatedAt.UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE sales
		SET product = $2, price_per_litre = $3, opening_meter_reading = $4,
			closing_meter_reading = $5, total_price = $6, updated_at = now()
		WHERE id = $1
	`, sale.ID, sale.Product, sale.PricePerLitre, sale.OpeningMeterReading, sale.ClosingMeterReading, sale.TotalPrice)
	if err != nil {
		return nil, err
	}

	// The rollup of the sale's original calendar day absorbs the change so
	// ledger and aggregate stay in lockstep.
	volumeDelta := sale.Volume().Sub(old.Volume())
	revenueDelta := sale.TotalPrice.Sub(old.TotalPrice)
	if err := upsertPumpDayTx(ctx, tx, old.PumpID, old.StationID, store.DateOf(old.CreatedAt), volumeDelta, revenueDelta); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, sale.ID)
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var old domain.Sale
	err = tx.QueryRowContext(ctx, `
		SELECT id, opening_meter_reading, closing_meter_reading, total_price, pump_id, station_id, created_at
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&old.ID, &old.OpeningMeterReading, &old.ClosingMeterReading, &old.TotalPrice, &old.PumpID, &old.StationID, &old.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	old.CreatedAt = old.CreatedAt.UTC()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id); err != nil {
		return err
	}
	if err := upsertPumpDayTx(ctx, tx, old.PumpID, old.StationID, store.DateOf(old.CreatedAt), old.Volume().Neg(), old.TotalPrice.Neg()); err != nil {
		return err
	}

	return tx.Commit()
}

// --- Pump daily records ---

func (s *Store) UpsertPumpDay(ctx context.Context, pumpID string, stationID string, recordDate string, volumeDelta decimal.Decimal, revenueDelta decimal.Decimal) (*domain.PumpDailyRecord, error) {
	var rec domain.PumpDailyRecord
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO pump_daily_records (id, pump_id, station_id, record_date, volume_sold, total_revenue, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
		ON CONFLICT (pump_id, record_date)
		DO UPDATE SET
			volume_sold = pump_daily_records.volume_sold + EXCLUDED.volume_sold,
			total_revenue = pump_daily_records.total_revenue + EXCLUDED.total_revenue
		RETURNING id, pump_id, station_id, to_char(record_date, 'YYYY-MM-DD'), volume_sold, total_revenue, created_at
	`, xid.New("pdr"), pumpID, stationID, recordDate, volumeDelta, revenueDelta).Scan(
		&rec.ID, &rec.PumpID, &rec.StationID, &rec.RecordDate, &rec.VolumeSold, &rec.TotalRevenue, &rec.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func (s *Store) ListPumpDaysByStation(ctx context.Context, stationID string, recordDate string) ([]domain.PumpDailyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pump_id, station_id, to_char(record_date, 'YYYY-MM-DD'), volume_sold, total_revenue, created_at
		FROM pump_daily_records
		WHERE station_id = $1
			AND ($2 = '' OR record_date = $2::date)
		ORDER BY record_date DESC, pump_id ASC
	`, stationID, recordDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.PumpDailyRecord, 0, 32)
	for rows.Next() {
		var rec domain.PumpDailyRecord
		if err := rows.Scan(&rec.ID, &rec.PumpID, &rec.StationID, &rec.RecordDate, &rec.VolumeSold, &rec.TotalRevenue, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// --- Supplies ---

const supplyColumns = `
	sp.id, sp.station_id, sp.product, sp.quantity, sp.status,
	sp.requested_by, sp.approved_by, sp.delivery_date, sp.created_at, sp.updated_at,
	st.id, st.name, st.address, st.status,
	st.petrol_price_per_litre, st.diesel_price_per_litre, st.petrol_volume, st.diesel_volume,
	req.id, req.email, req.name, req.role, req.active,
	app.id, app.email, app.name, app.role, app.active`

const supplyJoins = `
	FROM supplies sp
	JOIN stations st ON st.id = sp.station_id
	JOIN users req ON req.id = sp.requested_by
	LEFT JOIN users app ON app.id = sp.approved_by`

func scanSupply(row rowScanner) (*domain.Supply, error) {
	var supply domain.Supply
	var station domain.Station
	var requester domain.User
	var approvedBy sql.NullString
	var deliveryDate sql.NullTime
	var appID, appEmail, appName, appRole sql.NullString
	var appActive sql.NullBool
	err := row.Scan(
		&supply.ID, &supply.StationID, &supply.Product, &supply.Quantity, &supply.Status,
		&supply.RequestedBy, &approvedBy, &deliveryDate, &supply.CreatedAt, &supply.UpdatedAt,
		&station.ID, &station.Name, &station.Address, &station.Status,
		&station.PetrolPricePerLitre, &station.DieselPricePerLitre, &station.PetrolVolume, &station.DieselVolume,
		&requester.ID, &requester.Email, &requester.Name, &requester.Role, &requester.Active,
		&appID, &appEmail, &appName, &appRole, &appActive,
	)
	if err != nil {
		return nil, err
	}
	supply.CreatedAt = supply.CreatedAt.UTC()
	supply.UpdatedAt = supply.UpdatedAt.UTC()
	if approvedBy.Valid {
		supply.ApprovedBy = approvedBy.String
	}
	if deliveryDate.Valid {
		d := deliveryDate.Time.UTC()
		supply.DeliveryDate = &d
	}
	supply.Station = &station
	supply.Requester = &requester
	if appID.Valid {
		supply.Approver = &domain.User{
			ID:     appID.String,
			Email:  appEmail.String,
			Name:   appName.String,
			Role:   domain.Role(appRole.String),
			Active: appActive.Bool,
		}
	}
	return &supply, nil
}

func (s *Store) CreateSupply(ctx context.Context, supply domain.Supply) (*domain.Supply, error) {
	if supply.ID == "" {
		supply.ID = xid.New("sup")
	}
	if supply.CreatedAt.IsZero() {
		supply.CreatedAt = time.Now().UTC()
	}
	supply.Status = domain.SupplyPending

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO supplies (id, station_id, product, quantity, status, requested_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
	`, supply.ID, supply.StationID, supply.Product, supply.Quantity, supply.Status, supply.RequestedBy, supply.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return s.GetSupply(ctx, supply.ID)
}

func (s *Store) GetSupply(ctx context.Context, id string) (*domain.Supply, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+supplyColumns+supplyJoins+` WHERE sp.id = $1`, id)
	supply, err := scanSupply(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return supply, nil
}

func (s *Store) ListSupplies(ctx context.Context) ([]domain.Supply, error) {
	return s.listSupplies(ctx, "")
}

func (s *Store) ListSuppliesByStation(ctx context.Context, stationID string) ([]domain.Supply, error) {
	return s.listSupplies(ctx, stationID)
}

func (s *Store) listSupplies(ctx context.Context, stationID string) ([]domain.Supply, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+supplyColumns+supplyJoins+`
		WHERE ($1 = '' OR sp.station_id = $1)
		ORDER BY sp.created_at DESC, sp.id DESC
	`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	supplies := make([]domain.Supply, 0, 32)
	for rows.Next() {
		supply, err := scanSupply(rows)
		if err != nil {
			return nil, err
		}
		supplies = append(supplies, *supply)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return supplies, nil
}

func (s *Store) TransitionSupply(ctx context.Context, id string, next domain.SupplyStatus, approverID string, at time.Time) (*domain.Supply, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.SupplyStatus
	var stationID string
	var product domain.Product
	var quantity decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		SELECT status, station_id, product, quantity
		FROM supplies
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&current, &stationID, &product, &quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if current.IsTerminal() || !current.CanTransitionTo(next) {
		return nil, store.ErrStateConflict
	}

	var deliveryDate any
	if next == domain.SupplyDelivered {
		deliveryDate = at
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE supplies
		SET status = $2, approved_by = $3, delivery_date = COALESCE($4, delivery_date), updated_at = $5
		WHERE id = $1
	`, id, next, approverID, deliveryDate, at)
	if err != nil {
		return nil, err
	}

	// The volume credit rides the same transaction as the DELIVERED write,
	// and the FOR UPDATE above serializes racing transitions, so a supply
	// can credit its station at most once.
	if next == domain.SupplyDelivered {
		var column string
		switch product {
		case domain.ProductPetrol:
			column = "petrol_volume"
		case domain.ProductDiesel:
			column = "diesel_volume"
		}
		if column != "" {
			_, err = tx.ExecContext(ctx, `
				UPDATE stations SET `+column+` = `+column+` + $2 WHERE id = $1
			`, stationID, quantity)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSupply(ctx, id)
}

func (s *Store) RefuelTrends(ctx context.Context, stationID string, since time.Time) ([]domain.RefuelTrendPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(delivery_date AT TIME ZONE 'UTC', 'YYYY-MM-DD'), product, COALESCE(SUM(quantity), 0)
		FROM supplies
		WHERE status = 'DELIVERED'
			AND delivery_date >= $1
			AND ($2 = '' OR station_id = $2)
		GROUP BY 1, 2
		ORDER BY 1 ASC, 2 ASC
	`, since, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.RefuelTrendPoint, 0, 32)
	for rows.Next() {
		var point domain.RefuelTrendPoint
		if err := rows.Scan(&point.Date, &point.Product, &point.TotalQuantity); err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

func (s *Store) LastRestock(ctx context.Context, stationID string) (domain.LastRestockResponse, error) {
	var resp domain.LastRestockResponse
	for _, product := range []domain.Product{domain.ProductPetrol, domain.ProductDiesel} {
		var entry domain.LastRestockEntry
		var delivered time.Time
		err := s.db.QueryRowContext(ctx, `
			SELECT quantity, delivery_date
			FROM supplies
			WHERE station_id = $1 AND product = $2 AND status = 'DELIVERED'
			ORDER BY delivery_date DESC
			LIMIT 1
		`, stationID, product).Scan(&entry.Quantity, &delivered)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return domain.LastRestockResponse{}, err
		}
		d := delivered.UTC()
		entry.Date = &d
		switch product {
		case domain.ProductPetrol:
			resp.Petrol = &entry
		case domain.ProductDiesel:
			resp.Diesel = &entry
		}
	}
	return resp, nil
}

// --- Sale-ledger aggregates ---

func (s *Store) SumSales(ctx context.Context, stationID string, from time.Time, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_price), 0)
		FROM sales
		WHERE ($1 = '' OR station_id = $1)
			AND ($2::timestamptz IS NULL OR created_at >= $2)
			AND ($3::timestamptz IS NULL OR created_at < $3)
	`, stationID, nullTime(from), nullTime(to)).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *Store) RevenueByDateProduct(ctx context.Context, from time.Time) ([]store.DateProductRevenue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD'), product, COALESCE(SUM(total_price), 0)
		FROM sales
		WHERE created_at >= $1
		GROUP BY 1, 2
		ORDER BY 1 ASC
	`, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := make([]store.DateProductRevenue, 0, 64)
	for rows.Next() {
		var bucket store.DateProductRevenue
		if err := rows.Scan(&bucket.Date, &bucket.Product, &bucket.Revenue); err != nil {
			return nil, err
		}
		buckets = append(buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buckets, nil
}

func (s *Store) VolumeByProduct(ctx context.Context, from time.Time, to time.Time) (map[domain.Product]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product, COALESCE(SUM(closing_meter_reading - opening_meter_reading), 0)
		FROM sales
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		GROUP BY product
	`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	volumes := make(map[domain.Product]decimal.Decimal, 4)
	for rows.Next() {
		var product domain.Product
		var volume decimal.Decimal
		if err := rows.Scan(&product, &volume); err != nil {
			return nil, err
		}
		volumes[product] = volume
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return volumes, nil
}

func (s *Store) StationRevenue(ctx context.Context, from time.Time, to time.Time) ([]domain.StationSalesTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.station_id, st.name, COALESCE(SUM(s.total_price), 0) AS total
		FROM sales s
		JOIN stations st ON st.id = s.station_id
		WHERE ($1::timestamptz IS NULL OR s.created_at >= $1)
			AND ($2::timestamptz IS NULL OR s.created_at < $2)
		GROUP BY s.station_id, st.name
		ORDER BY total DESC, s.station_id ASC
	`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make([]domain.StationSalesTotal, 0, 16)
	for rows.Next() {
		var total domain.StationSalesTotal
		if err := rows.Scan(&total.StationID, &total.StationName, &total.TotalSales); err != nil {
			return nil, err
		}
		totals = append(totals, total)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *Store) StationDailyRevenue(ctx context.Context, from time.Time) ([]store.StationDailyRevenue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.station_id, st.name, to_char(s.created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD'), s.product, COALESCE(SUM(s.total_price), 0)
		FROM sales s
		JOIN stations st ON st.id = s.station_id
		WHERE s.created_at >= $1
		GROUP BY 1, 2, 3, 4
		ORDER BY 1 ASC, 3 ASC
	`, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := make([]store.StationDailyRevenue, 0, 64)
	for rows.Next() {
		var bucket store.StationDailyRevenue
		if err := rows.Scan(&bucket.StationID, &bucket.StationName, &bucket.Date, &bucket.Product, &bucket.Revenue); err != nil {
			return nil, err
		}
		buckets = append(buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buckets, nil
}

func (s *Store) WeeklySales(ctx context.Context) ([]domain.WeeklySalesPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'IYYY-"W"IW'), COALESCE(SUM(total_price), 0)
		FROM sales
		GROUP BY 1
		ORDER BY 1 ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.WeeklySalesPoint, 0, 16)
	for rows.Next() {
		var point domain.WeeklySalesPoint
		if err := rows.Scan(&point.Week, &point.TotalSale); err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

func (s *Store) MonthlySales(ctx context.Context) ([]domain.MonthlySalesPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM'), COALESCE(SUM(total_price), 0)
		FROM sales
		GROUP BY 1
		ORDER BY 1 ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.MonthlySalesPoint, 0, 12)
	for rows.Next() {
		var point domain.MonthlySalesPoint
		if err := rows.Scan(&point.Month, &point.TotalSale); err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// --- helpers ---

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
