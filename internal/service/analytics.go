package service

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fuelstation/backend/internal/domain"
)

// withCache serves dest from the report cache when a fresh copy exists,
// otherwise runs compute and stores the result. Cache failures degrade to
// computing directly; reports must not break when redis is down.
func (s *Service) withCache(ctx context.Context, key string, dest any, compute func() error) error {
	payload, hit, err := s.reports.Get(ctx, key)
	if err != nil {
		log.Printf("[service] WARN: report cache get %s: %v", key, err)
	} else if hit {
		if err := json.Unmarshal(payload, dest); err == nil {
			return nil
		}
		log.Printf("[service] WARN: report cache entry %s is malformed, recomputing", key)
	}

	if err := compute(); err != nil {
		return err
	}

	payload, err = json.Marshal(dest)
	if err != nil {
		return nil
	}
	if err := s.reports.Set(ctx, key, payload, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: report cache set %s: %v", key, err)
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// --- Sale reports ---

func (s *Service) TotalSales(ctx context.Context) (decimal.Decimal, error) {
	return s.repo.SumSales(ctx, "", time.Time{}, time.Time{})
}

func (s *Service) TotalSalesByStation(ctx context.Context, stationID string) (decimal.Decimal, error) {
	if _, err := s.repo.FindStation(ctx, stationID); err != nil {
		return decimal.Zero, err
	}
	return s.repo.SumSales(ctx, stationID, time.Time{}, time.Time{})
}

func (s *Service) WeeklySalesReport(ctx context.Context) ([]domain.WeeklySalesPoint, error) {
	var points []domain.WeeklySalesPoint
	err := s.withCache(ctx, "reports:sales:weekly", &points, func() error {
		var err error
		points, err = s.repo.WeeklySales(ctx)
		return err
	})
	return points, err
}

func (s *Service) MonthlySalesReport(ctx context.Context) ([]domain.MonthlySalesPoint, error) {
	var points []domain.MonthlySalesPoint
	err := s.withCache(ctx, "reports:sales:monthly", &points, func() error {
		var err error
		points, err = s.repo.MonthlySales(ctx)
		return err
	})
	return points, err
}

// DailySalesByStation folds the station's pump daily rollups into one
// revenue figure per calendar day, newest first.
func (s *Service) DailySalesByStation(ctx context.Context, stationID string) ([]domain.DailySalesPoint, error) {
	if _, err := s.repo.FindStation(ctx, stationID); err != nil {
		return nil, err
	}

	records, err := s.repo.ListPumpDaysByStation(ctx, stationID, "")
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]decimal.Decimal, len(records))
	for _, rec := range records {
		byDate[rec.RecordDate] = byDate[rec.RecordDate].Add(rec.TotalRevenue)
	}

	points := make([]domain.DailySalesPoint, 0, len(byDate))
	for date, total := range byDate {
		points = append(points, domain.DailySalesPoint{Date: date, TotalSale: total})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date > points[j].Date })
	return points, nil
}

// --- Analytics ---

func (s *Service) MonthlySalesComparison(ctx context.Context) (domain.MonthlyComparison, error) {
	var out domain.MonthlyComparison
	err := s.withCache(ctx, "analytics:monthly-comparison", &out, func() error {
		now := time.Now().UTC()
		currentStart := startOfMonth(now)
		previousStart := startOfMonth(currentStart.AddDate(0, 0, -1))

		current, err := s.repo.SumSales(ctx, "", currentStart, time.Time{})
		if err != nil {
			return err
		}
		previous, err := s.repo.SumSales(ctx, "", previousStart, currentStart)
		if err != nil {
			return err
		}

		out = domain.MonthlyComparison{
			CurrentMonthTotal: current,
			LastMonthTotal:    previous,
			PercentageChange:  percentageChange(previous, current),
		}
		return nil
	})
	return out, err
}

func percentageChange(previous decimal.Decimal, current decimal.Decimal) float64 {
	if previous.IsZero() {
		if current.IsPositive() {
			return 100
		}
		return 0
	}
	return current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// SalesTrend30Days returns a dense series for the trailing 30 calendar
// days: every day appears even when nothing was sold.
func (s *Service) SalesTrend30Days(ctx context.Context) ([]domain.TrendPoint, error) {
	var points []domain.TrendPoint
	err := s.withCache(ctx, "analytics:trend-30d", &points, func() error {
		today := startOfDay(time.Now())
		from := today.AddDate(0, 0, -29)

		buckets, err := s.repo.RevenueByDateProduct(ctx, from)
		if err != nil {
			return err
		}

		byDate := make(map[string]domain.TrendPoint, 30)
		for _, bucket := range buckets {
			point := byDate[bucket.Date]
			point.Date = bucket.Date
			switch bucket.Product {
			case domain.ProductPetrol:
				point.Petrol = point.Petrol.Add(bucket.Revenue)
			case domain.ProductDiesel:
				point.Diesel = point.Diesel.Add(bucket.Revenue)
			}
			byDate[bucket.Date] = point
		}

		points = denseTrend(byDate, from, 30)
		return nil
	})
	return points, err
}

func denseTrend(byDate map[string]domain.TrendPoint, from time.Time, days int) []domain.TrendPoint {
	points := make([]domain.TrendPoint, 0, days)
	for i := 0; i < days; i++ {
		date := from.AddDate(0, 0, i).Format("2006-01-02")
		point, ok := byDate[date]
		if !ok {
			point = domain.TrendPoint{Petrol: decimal.Zero, Diesel: decimal.Zero}
		}
		point.Date = date
		points = append(points, point)
	}
	return points
}

func (s *Service) ProductComparison(ctx context.Context) (domain.ProductComparison, error) {
	var out domain.ProductComparison
	err := s.withCache(ctx, "analytics:product-comparison", &out, func() error {
		from := startOfDay(time.Now()).AddDate(0, 0, -29)
		volumes, err := s.repo.VolumeByProduct(ctx, from, time.Time{})
		if err != nil {
			return err
		}
		out = domain.ProductComparison{
			PetrolTotalVolume: volumes[domain.ProductPetrol],
			DieselTotalVolume: volumes[domain.ProductDiesel],
		}
		return nil
	})
	return out, err
}

// StationPerformanceYesterday ranks stations by yesterday's revenue. Top
// and bottom are slices of the same descending list, so with fewer than six
// stations the two sets overlap.
func (s *Service) StationPerformanceYesterday(ctx context.Context) (domain.StationPerformance, error) {
	var out domain.StationPerformance
	err := s.withCache(ctx, "analytics:station-performance", &out, func() error {
		today := startOfDay(time.Now())
		totals, err := s.repo.StationRevenue(ctx, today.AddDate(0, 0, -1), today)
		if err != nil {
			return err
		}

		top := len(totals)
		if top > 3 {
			top = 3
		}
		bottom := len(totals) - 3
		if bottom < 0 {
			bottom = 0
		}

		out = domain.StationPerformance{
			Top3:    append([]domain.StationSalesTotal{}, totals[:top]...),
			Bottom3: append([]domain.StationSalesTotal{}, totals[bottom:]...),
		}
		return nil
	})
	return out, err
}

func (s *Service) DailyStats(ctx context.Context) (domain.DailyStats, error) {
	var out domain.DailyStats
	err := s.withCache(ctx, "analytics:daily-stats", &out, func() error {
		now := time.Now().UTC()
		monthRevenue, err := s.repo.SumSales(ctx, "", startOfMonth(now), time.Time{})
		if err != nil {
			return err
		}
		volumes, err := s.repo.VolumeByProduct(ctx, startOfDay(now), time.Time{})
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, volume := range volumes {
			total = total.Add(volume)
		}
		out = domain.DailyStats{
			MonthRevenueTotal: monthRevenue,
			TodayVolumeTotal:  total,
			TodayPetrolVolume: volumes[domain.ProductPetrol],
			TodayDieselVolume: volumes[domain.ProductDiesel],
		}
		return nil
	})
	return out, err
}

// StationDailyTrends returns a dense 30-day revenue series per station.
func (s *Service) StationDailyTrends(ctx context.Context) ([]domain.StationDailyTrend, error) {
	var trends []domain.StationDailyTrend
	err := s.withCache(ctx, "analytics:station-daily-trend", &trends, func() error {
		today := startOfDay(time.Now())
		from := today.AddDate(0, 0, -29)

		buckets, err := s.repo.StationDailyRevenue(ctx, from)
		if err != nil {
			return err
		}

		names := make(map[string]string)
		byStation := make(map[string]map[string]domain.TrendPoint)
		for _, bucket := range buckets {
			names[bucket.StationID] = bucket.StationName
			byDate, ok := byStation[bucket.StationID]
			if !ok {
				byDate = make(map[string]domain.TrendPoint, 30)
				byStation[bucket.StationID] = byDate
			}
			point := byDate[bucket.Date]
			point.Date = bucket.Date
			switch bucket.Product {
			case domain.ProductPetrol:
				point.Petrol = point.Petrol.Add(bucket.Revenue)
			case domain.ProductDiesel:
				point.Diesel = point.Diesel.Add(bucket.Revenue)
			}
			byDate[bucket.Date] = point
		}

		stationIDs := make([]string, 0, len(byStation))
		for stationID := range byStation {
			stationIDs = append(stationIDs, stationID)
		}
		sort.Strings(stationIDs)

		trends = make([]domain.StationDailyTrend, 0, len(stationIDs))
		for _, stationID := range stationIDs {
			trends = append(trends, domain.StationDailyTrend{
				StationID:   stationID,
				StationName: names[stationID],
				Days:        denseTrend(byStation[stationID], from, 30),
			})
		}
		return nil
	})
	return trends, err
}
