package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// HarMlsRepository handles HAR MLS reports and their neighborhood rows.
type HarMlsRepository struct {
	db DB
}

// NewHarMlsRepository creates a new HAR MLS repository.
func NewHarMlsRepository(db DB) *HarMlsRepository {
	return &HarMlsRepository{db: db}
}

const reportColumns = `id, month, year, report_type, total_sales, total_volume, avg_sale_price,
	median_sale_price, price_per_sqft, sales_change_yoy, price_change_yoy, volume_change_yoy,
	active_listings, new_listings, pending_sales, months_inventory, avg_days_on_market,
	under_200k, from_200_to_400k, from_400_to_600k, from_600_to_800k, from_800k_to_1m, over_1m,
	single_family, townhouse, condo, metadata, created_at`

// UpsertReport inserts a report or overwrites the one with the same
// (month, year, report_type), returning the stored id.
func (r *HarMlsRepository) UpsertReport(ctx context.Context, rep *HarMlsReport) (uuid.UUID, error) {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	rep.CreatedAt = time.Now().UTC()

	query := `INSERT INTO har_mls_reports (` + reportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24, $25, $26, $27, $28)
		ON CONFLICT (month, year, report_type) DO UPDATE SET
			total_sales = EXCLUDED.total_sales,
			total_volume = EXCLUDED.total_volume,
			avg_sale_price = EXCLUDED.avg_sale_price,
			median_sale_price = EXCLUDED.median_sale_price,
			price_per_sqft = EXCLUDED.price_per_sqft,
			sales_change_yoy = EXCLUDED.sales_change_yoy,
			price_change_yoy = EXCLUDED.price_change_yoy,
			volume_change_yoy = EXCLUDED.volume_change_yoy,
			active_listings = EXCLUDED.active_listings,
			new_listings = EXCLUDED.new_listings,
			pending_sales = EXCLUDED.pending_sales,
			months_inventory = EXCLUDED.months_inventory,
			avg_days_on_market = EXCLUDED.avg_days_on_market,
			under_200k = EXCLUDED.under_200k,
			from_200_to_400k = EXCLUDED.from_200_to_400k,
			from_400_to_600k = EXCLUDED.from_400_to_600k,
			from_600_to_800k = EXCLUDED.from_600_to_800k,
			from_800k_to_1m = EXCLUDED.from_800k_to_1m,
			over_1m = EXCLUDED.over_1m,
			single_family = EXCLUDED.single_family,
			townhouse = EXCLUDED.townhouse,
			condo = EXCLUDED.condo,
			metadata = EXCLUDED.metadata
		RETURNING id`

	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, query,
		rep.ID, rep.Month, rep.Year, rep.ReportType, rep.TotalSales, rep.TotalVolume, rep.AvgSalePrice,
		rep.MedianSalePrice, rep.PricePerSqft, rep.SalesChangeYoY, rep.PriceChangeYoY, rep.VolumeChangeYoY,
		rep.ActiveListings, rep.NewListings, rep.PendingSales, rep.MonthsInventory, rep.AvgDaysOnMarket,
		rep.Under200k, rep.From200to400k, rep.From400to600k, rep.From600to800k, rep.From800kTo1M, rep.Over1M,
		rep.SingleFamily, rep.Townhouse, rep.Condo, rep.Metadata, rep.CreatedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	rep.ID = id
	return id, nil
}

// EnsureDefaultReport creates an empty report for a period when none exists.
// An existing report only has its metadata replaced.
func (r *HarMlsRepository) EnsureDefaultReport(ctx context.Context, month, year int, reportType string, metadata JSON) (uuid.UUID, error) {
	query := `
		INSERT INTO har_mls_reports (id, month, year, report_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (month, year, report_type) DO UPDATE SET metadata = EXCLUDED.metadata
		RETURNING id
	`
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, query,
		uuid.New(), month, year, reportType, metadata, time.Now().UTC(),
	).Scan(&id)
	return id, err
}

// GetReport returns the report for a period.
func (r *HarMlsRepository) GetReport(ctx context.Context, month, year int, reportType string) (*HarMlsReport, error) {
	query := `SELECT ` + reportColumns + ` FROM har_mls_reports
		WHERE month = $1 AND year = $2 AND report_type = $3`
	rep, err := scanReport(r.db.QueryRowContext(ctx, query, month, year, reportType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rep, err
}

// LatestReports returns reports ordered newest period first.
func (r *HarMlsRepository) LatestReports(ctx context.Context, limit int) ([]*HarMlsReport, error) {
	query := `SELECT ` + reportColumns + ` FROM har_mls_reports
		ORDER BY year DESC, month DESC, report_type
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*HarMlsReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func scanReport(s rowScanner) (*HarMlsReport, error) {
	rep := &HarMlsReport{}
	err := s.Scan(
		&rep.ID, &rep.Month, &rep.Year, &rep.ReportType, &rep.TotalSales, &rep.TotalVolume, &rep.AvgSalePrice,
		&rep.MedianSalePrice, &rep.PricePerSqft, &rep.SalesChangeYoY, &rep.PriceChangeYoY, &rep.VolumeChangeYoY,
		&rep.ActiveListings, &rep.NewListings, &rep.PendingSales, &rep.MonthsInventory, &rep.AvgDaysOnMarket,
		&rep.Under200k, &rep.From200to400k, &rep.From400to600k, &rep.From600to800k, &rep.From800kTo1M, &rep.Over1M,
		&rep.SingleFamily, &rep.Townhouse, &rep.Condo, &rep.Metadata, &rep.CreatedAt,
	)
	return rep, err
}

// CreateNeighborhood inserts a neighborhood row for a report.
func (r *HarMlsRepository) CreateNeighborhood(ctx context.Context, n *HarNeighborhoodData) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO har_neighborhood_data (id, report_id, neighborhood, zip_code, total_sales, avg_sale_price,
			median_sale_price, price_per_sqft, active_listings, months_inventory, avg_days_on_market,
			list_to_sale_ratio, seller_concessions, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.ReportID, n.Neighborhood, n.ZipCode, n.TotalSales, n.AvgSalePrice,
		n.MedianSalePrice, n.PricePerSqft, n.ActiveListings, n.MonthsInventory, n.AvgDaysOnMarket,
		n.ListToSaleRatio, n.SellerConcessions, n.Metadata, n.CreatedAt,
	)
	return err
}

// ImportStatus summarises the reports of a year in month order.
func (r *HarMlsRepository) ImportStatus(ctx context.Context, year int) ([]ReportStatus, error) {
	query := `
		SELECT r.month, r.year, r.report_type, r.total_sales, r.avg_sale_price,
			COUNT(n.id), r.created_at
		FROM har_mls_reports r
		LEFT JOIN har_neighborhood_data n ON n.report_id = r.id
		WHERE r.year = $1
		GROUP BY r.id, r.month, r.year, r.report_type, r.total_sales, r.avg_sale_price, r.created_at
		ORDER BY r.month, r.report_type
	`
	rows, err := r.db.QueryContext(ctx, query, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReportStatus
	for rows.Next() {
		var s ReportStatus
		if err := rows.Scan(&s.Month, &s.Year, &s.ReportType, &s.TotalSales, &s.AvgSalePrice,
			&s.NeighborhoodCount, &s.ImportedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const pointColumns = `n.id, n.report_id, n.neighborhood, n.zip_code, n.total_sales, n.avg_sale_price,
	n.median_sale_price, n.price_per_sqft, n.active_listings, n.months_inventory, n.avg_days_on_market,
	n.list_to_sale_ratio, n.seller_concessions, n.metadata, n.created_at, r.month, r.year, r.report_type`

// NeighborhoodSeries returns one neighborhood's rows, newest period first.
func (r *HarMlsRepository) NeighborhoodSeries(ctx context.Context, neighborhood string, limit int) ([]NeighborhoodPoint, error) {
	query := `SELECT ` + pointColumns + `
		FROM har_neighborhood_data n
		JOIN har_mls_reports r ON r.id = n.report_id
		WHERE LOWER(n.neighborhood) = LOWER($1)
		ORDER BY r.year DESC, r.month DESC, n.created_at DESC
		LIMIT $2`
	return r.points(ctx, query, neighborhood, limit)
}

// NeighborhoodPoints returns neighborhood rows across all reports, newest
// period first.
func (r *HarMlsRepository) NeighborhoodPoints(ctx context.Context, limit int) ([]NeighborhoodPoint, error) {
	query := `SELECT ` + pointColumns + `
		FROM har_neighborhood_data n
		JOIN har_mls_reports r ON r.id = n.report_id
		ORDER BY r.year DESC, r.month DESC, n.created_at DESC
		LIMIT $1`
	return r.points(ctx, query, limit)
}

func (r *HarMlsRepository) points(ctx context.Context, query string, args ...interface{}) ([]NeighborhoodPoint, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NeighborhoodPoint
	for rows.Next() {
		var p NeighborhoodPoint
		if err := rows.Scan(
			&p.ID, &p.ReportID, &p.Neighborhood, &p.ZipCode, &p.TotalSales, &p.AvgSalePrice,
			&p.MedianSalePrice, &p.PricePerSqft, &p.ActiveListings, &p.MonthsInventory, &p.AvgDaysOnMarket,
			&p.ListToSaleRatio, &p.SellerConcessions, &p.Metadata, &p.CreatedAt, &p.Month, &p.Year, &p.ReportType,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
