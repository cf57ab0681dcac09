package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Repositories bundles every repository over a single connection.
type Repositories struct {
	Market        *MarketIntelligenceRepository
	Construction  *ConstructionRepository
	Costs         *CostAnalysisRepository
	QualityOfLife *QualityOfLifeRepository
	HarMls        *HarMlsRepository
	Memories      *MemoryRepository
	Conversations *ConversationRepository
	Insights      *InsightRepository
	Refresh       *RefreshSourceRepository
	MarketView    *MarketViewRepository
}

// NewRepositories creates all repositories.
func NewRepositories(db DB) *Repositories {
	return &Repositories{
		Market:        NewMarketIntelligenceRepository(db),
		Construction:  NewConstructionRepository(db),
		Costs:         NewCostAnalysisRepository(db),
		QualityOfLife: NewQualityOfLifeRepository(db),
		HarMls:        NewHarMlsRepository(db),
		Memories:      NewMemoryRepository(db),
		Conversations: NewConversationRepository(db),
		Insights:      NewInsightRepository(db),
		Refresh:       NewRefreshSourceRepository(db),
		MarketView:    NewMarketViewRepository(db),
	}
}

// MarketIntelligenceRepository handles market_intelligence rows.
type MarketIntelligenceRepository struct {
	db DB
}

// NewMarketIntelligenceRepository creates a new market intelligence repository.
func NewMarketIntelligenceRepository(db DB) *MarketIntelligenceRepository {
	return &MarketIntelligenceRepository{db: db}
}

const marketColumns = `id, data_type, neighborhood, zip_code, market_share, competitors, cap_rate, roi,
	investment_score, gentrification_score, school_rating, foreign_investment_pct, institutional_pct,
	metric_name, metric_value, numeric_value, unit, period, category, sub_category, data_date,
	metadata, created_at`

// Create inserts a market intelligence row.
func (r *MarketIntelligenceRepository) Create(ctx context.Context, m *MarketIntelligence) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()

	query := `INSERT INTO market_intelligence (` + marketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.DataType, m.Neighborhood, m.ZipCode, m.MarketShare, m.Competitors, m.CapRate, m.ROI,
		m.InvestmentScore, m.GentrificationScore, m.SchoolRating, m.ForeignInvestmentPct, m.InstitutionalPct,
		m.MetricName, m.MetricValue, m.NumericValue, m.Unit, m.Period, m.Category, m.SubCategory,
		utcPtr(m.DataDate), m.Metadata, m.CreatedAt,
	)
	return err
}

// LatestByType returns the newest rows of a data type, newest first.
func (r *MarketIntelligenceRepository) LatestByType(ctx context.Context, dataType string, limit int) ([]*MarketIntelligence, error) {
	query := `SELECT ` + marketColumns + ` FROM market_intelligence
		WHERE data_type = $1
		ORDER BY data_date DESC, created_at DESC
		LIMIT $2`
	return r.list(ctx, query, dataType, limit)
}

// ListByNeighborhood returns rows for a neighborhood, newest first.
func (r *MarketIntelligenceRepository) ListByNeighborhood(ctx context.Context, neighborhood string, limit int) ([]*MarketIntelligence, error) {
	query := `SELECT ` + marketColumns + ` FROM market_intelligence
		WHERE LOWER(neighborhood) = LOWER($1)
		ORDER BY data_date DESC, created_at DESC
		LIMIT $2`
	return r.list(ctx, query, neighborhood, limit)
}

// CountByType returns the number of rows per data type.
func (r *MarketIntelligenceRepository) CountByType(ctx context.Context) (map[string]int, error) {
	return countGrouped(ctx, r.db, `SELECT data_type, COUNT(*) FROM market_intelligence GROUP BY data_type`)
}

func (r *MarketIntelligenceRepository) list(ctx context.Context, query string, args ...interface{}) ([]*MarketIntelligence, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MarketIntelligence
	for rows.Next() {
		m, err := scanMarketIntelligence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMarketIntelligence(s rowScanner) (*MarketIntelligence, error) {
	m := &MarketIntelligence{}
	err := s.Scan(
		&m.ID, &m.DataType, &m.Neighborhood, &m.ZipCode, &m.MarketShare, &m.Competitors, &m.CapRate, &m.ROI,
		&m.InvestmentScore, &m.GentrificationScore, &m.SchoolRating, &m.ForeignInvestmentPct, &m.InstitutionalPct,
		&m.MetricName, &m.MetricValue, &m.NumericValue, &m.Unit, &m.Period, &m.Category, &m.SubCategory,
		&m.DataDate, &m.Metadata, &m.CreatedAt,
	)
	return m, err
}

// ConstructionRepository handles construction_activity rows.
type ConstructionRepository struct {
	db DB
}

// NewConstructionRepository creates a new construction repository.
func NewConstructionRepository(db DB) *ConstructionRepository {
	return &ConstructionRepository{db: db}
}

const constructionColumns = `id, permit_number, permit_type, sub_type, address, zip_code, neighborhood,
	precinct, project_name, developer, contractor, estimated_cost, square_footage, units, permit_date,
	completion_date, status, description, metadata, created_at`

// Create inserts a permit or project.
func (r *ConstructionRepository) Create(ctx context.Context, c *ConstructionActivity) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now().UTC()

	query := `INSERT INTO construction_activity (` + constructionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.PermitNumber, c.PermitType, c.SubType, c.Address, c.ZipCode, c.Neighborhood,
		c.Precinct, c.ProjectName, c.Developer, c.Contractor, c.EstimatedCost, c.SquareFootage, c.Units,
		c.PermitDate.UTC(), utcPtr(c.CompletionDate), c.Status, c.Description, c.Metadata, c.CreatedAt,
	)
	return err
}

// ListRecent returns the most recent permits by permit date.
func (r *ConstructionRepository) ListRecent(ctx context.Context, limit int) ([]*ConstructionActivity, error) {
	query := `SELECT ` + constructionColumns + ` FROM construction_activity
		ORDER BY permit_date DESC, created_at DESC
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ConstructionActivity
	for rows.Next() {
		c := &ConstructionActivity{}
		if err := rows.Scan(
			&c.ID, &c.PermitNumber, &c.PermitType, &c.SubType, &c.Address, &c.ZipCode, &c.Neighborhood,
			&c.Precinct, &c.ProjectName, &c.Developer, &c.Contractor, &c.EstimatedCost, &c.SquareFootage, &c.Units,
			&c.PermitDate, &c.CompletionDate, &c.Status, &c.Description, &c.Metadata, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountSince counts permits created at or after since.
func (r *ConstructionRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM construction_activity WHERE created_at >= $1`, since.UTC(),
	).Scan(&n)
	return n, err
}

// ExistsByProjectName reports whether a project with this name is already stored.
func (r *ConstructionRepository) ExistsByProjectName(ctx context.Context, name string) (bool, error) {
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM construction_activity WHERE project_name = $1 LIMIT 1`, name,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// CostAnalysisRepository handles cost_analysis rows.
type CostAnalysisRepository struct {
	db DB
}

// NewCostAnalysisRepository creates a new cost analysis repository.
func NewCostAnalysisRepository(db DB) *CostAnalysisRepository {
	return &CostAnalysisRepository{db: db}
}

// Create inserts a cost record.
func (r *CostAnalysisRepository) Create(ctx context.Context, c *CostAnalysis) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO cost_analysis (id, analysis_type, location, cost_per_sqft, materials_cost, labor_cost,
			hourly_rate, skill_level, trade_type, price_per_acre, price_per_sqft, permit_type, base_fee,
			additional_fees, effective_date, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.AnalysisType, c.Location, c.CostPerSqft, c.MaterialsCost, c.LaborCost,
		c.HourlyRate, c.SkillLevel, c.TradeType, c.PricePerAcre, c.PricePerSqft, c.PermitType, c.BaseFee,
		c.AdditionalFees, c.EffectiveDate.UTC(), c.Metadata, c.CreatedAt,
	)
	return err
}

// CountByType returns the number of cost rows per analysis type.
func (r *CostAnalysisRepository) CountByType(ctx context.Context) (map[string]int, error) {
	return countGrouped(ctx, r.db, `SELECT analysis_type, COUNT(*) FROM cost_analysis GROUP BY analysis_type`)
}

// QualityOfLifeRepository handles quality_of_life rows.
type QualityOfLifeRepository struct {
	db DB
}

// NewQualityOfLifeRepository creates a new quality of life repository.
func NewQualityOfLifeRepository(db DB) *QualityOfLifeRepository {
	return &QualityOfLifeRepository{db: db}
}

// Create inserts a quality of life record.
func (r *QualityOfLifeRepository) Create(ctx context.Context, q *QualityOfLife) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	q.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO quality_of_life (id, zip_code, neighborhood, crime_rate, crime_reduction, safety_score,
			walk_score, transit_score, bike_score, data_date, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		q.ID, q.ZipCode, q.Neighborhood, q.CrimeRate, q.CrimeReduction, q.SafetyScore,
		q.WalkScore, q.TransitScore, q.BikeScore, q.DataDate.UTC(), q.Metadata, q.CreatedAt,
	)
	return err
}

// GetByZip returns the newest record for a zip code.
func (r *QualityOfLifeRepository) GetByZip(ctx context.Context, zip string) (*QualityOfLife, error) {
	query := `
		SELECT id, zip_code, neighborhood, crime_rate, crime_reduction, safety_score,
			walk_score, transit_score, bike_score, data_date, metadata, created_at
		FROM quality_of_life WHERE zip_code = $1
		ORDER BY data_date DESC, created_at DESC
		LIMIT 1
	`
	q := &QualityOfLife{}
	err := r.db.QueryRowContext(ctx, query, zip).Scan(
		&q.ID, &q.ZipCode, &q.Neighborhood, &q.CrimeRate, &q.CrimeReduction, &q.SafetyScore,
		&q.WalkScore, &q.TransitScore, &q.BikeScore, &q.DataDate, &q.Metadata, &q.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return q, err
}

func countGrouped(ctx context.Context, db DB, query string, args ...interface{}) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
