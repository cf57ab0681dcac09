package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// MarketViewRepository answers filtered market intelligence reads with
// caching guidance for the API layer.
type MarketViewRepository struct {
	db DB
}

// NewMarketViewRepository creates a new market view repository.
func NewMarketViewRepository(db DB) *MarketViewRepository {
	return &MarketViewRepository{db: db}
}

// MarketViewQuery filters market intelligence rows.
type MarketViewQuery struct {
	DataTypes     []string
	Neighborhoods []string
	ZipCode       *string
	Category      *string
	Since         *time.Time
	Limit         int
	Offset        int
}

// MarketViewResult contains the query result with cache hints.
type MarketViewResult struct {
	Rows       []*MarketIntelligence `json:"rows"`
	TotalCount int                   `json:"total_count"`
	CacheHint  CacheHint             `json:"cache_hint"`
	ComputedAt time.Time             `json:"computed_at"`
}

// CacheHint provides caching guidance for the result.
type CacheHint struct {
	Cacheable bool          `json:"cacheable"`
	TTL       time.Duration `json:"ttl"`
	Key       string        `json:"key"`
	// Version is the newest created_at in the result, as unix seconds.
	Version int64 `json:"version"`
}

// Query executes a filtered read.
func (r *MarketViewRepository) Query(ctx context.Context, q MarketViewQuery) (*MarketViewResult, error) {
	var (
		where []string
		args  []interface{}
	)
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(q.DataTypes) > 0 {
		where = append(where, "data_type IN ("+placeholders(len(q.DataTypes), next, q.DataTypes)+")")
	}
	if len(q.Neighborhoods) > 0 {
		lowered := make([]string, len(q.Neighborhoods))
		for i, n := range q.Neighborhoods {
			lowered[i] = strings.ToLower(n)
		}
		where = append(where, "LOWER(neighborhood) IN ("+placeholders(len(lowered), next, lowered)+")")
	}
	if q.ZipCode != nil {
		where = append(where, "zip_code = "+next(*q.ZipCode))
	}
	if q.Category != nil {
		where = append(where, "category = "+next(*q.Category))
	}
	if q.Since != nil {
		where = append(where, "created_at >= "+next(q.Since.UTC()))
	}

	query := `SELECT ` + marketColumns + ` FROM market_intelligence`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY data_type, neighborhood, data_date DESC"

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT " + next(limit)
	if q.Offset > 0 {
		query += " OFFSET " + next(q.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MarketIntelligence
	var newest time.Time
	for rows.Next() {
		m, err := scanMarketIntelligence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
		if m.CreatedAt.After(newest) {
			newest = m.CreatedAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var version int64
	if !newest.IsZero() {
		version = newest.Unix()
	}
	return &MarketViewResult{
		Rows:       out,
		TotalCount: len(out),
		CacheHint:  computeCacheHint(q, version),
		ComputedAt: time.Now().UTC(),
	}, nil
}

// SearchByKeyword matches a keyword against neighborhood, metric name and value.
func (r *MarketViewRepository) SearchByKeyword(ctx context.Context, keyword string, limit int) ([]*MarketIntelligence, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + marketColumns + ` FROM market_intelligence
		WHERE UPPER(COALESCE(neighborhood, '')) LIKE '%' || UPPER($1) || '%'
			OR UPPER(COALESCE(metric_name, '')) LIKE '%' || UPPER($1) || '%'
			OR UPPER(COALESCE(metric_value, '')) LIKE '%' || UPPER($1) || '%'
		ORDER BY data_date DESC, created_at DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, keyword, limit)
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

// DataTypes returns every distinct data type.
func (r *MarketViewRepository) DataTypes(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT data_type FROM market_intelligence ORDER BY data_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func placeholders(n int, next func(interface{}) string, values []string) string {
	ph := make([]string, n)
	for i := 0; i < n; i++ {
		ph[i] = next(values[i])
	}
	return strings.Join(ph, ", ")
}

// computeCacheHint derives a stable key and TTL for a query.
func computeCacheHint(q MarketViewQuery, version int64) CacheHint {
	key := "market_view"
	if len(q.DataTypes) > 0 {
		types := append([]string(nil), q.DataTypes...)
		sort.Strings(types)
		key += ":types:" + strings.Join(types, ",")
	}
	if len(q.Neighborhoods) > 0 {
		names := make([]string, len(q.Neighborhoods))
		for i, n := range q.Neighborhoods {
			names[i] = strings.ToLower(n)
		}
		sort.Strings(names)
		key += ":areas:" + strings.Join(names, ",")
	}
	if q.ZipCode != nil {
		key += ":zip:" + *q.ZipCode
	}
	if q.Category != nil {
		key += ":cat:" + *q.Category
	}
	key += fmt.Sprintf(":%d:%d", q.Limit, q.Offset)

	// Imported data changes monthly; narrow queries are refreshed sooner.
	ttl := 5 * time.Minute
	if len(q.Neighborhoods) > 0 || q.ZipCode != nil {
		ttl = 2 * time.Minute
	}

	return CacheHint{
		Cacheable: q.Since == nil,
		TTL:       ttl,
		Key:       key,
		Version:   version,
	}
}
