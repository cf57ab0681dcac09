package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository handles fernando_memories rows.
type MemoryRepository struct {
	db DB
}

// NewMemoryRepository creates a new memory repository.
func NewMemoryRepository(db DB) *MemoryRepository {
	return &MemoryRepository{db: db}
}

const memoryColumns = `id, user_id, session_id, memory_type, content, importance, embedding,
	access_count, last_accessed, metadata, created_at`

// Create inserts a memory.
func (r *MemoryRepository) Create(ctx context.Context, m *Memory) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	if m.LastAccessed.IsZero() {
		m.LastAccessed = now
	}

	query := `INSERT INTO fernando_memories (` + memoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.UserID, m.SessionID, m.MemoryType, m.Content, m.Importance, m.Embedding,
		m.AccessCount, m.LastAccessed.UTC(), m.Metadata, m.CreatedAt,
	)
	return err
}

// Search returns memories matching the filter ordered by importance, then
// recency of access.
func (r *MemoryRepository) Search(ctx context.Context, f MemoryFilter) ([]*Memory, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.SessionID != "" {
		add("session_id = $%d", f.SessionID)
	}
	if f.MemoryType != "" {
		add("memory_type = $%d", f.MemoryType)
	}
	if f.MinImportance != nil {
		add("importance >= $%d", *f.MinImportance)
	}

	query := `SELECT ` + memoryColumns + ` FROM fernando_memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY importance DESC, last_accessed DESC LIMIT $%d", len(args))

	return r.list(ctx, query, args...)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// SearchByContent returns memories whose type matches the LIKE pattern
// typePattern and whose content contains at least one of keywords,
// ignoring case. Rows are ordered by importance and capped at limit.
func (r *MemoryRepository) SearchByContent(ctx context.Context, typePattern string, keywords []string, limit int) ([]*Memory, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	args := []interface{}{typePattern}
	clauses := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(kw))+"%")
		clauses = append(clauses, fmt.Sprintf(`LOWER(CAST(content AS TEXT)) LIKE $%d ESCAPE '\'`, len(args)))
	}
	args = append(args, limit)

	query := `SELECT ` + memoryColumns + ` FROM fernando_memories
		WHERE memory_type LIKE $1 AND (` + strings.Join(clauses, " OR ") + `)
		ORDER BY importance DESC, created_at
		LIMIT $` + fmt.Sprint(len(args))
	return r.list(ctx, query, args...)
}

// Touch bumps the access count and last access time of the given memories.
func (r *MemoryRepository) Touch(ctx context.Context, ids []uuid.UUID) error {
	now := time.Now().UTC()
	for _, id := range ids {
		if _, err := r.db.ExecContext(ctx,
			`UPDATE fernando_memories SET access_count = access_count + 1, last_accessed = $1 WHERE id = $2`,
			now, id,
		); err != nil {
			return fmt.Errorf("touch memory %s: %w", id, err)
		}
	}
	return nil
}

// DeleteStale removes memories not accessed since cutoff whose importance is
// below maxImportance. It returns the number of rows removed.
func (r *MemoryRepository) DeleteStale(ctx context.Context, cutoff time.Time, maxImportance float64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM fernando_memories WHERE last_accessed < $1 AND importance < $2`,
		cutoff.UTC(), maxImportance,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountByType returns the number of memories per type.
func (r *MemoryRepository) CountByType(ctx context.Context) (map[string]int, error) {
	return countGrouped(ctx, r.db, `SELECT memory_type, COUNT(*) FROM fernando_memories GROUP BY memory_type`)
}

func (r *MemoryRepository) list(ctx context.Context, query string, args ...interface{}) ([]*Memory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m := &Memory{}
		if err := rows.Scan(
			&m.ID, &m.UserID, &m.SessionID, &m.MemoryType, &m.Content, &m.Importance, &m.Embedding,
			&m.AccessCount, &m.LastAccessed, &m.Metadata, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ConversationRepository handles fernando_conversations rows.
type ConversationRepository struct {
	db DB
}

// NewConversationRepository creates a new conversation repository.
func NewConversationRepository(db DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create inserts a conversation exchange.
func (r *ConversationRepository) Create(ctx context.Context, c *Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO fernando_conversations (id, user_id, session_id, user_message, fernando_response,
			intent, entities, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.SessionID, c.UserMessage, c.FernandoResponse,
		c.Intent, c.Entities, c.DurationMS, c.CreatedAt,
	)
	return err
}

// History returns the most recent exchanges of a session, newest first.
// An empty userID matches any user.
func (r *ConversationRepository) History(ctx context.Context, userID, sessionID string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT id, user_id, session_id, user_message, fernando_response, intent, entities, duration_ms, created_at
		FROM fernando_conversations
		WHERE session_id = $1 AND ($2 = '' OR user_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		c := &Conversation{}
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.SessionID, &c.UserMessage, &c.FernandoResponse,
			&c.Intent, &c.Entities, &c.DurationMS, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsightRepository handles fernando_insights rows.
type InsightRepository struct {
	db DB
}

// NewInsightRepository creates a new insight repository.
func NewInsightRepository(db DB) *InsightRepository {
	return &InsightRepository{db: db}
}

// Create inserts an insight.
func (r *InsightRepository) Create(ctx context.Context, in *Insight) error {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	in.CreatedAt = time.Now().UTC()
	if in.ValidFrom.IsZero() {
		in.ValidFrom = in.CreatedAt
	}

	query := `
		INSERT INTO fernando_insights (id, insight_type, content, confidence, tags, valid_from, valid_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		in.ID, in.InsightType, in.Content, in.Confidence, NewJSON(in.Tags),
		in.ValidFrom.UTC(), utcPtr(in.ValidUntil), in.CreatedAt,
	)
	return err
}

// Relevant returns insights valid at now that share at least one tag,
// ordered by confidence.
func (r *InsightRepository) Relevant(ctx context.Context, tags []string, now time.Time, limit int) ([]*Insight, error) {
	if limit <= 0 {
		limit = 5
	}
	query := `
		SELECT id, insight_type, content, confidence, tags, valid_from, valid_until, created_at
		FROM fernando_insights
		WHERE valid_from <= $1 AND (valid_until IS NULL OR valid_until > $1)
	`
	rows, err := r.db.QueryContext(ctx, query, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wanted := make(map[string]bool, len(tags))
	for _, t := range tags {
		wanted[strings.ToLower(t)] = true
	}

	var out []*Insight
	for rows.Next() {
		in := &Insight{}
		var raw JSON
		if err := rows.Scan(&in.ID, &in.InsightType, &in.Content, &in.Confidence, &raw,
			&in.ValidFrom, &in.ValidUntil, &in.CreatedAt); err != nil {
			return nil, err
		}
		if err := raw.Decode(&in.Tags); err != nil {
			return nil, fmt.Errorf("decode insight tags: %w", err)
		}
		for _, t := range in.Tags {
			if wanted[strings.ToLower(t)] {
				out = append(out, in)
				break
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
