// Package search runs semantic, keyword and hybrid search over the
// knowledge graph.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/cache"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/embedding"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/knowledge"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
)

// ErrNodeNotFound is returned by FindSimilar for an unindexed node.
var ErrNodeNotFound = errors.New("node not indexed")

// Mode selects how a query is scored.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
	ModeHybrid   Mode = "hybrid"
	ModeSimilar  Mode = "similar"
)

// ParseMode maps a query-string value to a Mode, defaulting to semantic.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSemantic:
		return ModeSemantic, nil
	case ModeKeyword:
		return ModeKeyword, nil
	case ModeHybrid:
		return ModeHybrid, nil
	default:
		return "", fmt.Errorf("unknown search mode %q", s)
	}
}

const (
	chunkWords     = 200
	semanticWeight = 0.7
	keywordWeight  = 0.3
)

// Config tunes the engine.
type Config struct {
	MinSimilarity float64
	DefaultLimit  int
	CacheTTL      time.Duration
}

// Options narrows a single query.
type Options struct {
	Limit          int      `json:"limit"`
	MinSimilarity  float64  `json:"min_similarity"`
	Types          []string `json:"types,omitempty"`
	IncludeContext bool     `json:"include_context"`
}

// Result is one matching knowledge node.
type Result struct {
	Node       *knowledge.Node `json:"node"`
	Score      float64         `json:"score"`
	Highlights []string        `json:"highlights,omitempty"`
	Context    string          `json:"context,omitempty"`
	Related    []string        `json:"related,omitempty"`
}

// Stats describes the index and its result cache.
type Stats struct {
	Documents int        `json:"documents"`
	Nodes     int        `json:"nodes"`
	Dimension int        `json:"dimension"`
	CacheSize int        `json:"cache_size"`
	Cache     CacheStats `json:"cache"`
}

// Engine indexes knowledge nodes and answers queries against them.
type Engine struct {
	logger   *observability.Logger
	kb       *knowledge.Base
	embedder embedding.Embedder
	index    *VectorIndex
	cache    *ResultCache
	client   cache.Client
	cfg      Config

	mu      sync.Mutex
	indexed bool
}

// NewEngine wires an engine. cacheClient may be nil.
func NewEngine(logger *observability.Logger, kb *knowledge.Base, embedder embedding.Embedder, cacheClient cache.Client, cfg Config) *Engine {
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = 0.3
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	logger = logger.WithComponent("search")
	return &Engine{
		logger:   logger,
		kb:       kb,
		embedder: embedder,
		index:    NewVectorIndex(embedder.Dimension()),
		cache:    NewResultCache(cacheClient, logger, cfg.CacheTTL),
		client:   cacheClient,
		cfg:      cfg,
	}
}

// IndexNode embeds a node's title, content chunks and tags.
func (e *Engine) IndexNode(ctx context.Context, node *knowledge.Node) error {
	texts := []string{node.Title}
	positions := []int{0}
	for i, chunk := range chunkText(node.Content, chunkWords) {
		texts = append(texts, chunk)
		positions = append(positions, i+1)
	}
	if len(node.Metadata.Tags) > 0 {
		texts = append(texts, strings.Join(node.Metadata.Tags, " "))
		positions = append(positions, -1)
	}

	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed node %s: %w", node.ID, err)
	}

	e.index.DeleteNode(node.ID)
	entries := make([]VectorEntry, len(texts))
	for i := range texts {
		entries[i] = VectorEntry{
			ID:       entryID(node.ID, positions[i]),
			NodeID:   node.ID,
			NodeType: string(node.Type),
			Chunk:    texts[i],
			Position: positions[i],
			Vector:   vectors[i],
		}
	}
	if err := e.index.Insert(entries...); err != nil {
		return fmt.Errorf("index node %s: %w", node.ID, err)
	}
	return nil
}

// IndexAll indexes nodes and drops cached results. It returns how many
// nodes were indexed.
func (e *Engine) IndexAll(ctx context.Context, nodes []*knowledge.Node) (int, error) {
	start := time.Now()
	for i, n := range nodes {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := e.IndexNode(ctx, n); err != nil {
			return i, err
		}
	}

	e.mu.Lock()
	e.indexed = true
	e.mu.Unlock()

	if err := e.cache.Invalidate(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to invalidate search cache")
	}
	docs, _ := e.index.Count()
	e.logger.Info().
		Int("nodes", len(nodes)).
		Int("documents", docs).
		Dur("duration", time.Since(start)).
		Msg("Indexed knowledge nodes")
	return len(nodes), nil
}

func (e *Engine) ensureIndexed(ctx context.Context) error {
	e.mu.Lock()
	done := e.indexed
	e.mu.Unlock()
	if done {
		return nil
	}
	_, err := e.IndexAll(ctx, e.kb.Nodes())
	return err
}

// Search embeds query and ranks nodes by their best-matching document.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	opts = e.withDefaults(opts)
	if strings.TrimSpace(query) == "" {
		return []Result{}, nil
	}

	key := e.cache.Key(ModeSemantic, query, opts)
	if cached, ok := e.cache.Get(ctx, key); ok {
		return cached, nil
	}

	results, err := e.semantic(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	e.cache.Set(ctx, key, results)
	return results, nil
}

func (e *Engine) semantic(ctx context.Context, query string, opts Options) ([]Result, error) {
	if err := e.ensureIndexed(ctx); err != nil {
		return nil, err
	}
	qv, err := e.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	types := make(map[string]bool, len(opts.Types))
	for _, t := range opts.Types {
		types[strings.ToLower(t)] = true
	}
	matches := e.index.Search(qv, func(v VectorEntry) bool {
		return len(types) == 0 || types[v.NodeType]
	})

	best := make(map[string]float64)
	var order []string
	for _, m := range matches {
		if m.Score < opts.MinSimilarity {
			break
		}
		if _, seen := best[m.Entry.NodeID]; !seen {
			best[m.Entry.NodeID] = m.Score
			order = append(order, m.Entry.NodeID)
		}
	}

	results := make([]Result, 0, min(len(order), opts.Limit))
	for _, id := range order {
		if len(results) == opts.Limit {
			break
		}
		node, ok := e.kb.Node(id)
		if !ok {
			continue
		}
		results = append(results, e.result(node, best[id], query, opts.IncludeContext))
	}
	return results, nil
}

// KeywordSearch ranks nodes with the knowledge base's text scoring.
func (e *Engine) KeywordSearch(query string, limit int) []Result {
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	hits := e.kb.Search(query, limit)
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = e.result(h.Node, h.Score, query, false)
	}
	return results
}

// HybridSearch blends semantic similarity with the keyword score scaled to
// the best keyword hit.
func (e *Engine) HybridSearch(ctx context.Context, query string, opts Options) ([]Result, error) {
	opts = e.withDefaults(opts)
	if strings.TrimSpace(query) == "" {
		return []Result{}, nil
	}

	key := e.cache.Key(ModeHybrid, query, opts)
	if cached, ok := e.cache.Get(ctx, key); ok {
		return cached, nil
	}

	wide := opts
	wide.Limit = opts.Limit * 2
	semantic, err := e.semantic(ctx, query, wide)
	if err != nil {
		return nil, err
	}
	keyword := e.kb.Search(query, opts.Limit*2)

	scores := make(map[string]float64)
	nodes := make(map[string]*knowledge.Node)
	for _, r := range semantic {
		scores[r.Node.ID] += semanticWeight * r.Score
		nodes[r.Node.ID] = r.Node
	}
	if len(keyword) > 0 {
		top := keyword[0].Score
		allowed := make(map[string]bool, len(opts.Types))
		for _, t := range opts.Types {
			allowed[strings.ToLower(t)] = true
		}
		for _, h := range keyword {
			if len(allowed) > 0 && !allowed[string(h.Node.Type)] {
				continue
			}
			scores[h.Node.ID] += keywordWeight * (h.Score / top)
			nodes[h.Node.ID] = h.Node
		}
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}

	results := make([]Result, len(ids))
	for i, id := range ids {
		results[i] = e.result(nodes[id], scores[id], query, opts.IncludeContext)
	}
	e.cache.Set(ctx, key, results)
	return results, nil
}

// FindSimilar compares title embeddings against nodeID's title.
func (e *Engine) FindSimilar(ctx context.Context, nodeID string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 5
	}
	if err := e.ensureIndexed(ctx); err != nil {
		return nil, err
	}
	title, ok := e.index.Get(entryID(nodeID, 0))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	matches := e.index.Search(title.Vector, func(v VectorEntry) bool {
		return v.Position == 0 && v.NodeID != nodeID
	})
	results := make([]Result, 0, limit)
	for _, m := range matches {
		if len(results) == limit || m.Score <= 0 {
			break
		}
		if node, ok := e.kb.Node(m.Entry.NodeID); ok {
			results = append(results, Result{Node: node, Score: m.Score})
		}
	}
	return results, nil
}

// Clear empties the index and the result cache. The next query re-indexes.
func (e *Engine) Clear(ctx context.Context) error {
	e.index.Clear()
	e.mu.Lock()
	e.indexed = false
	e.mu.Unlock()
	return e.cache.Invalidate(ctx)
}

// Stats reports index size and cache counters.
func (e *Engine) Stats() Stats {
	docs, nodes := e.index.Count()
	s := Stats{
		Documents: docs,
		Nodes:     nodes,
		Dimension: e.index.Dimension(),
		Cache:     e.cache.Stats(),
	}
	if sized, ok := e.client.(interface{ Len() int }); ok {
		s.CacheSize = sized.Len()
	}
	return s
}

func (e *Engine) withDefaults(opts Options) Options {
	if opts.Limit <= 0 {
		opts.Limit = e.cfg.DefaultLimit
	}
	if opts.MinSimilarity <= 0 {
		opts.MinSimilarity = e.cfg.MinSimilarity
	}
	return opts
}

func (e *Engine) result(node *knowledge.Node, score float64, query string, withContext bool) Result {
	r := Result{
		Node:       node,
		Score:      score,
		Highlights: Highlights(node.Content, query, 3),
	}
	if withContext {
		r.Context = perspective(node)
		for _, rel := range e.kb.Related(node.ID) {
			r.Related = append(r.Related, rel.Title)
		}
	}
	return r
}

func entryID(nodeID string, position int) string {
	switch position {
	case 0:
		return nodeID + "#title"
	case -1:
		return nodeID + "#tags"
	default:
		return nodeID + "#chunk-" + strconv.Itoa(position)
	}
}
