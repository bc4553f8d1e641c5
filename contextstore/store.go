// Package contextstore accumulates structural knowledge about processed
// cases in SQLite: which engine worked how well on which kind of page within
// a case. Lookups feed engine selection for later pages and runs of the same
// case; divergent patterns are deprecated after repeated misses but kept on
// disk for audit.
package contextstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/lexpdf/dbopen"
)

// KindPageExtraction tags patterns learned from per-page extraction outcomes.
// Kinds partition the pattern space so future learning dimensions (section
// classification, sanitization) never cross-match.
const KindPageExtraction = "page_extraction"

// Config tunes matching and deprecation.
type Config struct {
	// SimilarityThreshold: signatures at or above it match a pattern
	// (default: 0.85).
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// DivergenceDelta: |expected−actual| above it counts as a divergence
	// (default: 0.2).
	DivergenceDelta float64 `yaml:"divergence_delta"`

	// DeprecateAfter: divergence count at which a pattern is retired
	// (default: 3).
	DeprecateAfter int `yaml:"deprecate_after"`

	Logger *slog.Logger `yaml:"-" json:"-"`
}

func (c *Config) defaults() {
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 0.85
	}
	if c.DivergenceDelta <= 0 {
		c.DivergenceDelta = 0.2
	}
	if c.DeprecateAfter <= 0 {
		c.DeprecateAfter = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Store is the SQLite-backed context store. Writes to the same case are
// serialized by an in-process per-case mutex; the database itself runs WAL.
type Store struct {
	db     *sql.DB
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	caseLocks map[string]*sync.Mutex
}

// New creates a Store on an open database.
func New(db *sql.DB, cfg Config) *Store {
	cfg.defaults()
	return &Store{
		db:        db,
		cfg:       cfg,
		logger:    cfg.Logger,
		caseLocks: make(map[string]*sync.Mutex),
	}
}

// Init applies the schema.
func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// lockFor returns the mutex serializing writes for one case.
func (s *Store) lockFor(caseID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.caseLocks[caseID]
	if !ok {
		m = &sync.Mutex{}
		s.caseLocks[caseID] = m
	}
	return m
}

// Case is one legal case the store tracks knowledge for. The identifier is
// caller-supplied (case number, file stem) so reruns of the same case land on
// the same pattern pool.
type Case struct {
	ID        string
	Path      string
	System    string
	PageCount int
	Signature Signature
	CreatedAt time.Time
}

// Pattern is an expectation learned from past observations of one case.
type Pattern struct {
	ID              int64
	CaseID          string
	Kind            string
	System          string
	Engine          string
	Tier            int
	Signature       Signature
	ExpectedConf    float64
	SampleCount     int
	DivergenceCount int
	Deprecated      bool
	Similarity      float64 // filled by Lookup
}

// RegisterCase upserts the case row: a fresh identifier creates the case,
// a known one refreshes its metadata. Either way the pattern pool keyed by
// the identifier survives.
func (s *Store) RegisterCase(ctx context.Context, c Case) error {
	lock := s.lockFor(c.ID)
	lock.Lock()
	defer lock.Unlock()

	sig, err := c.Signature.MarshalText()
	if err != nil {
		return fmt.Errorf("contextstore: marshal signature: %w", err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err = dbopen.Exec(ctx, s.db, `
		INSERT INTO cases (id, path, system, page_count, signature, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			system = excluded.system,
			page_count = excluded.page_count,
			signature = excluded.signature`,
		c.ID, c.Path, c.System, c.PageCount, string(sig), c.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("contextstore: register case %s: %w", c.ID, err)
	}
	return nil
}

// GetCase fetches one case row. sql.ErrNoRows surfaces for unknown IDs.
func (s *Store) GetCase(ctx context.Context, id string) (*Case, error) {
	var c Case
	var sigText string
	var created int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, system, page_count, signature, created_at
		FROM cases WHERE id = ?`, id).
		Scan(&c.ID, &c.Path, &c.System, &c.PageCount, &sigText, &created)
	if err != nil {
		return nil, fmt.Errorf("contextstore: case %s: %w", id, err)
	}
	if err := c.Signature.UnmarshalText([]byte(sigText)); err != nil {
		return nil, fmt.Errorf("contextstore: signature: %w", err)
	}
	c.CreatedAt = time.Unix(created, 0)
	return &c, nil
}

// Observation is one engine outcome for one page of a case.
type Observation struct {
	CaseID     string
	Kind       string
	System     string
	Engine     string
	Tier       int
	Signature  Signature
	Confidence float64

	// HintUsed marks outcomes where a stored pattern actually steered the
	// extraction. Only those can indict the pattern: an unhinted outcome
	// diverging from the expectation says nothing about the hint's quality.
	HintUsed bool
}

// Observe folds an outcome into the case's pattern pool, atomically.
//
// Matching happens on kind + engine + signature similarity within the case.
// A lower-fidelity tier (numerically higher) never overwrites a pattern held
// by a better tier. A hinted confidence diverging from the expectation by
// more than DivergenceDelta is recorded; DeprecateAfter divergences retire
// the pattern. Unhinted observations always fold into the expectation.
func (s *Store) Observe(ctx context.Context, obs Observation) error {
	if obs.Kind == "" {
		obs.Kind = KindPageExtraction
	}
	lock := s.lockFor(obs.CaseID)
	lock.Lock()
	defer lock.Unlock()

	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.observeTx(ctx, tx, obs)
	})
}

func (s *Store) observeTx(ctx context.Context, tx *sql.Tx, obs Observation) error {
	match, err := s.bestMatch(ctx, tx, obs.CaseID, obs.Kind, obs.Engine, obs.Signature)
	if err != nil {
		return err
	}

	now := time.Now().Unix()

	if match == nil {
		sig, err := obs.Signature.MarshalText()
		if err != nil {
			return fmt.Errorf("contextstore: marshal signature: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO observed_patterns
				(case_id, kind, system, engine, tier, signature, expected_confidence, sample_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			obs.CaseID, obs.Kind, obs.System, obs.Engine, obs.Tier,
			string(sig), obs.Confidence, now, now)
		if err != nil {
			return fmt.Errorf("contextstore: insert pattern: %w", err)
		}
		return nil
	}

	if obs.Tier > match.Tier {
		// A worse tier observed this slot: keep the better tier's knowledge.
		s.logger.Debug("skipping pattern update from lower tier",
			"pattern", match.ID, "pattern_tier", match.Tier, "obs_tier", obs.Tier)
		return nil
	}

	if diff := abs(match.ExpectedConf - obs.Confidence); obs.HintUsed && diff > s.cfg.DivergenceDelta {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO divergences (pattern_id, case_id, expected, actual, observed_at)
			VALUES (?, ?, ?, ?, ?)`,
			match.ID, obs.CaseID, match.ExpectedConf, obs.Confidence, now); err != nil {
			return fmt.Errorf("contextstore: record divergence: %w", err)
		}

		divergences := match.DivergenceCount + 1
		deprecated := 0
		if divergences >= s.cfg.DeprecateAfter {
			deprecated = 1
			s.logger.Info("pattern deprecated",
				"pattern", match.ID, "case", obs.CaseID, "engine", match.Engine,
				"divergences", divergences)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE observed_patterns
			SET divergence_count = ?, deprecated = ?, updated_at = ?
			WHERE id = ?`,
			divergences, deprecated, now, match.ID); err != nil {
			return fmt.Errorf("contextstore: update divergence: %w", err)
		}
		return nil
	}

	// Agreement, or an unhinted outcome: fold into the running expectation.
	expected := (match.ExpectedConf*float64(match.SampleCount) + obs.Confidence) /
		float64(match.SampleCount+1)
	tier := match.Tier
	if obs.Tier < tier {
		tier = obs.Tier
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE observed_patterns
		SET expected_confidence = ?, sample_count = sample_count + 1, tier = ?, updated_at = ?
		WHERE id = ?`,
		expected, tier, now, match.ID); err != nil {
		return fmt.Errorf("contextstore: update pattern: %w", err)
	}
	return nil
}

// bestMatch scans the case's non-deprecated patterns of one kind and engine
// and picks the most similar signature at or above the threshold.
func (s *Store) bestMatch(ctx context.Context, tx *sql.Tx, caseID, kind, engine string, sig Signature) (*Pattern, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, case_id, kind, system, engine, tier, signature,
			expected_confidence, sample_count, divergence_count
		FROM observed_patterns
		WHERE case_id = ? AND kind = ? AND engine = ? AND deprecated = 0`,
		caseID, kind, engine)
	if err != nil {
		return nil, fmt.Errorf("contextstore: query patterns: %w", err)
	}
	defer rows.Close()

	var best *Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		p.Similarity = Cosine(sig, p.Signature)
		if p.Similarity < s.cfg.SimilarityThreshold {
			continue
		}
		if best == nil || p.Similarity > best.Similarity {
			best = p
		}
	}
	return best, rows.Err()
}

// Lookup returns the case's live patterns of one kind matching the signature,
// most similar first. Other cases' patterns and deprecated patterns are never
// returned.
func (s *Store) Lookup(ctx context.Context, caseID, kind string, sig Signature) ([]Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, kind, system, engine, tier, signature,
			expected_confidence, sample_count, divergence_count
		FROM observed_patterns
		WHERE case_id = ? AND kind = ? AND deprecated = 0`, caseID, kind)
	if err != nil {
		return nil, fmt.Errorf("contextstore: lookup: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		p.Similarity = Cosine(sig, p.Signature)
		if p.Similarity >= s.cfg.SimilarityThreshold {
			out = append(out, *p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Similarity > out[j-1].Similarity; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

// CasePatterns returns every live pattern of a case, all kinds, insertion
// order. Serves the inspection endpoint.
func (s *Store) CasePatterns(ctx context.Context, caseID string) ([]Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, kind, system, engine, tier, signature,
			expected_confidence, sample_count, divergence_count
		FROM observed_patterns
		WHERE case_id = ? AND deprecated = 0 ORDER BY id`, caseID)
	if err != nil {
		return nil, fmt.Errorf("contextstore: case patterns: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// AuditPatterns returns every pattern, deprecated included.
func (s *Store) AuditPatterns(ctx context.Context) ([]Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, kind, system, engine, tier, signature,
			expected_confidence, sample_count, divergence_count, deprecated
		FROM observed_patterns ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("contextstore: audit: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		var p Pattern
		var sigText string
		var deprecated int
		if err := rows.Scan(&p.ID, &p.CaseID, &p.Kind, &p.System, &p.Engine,
			&p.Tier, &sigText, &p.ExpectedConf, &p.SampleCount,
			&p.DivergenceCount, &deprecated); err != nil {
			return nil, fmt.Errorf("contextstore: scan: %w", err)
		}
		if err := p.Signature.UnmarshalText([]byte(sigText)); err != nil {
			return nil, fmt.Errorf("contextstore: signature: %w", err)
		}
		p.Deprecated = deprecated != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// EngineStat is one row of the engine_stats view.
type EngineStat struct {
	Engine         string  `json:"engine"`
	Patterns       int     `json:"patterns"`
	Samples        int     `json:"samples"`
	MeanConfidence float64 `json:"mean_confidence"`
	Divergences    int     `json:"divergences"`
	Deprecated     int     `json:"deprecated"`
}

// EngineStats reads the aggregated view.
func (s *Store) EngineStats(ctx context.Context) ([]EngineStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT engine, patterns, samples, mean_confidence, divergences, deprecated
		FROM engine_stats ORDER BY engine`)
	if err != nil {
		return nil, fmt.Errorf("contextstore: engine stats: %w", err)
	}
	defer rows.Close()

	var out []EngineStat
	for rows.Next() {
		var st EngineStat
		if err := rows.Scan(&st.Engine, &st.Patterns, &st.Samples,
			&st.MeanConfidence, &st.Divergences, &st.Deprecated); err != nil {
			return nil, fmt.Errorf("contextstore: scan stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(rows rowScanner) (*Pattern, error) {
	var p Pattern
	var sigText string
	if err := rows.Scan(&p.ID, &p.CaseID, &p.Kind, &p.System, &p.Engine,
		&p.Tier, &sigText, &p.ExpectedConf, &p.SampleCount,
		&p.DivergenceCount); err != nil {
		return nil, fmt.Errorf("contextstore: scan pattern: %w", err)
	}
	if err := p.Signature.UnmarshalText([]byte(sigText)); err != nil {
		return nil, fmt.Errorf("contextstore: signature: %w", err)
	}
	return &p, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
