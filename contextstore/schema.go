package contextstore

// Schema for the context store. Apply via dbopen.WithSchema or Store.Init.
const Schema = `
CREATE TABLE IF NOT EXISTS cases (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	system TEXT NOT NULL,
	page_count INTEGER NOT NULL,
	signature TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cases_system ON cases(system);

CREATE TABLE IF NOT EXISTS observed_patterns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	case_id TEXT NOT NULL REFERENCES cases(id),
	kind TEXT NOT NULL,
	system TEXT NOT NULL,
	engine TEXT NOT NULL,
	tier INTEGER NOT NULL,
	signature TEXT NOT NULL,
	expected_confidence REAL NOT NULL,
	sample_count INTEGER NOT NULL DEFAULT 1,
	divergence_count INTEGER NOT NULL DEFAULT 0,
	deprecated INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_patterns_case_kind
	ON observed_patterns(case_id, kind, engine) WHERE deprecated = 0;

CREATE TABLE IF NOT EXISTS divergences (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pattern_id INTEGER NOT NULL REFERENCES observed_patterns(id),
	case_id TEXT NOT NULL,
	expected REAL NOT NULL,
	actual REAL NOT NULL,
	observed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_divergences_pattern ON divergences(pattern_id);

CREATE VIEW IF NOT EXISTS engine_stats AS
SELECT engine,
	COUNT(*) AS patterns,
	SUM(sample_count) AS samples,
	AVG(expected_confidence) AS mean_confidence,
	SUM(divergence_count) AS divergences,
	SUM(deprecated) AS deprecated
FROM observed_patterns
GROUP BY engine;
`
