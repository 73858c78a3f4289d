package planstore

const schema = `
CREATE TABLE IF NOT EXISTS plans (
    spec TEXT PRIMARY KEY,
    fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS plan_batches (
    spec TEXT NOT NULL REFERENCES plans(spec) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    tasks TEXT,
    depends_on TEXT,
    model TEXT,
    estimated_cost REAL,
    estimated_minutes INTEGER,
    PRIMARY KEY (spec, id)
);

CREATE INDEX IF NOT EXISTS idx_plan_batches_spec ON plan_batches(spec);
`
