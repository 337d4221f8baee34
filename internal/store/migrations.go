package store

import (
	"context"
	"fmt"
	"strings"
)

// Migrate applies the idempotent schema. Safe to run on every deploy.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

const schema = `
CREATE TABLE IF NOT EXISTS template_versions (
  id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  version      INTEGER NOT NULL UNIQUE,
  name         TEXT NOT NULL,
  description  TEXT NOT NULL DEFAULT '',
  active       BOOLEAN NOT NULL DEFAULT false,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS template_versions_one_active
  ON template_versions (active) WHERE active;

CREATE TABLE IF NOT EXISTS classifications (
  id                   UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  template_version_id  UUID NOT NULL REFERENCES template_versions(id) ON DELETE CASCADE,
  name                 TEXT NOT NULL,
  description          TEXT NOT NULL DEFAULT '',
  sort_order           INTEGER NOT NULL DEFAULT 0,
  created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS classifications_version_idx ON classifications (template_version_id);

CREATE TABLE IF NOT EXISTS criteria (
  id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  classification_id  UUID NOT NULL REFERENCES classifications(id) ON DELETE CASCADE,
  name               TEXT NOT NULL,
  description        TEXT NOT NULL DEFAULT '',
  max_score          DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (max_score >= 0),
  sort_order         INTEGER NOT NULL DEFAULT 0,
  created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS criteria_classification_idx ON criteria (classification_id);

CREATE TABLE IF NOT EXISTS factors (
  id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  criterion_id  UUID NOT NULL REFERENCES criteria(id) ON DELETE CASCADE,
  name          TEXT NOT NULL,
  description   TEXT NOT NULL DEFAULT '',
  value         DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (value >= 0 AND value <= 1),
  sort_order    INTEGER NOT NULL DEFAULT 0,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS factors_criterion_idx ON factors (criterion_id);

CREATE TABLE IF NOT EXISTS projects (
  id                   UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  name                 TEXT NOT NULL,
  description          TEXT NOT NULL DEFAULT '',
  client_id            UUID NOT NULL,
  template_version_id  UUID NOT NULL REFERENCES template_versions(id) ON DELETE RESTRICT,
  status               TEXT NOT NULL DEFAULT 'activo'
                       CHECK (status IN ('activo', 'archivado', 'finalizado')),
  created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS projects_client_idx ON projects (client_id);
CREATE INDEX IF NOT EXISTS projects_version_idx ON projects (template_version_id);

CREATE TABLE IF NOT EXISTS lots (
  id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  project_id   UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  name         TEXT NOT NULL,
  location     TEXT NOT NULL,
  description  TEXT NOT NULL DEFAULT '',
  sort_order   INTEGER NOT NULL DEFAULT 0,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS lots_project_idx ON lots (project_id);

CREATE TABLE IF NOT EXISTS evaluations (
  id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  lot_id        UUID NOT NULL REFERENCES lots(id) ON DELETE CASCADE,
  criterion_id  UUID NOT NULL REFERENCES criteria(id) ON DELETE CASCADE,
  factor_id     UUID NOT NULL REFERENCES factors(id) ON DELETE CASCADE,
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (lot_id, criterion_id)
);
`
