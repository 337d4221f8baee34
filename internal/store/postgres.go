package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func notFoundIfNone(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Projects ---

const projectColumns = `id, name, description, client_id, template_version_id, status, created_at, updated_at`

func scanProject(row pgx.Row) (*Project, error) {
	p := &Project{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.ClientID, &p.TemplateVersionID,
		&p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreateProject binds the project to p.TemplateVersionID, or to the active
// version when that is unset.
func (s *PostgresStore) CreateProject(ctx context.Context, p *Project) error {
	if p.Status == "" {
		p.Status = ProjectActive
	}
	if p.TemplateVersionID == uuid.Nil {
		active, err := s.GetActiveVersion(ctx)
		if err != nil {
			return err
		}
		if active == nil {
			return fmt.Errorf("no active template version: %w", ErrNotFound)
		}
		p.TemplateVersionID = active.ID
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO projects (name, description, client_id, template_version_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		p.Name, p.Description, p.ClientID, p.TemplateVersionID, p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("template version %s: %w", p.TemplateVersionID, ErrNotFound)
	}
	return err
}

func (s *PostgresStore) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *PostgresStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.ClientID != nil {
		n++
		query += fmt.Sprintf(" AND client_id = $%d", n)
		args = append(args, *filter.ClientID)
	}
	if filter.Status != nil {
		n++
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, string(*filter.Status))
	}

	query += " ORDER BY created_at DESC, id"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	n++
	query += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, limit)

	if filter.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProject writes name, description and status. The bound template
// version never changes after creation.
func (s *PostgresStore) UpdateProject(ctx context.Context, p *Project) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE projects SET name = $2, description = $3, status = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Name, p.Description, p.Status,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *PostgresStore) DeleteProject(ctx context.Context, id uuid.UUID) error {
	return notFoundIfNone(s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id))
}

// openProject returns ErrProjectFinalized when the project no longer accepts
// lot or evaluation changes.
func openProject(ctx context.Context, q querier, projectID uuid.UUID) error {
	var status ProjectStatus
	err := q.QueryRow(ctx, `SELECT status FROM projects WHERE id = $1`, projectID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if status == ProjectFinalized {
		return ErrProjectFinalized
	}
	return nil
}

// --- Lots ---

const lotColumns = `id, project_id, name, location, description, sort_order, created_at`

func scanLot(row pgx.Row) (Lot, error) {
	var l Lot
	err := row.Scan(&l.ID, &l.ProjectID, &l.Name, &l.Location, &l.Description, &l.Order, &l.CreatedAt)
	return l, err
}

// CreateLot appends the lot after the project's last lot.
func (s *PostgresStore) CreateLot(ctx context.Context, l *Lot) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := openProject(ctx, tx, l.ProjectID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO lots (project_id, name, location, description, sort_order)
			VALUES ($1, $2, $3, $4,
				(SELECT COALESCE(MAX(sort_order), 0) + 1 FROM lots WHERE project_id = $1))
			RETURNING id, sort_order, created_at`,
			l.ProjectID, l.Name, l.Location, l.Description,
		).Scan(&l.ID, &l.Order, &l.CreatedAt)
	})
}

func (s *PostgresStore) GetLot(ctx context.Context, id uuid.UUID) (*Lot, error) {
	l, err := scanLot(s.pool.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) ListLots(ctx context.Context, projectID uuid.UUID) ([]Lot, error) {
	return listLots(ctx, s.pool, projectID)
}

func listLots(ctx context.Context, q querier, projectID uuid.UUID) ([]Lot, error) {
	rows, err := q.Query(ctx, `
		SELECT `+lotColumns+` FROM lots WHERE project_id = $1
		ORDER BY sort_order, created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lots := []Lot{}
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

func (s *PostgresStore) UpdateLot(ctx context.Context, l *Lot) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := openProject(ctx, tx, l.ProjectID); err != nil {
			return err
		}
		return notFoundIfNone(tx.Exec(ctx, `
			UPDATE lots SET name = $3, location = $4, description = $5
			WHERE id = $1 AND project_id = $2`,
			l.ID, l.ProjectID, l.Name, l.Location, l.Description))
	})
}

func (s *PostgresStore) DeleteLot(ctx context.Context, id uuid.UUID) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var projectID uuid.UUID
		err := tx.QueryRow(ctx, `SELECT project_id FROM lots WHERE id = $1`, id).Scan(&projectID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := openProject(ctx, tx, projectID); err != nil {
			return err
		}
		return notFoundIfNone(tx.Exec(ctx, `DELETE FROM lots WHERE id = $1`, id))
	})
}

// ReorderLots renumbers the project's lots to follow orderedIDs, which must name
// every lot of the project exactly once.
func (s *PostgresStore) ReorderLots(ctx context.Context, projectID uuid.UUID, orderedIDs []uuid.UUID) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := openProject(ctx, tx, projectID); err != nil {
			return err
		}
		lots, err := listLots(ctx, tx, projectID)
		if err != nil {
			return err
		}
		ordered, err := permute(lots, orderedIDs, func(l Lot) uuid.UUID { return l.ID })
		if err != nil {
			return err
		}
		return writeOrder(ctx, tx, "lots", ordered, func(l Lot) uuid.UUID { return l.ID })
	})
}

// writeOrder sets sort_order to the 1-based position of each item.
func writeOrder[T any](ctx context.Context, tx pgx.Tx, table string, items []T, id func(T) uuid.UUID) error {
	batch := &pgx.Batch{}
	for i, it := range items {
		batch.Queue(`UPDATE `+table+` SET sort_order = $2 WHERE id = $1`, id(it), i+1)
	}
	return tx.SendBatch(ctx, batch).Close()
}
