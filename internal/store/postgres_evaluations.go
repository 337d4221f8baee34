package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UpsertEvaluation records factorID as the selection of lotID for the factor's
// criterion, replacing any previous selection for that pair. The criterion is
// taken from the factor row inside the same statement, and the factor must
// belong to the template version of the lot's project.
func (s *PostgresStore) UpsertEvaluation(ctx context.Context, lotID, factorID uuid.UUID) (*Evaluation, error) {
	e := &Evaluation{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO evaluations (lot_id, criterion_id, factor_id)
		SELECT l.id, f.criterion_id, f.id
		FROM lots l
		JOIN projects p ON p.id = l.project_id
		JOIN factors f ON f.id = $2
		JOIN criteria cr ON cr.id = f.criterion_id
		JOIN classifications cl ON cl.id = cr.classification_id
		WHERE l.id = $1
			AND cl.template_version_id = p.template_version_id
			AND p.status <> 'finalizado'
		ON CONFLICT (lot_id, criterion_id)
		DO UPDATE SET factor_id = EXCLUDED.factor_id, updated_at = now()
		RETURNING id, lot_id, criterion_id, factor_id, updated_at`,
		lotID, factorID,
	).Scan(&e.ID, &e.LotID, &e.CriterionID, &e.FactorID, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.explainRejectedUpsert(ctx, lotID, factorID)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// explainRejectedUpsert maps an upsert that inserted nothing to the reason.
func (s *PostgresStore) explainRejectedUpsert(ctx context.Context, lotID, factorID uuid.UUID) error {
	var status ProjectStatus
	var inTemplate bool
	err := s.pool.QueryRow(ctx, `
		SELECT p.status, EXISTS (
			SELECT 1 FROM factors f
			JOIN criteria cr ON cr.id = f.criterion_id
			JOIN classifications cl ON cl.id = cr.classification_id
			WHERE f.id = $2 AND cl.template_version_id = p.template_version_id)
		FROM lots l JOIN projects p ON p.id = l.project_id
		WHERE l.id = $1`,
		lotID, factorID,
	).Scan(&status, &inTemplate)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return err
	case status == ProjectFinalized:
		return ErrProjectFinalized
	case !inTemplate:
		return ErrFactorNotInTemplate
	}
	return ErrNotFound
}

func (s *PostgresStore) ListEvaluations(ctx context.Context, projectID uuid.UUID) ([]Evaluation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.lot_id, e.criterion_id, e.factor_id, e.updated_at
		FROM evaluations e
		JOIN lots l ON l.id = e.lot_id
		WHERE l.project_id = $1
		ORDER BY l.sort_order, l.id, e.updated_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	evals := []Evaluation{}
	for rows.Next() {
		var e Evaluation
		if err := rows.Scan(&e.ID, &e.LotID, &e.CriterionID, &e.FactorID, &e.UpdatedAt); err != nil {
			return nil, err
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}
