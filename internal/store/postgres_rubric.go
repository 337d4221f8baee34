package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// --- Template versions ---

const versionColumns = `id, version, name, description, active, created_at`

func scanVersion(row pgx.Row) (*TemplateVersion, error) {
	v := &TemplateVersion{}
	if err := row.Scan(&v.ID, &v.Version, &v.Name, &v.Description, &v.Active, &v.CreatedAt); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context) ([]*TemplateVersion, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+versionColumns+` FROM template_versions ORDER BY version DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*TemplateVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *PostgresStore) GetVersion(ctx context.Context, id uuid.UUID) (*TemplateVersion, error) {
	return getVersion(ctx, s.pool, id)
}

func getVersion(ctx context.Context, q querier, id uuid.UUID) (*TemplateVersion, error) {
	v, err := scanVersion(q.QueryRow(ctx, `SELECT `+versionColumns+` FROM template_versions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (s *PostgresStore) GetActiveVersion(ctx context.Context) (*TemplateVersion, error) {
	v, err := scanVersion(s.pool.QueryRow(ctx, `SELECT `+versionColumns+` FROM template_versions WHERE active LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// CreateVersion numbers the new version after the highest existing one. When
// fromVersionID is set the whole rubric of that version is copied into it. The
// first version ever created becomes active.
func (s *PostgresStore) CreateVersion(ctx context.Context, v *TemplateVersion, fromVersionID *uuid.UUID) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE template_versions IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO template_versions (version, name, description, active)
			SELECT COALESCE(MAX(version), 0) + 1, $1, $2, NOT EXISTS (SELECT 1 FROM template_versions WHERE active)
			FROM template_versions
			RETURNING id, version, active, created_at`,
			v.Name, v.Description,
		).Scan(&v.ID, &v.Version, &v.Active, &v.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
		if fromVersionID == nil {
			return nil
		}

		src, err := getVersion(ctx, tx, *fromVersionID)
		if err != nil {
			return err
		}
		if src == nil {
			return fmt.Errorf("source version %s: %w", *fromVersionID, ErrNotFound)
		}
		tree, err := loadTree(ctx, tx, *src)
		if err != nil {
			return err
		}
		return copyTree(ctx, tx, tree, v.ID)
	})
}

func copyTree(ctx context.Context, tx pgx.Tx, tree *TemplateTree, versionID uuid.UUID) error {
	for _, c := range tree.Classifications {
		var classID uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO classifications (template_version_id, name, description, sort_order)
			VALUES ($1, $2, $3, $4) RETURNING id`,
			versionID, c.Name, c.Description, c.Order,
		).Scan(&classID)
		if err != nil {
			return fmt.Errorf("copy classification %q: %w", c.Name, err)
		}
		for _, cr := range c.Criteria {
			var critID uuid.UUID
			err := tx.QueryRow(ctx, `
				INSERT INTO criteria (classification_id, name, description, max_score, sort_order)
				VALUES ($1, $2, $3, $4, $5) RETURNING id`,
				classID, cr.Name, cr.Description, cr.MaxScore, cr.Order,
			).Scan(&critID)
			if err != nil {
				return fmt.Errorf("copy criterion %q: %w", cr.Name, err)
			}
			for _, f := range cr.Factors {
				if _, err := tx.Exec(ctx, `
					INSERT INTO factors (criterion_id, name, description, value, sort_order)
					VALUES ($1, $2, $3, $4, $5)`,
					critID, f.Name, f.Description, f.Value, f.Order,
				); err != nil {
					return fmt.Errorf("copy factor %q: %w", f.Name, err)
				}
			}
		}
	}
	return nil
}

// ActivateVersion makes id the only active version.
func (s *PostgresStore) ActivateVersion(ctx context.Context, id uuid.UUID) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE template_versions SET active = false WHERE active AND id <> $1`, id); err != nil {
			return err
		}
		return notFoundIfNone(tx.Exec(ctx, `UPDATE template_versions SET active = true WHERE id = $1`, id))
	})
}

func (s *PostgresStore) DeleteVersion(ctx context.Context, id uuid.UUID) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		referenced, err := lockVersion(ctx, tx, id)
		if err != nil {
			return err
		}
		if referenced {
			return ErrVersionInUse
		}
		return notFoundIfNone(tx.Exec(ctx, `DELETE FROM template_versions WHERE id = $1`, id))
	})
}

// lockVersion takes a row lock on the version, which conflicts with the key
// share lock a project insert takes through its foreign key, and reports whether
// any project references it.
func lockVersion(ctx context.Context, tx pgx.Tx, versionID uuid.UUID) (bool, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM template_versions WHERE id = $1 FOR UPDATE`, versionID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	var referenced bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE template_version_id = $1)`, versionID).Scan(&referenced)
	return referenced, err
}

// --- Rubric tree ---

func (s *PostgresStore) GetTemplateTree(ctx context.Context, versionID uuid.UUID) (*TemplateTree, error) {
	v, err := s.GetVersion(ctx, versionID)
	if err != nil || v == nil {
		return nil, err
	}
	return loadTree(ctx, s.pool, *v)
}

// loadTree reads the rubric of v in display order with three queries.
func loadTree(ctx context.Context, q querier, v TemplateVersion) (*TemplateTree, error) {
	tree := &TemplateTree{Version: v, Classifications: []Classification{}}

	rows, err := q.Query(ctx, `
		SELECT id, template_version_id, name, description, sort_order, created_at
		FROM classifications WHERE template_version_id = $1
		ORDER BY sort_order, created_at, id`, v.ID)
	if err != nil {
		return nil, err
	}
	classIdx := map[uuid.UUID]int{}
	for rows.Next() {
		c := Classification{Criteria: []Criterion{}}
		if err := rows.Scan(&c.ID, &c.TemplateVersionID, &c.Name, &c.Description, &c.Order, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		classIdx[c.ID] = len(tree.Classifications)
		tree.Classifications = append(tree.Classifications, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `
		SELECT cr.id, cr.classification_id, cr.name, cr.description, cr.max_score, cr.sort_order, cr.created_at
		FROM criteria cr
		JOIN classifications cl ON cl.id = cr.classification_id
		WHERE cl.template_version_id = $1
		ORDER BY cr.sort_order, cr.created_at, cr.id`, v.ID)
	if err != nil {
		return nil, err
	}
	type pos struct{ class, crit int }
	critIdx := map[uuid.UUID]pos{}
	for rows.Next() {
		cr := Criterion{Factors: []Factor{}}
		if err := rows.Scan(&cr.ID, &cr.ClassificationID, &cr.Name, &cr.Description, &cr.MaxScore, &cr.Order, &cr.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		ci := classIdx[cr.ClassificationID]
		critIdx[cr.ID] = pos{ci, len(tree.Classifications[ci].Criteria)}
		tree.Classifications[ci].Criteria = append(tree.Classifications[ci].Criteria, cr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `
		SELECT f.id, f.criterion_id, f.name, f.description, f.value, f.sort_order, f.created_at
		FROM factors f
		JOIN criteria cr ON cr.id = f.criterion_id
		JOIN classifications cl ON cl.id = cr.classification_id
		WHERE cl.template_version_id = $1
		ORDER BY f.sort_order, f.created_at, f.id`, v.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var f Factor
		if err := rows.Scan(&f.ID, &f.CriterionID, &f.Name, &f.Description, &f.Value, &f.Order, &f.CreatedAt); err != nil {
			return nil, err
		}
		p := critIdx[f.CriterionID]
		cr := &tree.Classifications[p.class].Criteria[p.crit]
		cr.Factors = append(cr.Factors, f)
	}
	return tree, rows.Err()
}

// --- Rubric nodes ---

// Each query resolves the template version that owns a node.
const (
	versionOfVersion        = `SELECT id FROM template_versions WHERE id = $1`
	versionOfClassification = `SELECT template_version_id FROM classifications WHERE id = $1`
	versionOfCriterion      = `
		SELECT cl.template_version_id FROM criteria cr
		JOIN classifications cl ON cl.id = cr.classification_id
		WHERE cr.id = $1`
	versionOfFactor = `
		SELECT cl.template_version_id FROM factors f
		JOIN criteria cr ON cr.id = f.criterion_id
		JOIN classifications cl ON cl.id = cr.classification_id
		WHERE f.id = $1`
)

// mutateRubric runs fn in a transaction after checking that the version owning
// nodeID is not referenced by any project.
func (s *PostgresStore) mutateRubric(ctx context.Context, versionOf string, nodeID uuid.UUID, fn func(pgx.Tx) error) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var versionID uuid.UUID
		err := tx.QueryRow(ctx, versionOf, nodeID).Scan(&versionID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		referenced, err := lockVersion(ctx, tx, versionID)
		if err != nil {
			return err
		}
		if referenced {
			return ErrVersionLocked
		}
		return fn(tx)
	})
}

func (s *PostgresStore) CreateClassification(ctx context.Context, c *Classification) error {
	return s.mutateRubric(ctx, versionOfVersion, c.TemplateVersionID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO classifications (template_version_id, name, description, sort_order)
			VALUES ($1, $2, $3,
				(SELECT COALESCE(MAX(sort_order), 0) + 1 FROM classifications WHERE template_version_id = $1))
			RETURNING id, sort_order, created_at`,
			c.TemplateVersionID, c.Name, c.Description,
		).Scan(&c.ID, &c.Order, &c.CreatedAt)
	})
}

func (s *PostgresStore) UpdateClassification(ctx context.Context, c *Classification) error {
	return s.mutateRubric(ctx, versionOfClassification, c.ID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			UPDATE classifications SET name = $2, description = $3 WHERE id = $1
			RETURNING template_version_id, sort_order, created_at`,
			c.ID, c.Name, c.Description,
		).Scan(&c.TemplateVersionID, &c.Order, &c.CreatedAt)
	})
}

func (s *PostgresStore) DeleteClassification(ctx context.Context, id uuid.UUID) error {
	return s.mutateRubric(ctx, versionOfClassification, id, func(tx pgx.Tx) error {
		return notFoundIfNone(tx.Exec(ctx, `DELETE FROM classifications WHERE id = $1`, id))
	})
}

func (s *PostgresStore) CreateCriterion(ctx context.Context, c *Criterion) error {
	return s.mutateRubric(ctx, versionOfClassification, c.ClassificationID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO criteria (classification_id, name, description, max_score, sort_order)
			VALUES ($1, $2, $3, $4,
				(SELECT COALESCE(MAX(sort_order), 0) + 1 FROM criteria WHERE classification_id = $1))
			RETURNING id, sort_order, created_at`,
			c.ClassificationID, c.Name, c.Description, c.MaxScore,
		).Scan(&c.ID, &c.Order, &c.CreatedAt)
	})
}

func (s *PostgresStore) UpdateCriterion(ctx context.Context, c *Criterion) error {
	return s.mutateRubric(ctx, versionOfCriterion, c.ID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			UPDATE criteria SET name = $2, description = $3, max_score = $4 WHERE id = $1
			RETURNING classification_id, sort_order, created_at`,
			c.ID, c.Name, c.Description, c.MaxScore,
		).Scan(&c.ClassificationID, &c.Order, &c.CreatedAt)
	})
}

func (s *PostgresStore) DeleteCriterion(ctx context.Context, id uuid.UUID) error {
	return s.mutateRubric(ctx, versionOfCriterion, id, func(tx pgx.Tx) error {
		return notFoundIfNone(tx.Exec(ctx, `DELETE FROM criteria WHERE id = $1`, id))
	})
}

func (s *PostgresStore) CreateFactor(ctx context.Context, f *Factor) error {
	return s.mutateRubric(ctx, versionOfCriterion, f.CriterionID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO factors (criterion_id, name, description, value, sort_order)
			VALUES ($1, $2, $3, $4,
				(SELECT COALESCE(MAX(sort_order), 0) + 1 FROM factors WHERE criterion_id = $1))
			RETURNING id, sort_order, created_at`,
			f.CriterionID, f.Name, f.Description, f.Value,
		).Scan(&f.ID, &f.Order, &f.CreatedAt)
	})
}

func (s *PostgresStore) UpdateFactor(ctx context.Context, f *Factor) error {
	return s.mutateRubric(ctx, versionOfFactor, f.ID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			UPDATE factors SET name = $2, description = $3, value = $4 WHERE id = $1
			RETURNING criterion_id, sort_order, created_at`,
			f.ID, f.Name, f.Description, f.Value,
		).Scan(&f.CriterionID, &f.Order, &f.CreatedAt)
	})
}

func (s *PostgresStore) DeleteFactor(ctx context.Context, id uuid.UUID) error {
	return s.mutateRubric(ctx, versionOfFactor, id, func(tx pgx.Tx) error {
		return notFoundIfNone(tx.Exec(ctx, `DELETE FROM factors WHERE id = $1`, id))
	})
}

// ApplyReorder validates cmd against the current tree of the version and
// persists the resulting order of the affected sibling list.
func (s *PostgresStore) ApplyReorder(ctx context.Context, versionID uuid.UUID, cmd ReorderCommand) error {
	return s.mutateRubric(ctx, versionOfVersion, versionID, func(tx pgx.Tx) error {
		v, err := getVersion(ctx, tx, versionID)
		if err != nil {
			return err
		}
		tree, err := loadTree(ctx, tx, *v)
		if err != nil {
			return err
		}
		if _, err := cmd.Apply(tree); err != nil {
			return err
		}
		table := map[ReorderKind]string{
			ReorderClassifications: "classifications",
			ReorderCriteria:        "criteria",
			ReorderFactors:         "factors",
		}[cmd.Kind]
		return writeOrder(ctx, tx, table, cmd.OrderedIDs, func(id uuid.UUID) uuid.UUID { return id })
	})
}
