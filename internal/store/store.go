package store

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrVersionLocked       = errors.New("template version is referenced by a project and cannot be modified")
	ErrVersionInUse        = errors.New("template version is referenced by a project and cannot be deleted")
	ErrFactorNotInTemplate = errors.New("factor does not belong to the project's template version")
	ErrProjectFinalized    = errors.New("project is finalized")
)

var validate = validator.New()

// --- Rubric (plantilla) ---

type TemplateVersion struct {
	ID          uuid.UUID `json:"id"`
	Version     int       `json:"version"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Classification struct {
	ID                uuid.UUID   `json:"id"`
	TemplateVersionID uuid.UUID   `json:"template_version_id"`
	Name              string      `json:"name" validate:"required"`
	Description       string      `json:"description,omitempty"`
	Order             int         `json:"order"`
	Criteria          []Criterion `json:"criteria"`
	CreatedAt         time.Time   `json:"created_at"`
}

type Criterion struct {
	ID               uuid.UUID `json:"id"`
	ClassificationID uuid.UUID `json:"classification_id"`
	Name             string    `json:"name" validate:"required"`
	Description      string    `json:"description"`
	MaxScore         float64   `json:"max_score" validate:"gte=0"`
	Order            int       `json:"order"`
	Factors          []Factor  `json:"factors"`
	CreatedAt        time.Time `json:"created_at"`
}

// Factor is one mutually exclusive option of a criterion. Value is the fraction
// of the criterion's MaxScore earned when the factor is selected.
type Factor struct {
	ID          uuid.UUID `json:"id"`
	CriterionID uuid.UUID `json:"criterion_id"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description,omitempty"`
	Value       float64   `json:"value" validate:"min=0,max=1"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks field constraints; children are validated separately.
func (c *Classification) Validate() error { return validate.Struct(c) }
func (c *Criterion) Validate() error      { return validate.Struct(c) }
func (f *Factor) Validate() error         { return validate.Struct(f) }

// TemplateTree is a full rubric version loaded in display order.
type TemplateTree struct {
	Version         TemplateVersion  `json:"version"`
	Classifications []Classification `json:"classifications"`
}

// Factors flattens every factor in the tree.
func (t *TemplateTree) Factors() []Factor {
	var out []Factor
	for _, c := range t.Classifications {
		for _, cr := range c.Criteria {
			out = append(out, cr.Factors...)
		}
	}
	return out
}

// CriterionCount returns the number of criteria across all classifications.
func (t *TemplateTree) CriterionCount() int {
	n := 0
	for _, c := range t.Classifications {
		n += len(c.Criteria)
	}
	return n
}

// Validate checks every node of the tree against its field constraints.
func (t *TemplateTree) Validate() error {
	for i := range t.Classifications {
		c := &t.Classifications[i]
		if err := c.Validate(); err != nil {
			return err
		}
		for j := range c.Criteria {
			cr := &c.Criteria[j]
			if err := cr.Validate(); err != nil {
				return err
			}
			for k := range cr.Factors {
				if err := cr.Factors[k].Validate(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// --- Projects ---

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "activo"
	ProjectArchived  ProjectStatus = "archivado"
	ProjectFinalized ProjectStatus = "finalizado"
)

type Project struct {
	ID                uuid.UUID     `json:"id"`
	Name              string        `json:"name" validate:"required"`
	Description       string        `json:"description,omitempty"`
	ClientID          uuid.UUID     `json:"client_id"`
	TemplateVersionID uuid.UUID     `json:"template_version_id"`
	Status            ProjectStatus `json:"status" validate:"oneof=activo archivado finalizado"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func (p *Project) Validate() error { return validate.Struct(p) }

type ProjectFilter struct {
	ClientID *uuid.UUID
	Status   *ProjectStatus
	Limit    int
	Offset   int
}

type Lot struct {
	ID          uuid.UUID `json:"id"`
	ProjectID   uuid.UUID `json:"project_id"`
	Name        string    `json:"name" validate:"required"`
	Location    string    `json:"location" validate:"required"`
	Description string    `json:"description,omitempty"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"`
}

func (l *Lot) Validate() error { return validate.Struct(l) }

// Evaluation selects one factor for a (lot, criterion) pair. CriterionID is the
// uniqueness key of the stored row; readers derive the criterion from the factor.
type Evaluation struct {
	ID          uuid.UUID `json:"id"`
	LotID       uuid.UUID `json:"lot_id"`
	CriterionID uuid.UUID `json:"criterion_id"`
	FactorID    uuid.UUID `json:"factor_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Store interface {
	// Template versions
	ListVersions(ctx context.Context) ([]*TemplateVersion, error)
	GetVersion(ctx context.Context, id uuid.UUID) (*TemplateVersion, error)
	GetActiveVersion(ctx context.Context) (*TemplateVersion, error)
	CreateVersion(ctx context.Context, v *TemplateVersion, fromVersionID *uuid.UUID) error
	ActivateVersion(ctx context.Context, id uuid.UUID) error
	DeleteVersion(ctx context.Context, id uuid.UUID) error
	GetTemplateTree(ctx context.Context, versionID uuid.UUID) (*TemplateTree, error)

	// Rubric nodes
	CreateClassification(ctx context.Context, c *Classification) error
	UpdateClassification(ctx context.Context, c *Classification) error
	DeleteClassification(ctx context.Context, id uuid.UUID) error
	CreateCriterion(ctx context.Context, c *Criterion) error
	UpdateCriterion(ctx context.Context, c *Criterion) error
	DeleteCriterion(ctx context.Context, id uuid.UUID) error
	CreateFactor(ctx context.Context, f *Factor) error
	UpdateFactor(ctx context.Context, f *Factor) error
	DeleteFactor(ctx context.Context, id uuid.UUID) error
	ApplyReorder(ctx context.Context, versionID uuid.UUID, cmd ReorderCommand) error

	// Projects
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]*Project, error)
	UpdateProject(ctx context.Context, p *Project) error
	DeleteProject(ctx context.Context, id uuid.UUID) error

	// Lots
	CreateLot(ctx context.Context, l *Lot) error
	GetLot(ctx context.Context, id uuid.UUID) (*Lot, error)
	ListLots(ctx context.Context, projectID uuid.UUID) ([]Lot, error)
	UpdateLot(ctx context.Context, l *Lot) error
	DeleteLot(ctx context.Context, id uuid.UUID) error
	ReorderLots(ctx context.Context, projectID uuid.UUID, orderedIDs []uuid.UUID) error

	// Evaluations
	UpsertEvaluation(ctx context.Context, lotID, factorID uuid.UUID) (*Evaluation, error)
	ListEvaluations(ctx context.Context, projectID uuid.UUID) ([]Evaluation, error)

	Close() error
}
