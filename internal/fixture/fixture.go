// Package fixture reads a rubric and its evaluated lots from YAML so they can be
// scored without a database.
package fixture

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/Comparador/internal/store"
)

var validate = validator.New()

type File struct {
	Rubric Rubric `yaml:"rubric"`
	Lots   []Lot  `yaml:"lots" validate:"dive"`
}

type Rubric struct {
	Name            string           `yaml:"name" validate:"required"`
	Classifications []Classification `yaml:"classifications" validate:"dive"`
}

type Classification struct {
	Name        string      `yaml:"name" validate:"required"`
	Description string      `yaml:"description"`
	Criteria    []Criterion `yaml:"criteria" validate:"dive"`
}

type Criterion struct {
	Name        string   `yaml:"name" validate:"required"`
	Description string   `yaml:"description"`
	MaxScore    float64  `yaml:"max_score" validate:"gte=0"`
	Factors     []Factor `yaml:"factors" validate:"dive"`
}

type Factor struct {
	Name        string  `yaml:"name" validate:"required"`
	Description string  `yaml:"description"`
	Value       float64 `yaml:"value" validate:"min=0,max=1"`
}

// Lot names the factor picked for each criterion, both by name. Criteria left
// out are unevaluated.
type Lot struct {
	Name        string            `yaml:"name" validate:"required"`
	Location    string            `yaml:"location" validate:"required"`
	Description string            `yaml:"description"`
	Selections  map[string]string `yaml:"selections"`
}

// Set is a fixture resolved into store shapes ready for scoring.
type Set struct {
	Tree        *store.TemplateTree
	Lots        []store.Lot
	Evaluations []store.Evaluation
}

func Load(path string) (*Set, error) {
	f, err := Read(path)
	if err != nil {
		return nil, err
	}
	return f.Resolve()
}

// Read parses and validates a fixture file without resolving it.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return Decode(data)
}

func Decode(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	return &f, nil
}

func Parse(data []byte) (*Set, error) {
	f, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return f.Resolve()
}

// Resolve assigns ids and display order, then turns each lot's selections into
// evaluations. Criterion names must be unique across the rubric and factor names
// unique within their criterion.
func (f *File) Resolve() (*Set, error) {
	now := time.Now()
	tree := &store.TemplateTree{
		Version: store.TemplateVersion{ID: uuid.New(), Version: 1, Name: f.Rubric.Name, Active: true, CreatedAt: now},
	}

	criteria := make(map[string]uuid.UUID)
	factors := make(map[uuid.UUID]map[string]uuid.UUID)

	for i, fc := range f.Rubric.Classifications {
		cl := store.Classification{
			ID:                uuid.New(),
			TemplateVersionID: tree.Version.ID,
			Name:              fc.Name,
			Description:       fc.Description,
			Order:             i + 1,
			Criteria:          make([]store.Criterion, 0, len(fc.Criteria)),
		}
		for j, fcr := range fc.Criteria {
			if _, dup := criteria[fcr.Name]; dup {
				return nil, fmt.Errorf("invalid fixture: duplicate criterion %q", fcr.Name)
			}
			cr := store.Criterion{
				ID:               uuid.New(),
				ClassificationID: cl.ID,
				Name:             fcr.Name,
				Description:      fcr.Description,
				MaxScore:         fcr.MaxScore,
				Order:            j + 1,
				Factors:          make([]store.Factor, 0, len(fcr.Factors)),
			}
			byName := make(map[string]uuid.UUID, len(fcr.Factors))
			for k, ff := range fcr.Factors {
				if _, dup := byName[ff.Name]; dup {
					return nil, fmt.Errorf("invalid fixture: duplicate factor %q in criterion %q", ff.Name, fcr.Name)
				}
				fa := store.Factor{
					ID:          uuid.New(),
					CriterionID: cr.ID,
					Name:        ff.Name,
					Description: ff.Description,
					Value:       ff.Value,
					Order:       k + 1,
				}
				byName[ff.Name] = fa.ID
				cr.Factors = append(cr.Factors, fa)
			}
			factors[cr.ID] = byName
			cl.Criteria = append(cl.Criteria, cr)
			criteria[fcr.Name] = cr.ID
		}
		tree.Classifications = append(tree.Classifications, cl)
	}
	if err := tree.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}

	set := &Set{Tree: tree}
	projectID := uuid.New()
	for i, fl := range f.Lots {
		lot := store.Lot{
			ID:          uuid.New(),
			ProjectID:   projectID,
			Name:        fl.Name,
			Location:    fl.Location,
			Description: fl.Description,
			Order:       i + 1,
			CreatedAt:   now,
		}
		for critName, factorName := range fl.Selections {
			critID, ok := criteria[critName]
			if !ok {
				return nil, fmt.Errorf("lot %q: unknown criterion %q", fl.Name, critName)
			}
			factorID, ok := factors[critID][factorName]
			if !ok {
				return nil, fmt.Errorf("lot %q: criterion %q has no factor %q", fl.Name, critName, factorName)
			}
			set.Evaluations = append(set.Evaluations, store.Evaluation{
				ID:          uuid.New(),
				LotID:       lot.ID,
				CriterionID: critID,
				FactorID:    factorID,
				UpdatedAt:   now,
			})
		}
		set.Lots = append(set.Lots, lot)
	}
	return set, nil
}
