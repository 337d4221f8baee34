package scoring

import (
	"errors"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Comparador/internal/store"
)

var (
	ErrNilLot  = errors.New("scoring: nil lot")
	ErrNilTree = errors.New("scoring: nil template tree")
)

// Status tells an unevaluated criterion apart from one evaluated with a factor
// worth nothing. Both score 0.
type Status string

const (
	StatusUnevaluated Status = "unevaluated"
	StatusEvaluated   Status = "evaluated"
)

// CriterionScore is the result for one criterion of one lot. Selection is the
// chosen factor, nil when unevaluated.
type CriterionScore struct {
	CriterionID uuid.UUID     `json:"criterion_id"`
	Name        string        `json:"name"`
	Selection   *store.Factor `json:"selection,omitempty"`
	Status      Status        `json:"status"`
	Score       float64       `json:"score"`
	MaxScore    float64       `json:"max_score"`
	Percentage  float64       `json:"percentage"`
}

type ClassificationScore struct {
	ClassificationID uuid.UUID        `json:"classification_id"`
	Name             string           `json:"name"`
	Criteria         []CriterionScore `json:"criteria"`
	Score            float64          `json:"score"`
	MaxScore         float64          `json:"max_score"`
	Percentage       float64          `json:"percentage"`
	Evaluated        int              `json:"evaluated"`
	CriteriaCount    int              `json:"criteria_count"`
}

// LotScore is the aggregate for one lot. Total is the figure lots are ranked by.
// Completion is the share of criteria evaluated, independent of their value.
type LotScore struct {
	LotID           uuid.UUID             `json:"lot_id"`
	Name            string                `json:"name"`
	Classifications []ClassificationScore `json:"classifications"`
	Total           float64               `json:"total"`
	MaxTotal        float64               `json:"max_total"`
	Percentage      float64               `json:"percentage"`
	Evaluated       int                   `json:"evaluated"`
	CriteriaCount   int                   `json:"criteria_count"`
	Completion      float64               `json:"completion"`
	Rank            int                   `json:"rank,omitempty"`
}

// Comparison holds every lot in input order next to the ranked view.
type Comparison struct {
	Lots    []LotScore `json:"lots"`
	Ranking []LotScore `json:"ranking"`
}

func percentage(score, max float64) float64 {
	if max > 0 {
		return score / max * 100
	}
	return 0
}
