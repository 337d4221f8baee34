package events

import "time"

type EvaluationSavedEvent struct {
	ProjectID   string    `json:"project_id"`
	LotID       string    `json:"lot_id"`
	CriterionID string    `json:"criterion_id"`
	FactorID    string    `json:"factor_id"`
	SavedBy     string    `json:"saved_by,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type TemplateCreatedEvent struct {
	VersionID   string `json:"version_id"`
	Version     int    `json:"version"`
	Name        string `json:"name"`
	FromVersion string `json:"from_version_id,omitempty"`
}

type TemplateActivatedEvent struct {
	VersionID string `json:"version_id"`
}

type ProjectCreatedEvent struct {
	ProjectID         string `json:"project_id"`
	ClientID          string `json:"client_id"`
	TemplateVersionID string `json:"template_version_id"`
	Name              string `json:"name"`
}

// ProjectFinalizedEvent carries the final ranking, best first.
type ProjectFinalizedEvent struct {
	ProjectID string      `json:"project_id"`
	Ranking   []RankedLot `json:"ranking"`
	At        time.Time   `json:"at"`
}

type RankedLot struct {
	LotID      string  `json:"lot_id"`
	Name       string  `json:"name"`
	Rank       int     `json:"rank"`
	Total      float64 `json:"total"`
	Percentage float64 `json:"percentage"`
}

type LotCreatedEvent struct {
	LotID     string `json:"lot_id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
}
