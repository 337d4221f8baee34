package api

import (
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/Comparador/internal/scoring"
	"github.com/MikeSquared-Agency/Comparador/internal/store"
)

type lotResult struct {
	scoring.LotScore
	TotalText      string `json:"total_text"`
	MaxTotalText   string `json:"max_total_text"`
	PercentageText string `json:"percentage_text"`
	CompletionText string `json:"completion_text"`
}

type resultsResponse struct {
	ProjectID       string      `json:"project_id"`
	TemplateVersion string      `json:"template_version_id"`
	Lots            []lotResult `json:"lots"`
	Ranking         []lotResult `json:"ranking"`
}

func newLotResults(scores []scoring.LotScore) []lotResult {
	out := make([]lotResult, 0, len(scores))
	for _, s := range scores {
		out = append(out, lotResult{
			LotScore:       s,
			TotalText:      scoring.FormatScore(s.Total),
			MaxTotalText:   scoring.FormatScore(s.MaxTotal),
			PercentageText: scoring.FormatPercentage(s.Percentage),
			CompletionText: scoring.FormatPercentage(s.Completion),
		})
	}
	return out
}

// compare loads the project's rubric, lots and evaluations concurrently and
// scores every lot.
func (h *ProjectsHandler) compare(r *http.Request, p *store.Project) (scoring.Comparison, error) {
	start := time.Now()
	var (
		tree  *store.TemplateTree
		lots  []store.Lot
		evals []store.Evaluation
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		tree, err = h.store.GetTemplateTree(ctx, p.TemplateVersionID)
		return err
	})
	g.Go(func() error {
		var err error
		lots, err = h.store.ListLots(ctx, p.ID)
		return err
	})
	g.Go(func() error {
		var err error
		evals, err = h.store.ListEvaluations(ctx, p.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return scoring.Comparison{}, err
	}
	if tree == nil {
		return scoring.Comparison{}, store.ErrNotFound
	}

	res, err := scoring.Compare(tree, lots, evals, tree.Factors())
	if err != nil {
		return scoring.Comparison{}, err
	}
	h.metrics.ObserveComparison(len(lots), time.Since(start))
	return res, nil
}

// Results returns every lot's score breakdown in display order together with
// the ranking, best first.
func (h *ProjectsHandler) Results(w http.ResponseWriter, r *http.Request) {
	p := h.project(w, r)
	if p == nil {
		return
	}
	res, err := h.compare(r, p)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resultsResponse{
		ProjectID:       p.ID.String(),
		TemplateVersion: p.TemplateVersionID.String(),
		Lots:            newLotResults(res.Lots),
		Ranking:         newLotResults(res.Ranking),
	})
}
