package scoring

import (
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Comparador/internal/store"
)

// ScoreFactor returns the points a factor earns on a criterion worth max. A nil
// factor earns nothing. f.Value is assumed to lie in [0,1]; it is validated when
// written, not here.
func ScoreFactor(f *store.Factor, max float64) float64 {
	if f == nil {
		return 0
	}
	return f.Value * max
}

// ScoreCriterion scores c given the already resolved selection, if any.
func ScoreCriterion(c *store.Criterion, selection *store.Factor) CriterionScore {
	score := ScoreFactor(selection, c.MaxScore)
	status := StatusUnevaluated
	if selection != nil {
		status = StatusEvaluated
	}
	return CriterionScore{
		CriterionID: c.ID,
		Name:        c.Name,
		Selection:   selection,
		Status:      status,
		Score:       score,
		MaxScore:    c.MaxScore,
		Percentage:  percentage(score, c.MaxScore),
	}
}

func ScoreClassification(c *store.Classification, scores []CriterionScore) ClassificationScore {
	out := ClassificationScore{
		ClassificationID: c.ID,
		Name:             c.Name,
		Criteria:         scores,
		CriteriaCount:    len(scores),
	}
	for _, s := range scores {
		out.Score += s.Score
		out.MaxScore += s.MaxScore
		if s.Status == StatusEvaluated {
			out.Evaluated++
		}
	}
	out.Percentage = percentage(out.Score, out.MaxScore)
	return out
}

func ScoreLot(lot *store.Lot, scores []ClassificationScore) LotScore {
	out := LotScore{Classifications: scores}
	if lot != nil {
		out.LotID = lot.ID
		out.Name = lot.Name
	}
	for _, s := range scores {
		out.Total += s.Score
		out.MaxTotal += s.MaxScore
		out.Evaluated += s.Evaluated
		out.CriteriaCount += s.CriteriaCount
	}
	out.Percentage = percentage(out.Total, out.MaxTotal)
	out.Completion = percentage(float64(out.Evaluated), float64(out.CriteriaCount))
	return out
}

// ScoreLotFull scores lot against every criterion of tree. Evaluations of other
// lots are ignored. Each evaluation is keyed by the criterion of the factor it
// points to, so a stale Evaluation.CriterionID has no effect. Evaluations whose
// factor is missing from allFactors, or whose criterion is not in tree, are
// skipped. When a criterion has several evaluations the last one in
// evaluations wins.
func ScoreLotFull(lot *store.Lot, tree *store.TemplateTree, evaluations []store.Evaluation, allFactors []store.Factor) (LotScore, error) {
	if lot == nil {
		return LotScore{}, ErrNilLot
	}
	if tree == nil {
		return LotScore{}, ErrNilTree
	}

	factors := make(map[uuid.UUID]*store.Factor, len(allFactors))
	for i := range allFactors {
		factors[allFactors[i].ID] = &allFactors[i]
	}

	selected := make(map[uuid.UUID]*store.Factor)
	for _, e := range evaluations {
		if e.LotID != lot.ID {
			continue
		}
		f, ok := factors[e.FactorID]
		if !ok {
			continue
		}
		selected[f.CriterionID] = f
	}

	classes := make([]ClassificationScore, 0, len(tree.Classifications))
	for i := range tree.Classifications {
		cl := &tree.Classifications[i]
		crits := make([]CriterionScore, 0, len(cl.Criteria))
		for j := range cl.Criteria {
			cr := &cl.Criteria[j]
			crits = append(crits, ScoreCriterion(cr, selected[cr.ID]))
		}
		classes = append(classes, ScoreClassification(cl, crits))
	}
	return ScoreLot(lot, classes), nil
}
