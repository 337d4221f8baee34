package scoring

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Comparador/internal/store"
)

// Rank returns a copy of scores ordered by Total, highest first. Ties keep their
// input order. The input is not modified.
func Rank(scores []LotScore) []LotScore {
	out := slices.Clone(scores)
	slices.SortStableFunc(out, func(a, b LotScore) int {
		switch {
		case a.Total > b.Total:
			return -1
		case a.Total < b.Total:
			return 1
		}
		return 0
	})
	return out
}

// Compare scores every lot against tree and ranks them. Lots keeps the input
// order; both views carry the 1-based rank position.
func Compare(tree *store.TemplateTree, lots []store.Lot, evaluations []store.Evaluation, allFactors []store.Factor) (Comparison, error) {
	if tree == nil {
		return Comparison{}, ErrNilTree
	}
	scores := make([]LotScore, 0, len(lots))
	for i := range lots {
		s, err := ScoreLotFull(&lots[i], tree, evaluations, allFactors)
		if err != nil {
			return Comparison{}, fmt.Errorf("score lot %s: %w", lots[i].ID, err)
		}
		scores = append(scores, s)
	}

	ranking := Rank(scores)
	pos := make(map[uuid.UUID]int, len(ranking))
	for i := range ranking {
		ranking[i].Rank = i + 1
		pos[ranking[i].LotID] = i + 1
	}
	for i := range scores {
		scores[i].Rank = pos[scores[i].LotID]
	}
	return Comparison{Lots: scores, Ranking: ranking}, nil
}

// FormatScore renders a score with two decimals. Format totals after summing,
// never sum formatted parts.
func FormatScore(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// FormatPercentage renders a percentage with one decimal and a trailing %.
func FormatPercentage(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}
