package evaluation

import (
	"context"
	"sort"

	"github.com/trezcool/gradebook/core"
)

// CompetitionRanks ranks `totals` from highest to lowest: tied totals share a rank
// and the next rank skips the tied count, e.g. 90, 90, 85, 70 -> 1, 1, 3, 4.
// Ranks are returned in the order of `totals`.
func CompetitionRanks(totals []float64) []int {
	idx := make([]int, len(totals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return totals[idx[a]] > totals[idx[b]] })

	ranks := make([]int, len(totals))
	for pos, i := range idx {
		if pos > 0 && totals[i] == totals[idx[pos-1]] {
			ranks[i] = ranks[idx[pos-1]]
			continue
		}
		ranks[i] = pos + 1
	}
	return ranks
}

// RankGrades orders `grades` by total, highest first (ties by trainee id), and computes their ranks.
func RankGrades(grades []ComprehensiveGrade) []RankUpdate {
	sorted := make([]ComprehensiveGrade, len(grades))
	copy(sorted, grades)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TotalScore != sorted[j].TotalScore {
			return sorted[i].TotalScore > sorted[j].TotalScore
		}
		return sorted[i].TraineeID < sorted[j].TraineeID
	})

	totals := make([]float64, len(sorted))
	for i, g := range sorted {
		totals[i] = g.TotalScore
	}
	ranks := CompetitionRanks(totals)

	updates := make([]RankUpdate, len(sorted))
	for i, g := range sorted {
		updates[i] = RankUpdate{
			GradeID:       g.ID,
			TraineeID:     g.TraineeID,
			TotalScore:    g.TotalScore,
			CalculatedAt:  g.CalculatedAt,
			Rank:          ranks[i],
			TotalTrainees: len(sorted),
		}
	}
	return updates
}

// RecalculateRanks ranks every grade of an offering for a template and applies all ranks at once.
// A pass that loses a race with a concurrent grade write is retried.
func (svc *Service) RecalculateRanks(ctx context.Context, offeringID, templateID string) error {
	offeringID = core.CleanString(offeringID)
	templateID = core.CleanString(templateID)
	if _, err := svc.repo.GetTemplate(ctx, templateID); err != nil {
		return err
	}

	var err error
	for attempt := 0; attempt <= svc.maxRetries; attempt++ {
		if err = svc.rank(ctx, offeringID, templateID); !core.IsStaleState(err) {
			break
		}
		svc.log.Warn("ranking pass stale, retrying", offeringID, templateID, attempt+1)
	}
	return err
}

func (svc *Service) rank(ctx context.Context, offeringID, templateID string) error {
	grades, err := svc.repo.QueryGrades(ctx, offeringID, templateID)
	if err != nil {
		return err
	}
	updates := RankGrades(grades)
	if err = svc.repo.ApplyRanks(ctx, offeringID, templateID, updates, svc.now()); err != nil {
		return err
	}
	svc.log.Info("offering ranked", offeringID, templateID, len(updates))
	return nil
}
