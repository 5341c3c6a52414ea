package evaluation

import (
	"context"

	"github.com/trezcool/gradebook/core"
)

// Statistics summarizes the grades of an offering for a template.
// With a roster, enrolled trainees without a grade are counted as pending.
func (svc *Service) Statistics(ctx context.Context, offeringID, templateID string) (Statistics, error) {
	grades, err := svc.repo.QueryGrades(ctx, offeringID, templateID)
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{TotalTrainees: len(grades), Evaluated: len(grades)}
	if svc.roster != nil {
		trainees, err := svc.roster.Trainees(ctx, offeringID)
		if err != nil {
			return Statistics{}, err
		}
		graded := make(map[string]bool, len(grades))
		for _, g := range grades {
			graded[g.TraineeID] = true
		}
		for _, ts := range trainees {
			if !graded[ts.ID] {
				stats.Pending++
			}
		}
		stats.TotalTrainees = len(grades) + stats.Pending
	}
	if len(grades) == 0 {
		return stats, nil
	}

	var sum float64
	stats.Highest, stats.Lowest = grades[0].TotalScore, grades[0].TotalScore
	for _, g := range grades {
		if g.IsPassed {
			stats.Passed++
		} else {
			stats.Failed++
		}
		if g.RankStale {
			stats.RanksStale = true
		}
		sum += g.TotalScore
		if g.TotalScore > stats.Highest {
			stats.Highest = g.TotalScore
		}
		if g.TotalScore < stats.Lowest {
			stats.Lowest = g.TotalScore
		}
	}
	stats.Average = core.Round(sum/float64(len(grades)), svc.precision)
	return stats, nil
}
