package evaluation

import (
	"fmt"
	"sort"

	"github.com/trezcool/gradebook/core"
)

// NormalizeScore converts a score/max pair to the 0-100 scale. A non-positive max yields 0.
func NormalizeScore(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return score * 100 / max
}

// CombineGraders merges the evaluations of one component into a single 0-100 score.
//
// When `config` is not empty it is the canonical list of graders: its weights replace the
// submitted ones and evaluations of unlisted graders are ignored. A single evaluation is used
// as is. Otherwise the result is the mean of the normalized scores weighted by the grader
// weights, divided by the sum of the weights present; when all weights are zero, the plain mean.
func CombineGraders(evals []GraderEvaluation, config []GraderWeight) (float64, []GraderBreakdown) {
	weights := make(map[string]float64, len(config))
	for _, g := range config {
		weights[g.GraderID] = g.Weight
	}

	sorted := make([]GraderEvaluation, 0, len(evals))
	for _, ge := range evals {
		if len(config) > 0 {
			if _, ok := weights[ge.GraderID]; !ok {
				continue
			}
		}
		sorted = append(sorted, ge)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].GraderID < sorted[j].GraderID })

	graders := make([]GraderBreakdown, 0, len(sorted))
	var weightedSum, weightSum, plainSum float64
	for _, ge := range sorted {
		weight := ge.GraderWeightPercentage
		if w, ok := weights[ge.GraderID]; ok {
			weight = w
		}
		normalized := ge.Normalized()
		graders = append(graders, GraderBreakdown{
			GraderID:         ge.GraderID,
			GraderName:       ge.GraderName,
			Weight:           weight,
			TotalScore:       ge.TotalScore,
			MaxPossibleScore: ge.MaxPossibleScore,
			NormalizedScore:  normalized,
			SubItemScores:    ge.SubItemScores,
		})
		weightedSum += normalized * weight
		weightSum += weight
		plainSum += normalized
	}

	switch {
	case len(graders) == 0:
		return 0, graders
	case len(graders) == 1:
		return graders[0].NormalizedScore, graders
	case weightSum <= 0:
		return plainSum / float64(len(graders)), graders
	}
	return weightedSum / weightSum, graders
}

// ComponentInput holds the scoring rows of one component for one trainee.
// Evaluations feed instructor_manual components, External every other type.
type ComponentInput struct {
	Evaluations []GraderEvaluation
	External    *ExternalScore
}

type Result struct {
	TotalScore      float64
	PassingScore    float64
	IsPassed        bool
	ComponentScores []ComponentScore
}

// Aggregate computes the weighted total of the active components of `tmpl`.
// It is a pure function of its inputs: scores are rounded to `precision` decimals
// and the total is clamped to [0, 100].
func Aggregate(tmpl Template, inputs map[string]ComponentInput, precision int) Result {
	comps := tmpl.ActiveComponents()
	res := Result{
		PassingScore:    tmpl.PassingTotalScore,
		ComponentScores: make([]ComponentScore, 0, len(comps)),
	}

	var total float64
	for _, comp := range comps {
		in := inputs[comp.ID]
		cs := ComponentScore{
			ComponentID:    comp.ID,
			Name:           comp.Name,
			Code:           comp.Code,
			EvaluationType: comp.EvaluationType,
			Weight:         comp.WeightPercentage,
		}

		var raw float64
		if comp.EvaluationType.IsManual() {
			raw, cs.Breakdown.Graders = CombineGraders(in.Evaluations, comp.Graders)
			if len(cs.Breakdown.Graders) == 0 {
				cs.Breakdown.Note = "no grader evaluation submitted yet"
			}
		} else if in.External != nil && core.IsFinite(in.External.Score) {
			raw = in.External.Score
			cs.Breakdown.Source = in.External.Breakdown
		} else if in.External != nil {
			cs.Breakdown.Note = fmt.Sprintf("%s score is not a number, counted as 0", comp.EvaluationType)
		} else {
			cs.Breakdown.Note = fmt.Sprintf("no %s score recorded yet", comp.EvaluationType)
		}

		cs.RawScore = core.Round(core.Clamp(raw, 0, 100), precision)
		cs.WeightedScore = core.Round(cs.RawScore*comp.WeightPercentage/100, precision)
		total += cs.WeightedScore
		res.ComponentScores = append(res.ComponentScores, cs)
	}

	res.TotalScore = core.Round(core.Clamp(total, 0, 100), precision)
	res.IsPassed = res.TotalScore >= res.PassingScore
	return res
}
