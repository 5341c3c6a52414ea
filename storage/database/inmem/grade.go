package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/gradebook/core/evaluation"
)

// findGrade returns the stored grade of `key`. The caller holds the lock.
func (repo *EvaluationRepository) findGrade(key evaluation.GradeKey) (*evaluation.ComprehensiveGrade, bool) {
	for _, g := range repo.db.grades {
		if g.Key() == key {
			return g, true
		}
	}
	return nil, false
}

func (repo *EvaluationRepository) GetGrade(_ context.Context, key evaluation.GradeKey) (evaluation.ComprehensiveGrade, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if g, ok := repo.findGrade(key); ok {
		return copyGrade(*g), nil
	}
	return evaluation.ComprehensiveGrade{}, evaluation.ErrGradeNotFound
}

func (repo *EvaluationRepository) QueryGrades(_ context.Context, offeringID, templateID string) ([]evaluation.ComprehensiveGrade, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	grades := make([]evaluation.ComprehensiveGrade, 0)
	for _, g := range repo.db.grades {
		if g.OfferingID == offeringID && g.TemplateID == templateID {
			grades = append(grades, copyGrade(*g))
		}
	}
	sort.Slice(grades, func(i, j int) bool { return grades[i].TraineeID < grades[j].TraineeID })
	return grades, nil
}

func (repo *EvaluationRepository) UpsertGrade(_ context.Context, grade evaluation.ComprehensiveGrade, change evaluation.GradeChange) (evaluation.ComprehensiveGrade, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	hist := evaluation.GradeHistory{
		NewScore:  grade.TotalScore,
		NewPassed: grade.IsPassed,
		Reason:    change.Reason,
		ChangedBy: change.ChangedBy,
		ChangedAt: grade.CalculatedAt,
	}
	record := true

	if orig, ok := repo.findGrade(grade.Key()); ok {
		if orig.CalculatedAt.After(grade.CalculatedAt) {
			return evaluation.ComprehensiveGrade{}, evaluation.ErrStaleGrade
		}
		grade.ID = orig.ID
		grade.CreatedAt = orig.CreatedAt
		grade.Rank = orig.Rank
		grade.TotalTrainees = orig.TotalTrainees
		grade.RankedAt = orig.RankedAt
		grade.RankStale = orig.RankStale || orig.TotalScore != grade.TotalScore

		prevScore, prevPassed := orig.TotalScore, orig.IsPassed
		hist.PreviousScore, hist.PreviousPassed = &prevScore, &prevPassed
		record = prevScore != grade.TotalScore || prevPassed != grade.IsPassed
	} else {
		grade.ID = newID()
		grade.Rank, grade.TotalTrainees, grade.RankedAt = 0, 0, nil
		grade.RankStale = true
	}

	grade = copyGrade(grade)
	repo.db.grades[grade.ID] = &grade
	if record {
		hist.ID = newID()
		hist.GradeID = grade.ID
		repo.db.history = append(repo.db.history, hist)
	}
	return copyGrade(grade), nil
}

func (repo *EvaluationRepository) ApplyRanks(_ context.Context, offeringID, templateID string, ranks []evaluation.RankUpdate, rankedAt time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var count int
	for _, g := range repo.db.grades {
		if g.OfferingID == offeringID && g.TemplateID == templateID {
			count++
		}
	}
	if count != len(ranks) {
		return evaluation.ErrStaleRanking
	}
	for _, r := range ranks {
		g, ok := repo.db.grades[r.GradeID]
		if !ok || g.OfferingID != offeringID || g.TemplateID != templateID ||
			g.TotalScore != r.TotalScore || !g.CalculatedAt.Equal(r.CalculatedAt) {
			return evaluation.ErrStaleRanking
		}
	}

	for _, r := range ranks {
		g := repo.db.grades[r.GradeID]
		g.Rank = r.Rank
		g.TotalTrainees = r.TotalTrainees
		g.RankStale = false
		ts := rankedAt
		g.RankedAt = &ts
	}
	return nil
}

func (repo *EvaluationRepository) QueryGradeHistory(_ context.Context, gradeID string) ([]evaluation.GradeHistory, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	hist := make([]evaluation.GradeHistory, 0)
	for _, h := range repo.db.history {
		if h.GradeID == gradeID {
			hist = append(hist, h)
		}
	}
	return hist, nil
}

// copyGrade deep-copies `g` so that callers never share component snapshots with the store.
func copyGrade(g evaluation.ComprehensiveGrade) evaluation.ComprehensiveGrade {
	if g.ComponentScores != nil {
		scores := make([]evaluation.ComponentScore, len(g.ComponentScores))
		for i, cs := range g.ComponentScores {
			cs.Breakdown.Graders = copyGraderBreakdowns(cs.Breakdown.Graders)
			cs.Breakdown.Source = copyMap(cs.Breakdown.Source)
			scores[i] = cs
		}
		g.ComponentScores = scores
	}
	if g.RankedAt != nil {
		ts := *g.RankedAt
		g.RankedAt = &ts
	}
	return g
}

func copyGraderBreakdowns(graders []evaluation.GraderBreakdown) []evaluation.GraderBreakdown {
	if graders == nil {
		return nil
	}
	cp := make([]evaluation.GraderBreakdown, len(graders))
	for i, gb := range graders {
		gb.SubItemScores = append([]evaluation.SubItemScore(nil), gb.SubItemScores...)
		cp[i] = gb
	}
	return cp
}

// copyMap deep-copies decoded JSON values.
func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	cp := make(map[string]interface{}, len(m))
	for k, v := range m {
		cp[k] = copyValue(v)
	}
	return cp
}

func copyValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		return copyMap(v)
	case []interface{}:
		cp := make([]interface{}, len(v))
		for i, e := range v {
			cp[i] = copyValue(e)
		}
		return cp
	default:
		return v
	}
}
