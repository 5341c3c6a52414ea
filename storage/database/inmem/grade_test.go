package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core/evaluation"
)

var (
	t0  = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	key = evaluation.GradeKey{OfferingID: "offering-1", TraineeID: "trainee-a", TemplateID: "tmpl-1"}
)

func newGrade(k evaluation.GradeKey, total float64, at time.Time) evaluation.ComprehensiveGrade {
	return evaluation.ComprehensiveGrade{
		OfferingID:        k.OfferingID,
		TraineeID:         k.TraineeID,
		TemplateID:        k.TemplateID,
		TotalScore:        total,
		PassingScore:      80,
		IsPassed:          total >= 80,
		CalculationMethod: evaluation.MethodAuto,
		CalculatedAt:      at,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
}

var recalculated = evaluation.GradeChange{Reason: "recalculated", ChangedBy: "system"}

func TestEvaluationRepository_UpsertGrade(t *testing.T) {
	repo := NewEvaluationRepository(Open())
	ctx := context.Background()

	_, err := repo.GetGrade(ctx, key)
	assert.Equal(t, evaluation.ErrGradeNotFound, err)

	created, err := repo.UpsertGrade(ctx, newGrade(key, 63, t0), recalculated)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.RankStale)

	t.Run("older calculations are rejected", func(t *testing.T) {
		_, err := repo.UpsertGrade(ctx, newGrade(key, 99, t0.Add(-time.Second)), recalculated)
		assert.Equal(t, evaluation.ErrStaleGrade, err)

		got, err := repo.GetGrade(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 63.0, got.TotalScore)
	})

	t.Run("rank fields are kept", func(t *testing.T) {
		require.NoError(t, repo.ApplyRanks(ctx, key.OfferingID, key.TemplateID, []evaluation.RankUpdate{
			{GradeID: created.ID, TotalScore: 63, CalculatedAt: t0, Rank: 1, TotalTrainees: 1},
		}, t0.Add(time.Minute)))

		got, err := repo.UpsertGrade(ctx, newGrade(key, 63, t0.Add(2*time.Minute)), recalculated)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, t0, got.CreatedAt)
		assert.Equal(t, 1, got.Rank)
		assert.Equal(t, 1, got.TotalTrainees)
		require.NotNil(t, got.RankedAt)
		assert.Equal(t, t0.Add(time.Minute), *got.RankedAt)
		assert.False(t, got.RankStale)

		got, err = repo.UpsertGrade(ctx, newGrade(key, 81, t0.Add(3*time.Minute)), recalculated)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Rank)
		assert.True(t, got.RankStale)
	})

	t.Run("history", func(t *testing.T) {
		hist, err := repo.QueryGradeHistory(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, hist, 2, "the unchanged recalculation is not recorded")

		assert.Nil(t, hist[0].PreviousScore)
		assert.Nil(t, hist[0].PreviousPassed)
		assert.Equal(t, 63.0, hist[0].NewScore)

		require.NotNil(t, hist[1].PreviousScore)
		assert.Equal(t, 63.0, *hist[1].PreviousScore)
		require.NotNil(t, hist[1].PreviousPassed)
		assert.False(t, *hist[1].PreviousPassed)
		assert.Equal(t, 81.0, hist[1].NewScore)
		assert.True(t, hist[1].NewPassed)
		assert.Equal(t, "recalculated", hist[1].Reason)
		assert.Equal(t, t0.Add(3*time.Minute), hist[1].ChangedAt)
	})
}

func TestEvaluationRepository_ApplyRanks(t *testing.T) {
	ctx := context.Background()
	setup := func(t *testing.T) (*EvaluationRepository, []evaluation.ComprehensiveGrade) {
		t.Helper()
		repo := NewEvaluationRepository(Open())
		var grades []evaluation.ComprehensiveGrade
		for i, total := range []float64{90, 70} {
			k := key
			k.TraineeID = []string{"trainee-a", "trainee-b"}[i]
			g, err := repo.UpsertGrade(ctx, newGrade(k, total, t0), recalculated)
			require.NoError(t, err)
			grades = append(grades, g)
		}
		return repo, grades
	}

	t.Run("applied", func(t *testing.T) {
		repo, grades := setup(t)
		require.NoError(t, repo.ApplyRanks(ctx, key.OfferingID, key.TemplateID, evaluation.RankGrades(grades), t0))

		got, err := repo.QueryGrades(ctx, key.OfferingID, key.TemplateID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 1, got[0].Rank)
		assert.Equal(t, 2, got[1].Rank)
		for _, g := range got {
			assert.Equal(t, 2, g.TotalTrainees)
			assert.False(t, g.RankStale)
		}
	})

	t.Run("missing grade", func(t *testing.T) {
		repo, grades := setup(t)
		err := repo.ApplyRanks(ctx, key.OfferingID, key.TemplateID, evaluation.RankGrades(grades[:1]), t0)
		assert.Equal(t, evaluation.ErrStaleRanking, err)
	})

	t.Run("grade recalculated meanwhile", func(t *testing.T) {
		repo, grades := setup(t)
		ranks := evaluation.RankGrades(grades)

		_, err := repo.UpsertGrade(ctx, newGrade(grades[1].Key(), 95, t0.Add(time.Second)), recalculated)
		require.NoError(t, err)

		assert.Equal(t, evaluation.ErrStaleRanking, repo.ApplyRanks(ctx, key.OfferingID, key.TemplateID, ranks, t0))
		got, err := repo.QueryGrades(ctx, key.OfferingID, key.TemplateID)
		require.NoError(t, err)
		for _, g := range got {
			assert.Zero(t, g.Rank, "nothing is written")
		}
	})

	t.Run("same total recalculated meanwhile", func(t *testing.T) {
		repo, grades := setup(t)
		ranks := evaluation.RankGrades(grades)

		_, err := repo.UpsertGrade(ctx, newGrade(grades[0].Key(), 90, t0.Add(time.Second)), recalculated)
		require.NoError(t, err)
		assert.Equal(t, evaluation.ErrStaleRanking, repo.ApplyRanks(ctx, key.OfferingID, key.TemplateID, ranks, t0))
	})
}

func TestRoster(t *testing.T) {
	ctx := context.Background()
	r := NewRoster()
	r.Enroll("offering-1", evaluation.TraineeSummary{ID: "trainee-b"}, evaluation.TraineeSummary{ID: "trainee-a"})
	r.Enroll("offering-2", evaluation.TraineeSummary{ID: "trainee-c"})

	ok, err := r.IsEnrolled(ctx, "offering-1", "trainee-a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.IsEnrolled(ctx, "offering-1", "trainee-c")
	require.NoError(t, err)
	assert.False(t, ok)

	trainees, err := r.Trainees(ctx, "offering-1")
	require.NoError(t, err)
	assert.Equal(t, []evaluation.TraineeSummary{{ID: "trainee-a"}, {ID: "trainee-b"}}, trainees)

	r.Withdraw("offering-1", "trainee-a")
	trainees, err = r.Trainees(ctx, "offering-1")
	require.NoError(t, err)
	assert.Equal(t, []evaluation.TraineeSummary{{ID: "trainee-b"}}, trainees)

	trainees, err = r.Trainees(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, trainees)
}

func TestEvaluationRepository_snapshotsAreCopied(t *testing.T) {
	repo := NewEvaluationRepository(Open())
	ctx := context.Background()

	t.Run("grade", func(t *testing.T) {
		grade := newGrade(key, 90, t0)
		grade.ComponentScores = []evaluation.ComponentScore{{
			ComponentID: "practical",
			Breakdown: evaluation.ScoreBreakdown{
				Graders: []evaluation.GraderBreakdown{{
					GraderID:      "grader-1",
					SubItemScores: []evaluation.SubItemScore{{SubItemID: "bead", Score: 10, MaxScore: 12}},
				}},
				Source: map[string]interface{}{"attempts": []interface{}{1.0}, "meta": map[string]interface{}{"id": "x"}},
			},
		}}
		saved, err := repo.UpsertGrade(ctx, grade, recalculated)
		require.NoError(t, err)

		// neither the input nor the returned grade share state with the store
		grade.ComponentScores[0].Breakdown.Graders[0].SubItemScores[0].Score = 0
		saved.ComponentScores[0].Breakdown.Graders[0].GraderID = "intruder"
		saved.ComponentScores[0].Breakdown.Source["meta"].(map[string]interface{})["id"] = "y"
		saved.ComponentScores[0].Breakdown.Source["attempts"].([]interface{})[0] = 2.0

		got, err := repo.GetGrade(ctx, key)
		require.NoError(t, err)
		bd := got.ComponentScores[0].Breakdown
		assert.Equal(t, "grader-1", bd.Graders[0].GraderID)
		assert.Equal(t, 10.0, bd.Graders[0].SubItemScores[0].Score)
		assert.Equal(t, map[string]interface{}{"attempts": []interface{}{1.0}, "meta": map[string]interface{}{"id": "x"}}, bd.Source)

		got.ComponentScores[0].Breakdown.Source["meta"] = nil
		grades, err := repo.QueryGrades(ctx, key.OfferingID, key.TemplateID)
		require.NoError(t, err)
		require.Len(t, grades, 1)
		assert.NotNil(t, grades[0].ComponentScores[0].Breakdown.Source["meta"])
	})

	t.Run("external score", func(t *testing.T) {
		es := evaluation.ExternalScore{
			OfferingID: key.OfferingID, TraineeID: key.TraineeID, ComponentID: "exam", Score: 50,
			Breakdown: map[string]interface{}{"correct": 10.0},
		}
		saved, err := repo.UpsertExternalScore(ctx, es)
		require.NoError(t, err)
		es.Breakdown["correct"] = 0.0
		saved.Breakdown["correct"] = 1.0

		got, err := repo.GetExternalScore(ctx, key.OfferingID, key.TraineeID, "exam")
		require.NoError(t, err)
		assert.Equal(t, 10.0, got.Breakdown["correct"])

		got.Breakdown["correct"] = 2.0
		got, err = repo.GetExternalScore(ctx, key.OfferingID, key.TraineeID, "exam")
		require.NoError(t, err)
		assert.Equal(t, 10.0, got.Breakdown["correct"])
	})
}
