package evaluation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeScore(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		max   float64
		want  float64
	}{
		{name: "exact", score: 7, max: 25, want: 28},
		{name: "full marks", score: 20, max: 20, want: 100},
		{name: "fraction", score: 8.5, max: 10, want: 85},
		{name: "zero score", score: 0, max: 10, want: 0},
		{name: "zero max", score: 5, max: 0, want: 0},
		{name: "negative max", score: 5, max: -10, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeScore(tt.score, tt.max); got != tt.want {
				t.Errorf("NormalizeScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func graderEval(graderID string, weight, total, max float64) GraderEvaluation {
	return GraderEvaluation{GraderID: graderID, GraderWeightPercentage: weight, TotalScore: total, MaxPossibleScore: max}
}

func TestCombineGraders(t *testing.T) {
	tests := []struct {
		name        string
		evals       []GraderEvaluation
		config      []GraderWeight
		want        float64
		wantGraders []string
	}{
		{name: "no evaluation", want: 0, wantGraders: []string{}},
		{
			name:        "single grader is used as is",
			evals:       []GraderEvaluation{graderEval("g1", 30, 17, 20)},
			want:        85,
			wantGraders: []string{"g1"},
		},
		{
			name:        "weighted by submitted weights",
			evals:       []GraderEvaluation{graderEval("g2", 40, 10, 20), graderEval("g1", 60, 20, 20)},
			want:        80,
			wantGraders: []string{"g1", "g2"},
		},
		{
			name:        "partial weights are renormalized",
			evals:       []GraderEvaluation{graderEval("g1", 30, 20, 20), graderEval("g2", 10, 0, 20)},
			want:        75,
			wantGraders: []string{"g1", "g2"},
		},
		{
			name:        "zero weights give the plain mean",
			evals:       []GraderEvaluation{graderEval("g1", 0, 18, 20), graderEval("g2", 0, 12, 20)},
			want:        75,
			wantGraders: []string{"g1", "g2"},
		},
		{
			name:        "configured weights replace submitted ones",
			evals:       []GraderEvaluation{graderEval("g1", 50, 20, 20), graderEval("g2", 50, 10, 20)},
			config:      []GraderWeight{{GraderID: "g1", Weight: 60}, {GraderID: "g2", Weight: 40}},
			want:        80,
			wantGraders: []string{"g1", "g2"},
		},
		{
			name:        "unlisted graders are ignored",
			evals:       []GraderEvaluation{graderEval("g1", 100, 15, 20), graderEval("intruder", 100, 0, 20)},
			config:      []GraderWeight{{GraderID: "g1", Weight: 60}, {GraderID: "g2", Weight: 40}},
			want:        75,
			wantGraders: []string{"g1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, graders := CombineGraders(tt.evals, tt.config)
			assert.InDelta(t, tt.want, got, 1e-9)

			ids := make([]string, 0, len(graders))
			for _, g := range graders {
				ids = append(ids, g.GraderID)
			}
			assert.Equal(t, tt.wantGraders, ids)
		})
	}
}

func practicalTheory(passing float64) Template {
	return Template{
		ID:                "tmpl",
		PassingTotalScore: passing,
		Components: []Component{
			{ID: "practical", Code: "practical_evaluation", WeightPercentage: 70, EvaluationType: TypeInstructorManual, IsActive: true, OrderIndex: 0},
			{ID: "theory", Code: "theory_evaluation", WeightPercentage: 30, EvaluationType: TypeInstructorManual, IsActive: true, OrderIndex: 1},
		},
	}
}

func TestAggregate(t *testing.T) {
	manual := func(total, max float64) ComponentInput {
		return ComponentInput{Evaluations: []GraderEvaluation{graderEval("g1", 100, total, max)}}
	}

	t.Run("weighted total and verdict", func(t *testing.T) {
		res := Aggregate(practicalTheory(80), map[string]ComponentInput{
			"practical": manual(18, 20),
			"theory":    manual(6, 10),
		}, 4)

		assert.Equal(t, 81.0, res.TotalScore)
		assert.Equal(t, 80.0, res.PassingScore)
		assert.True(t, res.IsPassed)
		require.Len(t, res.ComponentScores, 2)
		assert.Equal(t, 90.0, res.ComponentScores[0].RawScore)
		assert.Equal(t, 63.0, res.ComponentScores[0].WeightedScore)
		assert.Equal(t, 60.0, res.ComponentScores[1].RawScore)
		assert.Equal(t, 18.0, res.ComponentScores[1].WeightedScore)
	})

	t.Run("passing boundary", func(t *testing.T) {
		tests := []struct {
			name       string
			passing    float64
			wantPassed bool
		}{
			{name: "below", passing: 81.0001, wantPassed: false},
			{name: "equal", passing: 81, wantPassed: true},
			{name: "above", passing: 80.9999, wantPassed: true},
			{name: "zero", passing: 0, wantPassed: true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				res := Aggregate(practicalTheory(tt.passing), map[string]ComponentInput{
					"practical": manual(18, 20),
					"theory":    manual(6, 10),
				}, 4)
				assert.Equal(t, tt.wantPassed, res.IsPassed)
			})
		}
	})

	t.Run("missing scores count as zero", func(t *testing.T) {
		tmpl := practicalTheory(80)
		tmpl.Components[1].EvaluationType = TypeExamAuto
		res := Aggregate(tmpl, map[string]ComponentInput{"practical": manual(20, 20)}, 4)

		assert.Equal(t, 70.0, res.TotalScore)
		assert.False(t, res.IsPassed)
		assert.Equal(t, "no exam_auto score recorded yet", res.ComponentScores[1].Breakdown.Note)

		res = Aggregate(practicalTheory(80), nil, 4)
		assert.Equal(t, 0.0, res.TotalScore)
		assert.Equal(t, "no grader evaluation submitted yet", res.ComponentScores[0].Breakdown.Note)
	})

	t.Run("external score", func(t *testing.T) {
		tmpl := practicalTheory(80)
		tmpl.Components[1].EvaluationType = TypeExamAuto
		res := Aggregate(tmpl, map[string]ComponentInput{
			"practical": manual(20, 20),
			"theory":    {External: &ExternalScore{Score: 50, Breakdown: map[string]interface{}{"correct": 5}}},
		}, 4)

		assert.Equal(t, 85.0, res.TotalScore)
		assert.Equal(t, map[string]interface{}{"correct": 5}, res.ComponentScores[1].Breakdown.Source)
	})

	t.Run("normalized contribution", func(t *testing.T) {
		tmpl := practicalTheory(80)
		tmpl.Components[0].WeightPercentage = 40
		tmpl.Components[1].WeightPercentage = 60
		res := Aggregate(tmpl, map[string]ComponentInput{"practical": manual(7, 10)}, 4)

		assert.Equal(t, 70.0, res.ComponentScores[0].RawScore)
		assert.Equal(t, 28.0, res.ComponentScores[0].WeightedScore)
		assert.Equal(t, 28.0, res.TotalScore)
	})

	t.Run("non-finite external scores count as zero", func(t *testing.T) {
		for _, score := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			tmpl := practicalTheory(80)
			tmpl.Components[0].WeightPercentage = 40
			tmpl.Components[1].WeightPercentage = 60
			tmpl.Components[1].EvaluationType = TypeExamAuto
			res := Aggregate(tmpl, map[string]ComponentInput{
				"practical": manual(20, 20),
				"theory":    {External: &ExternalScore{Score: score}},
			}, 4)

			assert.Equal(t, 0.0, res.ComponentScores[1].RawScore)
			assert.Equal(t, "exam_auto score is not a number, counted as 0", res.ComponentScores[1].Breakdown.Note)
			assert.Equal(t, 40.0, res.TotalScore)
			assert.False(t, res.IsPassed)
		}
	})

	t.Run("inactive components are ignored", func(t *testing.T) {
		tmpl := practicalTheory(50)
		tmpl.Components[1].IsActive = false
		tmpl.Components[0].WeightPercentage = 100
		res := Aggregate(tmpl, map[string]ComponentInput{
			"practical": manual(15, 20),
			"theory":    manual(10, 10),
		}, 4)

		assert.Equal(t, 75.0, res.TotalScore)
		require.Len(t, res.ComponentScores, 1)
		assert.Equal(t, "practical", res.ComponentScores[0].ComponentID)
	})

	t.Run("scores are clamped", func(t *testing.T) {
		tmpl := practicalTheory(80)
		tmpl.Components[0].WeightPercentage = 60
		tmpl.Components[1].WeightPercentage = 60
		tmpl.Components[1].EvaluationType = TypePeerReview
		res := Aggregate(tmpl, map[string]ComponentInput{
			"practical": manual(20, 20),
			"theory":    {External: &ExternalScore{Score: 150}},
		}, 4)

		assert.Equal(t, 100.0, res.ComponentScores[1].RawScore)
		assert.Equal(t, 100.0, res.TotalScore)
	})

	t.Run("rounding", func(t *testing.T) {
		res := Aggregate(practicalTheory(80), map[string]ComponentInput{
			"practical": manual(2, 3),
			"theory":    manual(1, 3),
		}, 4)

		assert.Equal(t, 66.6667, res.ComponentScores[0].RawScore)
		assert.Equal(t, 46.6667, res.ComponentScores[0].WeightedScore)
		assert.Equal(t, 33.3333, res.ComponentScores[1].RawScore)
		assert.Equal(t, 10.0, res.ComponentScores[1].WeightedScore)
		assert.Equal(t, 56.6667, res.TotalScore)
	})
}
