package testutil

import (
	"context"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/evaluation"
	"github.com/trezcool/gradebook/services/logger"
	"github.com/trezcool/gradebook/storage/database"
	"github.com/trezcool/gradebook/storage/database/inmem"
)

// Offering and trainees used across fixtures.
const (
	OfferingID = "offering-2024-1"
	TraineeA   = "trainee-a"
	TraineeB   = "trainee-b"
	TraineeC   = "trainee-c"
	TraineeD   = "trainee-d"
)

func NewConfig() *core.Config {
	return &core.Config{
		Env:      "TEST",
		TestMode: true,
		AppName:  "Gradebook",
		Build:    "test",
		Grading:  core.GradingConfig{WeightTolerance: 0.01, ScorePrecision: 4, RecalculateOnSubmit: true},
	}
}

// NewLogger returns a logger writing to `w`, or discarding everything when `w` is nil.
func NewLogger(w io.Writer) core.Logger {
	if w == nil {
		w = io.Discard
	}
	return logsvc.NewRollbarLogger(log.New(w, "", 0), NewConfig())
}

// Clock returns a fixed-rate clock: every call is one second after the previous one.
func Clock(start time.Time) func() time.Time {
	current := start.UTC()
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

// NewService returns an evaluation service backed by a fresh in-memory store.
func NewService(opts ...evaluation.Option) (*evaluation.Service, *inmemdb.EvaluationRepository) {
	repo := inmemdb.NewEvaluationRepository(inmemdb.Open())
	opts = append([]evaluation.Option{
		evaluation.WithGradingConfig(NewConfig().Grading),
		evaluation.WithClock(Clock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))),
	}, opts...)
	svc := evaluation.NewService(repo, core.NewDefaultValidator(), NewLogger(nil), opts...)
	return svc, repo
}

// PracticalTheoryTemplate is a 70/30 template: practical (2 sub-items, max 20) and theory (1 sub-item, max 10),
// passing at 80.
func PracticalTheoryTemplate() evaluation.NewTemplate {
	return evaluation.NewTemplate{
		CourseTemplateID:  "course-welding-101",
		Name:              "Welding final evaluation",
		PassingTotalScore: 80,
		CreatedBy:         "admin",
		Components: []evaluation.NewComponent{
			{
				Name:             "실기평가",
				WeightPercentage: 70,
				EvaluationType:   evaluation.TypeInstructorManual,
				SubItems: []evaluation.NewSubItem{
					{Name: "Bead quality", MaxScore: 12},
					{Name: "Safety", MaxScore: 8},
				},
			},
			{
				Name:             "이론평가",
				WeightPercentage: 30,
				EvaluationType:   evaluation.TypeInstructorManual,
				SubItems: []evaluation.NewSubItem{
					{Name: "Written test", MaxScore: 10},
				},
			},
		},
	}
}

// CreateTemplate creates and optionally activates a template.
func CreateTemplate(t *testing.T, svc *evaluation.Service, nt evaluation.NewTemplate, activate bool) evaluation.Template {
	t.Helper()
	ctx := context.Background()
	tmpl, err := svc.CreateTemplate(ctx, nt)
	if err != nil {
		t.Fatalf("CreateTemplate() failed: %v", err)
	}
	if activate {
		if tmpl, err = svc.ActivateTemplate(ctx, tmpl.ID); err != nil {
			t.Fatalf("ActivateTemplate() failed: %v", err)
		}
	}
	return tmpl
}

// Scores builds a full submission scoring the sub-items of `comp` in order.
func Scores(comp evaluation.Component, scores ...float64) []evaluation.SubItemScoreInput {
	inputs := make([]evaluation.SubItemScoreInput, 0, len(scores))
	for i, s := range scores {
		inputs = append(inputs, evaluation.SubItemScoreInput{SubItemID: comp.SubItems[i].ID, Score: s})
	}
	return inputs
}

// Submit saves a grader evaluation and fails the test on error.
func Submit(t *testing.T, svc *evaluation.Service, traineeID, graderID string, comp evaluation.Component, scores ...float64) evaluation.GraderEvaluation {
	t.Helper()
	ge, err := svc.SubmitGraderEvaluation(context.Background(), evaluation.SubmitGraderEvaluation{
		OfferingID:   OfferingID,
		TraineeID:    traineeID,
		ComponentID:  comp.ID,
		GraderID:     graderID,
		GraderWeight: 100,
		Scores:       Scores(comp, scores...),
	})
	if err != nil {
		t.Fatalf("SubmitGraderEvaluation() failed: %v", err)
	}
	return ge
}

// PrepareDB opens the test database configured through TEST_DATABASE_* variables, migrates it
// and empties every table. The test is skipped when TEST_DATABASE_HOST is not set.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if os.Getenv("TEST_DATABASE_HOST") == "" {
		t.Skip("TEST_DATABASE_HOST not set, skipping database test")
	}
	conf := core.NewConfig()

	if err := database.CreateIfNotExist(conf); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	if err = database.Truncate(context.Background(), db.DB); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}
