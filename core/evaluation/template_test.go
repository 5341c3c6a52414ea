package evaluation_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/evaluation"
	"github.com/trezcool/gradebook/tests"
)

// validationCause returns the cause of a validation error and its field errors.
func validationCause(t *testing.T, err error) (error, map[string]string) {
	t.Helper()
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	require.Truef(t, ok, "expected a validation error, got %v", err)
	flds := make(map[string]string, len(vErr.Fields))
	for _, f := range vErr.Fields {
		flds[f.Field] = f.Error
	}
	return vErr.Err, flds
}

func float(f float64) *float64 { return &f }
func boolean(b bool) *bool      { return &b }
func str(s string) *string      { return &s }

func TestService_CreateTemplate(t *testing.T) {
	svc, _ := testutil.NewService()
	ctx := context.Background()

	t.Run("weights above 100", func(t *testing.T) {
		nt := testutil.PracticalTheoryTemplate()
		nt.Components[1].WeightPercentage = 40
		_, err := svc.CreateTemplate(ctx, nt)
		cause, flds := validationCause(t, err)
		assert.Equal(t, evaluation.ErrInvalidWeights, cause)
		assert.Equal(t, "active component weights sum to 110, which exceeds 100", flds["weight_percentage"])
	})

	t.Run("invalid input", func(t *testing.T) {
		nt := testutil.PracticalTheoryTemplate()
		nt.Name = "  "
		nt.Components[0].EvaluationType = "lol"
		_, err := svc.CreateTemplate(ctx, nt)
		assert.True(t, core.IsValidation(err))
	})

	t.Run("inconsistent grader weights", func(t *testing.T) {
		nt := testutil.PracticalTheoryTemplate()
		nt.Components[0].Graders = []evaluation.GraderWeight{{GraderID: "g1", Weight: 60}, {GraderID: "g2", Weight: 30}}
		_, err := svc.CreateTemplate(ctx, nt)
		cause, flds := validationCause(t, err)
		assert.Equal(t, evaluation.ErrInvalidGraders, cause)
		assert.Equal(t, "grader weights must sum to 100, got 90", flds["components[0].graders"])
	})

	t.Run("partial weights are allowed while inactive", func(t *testing.T) {
		nt := testutil.PracticalTheoryTemplate()
		nt.Components = nt.Components[:1]
		tmpl, err := svc.CreateTemplate(ctx, nt)
		require.NoError(t, err)
		assert.Equal(t, 70.0, tmpl.ActiveWeightSum())
	})

	t.Run("valid", func(t *testing.T) {
		tmpl, err := svc.CreateTemplate(ctx, testutil.PracticalTheoryTemplate())
		require.NoError(t, err)

		assert.NotEmpty(t, tmpl.ID)
		assert.False(t, tmpl.IsActive)
		assert.Equal(t, 1, tmpl.Version)
		assert.Empty(t, tmpl.ParentID)
		require.Len(t, tmpl.Components, 2)
		assert.Equal(t, "practical_evaluation", tmpl.Components[0].Code)
		assert.Equal(t, "theory_evaluation", tmpl.Components[1].Code)
		assert.Equal(t, tmpl.ID, tmpl.Components[0].TemplateID)
		require.Len(t, tmpl.Components[0].SubItems, 2)
		assert.Equal(t, 12.0, tmpl.Components[0].SubItems[0].MaxScore)
		assert.Equal(t, tmpl.Components[0].ID, tmpl.Components[0].SubItems[0].ComponentID)

		got, err := svc.GetTemplate(ctx, tmpl.ID)
		require.NoError(t, err)
		assert.Equal(t, tmpl, got)
	})
}

func TestService_ActivateTemplate(t *testing.T) {
	svc, _ := testutil.NewService()
	ctx := context.Background()

	t.Run("unknown template", func(t *testing.T) {
		_, err := svc.ActivateTemplate(ctx, "lol")
		assert.Equal(t, evaluation.ErrTemplateNotFound, err)
	})

	t.Run("weights must sum to 100", func(t *testing.T) {
		nt := testutil.PracticalTheoryTemplate()
		nt.Components = nt.Components[:1]
		tmpl := testutil.CreateTemplate(t, svc, nt, false)

		_, err := svc.ActivateTemplate(ctx, tmpl.ID)
		cause, flds := validationCause(t, err)
		assert.Equal(t, evaluation.ErrNotActivatable, cause)
		assert.Equal(t, "active component weights must sum to 100, got 70", flds["weight_percentage"])
	})

	t.Run("manual components need sub-items", func(t *testing.T) {
		nt := testutil.PracticalTheoryTemplate()
		nt.Components[1].SubItems = nil
		tmpl := testutil.CreateTemplate(t, svc, nt, false)

		_, err := svc.ActivateTemplate(ctx, tmpl.ID)
		cause, flds := validationCause(t, err)
		assert.Equal(t, evaluation.ErrNotActivatable, cause)
		assert.Contains(t, flds, "components.theory_evaluation.sub_items")
	})

	t.Run("activate and deactivate", func(t *testing.T) {
		tmpl := testutil.CreateTemplate(t, svc, testutil.PracticalTheoryTemplate(), false)

		tmpl, err := svc.ActivateTemplate(ctx, tmpl.ID)
		require.NoError(t, err)
		assert.True(t, tmpl.IsActive)

		active, err := svc.QueryTemplates(ctx, evaluation.TemplateFilter{IsActive: boolean(true)})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, tmpl.ID, active[0].ID)

		tmpl, err = svc.DeactivateTemplate(ctx, tmpl.ID)
		require.NoError(t, err)
		assert.False(t, tmpl.IsActive)
	})
}

func TestService_componentWeights(t *testing.T) {
	svc, _ := testutil.NewService()
	ctx := context.Background()
	tmpl := testutil.CreateTemplate(t, svc, testutil.PracticalTheoryTemplate(), true)
	practical, theory := tmpl.Components[0], tmpl.Components[1]

	t.Run("active template must keep summing to 100", func(t *testing.T) {
		_, err := svc.UpdateComponent(ctx, practical.ID, evaluation.UpdateComponent{WeightPercentage: float(60)})
		cause, _ := validationCause(t, err)
		assert.Equal(t, evaluation.ErrNotActivatable, cause)
	})

	t.Run("adding a component above 100", func(t *testing.T) {
		_, err := svc.AddComponent(ctx, tmpl.ID, evaluation.NewComponent{
			Name: "Attendance", WeightPercentage: 10, EvaluationType: evaluation.TypeActivityAuto,
		})
		cause, _ := validationCause(t, err)
		assert.Equal(t, evaluation.ErrInvalidWeights, cause)
	})

	t.Run("unknown component", func(t *testing.T) {
		_, err := svc.SetComponentWeights(ctx, tmpl.ID, evaluation.SetWeights{Weights: []evaluation.ComponentWeight{
			{ComponentID: "lol", WeightPercentage: 100},
		}})
		assert.Equal(t, evaluation.ErrComponentNotFound, err)
	})

	t.Run("duplicated component", func(t *testing.T) {
		_, err := svc.SetComponentWeights(ctx, tmpl.ID, evaluation.SetWeights{Weights: []evaluation.ComponentWeight{
			{ComponentID: practical.ID, WeightPercentage: 50},
			{ComponentID: practical.ID, WeightPercentage: 50},
		}})
		cause, _ := validationCause(t, err)
		assert.Equal(t, evaluation.ErrInvalidWeights, cause)
	})

	t.Run("rebalance in one step", func(t *testing.T) {
		got, err := svc.SetComponentWeights(ctx, tmpl.ID, evaluation.SetWeights{Weights: []evaluation.ComponentWeight{
			{ComponentID: practical.ID, WeightPercentage: 60},
			{ComponentID: theory.ID, WeightPercentage: 40},
		}})
		require.NoError(t, err)
		assert.Equal(t, 60.0, got.Components[0].WeightPercentage)
		assert.Equal(t, 40.0, got.Components[1].WeightPercentage)
		assert.True(t, got.IsActive)
	})

	t.Run("deactivating a component of an inactive template", func(t *testing.T) {
		other := testutil.CreateTemplate(t, svc, testutil.PracticalTheoryTemplate(), false)
		comp, err := svc.UpdateComponent(ctx, other.Components[1].ID, evaluation.UpdateComponent{
			IsActive: boolean(false), Name: str("Written exam"),
		})
		require.NoError(t, err)
		assert.False(t, comp.IsActive)
		assert.Equal(t, "written_exam", comp.Code)

		got, err := svc.GetTemplate(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, 70.0, got.ActiveWeightSum())
	})
}

func TestService_templateLock(t *testing.T) {
	svc, _ := testutil.NewService()
	ctx := context.Background()
	tmpl := testutil.CreateTemplate(t, svc, testutil.PracticalTheoryTemplate(), true)
	practical := tmpl.Components[0]

	// submitted scores alone do not lock the template
	testutil.Submit(t, svc, testutil.TraineeA, "grader-1", practical, 10, 8)
	_, err := svc.UpdateSubItem(ctx, practical.SubItems[0].ID, evaluation.UpdateSubItem{Description: str("Width and penetration")})
	require.NoError(t, err)

	_, err = svc.CalculateComprehensiveGrade(ctx, testutil.OfferingID, testutil.TraineeA, tmpl.ID)
	require.NoError(t, err)

	assertLocked := func(t *testing.T, err error) {
		t.Helper()
		cause, _ := validationCause(t, err)
		assert.Equal(t, evaluation.ErrTemplateLocked, cause)
	}

	t.Run("shape changes are rejected", func(t *testing.T) {
		_, err := svc.AddSubItem(ctx, practical.ID, evaluation.NewSubItem{Name: "Finish", MaxScore: 5})
		assertLocked(t, err)
		_, err = svc.UpdateSubItem(ctx, practical.SubItems[0].ID, evaluation.UpdateSubItem{MaxScore: float(20)})
		assertLocked(t, err)
		assertLocked(t, svc.RemoveSubItem(ctx, practical.SubItems[0].ID))
		_, err = svc.UpdateComponent(ctx, practical.ID, evaluation.UpdateComponent{Name: str("Practice")})
		assertLocked(t, err)
		assertLocked(t, svc.RemoveComponent(ctx, practical.ID))
		assertLocked(t, svc.DeleteTemplate(ctx, tmpl.ID))
	})

	t.Run("header stays editable", func(t *testing.T) {
		got, err := svc.UpdateTemplate(ctx, tmpl.ID, evaluation.UpdateTemplate{Name: str("Welding final evaluation (2024)")})
		require.NoError(t, err)
		assert.Equal(t, "Welding final evaluation (2024)", got.Name)
		assert.Len(t, got.Components, 2)
	})

	t.Run("new versions are editable copies", func(t *testing.T) {
		v2, err := svc.NewTemplateVersion(ctx, tmpl.ID, "coordinator")
		require.NoError(t, err)
		assert.Equal(t, 2, v2.Version)
		assert.Equal(t, tmpl.ID, v2.ParentID)
		assert.Equal(t, tmpl.CourseTemplateID, v2.CourseTemplateID)
		assert.Equal(t, "coordinator", v2.CreatedBy)
		assert.False(t, v2.IsActive)
		require.Len(t, v2.Components, 2)
		assert.NotEqual(t, practical.ID, v2.Components[0].ID)
		assert.Equal(t, practical.Code, v2.Components[0].Code)
		require.Len(t, v2.Components[0].SubItems, 2)
		assert.NotEqual(t, practical.SubItems[0].ID, v2.Components[0].SubItems[0].ID)

		_, err = svc.AddSubItem(ctx, v2.Components[0].ID, evaluation.NewSubItem{Name: "Finish", MaxScore: 5})
		require.NoError(t, err)

		// the source is unchanged
		src, err := svc.GetTemplate(ctx, tmpl.ID)
		require.NoError(t, err)
		assert.Len(t, src.Components[0].SubItems, 2)

		// versions are numbered per course template
		v3, err := svc.NewTemplateVersion(ctx, tmpl.ID, "coordinator")
		require.NoError(t, err)
		assert.Equal(t, 3, v3.Version)
	})
}

func TestService_DeleteTemplate(t *testing.T) {
	svc, _ := testutil.NewService()
	ctx := context.Background()
	tmpl := testutil.CreateTemplate(t, svc, testutil.PracticalTheoryTemplate(), false)

	assert.Equal(t, evaluation.ErrTemplateNotFound, svc.DeleteTemplate(ctx, "lol"))
	require.NoError(t, svc.DeleteTemplate(ctx, tmpl.ID))

	_, err := svc.GetTemplate(ctx, tmpl.ID)
	assert.Equal(t, evaluation.ErrTemplateNotFound, err)
	_, err = svc.AddSubItem(ctx, tmpl.Components[0].ID, evaluation.NewSubItem{Name: "Finish", MaxScore: 5})
	assert.Equal(t, evaluation.ErrComponentNotFound, err)
}
