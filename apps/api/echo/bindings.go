package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/evaluation"
)

func bindTemplateFilter(ctx echo.Context) (evaluation.TemplateFilter, error) {
	filter := evaluation.TemplateFilter{
		CourseTemplateID: ctx.QueryParam("course_template_id"),
		Search:           ctx.QueryParam("search"),
	}
	if val := ctx.QueryParam("is_active"); val != "" {
		active, err := strconv.ParseBool(val)
		if err != nil {
			return filter, core.NewValidationError(nil, core.FieldError{Field: "is_active", Error: "is_active must be a boolean"})
		}
		filter.IsActive = &active
	}
	filter.Clean()
	return filter, nil
}

func bindEvaluationFilter(ctx echo.Context) evaluation.EvaluationFilter {
	return evaluation.EvaluationFilter{
		OfferingID:  core.CleanString(ctx.Param("offering")),
		TraineeID:   core.CleanString(ctx.QueryParam("trainee_id")),
		ComponentID: core.CleanString(ctx.QueryParam("component_id")),
		GraderID:    core.CleanString(ctx.QueryParam("grader_id")),
	}
}

func bindGradeKey(ctx echo.Context) evaluation.GradeKey {
	return evaluation.GradeKey{
		OfferingID: core.CleanString(ctx.Param("offering")),
		TraineeID:  core.CleanString(ctx.Param("trainee")),
		TemplateID: core.CleanString(ctx.Param("template")),
	}
}
