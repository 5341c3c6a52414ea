package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/evaluation"
)

type scoringApi struct {
	svc            *evaluation.Service
	recalcOnSubmit bool
}

// SubmissionResponse is a saved grader evaluation; RecalcError is set when the grade could not be refreshed.
type SubmissionResponse struct {
	evaluation.Submission
	RecalcError string `json:"recalc_error,omitempty"`
}

func registerScoringAPI(g *echo.Group, svc *evaluation.Service, recalcOnSubmit bool) {
	api := scoringApi{svc: svc, recalcOnSubmit: recalcOnSubmit}

	og := g.Group("/offerings/:offering")
	og.POST("/scores", api.recordScore)
	og.GET("/evaluations", api.query)
	og.POST("/templates/:template/evaluations", api.submit)

	g.DELETE("/evaluations/:id", api.destroy)
}

// Handlers

func (api *scoringApi) submit(ctx echo.Context) error {
	var data evaluation.SubmitGraderEvaluation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitGraderEvaluation")
	}
	data.OfferingID = ctx.Param("offering")
	templateID := core.CleanString(ctx.Param("template"))

	if !api.recalcOnSubmit {
		ge, err := api.svc.SubmitForTemplate(ctx.Request().Context(), data, templateID)
		if err != nil {
			return errors.Wrap(err, "submitting grader evaluation")
		}
		return ctx.JSON(http.StatusCreated, SubmissionResponse{Submission: evaluation.Submission{Evaluation: ge}})
	}

	sub, err := api.svc.SubmitAndRecalculate(ctx.Request().Context(), data, templateID)
	if err != nil {
		return errors.Wrap(err, "submitting grader evaluation")
	}
	res := SubmissionResponse{Submission: sub}
	if sub.RecalcErr != nil {
		res.RecalcError = sub.RecalcErr.Error()
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *scoringApi) query(ctx echo.Context) error {
	evals, err := api.svc.QueryGraderEvaluations(ctx.Request().Context(), bindEvaluationFilter(ctx))
	if err != nil {
		return errors.Wrap(err, "querying grader evaluations")
	}
	return ctx.JSON(http.StatusOK, evals)
}

func (api *scoringApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteGraderEvaluation(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting grader evaluation")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *scoringApi) recordScore(ctx echo.Context) error {
	var data evaluation.RecordExternalScore
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecordExternalScore")
	}
	data.OfferingID = ctx.Param("offering")

	es, err := api.svc.RecordExternalScore(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "recording external score")
	}
	return ctx.JSON(http.StatusCreated, es)
}
