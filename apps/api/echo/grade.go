package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core/evaluation"
)

type gradeApi struct {
	svc *evaluation.Service
}

type RecalculateResponse struct {
	Calculated int `json:"calculated"`
}

func registerGradeAPI(g *echo.Group, svc *evaluation.Service) {
	api := gradeApi{svc: svc}

	og := g.Group("/offerings/:offering/templates/:template")
	og.GET("/grades", api.query)
	og.POST("/grades", api.recalculateAll)
	og.POST("/ranks", api.rank)
	og.GET("/statistics", api.statistics)

	// trainee endpoints
	tg := og.Group("/trainees/:trainee/grade")
	tg.GET("", api.retrieve)
	tg.POST("", api.calculate)
	tg.PUT("/override", api.override)
	tg.DELETE("/override", api.clearOverride)

	g.GET("/grades/:id/history", api.history)
}

// Handlers

func (api *gradeApi) query(ctx echo.Context) error {
	grades, err := api.svc.ListGradesWithTrainees(ctx.Request().Context(), ctx.Param("offering"), ctx.Param("template"))
	if err != nil {
		return errors.Wrap(err, "listing grades")
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *gradeApi) recalculateAll(ctx echo.Context) error {
	n, err := api.svc.RecalculateOffering(ctx.Request().Context(), ctx.Param("offering"), ctx.Param("template"))
	if err != nil {
		return errors.Wrap(err, "recalculating offering")
	}
	return ctx.JSON(http.StatusOK, RecalculateResponse{Calculated: n})
}

func (api *gradeApi) rank(ctx echo.Context) error {
	offeringID, templateID := ctx.Param("offering"), ctx.Param("template")
	if err := api.svc.RecalculateRanks(ctx.Request().Context(), offeringID, templateID); err != nil {
		return errors.Wrap(err, "ranking offering")
	}
	grades, err := api.svc.ListGrades(ctx.Request().Context(), offeringID, templateID)
	if err != nil {
		return errors.Wrap(err, "listing grades")
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *gradeApi) statistics(ctx echo.Context) error {
	stats, err := api.svc.Statistics(ctx.Request().Context(), ctx.Param("offering"), ctx.Param("template"))
	if err != nil {
		return errors.Wrap(err, "computing statistics")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *gradeApi) retrieve(ctx echo.Context) error {
	grade, err := api.svc.GetGrade(ctx.Request().Context(), bindGradeKey(ctx))
	if err != nil {
		return errors.Wrap(err, "getting grade")
	}
	return ctx.JSON(http.StatusOK, grade)
}

func (api *gradeApi) calculate(ctx echo.Context) error {
	grade, err := api.svc.Recalculate(ctx.Request().Context(), bindGradeKey(ctx))
	if err != nil {
		return errors.Wrap(err, "calculating grade")
	}
	return ctx.JSON(http.StatusOK, grade)
}

func (api *gradeApi) override(ctx echo.Context) error {
	var data evaluation.OverrideGrade
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OverrideGrade")
	}
	if data.ChangedBy == "" {
		data.ChangedBy = actor(ctx)
	}
	grade, err := api.svc.OverrideGrade(ctx.Request().Context(), bindGradeKey(ctx), data)
	if err != nil {
		return errors.Wrap(err, "overriding grade")
	}
	return ctx.JSON(http.StatusOK, grade)
}

func (api *gradeApi) clearOverride(ctx echo.Context) error {
	grade, err := api.svc.ClearOverride(ctx.Request().Context(), bindGradeKey(ctx), actor(ctx))
	if err != nil {
		return errors.Wrap(err, "clearing grade override")
	}
	return ctx.JSON(http.StatusOK, grade)
}

func (api *gradeApi) history(ctx echo.Context) error {
	hist, err := api.svc.GradeHistory(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting grade history")
	}
	return ctx.JSON(http.StatusOK, hist)
}
