package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core/evaluation"
)

type templateApi struct {
	svc *evaluation.Service
}

func registerTemplateAPI(g *echo.Group, svc *evaluation.Service) {
	api := templateApi{svc: svc}

	tg := g.Group("/templates")
	tg.GET("", api.query)
	tg.POST("", api.create)

	// detail endpoints
	dg := tg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/activate", api.activate)
	dg.POST("/deactivate", api.deactivate)
	dg.POST("/versions", api.newVersion)
	dg.POST("/components", api.addComponent)
	dg.PUT("/weights", api.setWeights)

	cg := g.Group("/components/:id")
	cg.PUT("", api.updateComponent)
	cg.DELETE("", api.removeComponent)
	cg.POST("/sub-items", api.addSubItem)

	sg := g.Group("/sub-items/:id")
	sg.PUT("", api.updateSubItem)
	sg.DELETE("", api.removeSubItem)
}

// Handlers

func (api *templateApi) query(ctx echo.Context) error {
	filter, err := bindTemplateFilter(ctx)
	if err != nil {
		return err
	}
	templates, err := api.svc.QueryTemplates(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying templates")
	}
	return ctx.JSON(http.StatusOK, templates)
}

func (api *templateApi) create(ctx echo.Context) error {
	var data evaluation.NewTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTemplate")
	}
	if data.CreatedBy == "" {
		data.CreatedBy = actor(ctx)
	}

	tmpl, err := api.svc.CreateTemplate(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating template")
	}
	return ctx.JSON(http.StatusCreated, tmpl)
}

func (api *templateApi) retrieve(ctx echo.Context) error {
	tmpl, err := api.svc.GetTemplate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting template")
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *templateApi) update(ctx echo.Context) error {
	var data evaluation.UpdateTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTemplate")
	}
	tmpl, err := api.svc.UpdateTemplate(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating template")
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *templateApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteTemplate(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting template")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *templateApi) activate(ctx echo.Context) error {
	tmpl, err := api.svc.ActivateTemplate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "activating template")
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *templateApi) deactivate(ctx echo.Context) error {
	tmpl, err := api.svc.DeactivateTemplate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deactivating template")
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *templateApi) newVersion(ctx echo.Context) error {
	tmpl, err := api.svc.NewTemplateVersion(ctx.Request().Context(), ctx.Param("id"), actor(ctx))
	if err != nil {
		return errors.Wrap(err, "versioning template")
	}
	return ctx.JSON(http.StatusCreated, tmpl)
}

func (api *templateApi) addComponent(ctx echo.Context) error {
	var data evaluation.NewComponent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComponent")
	}
	comp, err := api.svc.AddComponent(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding component")
	}
	return ctx.JSON(http.StatusCreated, comp)
}

func (api *templateApi) setWeights(ctx echo.Context) error {
	var data evaluation.SetWeights
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetWeights")
	}
	tmpl, err := api.svc.SetComponentWeights(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "setting component weights")
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *templateApi) updateComponent(ctx echo.Context) error {
	var data evaluation.UpdateComponent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateComponent")
	}
	comp, err := api.svc.UpdateComponent(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating component")
	}
	return ctx.JSON(http.StatusOK, comp)
}

func (api *templateApi) removeComponent(ctx echo.Context) error {
	if err := api.svc.RemoveComponent(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "removing component")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *templateApi) addSubItem(ctx echo.Context) error {
	var data evaluation.NewSubItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubItem")
	}
	item, err := api.svc.AddSubItem(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding sub-item")
	}
	return ctx.JSON(http.StatusCreated, item)
}

func (api *templateApi) updateSubItem(ctx echo.Context) error {
	var data evaluation.UpdateSubItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSubItem")
	}
	item, err := api.svc.UpdateSubItem(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating sub-item")
	}
	return ctx.JSON(http.StatusOK, item)
}

func (api *templateApi) removeSubItem(ctx echo.Context) error {
	if err := api.svc.RemoveSubItem(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "removing sub-item")
	}
	return ctx.NoContent(http.StatusNoContent)
}
