package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/gradebook/core"
)

const (
	actorHeader = "X-Actor"
	actorKey    = "actor"
)

// actorMiddleware stores the caller's identifier, recorded as author of template versions and grade changes.
func actorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if a := core.CleanString(ctx.Request().Header.Get(actorHeader)); a != "" {
			ctx.Set(actorKey, a)
		}
		return next(ctx)
	}
}

func actor(ctx echo.Context) string {
	a, _ := ctx.Get(actorKey).(string)
	return a
}
