package conflict

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sorrel/internal/repositories/conflict"
	"github.com/Ramsey-B/sorrel/pkg/context"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// Register registers conflict review routes
func Register(g *echo.Group) {
	g.GET("", ListConflicts)
	g.GET("/:id", GetConflict)
	g.POST("/:id/resolve", ResolveConflict)
}

// ListConflicts lists open conflicts for the shop
func ListConflicts(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "conflict.ListConflicts")
	defer span.End()

	shopID := context.GetShopID(ctx)
	productID := c.QueryParam("canonical_product_id")

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	ctx, repo, err := ectoinject.GetContext[*conflict.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if productID != "" {
		conflicts, err := repo.ListOpenByProduct(ctx, shopID, productID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, conflicts)
	}

	conflicts, err := repo.ListOpen(ctx, shopID, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, conflicts)
}

// GetConflict fetches a single conflict
func GetConflict(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "conflict.GetConflict")
	defer span.End()

	shopID := context.GetShopID(ctx)
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*conflict.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	record, err := repo.Get(ctx, shopID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, record)
}

// ResolveConflict marks a conflict as handled by a reviewer
func ResolveConflict(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "conflict.ResolveConflict")
	defer span.End()

	shopID := context.GetShopID(ctx)
	id := c.Param("id")

	resolvedBy := context.GetUserID(ctx)
	if resolvedBy == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-User-ID header is required to resolve a conflict")
	}

	ctx, repo, err := ectoinject.GetContext[*conflict.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := repo.Resolve(ctx, shopID, id, resolvedBy); err != nil {
		return err
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"conflict_id": id,
			"resolved_by": resolvedBy,
		}).Info("Resolved conflict")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "resolved"})
}
