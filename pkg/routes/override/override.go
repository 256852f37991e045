package override

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	overriderepo "github.com/Ramsey-B/sorrel/internal/repositories/override"
	"github.com/Ramsey-B/sorrel/pkg/context"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/override"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
	"github.com/Ramsey-B/sorrel/pkg/utils"
)

// Register registers override lifecycle routes on the products group
func Register(g *echo.Group) {
	g.GET("/:id/overrides", ListOverrides)
	g.POST("/:id/overrides", CreateOverride)
	g.PUT("/:id/overrides/:entityId", ModifyOverride)
	g.DELETE("/:id/overrides/:entityId", HideOverride)
	g.POST("/:id/overrides/:entityId/unhide", UnhideOverride)
	g.POST("/:id/overrides/commit", CommitOverrides)
	g.POST("/:id/pull", PullProduct)
}

// ListOverrides lists the shop's override records for a product
func ListOverrides(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "override.ListOverrides")
	defer span.End()

	shopID := context.GetShopID(ctx)
	productID := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*overriderepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	records, err := repo.ListByProduct(ctx, shopID, productID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, records)
}

// CreateOverride stages a shop-exclusive entity for a product
func CreateOverride(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "override.CreateOverride")
	defer span.End()

	req, err := utils.BindRequest[models.CreateOverrideRequest](c)
	if err != nil {
		return err
	}
	req.ShopID = context.GetShopID(ctx)
	req.CanonicalProductID = c.Param("id")

	ctx, resolver, err := ectoinject.GetContext[*override.Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	record, err := resolver.Create(ctx, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, record)
}

// ModifyOverride stages a shop-specific edit of a canonical entity
func ModifyOverride(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "override.ModifyOverride")
	defer span.End()

	req, err := utils.BindRequest[models.ModifyOverrideRequest](c)
	if err != nil {
		return err
	}
	req.ShopID = context.GetShopID(ctx)
	req.CanonicalProductID = c.Param("id")
	req.LocalEntityID = c.Param("entityId")

	ctx, resolver, err := ectoinject.GetContext[*override.Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	record, err := resolver.Modify(ctx, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, record)
}

// HideOverride stages removal of a canonical entity from the shop's view
func HideOverride(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "override.HideOverride")
	defer span.End()

	shopID := context.GetShopID(ctx)
	productID := c.Param("id")
	localEntityID := c.Param("entityId")

	ctx, resolver, err := ectoinject.GetContext[*override.Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	record, err := resolver.Hide(ctx, shopID, productID, localEntityID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, record)
}

// UnhideOverride reverts a staged removal back to inheritance
func UnhideOverride(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "override.UnhideOverride")
	defer span.End()

	shopID := context.GetShopID(ctx)
	productID := c.Param("id")
	localEntityID := c.Param("entityId")

	ctx, resolver, err := ectoinject.GetContext[*override.Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := resolver.Unhide(ctx, shopID, productID, localEntityID); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "inherited"})
}

// CommitOverrides pushes all staged overrides for a product to the shop in
// one transaction
func CommitOverrides(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "override.CommitOverrides")
	defer span.End()

	shopID := context.GetShopID(ctx)
	productID := c.Param("id")
	entityType := models.EntityType(c.QueryParam("entity_type"))
	if entityType == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "entity_type query parameter is required")
	}

	batch, err := utils.BindRequest[models.OverrideBatch](c)
	if err != nil {
		return err
	}

	ctx, resolver, err := ectoinject.GetContext[*override.Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := resolver.Commit(ctx, shopID, productID, entityType, &batch); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, batch)
}

// PullProduct rebuilds the shop-facing view of a product from the remote
// catalog and reconciles local sync state against it
func PullProduct(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "override.PullProduct")
	defer span.End()

	shopID := context.GetShopID(ctx)
	productID := c.Param("id")
	productExternalID := c.QueryParam("external_id")
	entityType := models.EntityType(c.QueryParam("entity_type"))

	if productExternalID == "" || entityType == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "external_id and entity_type query parameters are required")
	}

	ctx, resolver, err := ectoinject.GetContext[*override.Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entities, err := resolver.Pull(ctx, shopID, productID, productExternalID, entityType)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entities)
}
