package mapping

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sorrel/pkg/context"
	"github.com/Ramsey-B/sorrel/pkg/mappingstore"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
	"github.com/Ramsey-B/sorrel/pkg/utils"
)

// Register registers mapping routes
func Register(g *echo.Group) {
	g.GET("", ListMappings)
	g.GET("/lookup", LookupMapping)
	g.PUT("", PutMapping)
	g.DELETE("", DeleteMapping)
}

// ListMappings lists active mappings for the shop and entity type
func ListMappings(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "mapping.ListMappings")
	defer span.End()

	shopID := context.GetShopID(ctx)
	entityType := models.EntityType(c.QueryParam("entity_type"))
	if entityType == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "entity_type query parameter is required")
	}

	ctx, store, err := ectoinject.GetContext[*mappingstore.Store](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	mappings, err := store.ListActive(ctx, shopID, entityType)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, mappings)
}

// LookupMapping resolves a single mapping in either direction
func LookupMapping(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "mapping.LookupMapping")
	defer span.End()

	shopID := context.GetShopID(ctx)
	entityType := models.EntityType(c.QueryParam("entity_type"))
	canonicalID := c.QueryParam("canonical_id")
	externalID := c.QueryParam("external_id")

	if entityType == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "entity_type query parameter is required")
	}
	if (canonicalID == "") == (externalID == "") {
		return httperror.NewHTTPError(http.StatusBadRequest, "exactly one of canonical_id or external_id is required")
	}

	ctx, store, err := ectoinject.GetContext[*mappingstore.Store](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if canonicalID != "" {
		resolved, err := store.Get(ctx, shopID, entityType, canonicalID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]string{"external_id": resolved})
	}

	resolved, err := store.GetReverse(ctx, shopID, entityType, externalID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"canonical_id": resolved})
}

// PutMapping creates or re-points a mapping
func PutMapping(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "mapping.PutMapping")
	defer span.End()

	req, err := utils.BindRequest[models.PutMappingRequest](c)
	if err != nil {
		return err
	}

	if shopID := context.GetShopID(ctx); shopID != "" {
		req.ShopID = shopID
	}

	ctx, store, err := ectoinject.GetContext[*mappingstore.Store](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	record, err := store.Put(ctx, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, record)
}

// DeleteMapping deactivates a mapping
func DeleteMapping(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "mapping.DeleteMapping")
	defer span.End()

	shopID := context.GetShopID(ctx)
	entityType := models.EntityType(c.QueryParam("entity_type"))
	canonicalID := c.QueryParam("canonical_id")

	if entityType == "" || canonicalID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "entity_type and canonical_id query parameters are required")
	}

	ctx, store, err := ectoinject.GetContext[*mappingstore.Store](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := store.Delete(ctx, shopID, entityType, canonicalID); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}
