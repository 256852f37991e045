package suggestion

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sorrel/pkg/context"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/suggestion"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// Register registers suggestion routes
func Register(g *echo.Group) {
	g.GET("", ListSuggestions)
	g.POST("/apply", ApplySuggestions)
}

// ListSuggestions returns mapping candidates for the shop's unmapped entities
func ListSuggestions(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "suggestion.ListSuggestions")
	defer span.End()

	shopID := context.GetShopID(ctx)
	entityType := models.EntityType(c.QueryParam("entity_type"))
	if entityType == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "entity_type query parameter is required")
	}

	threshold, err := parseThreshold(c.QueryParam("threshold"))
	if err != nil {
		return err
	}

	ctx, engine, err := ectoinject.GetContext[*suggestion.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidates, err := engine.Suggest(ctx, shopID, entityType, threshold)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, candidates)
}

// ApplySuggestions writes high-confidence candidates to the mapping store and
// returns the rest for review
func ApplySuggestions(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "suggestion.ApplySuggestions")
	defer span.End()

	shopID := context.GetShopID(ctx)
	entityType := models.EntityType(c.QueryParam("entity_type"))
	if entityType == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "entity_type query parameter is required")
	}

	threshold, err := parseThreshold(c.QueryParam("threshold"))
	if err != nil {
		return err
	}

	ctx, engine, err := ectoinject.GetContext[*suggestion.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := engine.AutoApply(ctx, shopID, entityType, threshold)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func parseThreshold(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	threshold, err := strconv.ParseFloat(raw, 64)
	if err != nil || threshold <= 0 || threshold > 1 {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "threshold must be a number in (0, 1]")
	}
	return threshold, nil
}
