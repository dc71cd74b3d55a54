package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/junobuild/satellite/cmd/satellite/middleware"
	"github.com/junobuild/satellite/cmd/satellite/service"
	"github.com/junobuild/satellite/common/storage"
)

// AssetHandler handles the asset admin surface
type AssetHandler struct {
	assets *service.AssetService
}

// NewAssetHandler creates a new asset handler
func NewAssetHandler(assets *service.AssetService) *AssetHandler {
	return &AssetHandler{assets: assets}
}

// ListAssets pages the assets of a collection with filters, order and a
// key cursor.
// GET /api/v1/collections/:collection/assets
func (h *AssetHandler) ListAssets(c echo.Context) error {
	params := storage.ListParams{
		Filter: storage.ListFilter{
			MatcherFullPath:    c.QueryParam("matcher"),
			MatcherDescription: c.QueryParam("description"),
		},
		Order: storage.ListOrder{
			Field: storage.OrderField(c.QueryParam("order_field")),
			Desc:  c.QueryParam("order") == "desc",
		},
	}
	if params.Order.Field == "" {
		params.Order.Field = storage.OrderKeys
	}

	if owner := c.QueryParam("owner"); owner != "" {
		id, err := uuid.Parse(owner)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid owner id")
		}
		params.Filter.Owner = &id
	}

	if cursor := c.QueryParam("start_after"); cursor != "" {
		params.Pagination.StartAfter = &cursor
	}
	if limit := c.QueryParam("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		params.Pagination.Limit = n
	}

	result, err := h.assets.List(c.Request().Context(), c.Param("collection"), params)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// GetAsset returns one asset's metadata
// GET /api/v1/collections/:collection/assets/*
func (h *AssetHandler) GetAsset(c echo.Context) error {
	asset, err := h.assets.Get(c.Request().Context(), c.Param("collection"), wildcardPath(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, asset)
}

// DeleteAsset removes an asset and its chunk content
// DELETE /api/v1/collections/:collection/assets/*
func (h *AssetHandler) DeleteAsset(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing caller id")
	}

	err := h.assets.Delete(c.Request().Context(), caller, c.Param("collection"), wildcardPath(c))
	if err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// wildcardPath rebuilds the leading-slash full path from the route
// wildcard segment
func wildcardPath(c echo.Context) string {
	return "/" + c.Param("*")
}
