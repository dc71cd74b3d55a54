package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/junobuild/satellite/cmd/satellite/service"
	"github.com/junobuild/satellite/common/models"
	"github.com/junobuild/satellite/common/rules"
)

// ConfigHandler handles storage config and collection rule administration
type ConfigHandler struct {
	config   *service.ConfigService
	registry *rules.Registry
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(config *service.ConfigService, registry *rules.Registry) *ConfigHandler {
	return &ConfigHandler{config: config, registry: registry}
}

// GetConfig returns the current storage configuration
// GET /api/v1/config
func (h *ConfigHandler) GetConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, h.config.Get())
}

// SetConfig replaces the storage configuration (version gated)
// PUT /api/v1/config
func (h *ConfigHandler) SetConfig(c echo.Context) error {
	var cfg models.StorageConfig
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	updated, err := h.config.Set(&cfg)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

// PatchConfig applies an RFC 6902 JSON patch to the configuration
// PATCH /api/v1/config
func (h *ConfigHandler) PatchConfig(c echo.Context) error {
	patch, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read patch body")
	}

	updated, err := h.config.Patch(patch)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

// ListCollections returns all collection rules
// GET /api/v1/collections
func (h *ConfigHandler) ListCollections(c echo.Context) error {
	return c.JSON(http.StatusOK, h.registry.List())
}

// GetCollection returns one collection rule
// GET /api/v1/collections/:collection
func (h *ConfigHandler) GetCollection(c echo.Context) error {
	rule, err := h.registry.Get(c.Param("collection"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rule)
}

// SetCollection creates or updates a collection rule
// PUT /api/v1/collections/:collection
func (h *ConfigHandler) SetCollection(c echo.Context) error {
	var rule models.CollectionRule
	if err := c.Bind(&rule); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rule.Collection = c.Param("collection")

	updated, err := h.registry.Set(&rule)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

// DeleteCollection removes a collection rule
// DELETE /api/v1/collections/:collection
func (h *ConfigHandler) DeleteCollection(c echo.Context) error {
	if err := h.registry.Delete(c.Param("collection")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
