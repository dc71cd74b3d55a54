package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/junobuild/satellite/cmd/satellite/service"
	"github.com/junobuild/satellite/common/models"
)

// ServeHandler answers the public asset surface
type ServeHandler struct {
	serve *service.ServeService
}

// NewServeHandler creates a new serve handler
func NewServeHandler(serve *service.ServeService) *ServeHandler {
	return &ServeHandler{serve: serve}
}

// ServeAsset serves a certified asset response for any path.
// The surface is GET-only; other methods answer 405.
func (h *ServeHandler) ServeAsset(c echo.Context) error {
	if c.Request().Method != http.MethodGet {
		return c.String(http.StatusMethodNotAllowed, "Method Not Allowed")
	}

	resp, err := h.serve.Serve(
		c.Request().Context(),
		c.Request().RequestURI,
		c.Request().Header.Get("Accept-Encoding"),
	)
	if err != nil {
		return httpError(err)
	}

	for _, header := range resp.Headers {
		c.Response().Header().Add(header.Name, header.Value)
	}
	if resp.StreamToken != nil {
		c.Response().Header().Set("X-Stream-Token", *resp.StreamToken)
	}

	return c.Blob(resp.StatusCode, contentType(resp.Headers), resp.Body)
}

// StreamChunk continues a multi-chunk download
// GET /api/v1/stream/:token
func (h *ServeHandler) StreamChunk(c echo.Context) error {
	resp, err := h.serve.StreamChunk(c.Request().Context(), c.Param("token"))
	if err != nil {
		return httpError(err)
	}

	if resp.Token != nil {
		c.Response().Header().Set("X-Stream-Token", *resp.Token)
	}
	return c.Blob(http.StatusOK, "application/octet-stream", resp.Body)
}

// contentType picks the Content-Type header from the prepared response
// headers, if any; echo requires one for Blob responses
func contentType(headers []models.HeaderField) string {
	for _, h := range headers {
		if http.CanonicalHeaderKey(h.Name) == "Content-Type" {
			return h.Value
		}
	}
	return "application/octet-stream"
}
