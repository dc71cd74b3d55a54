package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/junobuild/satellite/cmd/satellite/middleware"
	"github.com/junobuild/satellite/cmd/satellite/service"
	"github.com/junobuild/satellite/common/models"
)

// UploadHandler handles the chunked upload flow
type UploadHandler struct {
	uploads *service.UploadService
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(uploads *service.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

// InitUpload opens an upload session
// POST /api/v1/upload/init
func (h *UploadHandler) InitUpload(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing caller id")
	}

	var req service.InitUploadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	batch, err := h.uploads.InitUpload(c.Request().Context(), caller, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, batch)
}

// UploadChunk appends a content chunk to the batch. The chunk bytes are
// the request body; the order index comes from the order_index query
// parameter.
// PUT /api/v1/upload/:batch_id/chunks
func (h *UploadHandler) UploadChunk(c echo.Context) error {
	batchID, err := strconv.ParseUint(c.Param("batch_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch id")
	}

	orderIndex, err := strconv.Atoi(c.QueryParam("order_index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order index")
	}

	content, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read chunk body")
	}

	chunkID, err := h.uploads.UploadChunk(c.Request().Context(), batchID, orderIndex, content)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, map[string]uint64{"chunk_id": chunkID})
}

// commitRequest carries the response headers committed with the asset and
// any extra encodings to derive server-side from the uploaded chunks
type commitRequest struct {
	Headers          []models.HeaderField  `json:"headers,omitempty"`
	DerivedEncodings []models.EncodingType `json:"derived_encodings,omitempty"`
}

// CommitBatch finalizes the batch into an asset
// POST /api/v1/upload/:batch_id/commit
func (h *UploadHandler) CommitBatch(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing caller id")
	}

	batchID, err := strconv.ParseUint(c.Param("batch_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch id")
	}

	var req commitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	asset, err := h.uploads.CommitBatch(c.Request().Context(), caller, batchID, req.Headers, req.DerivedEncodings)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, asset)
}
