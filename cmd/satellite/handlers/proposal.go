package handlers

import (
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/junobuild/satellite/cmd/satellite/middleware"
	"github.com/junobuild/satellite/cmd/satellite/service"
	"github.com/junobuild/satellite/common/models"
	"github.com/junobuild/satellite/common/proposal"
)

// ProposalHandler handles the staged-commit admin surface
type ProposalHandler struct {
	proposals *service.ProposalService
}

// NewProposalHandler creates a new proposal handler
func NewProposalHandler(proposals *service.ProposalService) *ProposalHandler {
	return &ProposalHandler{proposals: proposals}
}

type initProposalRequest struct {
	Type models.ProposalType `json:"proposal_type"`
}

// InitProposal opens a proposal
// POST /api/v1/proposals
func (h *ProposalHandler) InitProposal(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing caller id")
	}

	var req initProposalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	p, err := h.proposals.Init(c.Request().Context(), caller, req.Type)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

// SubmitProposal seals a proposal's staged set and opens it for review
// POST /api/v1/proposals/:proposal_id/submit
func (h *ProposalHandler) SubmitProposal(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing caller id")
	}

	id, err := proposalID(c)
	if err != nil {
		return err
	}

	p, err := h.proposals.Submit(c.Request().Context(), caller, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type rejectProposalRequest struct {
	// SHA256 is the hex digest the caller believes the proposal carries
	SHA256 string `json:"sha256"`
}

// RejectProposal refuses an open proposal
// POST /api/v1/proposals/:proposal_id/reject
func (h *ProposalHandler) RejectProposal(c echo.Context) error {
	id, err := proposalID(c)
	if err != nil {
		return err
	}

	var req rejectProposalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	claimed, err := hex.DecodeString(req.SHA256)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "sha256 must be hex encoded")
	}

	p, err := h.proposals.Reject(c.Request().Context(), id, claimed)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// CommitProposal activates an open proposal (controller only, enforced by
// route middleware)
// POST /api/v1/proposals/:proposal_id/commit
func (h *ProposalHandler) CommitProposal(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing caller id")
	}

	id, err := proposalID(c)
	if err != nil {
		return err
	}

	p, err := h.proposals.Commit(c.Request().Context(), caller, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type deleteProposalAssetsRequest struct {
	ProposalIDs []uint64 `json:"proposal_ids"`
}

// DeleteProposalAssets purges the staged assets of the listed proposals
// POST /api/v1/proposals/delete-assets
func (h *ProposalHandler) DeleteProposalAssets(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing caller id")
	}

	var req deleteProposalAssetsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.proposals.DeleteProposalAssets(c.Request().Context(), caller, req.ProposalIDs); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetProposal returns one proposal
// GET /api/v1/proposals/:proposal_id
func (h *ProposalHandler) GetProposal(c echo.Context) error {
	id, err := proposalID(c)
	if err != nil {
		return err
	}

	p, err := h.proposals.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// ListProposals pages proposals by id range
// GET /api/v1/proposals
func (h *ProposalHandler) ListProposals(c echo.Context) error {
	params := proposal.ListParams{
		Desc: c.QueryParam("order") == "desc",
	}

	if after := c.QueryParam("start_after"); after != "" {
		id, err := strconv.ParseUint(after, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid start_after")
		}
		params.StartAfter = id
	}
	if limit := c.QueryParam("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		params.Limit = n
	}

	proposals, err := h.proposals.List(c.Request().Context(), params)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"proposals": proposals,
		"count":     len(proposals),
	})
}

// CountProposals reports the total number of proposals
// GET /api/v1/proposals/count
func (h *ProposalHandler) CountProposals(c echo.Context) error {
	count, err := h.proposals.Count(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]uint64{"count": count})
}

func proposalID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("proposal_id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid proposal id")
	}
	return id, nil
}
