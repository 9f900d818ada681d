package api

import (
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	httpmw "github.com/wolfeidau/governor/internal/http"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/quota"
	"github.com/wolfeidau/governor/internal/store"
)

type trackTokensBody struct {
	Tokens int64 `json:"tokens"`
}

type trackTokensResponse struct {
	Usage  *quota.TrialUsage     `json:"usage"`
	Access *quota.AccessDecision `json:"access"`
}

func (h *Handler) policySnapshot(w http.ResponseWriter, r *http.Request) {
	caller, _ := httpmw.CallerFromContext(r.Context())

	snap, err := h.quota.BuildPolicySnapshot(r.Context(), caller.OrgID)
	if errors.Is(err, store.ErrOrganizationNotFound) {
		writeError(w, http.StatusNotFound, quota.CodeOrgNotFound, "organization not found")
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) checkAccess(w http.ResponseWriter, r *http.Request) {
	caller, _ := httpmw.CallerFromContext(r.Context())

	action := quota.Action(chi.URLParam(r, "action"))
	if action != quota.ActionRead && !slices.Contains(quota.GatedActions, action) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "unknown action "+strconv.Quote(string(action)))
		return
	}

	d := h.quota.CheckAccess(r.Context(), caller.OrgID, action)
	writeJSON(w, accessStatus(d), d)
}

// seats reports seat availability. With ?count=n it answers whether n users
// can be invited.
func (h *Handler) seats(w http.ResponseWriter, r *http.Request) {
	caller, _ := httpmw.CallerFromContext(r.Context())

	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "count must be a positive integer")
			return
		}
		d := h.quota.CanInviteUsers(r.Context(), caller.OrgID, n)
		writeJSON(w, accessStatus(d), d)
		return
	}

	sa, err := h.quota.GetSeatAvailability(r.Context(), caller.OrgID)
	if errors.Is(err, store.ErrOrganizationNotFound) {
		writeError(w, http.StatusNotFound, quota.CodeOrgNotFound, "organization not found")
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sa)
}

// trackTokens records one completed AI invocation and its token spend, then
// reports whether the next call would still be admitted.
func (h *Handler) trackTokens(w http.ResponseWriter, r *http.Request) {
	caller, _ := httpmw.CallerFromContext(r.Context())

	var body trackTokensBody
	if err := decodeBody(r, &body); err != nil || body.Tokens < 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "tokens must be a non-negative integer")
		return
	}

	ctx := r.Context()

	org, err := h.quota.GetOrganizationType(ctx, caller.OrgID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if org == nil {
		writeError(w, http.StatusNotFound, quota.CodeOrgNotFound, "organization not found")
		return
	}

	if err := h.quota.TrackTokenUsage(ctx, caller.OrgID, body.Tokens); err != nil {
		internalError(w, r, err)
		return
	}
	if err := h.quota.IncrementUsage(ctx, caller.OrgID, models.CounterAICalls, 1); err != nil {
		internalError(w, r, err)
		return
	}

	usage, err := h.quota.GetTrialUsage(ctx, caller.OrgID)
	if err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, trackTokensResponse{
		Usage:  usage,
		Access: h.quota.CheckAccess(ctx, caller.OrgID, quota.ActionAICall),
	})
}

func accessStatus(d *quota.AccessDecision) int {
	if d.Allowed {
		return http.StatusOK
	}
	switch d.ErrorCode {
	case quota.CodeOrgNotFound:
		return http.StatusNotFound
	case quota.CodeOrgInactive, quota.CodeDemoReadOnly:
		return http.StatusForbidden
	default:
		return http.StatusPaymentRequired
	}
}
