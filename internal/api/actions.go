package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	httpmw "github.com/wolfeidau/governor/internal/http"
	"github.com/wolfeidau/governor/internal/models"
	"github.com/wolfeidau/governor/internal/orchestrator"
	"github.com/wolfeidau/governor/internal/store"
)

type requestActionBody struct {
	ActionType models.ActionType `json:"actionType"`
	Payload    map[string]any    `json:"payload"`
}

type createDraftBody struct {
	DraftType models.DraftType `json:"draftType"`
	Content   map[string]any   `json:"content"`
}

type rejectBody struct {
	Reason string `json:"reason"`
}

func (h *Handler) requestAction(w http.ResponseWriter, r *http.Request) {
	caller, _ := httpmw.CallerFromContext(r.Context())

	var body requestActionBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.orc.RequestAction(r.Context(), caller, body.ActionType, body.Payload)
	if err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, requestStatus(res), res)
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	caller, _ := httpmw.CallerFromContext(r.Context())

	var body createDraftBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.orc.CreateDraft(r.Context(), caller, body.DraftType, body.Content)
	if err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, requestStatus(res), res)
}

func (h *Handler) pendingActions(w http.ResponseWriter, r *http.Request) {
	caller, _ := httpmw.CallerFromContext(r.Context())

	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	pending, err := h.orc.GetPendingActions(r.Context(), orchestrator.PendingFilter{
		OrgID:     caller.OrgID,
		UserID:    q.Get("userId"),
		ProjectID: q.Get("projectId"),
		Limit:     limit,
	})
	if err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"actions": pending})
}

func (h *Handler) approveAction(w http.ResponseWriter, r *http.Request) {
	caller, _ := httpmw.CallerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if !h.ownedAction(w, r, caller, id) {
		return
	}

	res, err := h.orc.ApproveAction(r.Context(), id, caller.UserID)
	if err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, transitionStatus(res.Success, res.ErrorCode), res)
}

func (h *Handler) rejectAction(w http.ResponseWriter, r *http.Request) {
	caller, _ := httpmw.CallerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var body rejectBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}

	if !h.ownedAction(w, r, caller, id) {
		return
	}

	res, err := h.orc.RejectAction(r.Context(), id, caller.UserID, body.Reason)
	if err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, transitionStatus(res.Success, res.ErrorCode), res)
}

func (h *Handler) executeAction(w http.ResponseWriter, r *http.Request) {
	caller, _ := httpmw.CallerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if !h.ownedAction(w, r, caller, id) {
		return
	}

	res, err := h.orc.ExecuteAction(r.Context(), id, caller.UserID)
	if err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, transitionStatus(res.Success, res.ErrorCode), res)
}

func (h *Handler) auditLog(w http.ResponseWriter, r *http.Request) {
	caller, _ := httpmw.CallerFromContext(r.Context())

	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	entries, err := h.orc.ListAuditLog(r.Context(), caller.OrgID, limit)
	if err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// ownedAction writes a 404 unless the action exists in the caller's
// organization. Actions of other tenants are indistinguishable from missing ones.
func (h *Handler) ownedAction(w http.ResponseWriter, r *http.Request, caller models.Caller, id string) bool {
	action, err := h.orc.GetAction(r.Context(), id)
	if errors.Is(err, store.ErrActionNotFound) || (err == nil && action.OrgID != caller.OrgID) {
		writeError(w, http.StatusNotFound, orchestrator.CodeActionNotFound, "action not found")
		return false
	}
	if err != nil {
		internalError(w, r, err)
		return false
	}
	return true
}

func requestStatus(res *orchestrator.RequestResult) int {
	switch {
	case res.Success:
		return http.StatusCreated
	case res.Blocked:
		return http.StatusForbidden
	case res.RequiresUpgrade:
		return http.StatusPaymentRequired
	default:
		return http.StatusBadRequest
	}
}

func transitionStatus(success bool, code string) int {
	if success {
		return http.StatusOK
	}
	switch code {
	case orchestrator.CodeActionNotFound:
		return http.StatusNotFound
	case orchestrator.CodeAlreadyProcessed, orchestrator.CodeInvalidStatus:
		return http.StatusConflict
	case orchestrator.CodeExecutionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}
