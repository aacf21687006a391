package service

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/treasury-api/pkg/app/errors"
	apphttp "github.com/chainsafe/treasury-api/pkg/app/http"
	"github.com/chainsafe/treasury-api/pkg/whitelist"
)

// maxBodySize caps request bodies at 1MB.
const maxBodySize = 1 << 20

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service  Service
	logger   *zap.Logger
	validate *validator.Validate
}

// RegisterRoutes registers the whitelist endpoints on the given chi router
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service:  service,
		logger:   logger,
		validate: validator.New(),
	}

	r.Route("/whitelists", func(r chi.Router) {
		r.Post("/", apphttp.HandleError(h.create))
		r.Get("/", apphttp.HandleError(h.list))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", apphttp.HandleError(h.get))
			r.Put("/name", apphttp.HandleError(h.updateName))
			r.Put("/description", apphttp.HandleError(h.updateDescription))

			r.Post("/entries", apphttp.HandleError(h.addEntry))
			r.Put("/entries/{entryID}", apphttp.HandleError(h.updateEntry))
			r.Delete("/entries/{entryID}", apphttp.HandleError(h.removeEntry))

			r.Post("/submit", apphttp.HandleError(h.submit))
			r.Post("/approve", apphttp.HandleError(h.approve))
			r.Post("/revoke", apphttp.HandleError(h.revoke))
			r.Post("/drafts", apphttp.HandleError(h.openDraft))

			r.Get("/versions/{number}", apphttp.HandleError(h.getVersion))
			r.Get("/versions/{number}/changes", apphttp.HandleError(h.getChanges))
		})
	})
}

// Request payloads

type createRequest struct {
	Name        string     `json:"name" validate:"required,max=256"`
	Description string     `json:"description" validate:"max=2048"`
	Scope       string     `json:"scope" validate:"omitempty,oneof=global vault"`
	VaultID     string     `json:"vault_id"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

type addEntryRequest struct {
	Address string `json:"address" validate:"required,max=256"`
	Chain   string `json:"chain" validate:"max=64"`
	Label   string `json:"label" validate:"max=256"`
	Kind    string `json:"kind" validate:"omitempty,oneof=address entity contract"`
}

type updateEntryRequest struct {
	Label string `json:"label" validate:"max=256"`
}

type updateNameRequest struct {
	Name string `json:"name" validate:"required,max=256"`
}

type updateDescriptionRequest struct {
	Description string `json:"description" validate:"max=2048"`
}

type submitRequest struct {
	Version           int `json:"version" validate:"min=0"`
	RequiredApprovals int `json:"required_approvals" validate:"min=0"`
}

type approveRequest struct {
	Version int `json:"version" validate:"min=0"`
}

type revokeRequest struct {
	Reason string `json:"reason" validate:"required,max=2048"`
}

type openDraftRequest struct {
	Comment string `json:"comment" validate:"max=2048"`
}

// Response payloads

type whitelistResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Scope          string          `json:"scope"`
	VaultID        string          `json:"vault_id,omitempty"`
	Status         string          `json:"status"`
	CurrentVersion int             `json:"current_version"`
	DraftVersion   int             `json:"draft_version,omitempty"`
	Entries        []entryResponse `json:"entries"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CreatedBy      string          `json:"created_by"`
	Versions       []versionInfo   `json:"versions"`
}

type entryResponse struct {
	ID      string    `json:"id"`
	Address string    `json:"address"`
	Chain   string    `json:"chain,omitempty"`
	Label   string    `json:"label,omitempty"`
	Kind    string    `json:"kind"`
	AddedBy string    `json:"added_by"`
	AddedAt time.Time `json:"added_at"`
}

type versionInfo struct {
	Number            int    `json:"number"`
	Status            string `json:"status"`
	RequiredApprovals int    `json:"required_approvals,omitempty"`
	Approvals         int    `json:"approvals"`
}

type versionResponse struct {
	Number              int             `json:"number"`
	Status              string          `json:"status"`
	Comment             string          `json:"comment,omitempty"`
	RequiredApprovals   int             `json:"required_approvals,omitempty"`
	ApprovedBy          []string        `json:"approved_by"`
	ApprovalCompletedAt *time.Time      `json:"approval_completed_at,omitempty"`
	ActivatedAt         *time.Time      `json:"activated_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	CreatedBy           string          `json:"created_by"`
	Entries             []entryResponse `json:"entries"`
}

type changeResponse struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Description string            `json:"description"`
	Actor       string            `json:"actor,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	PrevValue   string            `json:"prev_value,omitempty"`
	NewValue    string            `json:"new_value,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Handlers

func (h *HTTP) create(w http.ResponseWriter, r *http.Request) error {
	var req createRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	scope := whitelist.Scope{Kind: whitelist.ScopeKind(req.Scope), VaultID: req.VaultID}
	if scope.Kind == "" {
		scope.Kind = whitelist.ScopeGlobal
	}

	wl, err := h.service.Create(r.Context(), CreateRequest{
		Name:        req.Name,
		Description: req.Description,
		Scope:       scope,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusCreated, toWhitelistResponse(wl))
	return nil
}

func (h *HTTP) list(w http.ResponseWriter, r *http.Request) error {
	var filter ListFilter
	if s := r.URL.Query().Get("status"); s != "" {
		status := whitelist.Status(s)
		filter.Status = &status
	}
	if s := r.URL.Query().Get("scope"); s != "" {
		kind := whitelist.ScopeKind(s)
		filter.ScopeKind = &kind
	}
	if s := r.URL.Query().Get("vault_id"); s != "" {
		filter.VaultID = &s
	}

	whitelists, err := h.service.List(r.Context(), filter)
	if err != nil {
		return err
	}

	out := make([]whitelistResponse, 0, len(whitelists))
	for _, wl := range whitelists {
		out = append(out, toWhitelistResponse(wl))
	}
	h.writeJSON(w, http.StatusOK, out)
	return nil
}

func (h *HTTP) get(w http.ResponseWriter, r *http.Request) error {
	wl, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, toWhitelistResponse(wl))
	return nil
}

func (h *HTTP) addEntry(w http.ResponseWriter, r *http.Request) error {
	var req addEntryRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	wl, err := h.service.AddEntry(r.Context(), chi.URLParam(r, "id"), AddEntryRequest{
		Address: req.Address,
		Chain:   req.Chain,
		Label:   req.Label,
		Kind:    whitelist.EntryKind(req.Kind),
	})
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, toWhitelistResponse(wl))
	return nil
}

func (h *HTTP) updateEntry(w http.ResponseWriter, r *http.Request) error {
	var req updateEntryRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	wl, err := h.service.UpdateEntryLabel(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "entryID"), req.Label)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, toWhitelistResponse(wl))
	return nil
}

func (h *HTTP) removeEntry(w http.ResponseWriter, r *http.Request) error {
	wl, err := h.service.RemoveEntry(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "entryID"))
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, toWhitelistResponse(wl))
	return nil
}

func (h *HTTP) updateName(w http.ResponseWriter, r *http.Request) error {
	var req updateNameRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	wl, err := h.service.UpdateName(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, toWhitelistResponse(wl))
	return nil
}

func (h *HTTP) updateDescription(w http.ResponseWriter, r *http.Request) error {
	var req updateDescriptionRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	wl, err := h.service.UpdateDescription(r.Context(), chi.URLParam(r, "id"), req.Description)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, toWhitelistResponse(wl))
	return nil
}

func (h *HTTP) submit(w http.ResponseWriter, r *http.Request) error {
	var req submitRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	wl, err := h.service.SubmitForApproval(r.Context(), chi.URLParam(r, "id"), req.Version, req.RequiredApprovals)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, toWhitelistResponse(wl))
	return nil
}

func (h *HTTP) approve(w http.ResponseWriter, r *http.Request) error {
	var req approveRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	wl, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"), req.Version)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, toWhitelistResponse(wl))
	return nil
}

func (h *HTTP) revoke(w http.ResponseWriter, r *http.Request) error {
	var req revokeRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	wl, err := h.service.Revoke(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, toWhitelistResponse(wl))
	return nil
}

func (h *HTTP) openDraft(w http.ResponseWriter, r *http.Request) error {
	var req openDraftRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	wl, err := h.service.OpenDraft(r.Context(), chi.URLParam(r, "id"), req.Comment)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusCreated, toWhitelistResponse(wl))
	return nil
}

func (h *HTTP) getVersion(w http.ResponseWriter, r *http.Request) error {
	number, err := h.versionNumber(r)
	if err != nil {
		return err
	}

	v, err := h.service.GetVersion(r.Context(), chi.URLParam(r, "id"), number)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, toVersionResponse(v))
	return nil
}

func (h *HTTP) getChanges(w http.ResponseWriter, r *http.Request) error {
	number, err := h.versionNumber(r)
	if err != nil {
		return err
	}

	v, err := h.service.GetVersion(r.Context(), chi.URLParam(r, "id"), number)
	if err != nil {
		return err
	}

	changes := v.Changes
	if r.URL.Query().Get("filter") == "edits" {
		changes = v.EditChanges()
	}

	out := make([]changeResponse, 0, len(changes))
	for _, c := range changes {
		out = append(out, changeResponse{
			ID:          c.ID,
			Kind:        string(c.Kind),
			Description: c.Description,
			Actor:       c.Actor,
			Timestamp:   c.Timestamp,
			PrevValue:   c.PrevValue,
			NewValue:    c.NewValue,
			Metadata:    c.Metadata,
		})
	}
	h.writeJSON(w, http.StatusOK, out)
	return nil
}

// Helpers

func (h *HTTP) decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if err := h.validate.Struct(dst); err != nil {
		return apperrors.BadRequestError(err, "validation failed: "+err.Error())
	}
	return nil
}

func (h *HTTP) versionNumber(r *http.Request) (int, error) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number < 1 {
		return 0, apperrors.BadRequestError(err, "invalid version number")
	}
	return number, nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func toWhitelistResponse(w *whitelist.Whitelist) whitelistResponse {
	resp := whitelistResponse{
		ID:             w.ID,
		Name:           w.Name,
		Description:    w.Description,
		Scope:          string(w.Scope.Kind),
		VaultID:        w.Scope.VaultID,
		Status:         string(w.Status),
		CurrentVersion: w.CurrentVersion,
		DraftVersion:   w.DraftVersion,
		Entries:        toEntryResponses(w.Entries),
		ExpiresAt:      w.ExpiresAt,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
		CreatedBy:      w.CreatedBy,
	}
	for _, v := range w.Versions {
		resp.Versions = append(resp.Versions, versionInfo{
			Number:            v.Number,
			Status:            string(v.Status),
			RequiredApprovals: v.RequiredApprovals,
			Approvals:         len(v.ApprovedBy),
		})
	}
	return resp
}

func toVersionResponse(v *whitelist.Version) versionResponse {
	approvedBy := v.ApprovedBy
	if approvedBy == nil {
		approvedBy = []string{}
	}
	return versionResponse{
		Number:              v.Number,
		Status:              string(v.Status),
		Comment:             v.Comment,
		RequiredApprovals:   v.RequiredApprovals,
		ApprovedBy:          approvedBy,
		ApprovalCompletedAt: v.ApprovalCompletedAt,
		ActivatedAt:         v.ActivatedAt,
		CreatedAt:           v.CreatedAt,
		CreatedBy:           v.CreatedBy,
		Entries:             toEntryResponses(v.Entries),
	}
}

func toEntryResponses(entries []whitelist.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:      e.ID,
			Address: e.Address,
			Chain:   e.Chain,
			Label:   e.Label,
			Kind:    string(e.Kind),
			AddedBy: e.AddedBy,
			AddedAt: e.AddedAt,
		})
	}
	return out
}
