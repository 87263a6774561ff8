package permissions

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler exposes the merge engine over the admin JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	mw       Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw, validate: validator.New()}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny("members.view", "members.manage"))
		r.Get("/users/{userID}/effective", h.effectivePermissions)
		r.Get("/users/{userID}/check", h.checkPermission)
		r.Get("/templates", h.listTemplates)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require("members.manage"))
		r.Post("/users/{userID}/grants", h.grant)
		r.Post("/users/{userID}/revocations", h.revoke)
		r.Post("/users/{userID}/template", h.applyTemplate)
		r.Post("/templates", h.createTemplate)
		r.Put("/templates/{templateID}", h.updateTemplate)
	})
}

type capabilityRequest struct {
	Capability string `json:"capability" validate:"required"`
	OrgID      *int64 `json:"org_id"`
	TeamID     *int64 `json:"team_id"`
}

type applyTemplateRequest struct {
	TemplateID int64  `json:"template_id" validate:"required"`
	OrgID      *int64 `json:"org_id"`
	TeamID     *int64 `json:"team_id"`
}

type templateRequest struct {
	Name  string  `json:"name" validate:"required"`
	OrgID *int64  `json:"org_id"`
	Doc   Overlay `json:"doc"`
}

type templateResponse struct {
	ID    int64   `json:"id"`
	OrgID *int64  `json:"org_id,omitempty"`
	Name  string  `json:"name"`
	Doc   Overlay `json:"doc"`
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	doc, err := h.service.GetEffectivePermissions(r.Context(), userID, scopeFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	capability := r.URL.Query().Get("capability")
	granted, err := h.service.CheckPermission(r.Context(), userID, capability, scopeFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"granted": granted})
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	h.setOverride(w, r, true)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	h.setOverride(w, r, false)
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request, value bool) {
	userID, ok := pathID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	var req capabilityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	actorID, _ := h.mw.CurrentUserID(r)
	scope := Scope{OrgID: req.OrgID, TeamID: req.TeamID}
	var err error
	if value {
		err = h.service.Grant(r.Context(), actorID, userID, req.Capability, scope)
	} else {
		err = h.service.Revoke(r.Context(), actorID, userID, req.Capability, scope)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) applyTemplate(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	var req applyTemplateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	actorID, _ := h.mw.CurrentUserID(r)
	scope := Scope{OrgID: req.OrgID, TeamID: req.TeamID}
	if err := h.service.ApplyTemplate(r.Context(), actorID, userID, req.TemplateID, scope); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	actorID, _ := h.mw.CurrentUserID(r)
	tpl, err := h.service.CreateTemplate(r.Context(), actorID, Template{OrgID: req.OrgID, Name: req.Name, Doc: req.Doc})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, templateResponse{ID: tpl.ID, OrgID: tpl.OrgID, Name: tpl.Name, Doc: tpl.Doc})
}

func (h *Handler) updateTemplate(w http.ResponseWriter, r *http.Request) {
	templateID, ok := pathID(r, "templateID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid template id")
		return
	}
	var req templateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	actorID, _ := h.mw.CurrentUserID(r)
	if err := h.service.UpdateTemplate(r.Context(), actorID, Template{ID: templateID, OrgID: req.OrgID, Name: req.Name, Doc: req.Doc}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	var orgID *int64
	if raw := r.URL.Query().Get("org_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid org id")
			return
		}
		orgID = &id
	}
	templates, err := h.service.ListTemplates(r.Context(), orgID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]templateResponse, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, templateResponse{ID: tpl.ID, OrgID: tpl.OrgID, Name: tpl.Name, Doc: tpl.Doc})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func scopeFromQuery(r *http.Request) Scope {
	var scope Scope
	if raw := r.URL.Query().Get("org_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			scope.OrgID = &id
		}
	}
	if raw := r.URL.Query().Get("team_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			scope.TeamID = &id
		}
	}
	return scope
}
