package hierarchy

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/identity"
	"github.com/meridian-erp/meridian-erp/internal/permissions"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler exposes hierarchy operations over the admin JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	mw       permissions.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw permissions.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw, validate: validator.New()}
}

// MountRoutes registers hierarchy routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny("members.view", "members.manage"))
		r.Get("/managers/{managerID}/reports", h.directReports)
		r.Get("/managers/{managerID}/reports/all", h.allReports)
		r.Get("/users/{userID}/chain", h.managementChain)
		r.Get("/managers/{managerID}/can-manage/{userID}", h.canManage)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require("members.manage"))
		r.Post("/edges", h.assignManager)
		r.Delete("/edges", h.removeManager)
	})
}

type assignRequest struct {
	ManagerID int64  `json:"manager_id" validate:"required"`
	ManagedID int64  `json:"managed_id" validate:"required"`
	TeamID    *int64 `json:"team_id"`
	ScopeKind string `json:"scope_kind" validate:"required,oneof=team org_wide"`
}

type removeRequest struct {
	ManagerID int64  `json:"manager_id" validate:"required"`
	ManagedID int64  `json:"managed_id" validate:"required"`
	TeamID    *int64 `json:"team_id"`
}

type edgeResponse struct {
	ID        int64  `json:"id"`
	ManagerID int64  `json:"manager_id"`
	ManagedID int64  `json:"managed_id"`
	TeamID    *int64 `json:"team_id,omitempty"`
	ScopeKind string `json:"scope_kind"`
	Level     int    `json:"level"`
}

type userResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *Handler) assignManager(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	actorID, _ := h.mw.CurrentUserID(r)
	edge, err := h.service.AssignManager(r.Context(), actorID, req.ManagerID, req.ManagedID, req.TeamID, ScopeKind(req.ScopeKind))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, edgeResponse{
		ID:        edge.ID,
		ManagerID: edge.ManagerID,
		ManagedID: edge.ManagedID,
		TeamID:    edge.TeamID,
		ScopeKind: string(edge.ScopeKind),
		Level:     edge.Level,
	})
}

func (h *Handler) removeManager(w http.ResponseWriter, r *http.Request) {
	var req removeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	actorID, _ := h.mw.CurrentUserID(r)
	if err := h.service.RemoveManager(r.Context(), actorID, req.ManagerID, req.ManagedID, req.TeamID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) directReports(w http.ResponseWriter, r *http.Request) {
	managerID, ok := pathID(r, "managerID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid manager id")
		return
	}
	var teamID *int64
	if raw := r.URL.Query().Get("team_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid team id")
			return
		}
		teamID = &id
	}
	users, err := h.service.GetDirectReports(r.Context(), managerID, teamID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponses(users))
}

func (h *Handler) allReports(w http.ResponseWriter, r *http.Request) {
	managerID, ok := pathID(r, "managerID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid manager id")
		return
	}
	users, err := h.service.GetAllReports(r.Context(), managerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponses(users))
}

func (h *Handler) managementChain(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	users, err := h.service.GetManagementChain(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponses(users))
}

func (h *Handler) canManage(w http.ResponseWriter, r *http.Request) {
	managerID, ok := pathID(r, "managerID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid manager id")
		return
	}
	userID, ok := pathID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	can, err := h.service.CanManage(r.Context(), managerID, userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"can_manage": can})
}

func toUserResponses(users []identity.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: string(u.Role)})
	}
	return out
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
