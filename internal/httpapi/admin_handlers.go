package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"lovedev.org/internal/audit"
	"lovedev.org/internal/auth"
)

func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	users, total, err := a.svc.ListUsers(r.Context(), offset, limit)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	items := make([]userProfile, 0, len(users))
	for _, u := range users {
		items = append(items, profileOf(u))
	}
	writeSuccess(w, r, http.StatusOK, "", map[string]any{
		"items": items,
		"total": total,
	})
}

func (a *API) handleAdminUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/admin/users/")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "resource not found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/roles"); ok {
		a.handleUserRoles(w, r, id)
		return
	}
	if id, ok := strings.CutSuffix(path, "/status"); ok {
		a.handleUserStatus(w, r, id)
		return
	}
	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := a.svc.GetUser(r.Context(), path)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeSuccess(w, r, http.StatusOK, "", profileOf(user))
	case http.MethodDelete:
		if err := a.svc.SoftDeleteUser(r.Context(), path); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.user.deleted", map[string]any{"target_user_id": path})
		writeSuccess(w, r, http.StatusOK, "user deleted", nil)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

type roleRequest struct {
	Role string `json:"role"`
}

type rolesRequest struct {
	Roles []string `json:"roles"`
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodPost:
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		user, err := a.svc.AddRole(r.Context(), userID, req.Role)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.role.added", map[string]any{
			"target_user_id": userID,
			"role":           req.Role,
		})
		writeSuccess(w, r, http.StatusOK, "role added", profileOf(user))
	case http.MethodDelete:
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		user, err := a.svc.RemoveRole(r.Context(), userID, req.Role)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.role.removed", map[string]any{
			"target_user_id": userID,
			"role":           req.Role,
		})
		writeSuccess(w, r, http.StatusOK, "role removed", profileOf(user))
	case http.MethodPut:
		var req rolesRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		user, err := a.svc.ReplaceRoles(r.Context(), userID, req.Roles)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.roles.replaced", map[string]any{
			"target_user_id": userID,
			"roles":          req.Roles,
		})
		writeSuccess(w, r, http.StatusOK, "roles replaced", profileOf(user))
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete, http.MethodPut)
	}
}

type statusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleUserStatus(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	user, err := a.svc.UpdateStatus(r.Context(), userID, auth.UserStatus(strings.ToUpper(strings.TrimSpace(req.Status))))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.status.changed", map[string]any{
		"target_user_id": userID,
		"status":         string(user.Status),
	})
	writeSuccess(w, r, http.StatusOK, "status updated", profileOf(user))
}

type roleView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	SystemRole  bool      `json:"systemRole"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
}

func viewOfRole(role *auth.Role) roleView {
	perms := make([]string, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		perms = append(perms, p.Key())
	}
	return roleView{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		SystemRole:  role.SystemRole,
		Permissions: perms,
		CreatedAt:   role.CreatedAt,
	}
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) handleAdminRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		roles, err := a.svc.ListRoles(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		items := make([]roleView, 0, len(roles))
		for _, role := range roles {
			items = append(items, viewOfRole(role))
		}
		writeSuccess(w, r, http.StatusOK, "", map[string]any{"items": items})
	case http.MethodPost:
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		role, err := a.svc.CreateRole(r.Context(), req.Name, req.Description)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.role.created", map[string]any{"role": role.Name})
		writeSuccess(w, r, http.StatusCreated, "role created", viewOfRole(role))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAdminRoleResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/admin/roles/")
	id = strings.TrimSuffix(id, "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if err := a.svc.DeleteRole(r.Context(), id); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.role.deleted", map[string]any{"role_id": id})
	writeSuccess(w, r, http.StatusOK, "role deleted", nil)
}
