package httpapi

import (
	"net/http"
	"strings"
	"time"

	"screener.dev/internal/auth"
)

type createUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required,max=200"`
	Password string `json:"password" validate:"required,min=10,max=512"`
	IsActive *bool  `json:"is_active"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	ac, r, ok := a.requireAuth(w, r)
	if !ok {
		return
	}
	if !a.ensure(w, r, ac, auth.AnyOf(auth.PermManageUsers)) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		users, err := a.svc.ListUsers(r.Context())
		if err != nil {
			a.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.checkValid(req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		active := true
		if req.IsActive != nil {
			active = *req.IsActive
		}
		user, err := a.svc.CreateUser(r.Context(), auth.CreateUserInput{
			Email:    req.Email,
			FullName: req.FullName,
			Password: req.Password,
			IsActive: active,
		})
		if err != nil {
			a.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type updateUserRequest struct {
	FullName *string `json:"full_name" validate:"omitempty,max=200"`
	IsActive *bool   `json:"is_active"`
	Password *string `json:"password" validate:"omitempty,min=10,max=512"`
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	ac, r, ok := a.requireAuth(w, r)
	if !ok {
		return
	}
	if !a.ensure(w, r, ac, auth.AnyOf(auth.PermManageUsers)) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/admin/users/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.checkValid(req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.UpdateUser(r.Context(), id, auth.UpdateUserInput{
		FullName: req.FullName,
		IsActive: req.IsActive,
		Password: req.Password,
	})
	if err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type createRoleRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	ac, r, ok := a.requireAuth(w, r)
	if !ok {
		return
	}
	if !a.ensure(w, r, ac, auth.AnyOf(auth.PermManageRoles)) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		roles, err := a.svc.ListRoles(r.Context())
		if err != nil {
			a.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.checkValid(req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.CreateRole(r.Context(), req.Name, req.Description)
		if err != nil {
			a.handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type updateRoleRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	ac, r, ok := a.requireAuth(w, r)
	if !ok {
		return
	}
	if !a.ensure(w, r, ac, auth.AnyOf(auth.PermManageRoles)) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/admin/roles/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.checkValid(req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.svc.UpdateRole(r.Context(), id, auth.UpdateRoleInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ac, r, ok := a.requireAuth(w, r)
	if !ok {
		return
	}
	if !a.ensure(w, r, ac, auth.AnyOf(auth.PermManageRoles, auth.PermManagePermissions)) {
		return
	}
	perms, err := a.svc.ListPermissions(r.Context())
	if err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

type roleAssignRequest struct {
	UserID string `json:"user_id" validate:"required"`
	RoleID string `json:"role_id" validate:"required"`
}

func (a *API) handleRoleAssign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ac, r, ok := a.requireAuth(w, r)
	if !ok {
		return
	}
	if !a.ensure(w, r, ac, auth.AnyOf(auth.PermManageUsers)) {
		return
	}
	var req roleAssignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.checkValid(req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	assignment, err := a.svc.AssignRole(r.Context(), req.UserID, req.RoleID, ac.User.ID)
	if err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

type rolePermissionsRequest struct {
	RoleID        string   `json:"role_id" validate:"required"`
	PermissionIDs []string `json:"permission_ids" validate:"required"`
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ac, r, ok := a.requireAuth(w, r)
	if !ok {
		return
	}
	if !a.ensure(w, r, ac, auth.AnyOf(auth.PermManagePermissions)) {
		return
	}
	var req rolePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.checkValid(req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.SetRolePermissions(r.Context(), req.RoleID, req.PermissionIDs); err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ac, r, ok := a.requireAuth(w, r)
	if !ok {
		return
	}
	if !a.ensure(w, r, ac, auth.AnyOf(auth.PermReadAudit)) {
		return
	}
	var f auth.AuditFilter
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "from must be an RFC 3339 timestamp")
			return
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "to must be an RFC 3339 timestamp")
			return
		}
		f.To = t
	}
	f.Actor = q.Get("actor")
	f.Action = q.Get("action")

	entries, err := a.svc.ListAuditLogs(r.Context(), f)
	if err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
