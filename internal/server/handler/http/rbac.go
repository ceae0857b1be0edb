package http

import (
	"net/http"
	"strconv"

	"github.com/atinyakov/teaadmin/internal/middleware"
	"github.com/atinyakov/teaadmin/internal/models"
	"github.com/atinyakov/teaadmin/internal/server/response"
)

// RBACHandler serves permission lookups.
type RBACHandler struct {
	AuthService AuthService
}

type permissionRow struct {
	Name string `json:"name"`
}

// UserPermissions handles GET /admin/rbac/user-permissions?user_id=<id>.
// Users may read their own grants; reading another user's needs the admin
// role.
func (h *RBACHandler) UserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.Error(w, http.StatusBadRequest, models.CodeInvalidParam, "user_id required")
		return
	}

	caller := middleware.GetUserIDFromContext(r.Context())
	if caller != userID {
		u, err := h.AuthService.UserInfo(r.Context(), caller)
		if err != nil {
			writeError(w, err)
			return
		}
		if !u.IsAdmin() {
			response.Error(w, http.StatusForbidden, models.CodeForbidden, "forbidden")
			return
		}
	}

	names, err := h.AuthService.Permissions(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	rows := make([]permissionRow, 0, len(names))
	for _, n := range names {
		rows = append(rows, permissionRow{Name: n})
	}
	response.OK(w, rows)
}
