package handlers

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sublate/backend/internal/api/middleware"
	"github.com/sublate/backend/internal/auth"
	"github.com/sublate/backend/internal/db"
	"github.com/sublate/backend/internal/db/models"
	"github.com/sublate/backend/internal/job"
)

var startTime = time.Now()

type AdminHandler struct {
	db        *db.Database
	queue     *job.JobQueue
	mediaPath string
}

func NewAdminHandler(database *db.Database, queue *job.JobQueue, mediaPath string) *AdminHandler {
	return &AdminHandler{db: database, queue: queue, mediaPath: mediaPath}
}

type userRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func userID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// lastAdminGuard reports whether removing admin rights from user would
// leave the system without any admin.
func (h *AdminHandler) lastAdminGuard(user *models.User) (bool, error) {
	if user.Role != models.RoleAdmin {
		return false, nil
	}
	count, err := h.db.CountAdmins()
	if err != nil {
		return false, err
	}
	return count <= 1, nil
}

// ListUsers returns all accounts.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.ListUsers()
	if err != nil {
		jsonError(w, "failed to list users: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, users, http.StatusOK)
}

// CreateUser adds an account.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	switch {
	case req.Username == "" || req.Password == "":
		jsonError(w, "username and password are required", http.StatusBadRequest)
		return
	case !models.ValidRole(req.Role):
		jsonError(w, "role must be one of: admin, editor, viewer", http.StatusBadRequest)
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, "failed to hash password", http.StatusInternalServerError)
		return
	}
	id, err := h.db.CreateUser(req.Username, hashed, req.Role)
	if err != nil {
		jsonError(w, "failed to create user (username may already exist)", http.StatusConflict)
		return
	}
	jsonResponse(w, map[string]interface{}{
		"id":       id,
		"username": req.Username,
		"role":     req.Role,
	}, http.StatusCreated)
}

// UpdateUser changes an account's username, role or password. Empty fields
// keep their current value.
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, "invalid user ID", http.StatusBadRequest)
		return
	}
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	existing, err := h.db.GetUserByID(id)
	if err != nil {
		jsonError(w, "user not found", http.StatusNotFound)
		return
	}

	if req.Role != "" && req.Role != existing.Role {
		if !models.ValidRole(req.Role) {
			jsonError(w, "role must be one of: admin, editor, viewer", http.StatusBadRequest)
			return
		}
		if req.Role != models.RoleAdmin {
			last, err := h.lastAdminGuard(existing)
			if err != nil {
				jsonError(w, "failed to check admin count", http.StatusInternalServerError)
				return
			}
			if last {
				jsonError(w, "cannot demote the last admin", http.StatusBadRequest)
				return
			}
		}
		existing.Role = req.Role
	}
	if req.Username != "" {
		existing.Username = req.Username
	}

	if err := h.db.UpdateUser(id, existing.Username, existing.Role); err != nil {
		jsonError(w, "failed to update user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if req.Password != "" {
		hashed, err := auth.HashPassword(req.Password)
		if err != nil {
			jsonError(w, "failed to hash password", http.StatusInternalServerError)
			return
		}
		if err := h.db.UpdateUserPassword(id, hashed); err != nil {
			jsonError(w, "failed to update password", http.StatusInternalServerError)
			return
		}
	}
	jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// DeleteUser removes an account. Self-deletion and deleting the last
// admin are rejected.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		jsonError(w, "invalid user ID", http.StatusBadRequest)
		return
	}
	if claims := middleware.GetClaims(r); claims != nil && claims.UserID == id {
		jsonError(w, "cannot delete yourself", http.StatusBadRequest)
		return
	}

	user, err := h.db.GetUserByID(id)
	if err != nil {
		jsonError(w, "user not found", http.StatusNotFound)
		return
	}
	last, err := h.lastAdminGuard(user)
	if err != nil {
		jsonError(w, "failed to check admin count", http.StatusInternalServerError)
		return
	}
	if last {
		jsonError(w, "cannot delete the last admin", http.StatusBadRequest)
		return
	}

	if err := h.db.DeleteUser(id); err != nil {
		jsonError(w, "failed to delete user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// DashboardStats returns queue, storage and runtime stats for the admin
// dashboard.
func (h *AdminHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	jobStats, err := h.queue.Stats()
	if err != nil {
		jsonError(w, "failed to read job stats", http.StatusInternalServerError)
		return
	}

	users, _ := h.db.ListUsers()

	jsonResponse(w, map[string]interface{}{
		"jobs":       jobStats,
		"storage":    h.storageStats(),
		"system":     runtimeStats(),
		"user_count": len(users),
	}, http.StatusOK)
}

func (h *AdminHandler) storageStats() map[string]uint64 {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(h.mediaPath, &stat); err != nil {
		return map[string]uint64{}
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return map[string]uint64{
		"total": total,
		"used":  total - free,
		"free":  free,
	}
}

func runtimeStats() map[string]interface{} {
	var memStat runtime.MemStats
	runtime.ReadMemStats(&memStat)
	return map[string]interface{}{
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"uptime_seconds": int(time.Since(startTime).Seconds()),
		"mem_alloc":      memStat.Alloc,
		"mem_sys":        memStat.Sys,
	}
}
