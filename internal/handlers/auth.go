package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/xelth-com/wingetpro/internal/middleware"
	"github.com/xelth-com/wingetpro/internal/utils"
)

// LoginRequest represents a tenant login request
type LoginRequest struct {
	Password string `json:"password"`
}

// login exchanges the tenant password for a management API token
func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	tenant, _ := middleware.TenantFromContext(req.Context())

	var body LoginRequest
	if err := decodeJSON(w, req, &body); err != nil {
		r.handleError(w, req, err)
		return
	}

	if tenant.PasswordHash == "" || !utils.CheckPasswordHash(body.Password, tenant.PasswordHash) {
		r.logger.Info("Rejected management login", zap.String("tenant", tenant.ID))
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := utils.GenerateTenantToken(tenant.ID, r.cfg.JWTSecret, utils.TokenTTL)
	if err != nil {
		r.handleError(w, req, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"expiresIn": int(utils.TokenTTL.Seconds()),
	})
}
