package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xelth-com/wingetpro/internal/apperr"
	"github.com/xelth-com/wingetpro/internal/models"
)

const TenantContextKey contextKey = "tenant"

// TenantLookup loads a tenant by the ID in the URL
type TenantLookup interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
}

// TenantMiddleware resolves the {tenant} route variable and stores the tenant
// in the request context. Unknown tenants get 404.
func TenantMiddleware(lookup TenantLookup, logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := mux.Vars(r)["tenant"]
			tenant, err := lookup.GetTenant(r.Context(), id)
			if errors.Is(err, apperr.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Unknown tenant")
				return
			}
			if err != nil {
				logger.Error("Tenant lookup failed", zap.String("tenant", id), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			ctx := context.WithValue(r.Context(), TenantContextKey, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext returns the tenant resolved by TenantMiddleware
func TenantFromContext(ctx context.Context) (*models.Tenant, bool) {
	tenant, ok := ctx.Value(TenantContextKey).(*models.Tenant)
	return tenant, ok && tenant != nil
}
