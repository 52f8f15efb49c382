package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xelth-com/wingetpro/internal/apperr"
	"github.com/xelth-com/wingetpro/internal/models"
	"github.com/xelth-com/wingetpro/internal/utils"
)

const secret = "middleware-test-secret"

type tenantMap map[string]*models.Tenant

func (m tenantMap) GetTenant(_ context.Context, id string) (*models.Tenant, error) {
	if id == "broken" {
		return nil, errors.New("database is down")
	}
	if t, ok := m[id]; ok {
		return t, nil
	}
	return nil, apperr.NotFound("tenant", id)
}

func newTestRouter() *mux.Router {
	tenants := tenantMap{
		"acme":  {ID: "acme", Name: "Acme"},
		"other": {ID: "other", Name: "Other"},
	}
	r := mux.NewRouter()
	r.Use(RequestID, Recovery(zap.NewNop()))

	t := r.PathPrefix("/{tenant}").Subrouter()
	t.Use(TenantMiddleware(tenants, zap.NewNop()))
	t.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
		tenant, _ := TenantFromContext(r.Context())
		w.Write([]byte(tenant.Name))
	})
	t.HandleFunc("/panic", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	api := t.PathPrefix("/api").Subrouter()
	api.Use(AuthMiddleware(secret))
	api.HandleFunc("/secret", func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(claims["tenant"].(string)))
	})
	return r
}

func serve(r http.Handler, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) (int, string) {
	t.Helper()
	var body struct {
		ErrorCode    int
		ErrorMessage string
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.ErrorCode, body.ErrorMessage
}

func TestTenantMiddleware(t *testing.T) {
	r := newTestRouter()

	rec := serve(r, "GET", "/acme/whoami", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acme", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(r, "GET", "/nobody/whoami", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	code, _ := errorBody(t, rec)
	assert.Equal(t, http.StatusNotFound, code)

	rec = serve(r, "GET", "/broken/whoami", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	r := newTestRouter()
	acmeToken, err := utils.GenerateTenantToken("acme", secret, time.Hour)
	require.NoError(t, err)

	rec := serve(r, "GET", "/acme/api/secret", acmeToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", rec.Body.String())

	rec = serve(r, "GET", "/acme/api/secret", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(r, "GET", "/acme/api/secret", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A valid token for another tenant does not open this one.
	rec = serve(r, "GET", "/other/api/secret", acmeToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	wrongKey, err := utils.GenerateTenantToken("acme", "other-secret", time.Hour)
	require.NoError(t, err)
	rec = serve(r, "GET", "/acme/api/secret", wrongKey)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecovery(t *testing.T) {
	r := newTestRouter()

	rec := serve(r, "GET", "/acme/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	code, msg := errorBody(t, rec)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.NotEmpty(t, msg)
}

func TestRequestIDIsPropagated(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest("GET", "/acme/whoami", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
}
