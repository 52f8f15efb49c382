package handlers

import (
	"fmt"
	"net/http"

	"github.com/skip2/go-qrcode"

	"github.com/xelth-com/wingetpro/internal/middleware"
	"github.com/xelth-com/wingetpro/internal/models"
)

// sourceURL is the address clients register with `winget source add`
func (r *Router) sourceURL(req *http.Request, tenant *models.Tenant) string {
	return requestOrigin(req, r.cfg.Source.TrustProxyHeaders) + "/" + tenant.ID + "/"
}

// index prints setup instructions for the tenant's source
func (r *Router) index(w http.ResponseWriter, req *http.Request) {
	tenant, _ := middleware.TenantFromContext(req.Context())
	url := r.sourceURL(req, tenant)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Package source of %s\n\n", tenant.Name)
	fmt.Fprintf(w, "Add it to winget from an administrator prompt:\n\n")
	fmt.Fprintf(w, "    winget source add --name %q --arg %s --type Microsoft.Rest\n\n", sourceName(tenant), url)
	fmt.Fprintf(w, "Then install packages with:\n\n")
	fmt.Fprintf(w, "    winget install --source %q <PackageIdentifier>\n", sourceName(tenant))
}

// sourceQR renders the source URL as a QR code
func (r *Router) sourceQR(w http.ResponseWriter, req *http.Request) {
	tenant, _ := middleware.TenantFromContext(req.Context())

	png, err := qrcode.Encode(r.sourceURL(req, tenant), qrcode.Medium, 256)
	if err != nil {
		r.handleError(w, req, fmt.Errorf("generate source QR: %w", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// sourceName is a winget-friendly source name derived from the tenant name
func sourceName(t *models.Tenant) string {
	out := make([]rune, 0, len(t.Name))
	for _, c := range t.Name {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '.':
			out = append(out, c)
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		case c == ' ' || c == '_':
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "winget"
	}
	return string(out)
}
