package auth

import (
	"net/http"

	"github.com/arkhan2/invoicing-system-sub001/internal/platform/httpx"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// RequireIdentity rejects anonymous requests with 401 and puts the caller's
// identity on the context for the services below.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == 0 || sess.Company() == 0 {
			httpx.RespondError(w, nil, shared.ErrUnauthorized)
			return
		}
		ctx := shared.ContextWithIdentity(r.Context(), shared.Identity{
			UserID:    sess.User(),
			CompanyID: sess.Company(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
