package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	kernelhttputil "github.com/dot-do/entitykernel/infrastructure/httputil"
	"github.com/dot-do/entitykernel/infrastructure/logging"
)

// requireMatchingTenant rejects a request whose {tenant} path segment does
// not match the tenant the bearer token authorized, so a valid token for one
// tenant can never reach another tenant's kernel.
func requireMatchingTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pathTenant := mux.Vars(r)["tenant"]
		tokenTenant := logging.GetUserID(r.Context())
		if pathTenant == "" || tokenTenant == "" || pathTenant != tokenTenant {
			kernelhttputil.WriteErrorResponse(w, r, http.StatusForbidden, "FORBIDDEN", "token does not authorize this tenant", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
