package access

import (
	"net/http"
	"strings"

	infraerrors "github.com/r3e-network/objectstore/infrastructure/errors"
	internalhttputil "github.com/r3e-network/objectstore/infrastructure/httputil"
	"github.com/r3e-network/objectstore/infrastructure/logging"
	"github.com/r3e-network/objectstore/infrastructure/security"
)

// AuthorizationHeader is the header a principal token travels in,
// "Authorization: Bearer <token>" per the usual bearer-token convention —
// distinct from serviceauth's X-Service-Token, since this authenticates an
// end user rather than a calling service.
const AuthorizationHeader = "Authorization"

// Middleware resolves the bearer token on every request into an Identity
// attached to the request context, rejecting the request otherwise.
// Grounded on infrastructure/middleware.ServiceAuthMiddleware.Handler,
// generalized from service tokens to end-user principals.
type Middleware struct {
	resolver *Resolver
	logger   *logging.Logger
	skip     map[string]bool
}

// NewMiddleware builds a Middleware. skipPaths bypass authentication
// entirely (health checks, metrics).
func NewMiddleware(resolver *Resolver, logger *logging.Logger, skipPaths ...string) *Middleware {
	if logger == nil {
		logger = logging.Default()
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return &Middleware{resolver: resolver, logger: logger, skip: skip}
}

// Handler wraps next, rejecting requests without a valid bearer token.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r.Header.Get(AuthorizationHeader))
		if token == "" {
			m.respondError(w, r, infraerrors.AuthFailure("missing bearer token"))
			return
		}

		id, err := m.resolver.Resolve(token)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("principal token validation failed")
			m.respondError(w, r, err)
			return
		}

		ctx := WithIdentity(r.Context(), id)
		m.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"principal": string(id.Principal),
			"roles":     id.Roles,
		}).Debug("principal authenticated")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

func (m *Middleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := infraerrors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = infraerrors.Internal("principal authentication failed", err)
	}

	sanitizedMessage := security.SanitizeString(serviceErr.Message)
	sanitizedDetails := security.SanitizeMap(serviceErr.Details)
	internalhttputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), sanitizedMessage, sanitizedDetails)

	m.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	}).Warnf("principal authentication failed: %s", security.SanitizeError(err))
}
