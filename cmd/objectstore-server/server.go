package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/r3e-network/objectstore/access"
	"github.com/r3e-network/objectstore/infrastructure/logging"
	"github.com/r3e-network/objectstore/infrastructure/ratelimit"
	"github.com/r3e-network/objectstore/notify"
	"github.com/r3e-network/objectstore/store"
)

// server holds every dependency the HTTP handlers close over. Grounded on
// the teacher's cmd/gateway/main.go registerRoutes pattern, which threads
// a handful of shared dependencies (db, metrics, rate limiter) through
// closures rather than a framework-managed DI container. repo is the
// store.Repository interface, not the concrete *postgres.Store, so
// handlers_test.go can wire it to store/memory instead.
type server struct {
	repo     store.Repository
	bus      *notify.Bus
	tokenGen *access.TokenGenerator
	logger   *logging.Logger
}

// clientFor builds a principal-scoped store.Client for the identity
// attached to r's context by access.Middleware.
func (s *server) clientFor(r *http.Request) (*store.Client, access.Identity, bool) {
	id, ok := access.IdentityFromContext(r.Context())
	if !ok {
		return nil, access.Identity{}, false
	}
	return store.NewClient(s.repo, id), id, true
}

func (s *server) registerRoutes(router *mux.Router) {
	router.HandleFunc("/v1/provision", s.handleProvision).Methods(http.MethodPost)

	router.HandleFunc("/v1/objects", s.handleWrite).Methods(http.MethodPost)
	router.HandleFunc("/v1/objects/{type}", s.handleQuery).Methods(http.MethodGet)
	router.HandleFunc("/v1/objects/{type}/count", s.handleCount).Methods(http.MethodGet)
	router.HandleFunc("/v1/objects/{type}/{id}", s.handleRead).Methods(http.MethodGet)
	router.HandleFunc("/v1/objects/{type}/{id}", s.handleUpdate).Methods(http.MethodPut)
	router.HandleFunc("/v1/objects/{type}/{id}", s.handleDelete).Methods(http.MethodDelete)
	router.HandleFunc("/v1/objects/{type}/{id}/transition", s.handleTransition).Methods(http.MethodPost)
	router.HandleFunc("/v1/objects/{type}/{id}/history", s.handleHistory).Methods(http.MethodGet)
	router.HandleFunc("/v1/objects/{type}/{id}/asof", s.handleAsOf).Methods(http.MethodGet)
	router.HandleFunc("/v1/objects/{id}/audit", s.handleAudit).Methods(http.MethodGet)
	router.HandleFunc("/v1/objects/{id}/share/read", s.handleShareRead).Methods(http.MethodPost)
	router.HandleFunc("/v1/objects/{id}/share/read", s.handleUnshareRead).Methods(http.MethodDelete)
	router.HandleFunc("/v1/objects/{id}/share/write", s.handleShareWrite).Methods(http.MethodPost)
	router.HandleFunc("/v1/objects/{id}/share/write", s.handleUnshareWrite).Methods(http.MethodDelete)
	router.HandleFunc("/v1/objects/{id}/shared", s.handleListSharedWith).Methods(http.MethodGet)

	router.HandleFunc("/v1/types", s.handleListTypes).Methods(http.MethodGet)

	router.HandleFunc("/v1/subscribe", s.handleSubscribe)
}

// rateLimitMiddleware rejects requests once limiter's token bucket is
// empty, ahead of every other handler. Applied process-wide rather than
// per-principal: this guards against accidental self-inflicted overload
// (a misbehaving batch job, a retry storm), not multi-tenant fairness.
func rateLimitMiddleware(limiter *ratelimit.RateLimiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
