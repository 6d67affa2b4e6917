package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/r3e-network/objectstore/access"
	"github.com/r3e-network/objectstore/entity"
	infraerrors "github.com/r3e-network/objectstore/infrastructure/errors"
	"github.com/r3e-network/objectstore/infrastructure/httputil"
	"github.com/r3e-network/objectstore/store"
)

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := infraerrors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = infraerrors.Internal("request failed", err)
	}
	httputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)
}

func pathEntityID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

// handleProvision mints a signed principal token for a newly authenticated
// caller, minimal-privilege per spec.md §4.6 (RoleUser only — no client
// request body field can escalate this to RoleAdmin). Grounded on
// cmd/gateway/main.go's /auth/login issuing a JWT after authenticating a
// wallet signature; here the upstream authentication (whatever established
// the caller's real-world identity) is assumed already done by the time
// this endpoint is called, typically from an internal provisioning flow
// rather than directly by an end user.
func (s *server) handleProvision(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Principal string `json:"principal"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}
	if body.Principal == "" {
		s.writeError(w, r, infraerrors.ValidationError("principal", "required"))
		return
	}
	if store.Principal(body.Principal) == store.AdminPrincipal {
		s.writeError(w, r, infraerrors.ValidationError("principal", "may not be the admin sentinel"))
		return
	}

	id := access.Provision(store.Principal(body.Principal))
	token, err := s.tokenGen.Generate(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"token": token, "principal": id.Principal})
}

func (s *server) handleWrite(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.clientFor(r)
	if !ok {
		s.writeError(w, r, infraerrors.AuthFailure("missing principal"))
		return
	}

	var body struct {
		TypeName string        `json:"type_name"`
		Data     entity.Data   `json:"data"`
		Readers  []string      `json:"readers"`
		Writers  []string      `json:"writers"`
		State    string        `json:"state"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	readers := make(store.PrincipalSet, len(body.Readers))
	for _, p := range body.Readers {
		readers[store.Principal(p)] = struct{}{}
	}
	writers := make(store.PrincipalSet, len(body.Writers))
	for _, p := range body.Writers {
		writers[store.Principal(p)] = struct{}{}
	}

	ev, err := client.Write(r.Context(), store.WriteRequest{
		TypeName: body.TypeName,
		Data:     body.Data,
		Readers:  readers,
		Writers:  writers,
		State:    body.State,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ev)
}

func (s *server) handleRead(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.clientFor(r)
	if !ok {
		s.writeError(w, r, infraerrors.AuthFailure("missing principal"))
		return
	}
	entityID, err := pathEntityID(r)
	if err != nil {
		s.writeError(w, r, infraerrors.ValidationError("id", "must be a UUID"))
		return
	}
	typeName := mux.Vars(r)["type"]

	ev, found, err := client.Read(r.Context(), typeName, entityID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !found {
		s.writeError(w, r, infraerrors.NotFound(typeName, entityID.String()))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ev)
}

func (s *server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.clientFor(r)
	if !ok {
		s.writeError(w, r, infraerrors.AuthFailure("missing principal"))
		return
	}
	entityID, err := pathEntityID(r)
	if err != nil {
		s.writeError(w, r, infraerrors.ValidationError("id", "must be a UUID"))
		return
	}

	var body struct {
		Data            entity.Data     `json:"data"`
		ExpectedVersion *int64          `json:"expected_version"`
		EventMeta       store.EventMeta `json:"event_meta"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	ev, err := client.Update(r.Context(), entityID, body.Data, body.ExpectedVersion, body.EventMeta)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ev)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.clientFor(r)
	if !ok {
		s.writeError(w, r, infraerrors.AuthFailure("missing principal"))
		return
	}
	entityID, err := pathEntityID(r)
	if err != nil {
		s.writeError(w, r, infraerrors.ValidationError("id", "must be a UUID"))
		return
	}

	var expectedVersion *int64
	if raw := r.URL.Query().Get("expected_version"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, infraerrors.ValidationError("expected_version", "must be an integer"))
			return
		}
		expectedVersion = &v
	}

	ev, err := client.Delete(r.Context(), entityID, expectedVersion)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ev)
}

func (s *server) handleTransition(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.clientFor(r)
	if !ok {
		s.writeError(w, r, infraerrors.AuthFailure("missing principal"))
		return
	}
	entityID, err := pathEntityID(r)
	if err != nil {
		s.writeError(w, r, infraerrors.ValidationError("id", "must be a UUID"))
		return
	}

	var body struct {
		NewState        string          `json:"new_state"`
		Data            entity.Data     `json:"data"`
		ExpectedVersion *int64          `json:"expected_version"`
		EventMeta       store.EventMeta `json:"event_meta"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return
	}

	ev, err := client.Transition(r.Context(), store.TransitionRequest{
		EntityID:        entityID,
		NewState:        body.NewState,
		Data:            body.Data,
		ExpectedVersion: body.ExpectedVersion,
		EventMeta:       body.EventMeta,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ev)
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.clientFor(r)
	if !ok {
		s.writeError(w, r, infraerrors.AuthFailure("missing principal"))
		return
	}
	typeName := mux.Vars(r)["type"]

	opts := store.NewQueryOptions(typeName)
	q := r.URL.Query()
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Pagination.Limit = n
		}
	}
	opts.Pagination.Cursor = q.Get("cursor")

	page, err := client.Query(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.clientFor(r)
	if !ok {
		s.writeError(w, r, infraerrors.AuthFailure("missing principal"))
		return
	}
	entityID, err := pathEntityID(r)
	if err != nil {
		s.writeError(w, r, infraerrors.ValidationError("id", "must be a UUID"))
		return
	}
	typeName := mux.Vars(r)["type"]

	events, err := client.History(r.Context(), typeName, entityID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (s *server) handleAsOf(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.clientFor(r)
	if !ok {
		s.writeError(w, r, infraerrors.AuthFailure("missing principal"))
		return
	}
	entityID, err := pathEntityID(r)
	if err != nil {
		s.writeError(w, r, infraerrors.ValidationError("id", "must be a UUID"))
		return
	}
	typeName := mux.Vars(r)["type"]

	q := r.URL.Query()
	txTime, err := parseOptionalTime(q.Get("tx_time"))
	if err != nil {
		s.writeError(w, r, infraerrors.ValidationError("tx_time", "must be RFC3339"))
		return
	}
	validTime, err := parseOptionalTime(q.Get("valid_time"))
	if err != nil {
		s.writeError(w, r, infraerrors.ValidationError("valid_time", "must be RFC3339"))
		return
	}

	ev, found, err := client.AsOf(r.Context(), typeName, entityID, txTime, validTime)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !found {
		s.writeError(w, r, infraerrors.NotFound(typeName, entityID.String()))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ev)
}

func parseOptionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *server) handleAudit(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.clientFor(r)
	if !ok {
		s.writeError(w, r, infraerrors.AuthFailure("missing principal"))
		return
	}
	entityID, err := pathEntityID(r)
	if err != nil {
		s.writeError(w, r, infraerrors.ValidationError("id", "must be a UUID"))
		return
	}

	records, err := client.Audit(r.Context(), entityID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

func (s *server) handleCount(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.clientFor(r)
	if !ok {
		s.writeError(w, r, infraerrors.AuthFailure("missing principal"))
		return
	}
	typeName := mux.Vars(r)["type"]

	count, err := client.Count(r.Context(), typeName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (s *server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.clientFor(r)
	if !ok {
		s.writeError(w, r, infraerrors.AuthFailure("missing principal"))
		return
	}
	types, err := client.ListTypes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, types)
}

func (s *server) shareBody(w http.ResponseWriter, r *http.Request) (store.Principal, bool) {
	var body struct {
		Grantee string `json:"grantee"`
	}
	if !httputil.DecodeJSON(w, r, &body) {
		return "", false
	}
	if body.Grantee == "" {
		s.writeError(w, r, infraerrors.ValidationError("grantee", "required"))
		return "", false
	}
	return store.Principal(body.Grantee), true
}

func (s *server) handleShareRead(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.clientFor(r)
	if !ok {
		s.writeError(w, r, infraerrors.AuthFailure("missing principal"))
		return
	}
	entityID, err := pathEntityID(r)
	if err != nil {
		s.writeError(w, r, infraerrors.ValidationError("id", "must be a UUID"))
		return
	}
	grantee, ok := s.shareBody(w, r)
	if !ok {
		return
	}
	if err := client.ShareRead(r.Context(), entityID, grantee); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleShareWrite(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.clientFor(r)
	if !ok {
		s.writeError(w, r, infraerrors.AuthFailure("missing principal"))
		return
	}
	entityID, err := pathEntityID(r)
	if err != nil {
		s.writeError(w, r, infraerrors.ValidationError("id", "must be a UUID"))
		return
	}
	grantee, ok := s.shareBody(w, r)
	if !ok {
		return
	}
	if err := client.ShareWrite(r.Context(), entityID, grantee); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleUnshareRead(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.clientFor(r)
	if !ok {
		s.writeError(w, r, infraerrors.AuthFailure("missing principal"))
		return
	}
	entityID, err := pathEntityID(r)
	if err != nil {
		s.writeError(w, r, infraerrors.ValidationError("id", "must be a UUID"))
		return
	}
	grantee := store.Principal(r.URL.Query().Get("grantee"))
	if grantee == "" {
		s.writeError(w, r, infraerrors.ValidationError("grantee", "required"))
		return
	}
	if err := client.UnshareRead(r.Context(), entityID, grantee); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleUnshareWrite(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.clientFor(r)
	if !ok {
		s.writeError(w, r, infraerrors.AuthFailure("missing principal"))
		return
	}
	entityID, err := pathEntityID(r)
	if err != nil {
		s.writeError(w, r, infraerrors.ValidationError("id", "must be a UUID"))
		return
	}
	grantee := store.Principal(r.URL.Query().Get("grantee"))
	if grantee == "" {
		s.writeError(w, r, infraerrors.ValidationError("grantee", "required"))
		return
	}
	if err := client.UnshareWrite(r.Context(), entityID, grantee); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListSharedWith(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.clientFor(r)
	if !ok {
		s.writeError(w, r, infraerrors.AuthFailure("missing principal"))
		return
	}
	entityID, err := pathEntityID(r)
	if err != nil {
		s.writeError(w, r, infraerrors.ValidationError("id", "must be a UUID"))
		return
	}
	readers, writers, err := client.ListSharedWith(r.Context(), entityID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"readers": readers, "writers": writers})
}
