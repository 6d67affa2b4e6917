package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/r3e-network/objectstore/access"
	"github.com/r3e-network/objectstore/entity"
	"github.com/r3e-network/objectstore/infrastructure/logging"
	"github.com/r3e-network/objectstore/notify"
	"github.com/r3e-network/objectstore/store"
	"github.com/r3e-network/objectstore/store/memory"
)

func newTestServer() (*server, *mux.Router) {
	srv := &server{
		repo:   memory.New(),
		bus:    notify.NewBus(),
		logger: logging.New("objectstore-server-test", "error", "json"),
	}
	router := mux.NewRouter()
	srv.registerRoutes(router)
	return srv, router
}

func requestAs(method, path string, body any, id access.Identity) *http.Request {
	var buf *bytes.Buffer
	if body != nil {
		raw, _ := json.Marshal(body)
		buf = bytes.NewBuffer(raw)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, buf)
	return req.WithContext(access.WithIdentity(req.Context(), id))
}

func TestHandleWriteThenHandleRead(t *testing.T) {
	_, router := newTestServer()
	alice := access.Provision("alice")

	writeReq := requestAs(http.MethodPost, "/v1/objects", map[string]any{
		"type_name": "widget",
		"data":      map[string]any{"name": "gear"},
	}, alice)
	writeRec := httptest.NewRecorder()
	router.ServeHTTP(writeRec, writeReq)
	if writeRec.Code != http.StatusCreated {
		t.Fatalf("write status = %d, body = %s", writeRec.Code, writeRec.Body.String())
	}

	var written store.Event
	if err := json.Unmarshal(writeRec.Body.Bytes(), &written); err != nil {
		t.Fatalf("decode write response: %v", err)
	}
	if written.Owner != "alice" {
		t.Fatalf("Owner = %q, want alice", written.Owner)
	}

	readReq := requestAs(http.MethodGet, "/v1/objects/widget/"+written.EntityID.String(), nil, alice)
	readRec := httptest.NewRecorder()
	router.ServeHTTP(readRec, readReq)
	if readRec.Code != http.StatusOK {
		t.Fatalf("read status = %d, body = %s", readRec.Code, readRec.Body.String())
	}
}

func TestHandleReadStrangerGetsNotFound(t *testing.T) {
	_, router := newTestServer()
	alice := access.Provision("alice")
	stranger := access.Provision("mallory")

	writeReq := requestAs(http.MethodPost, "/v1/objects", map[string]any{
		"type_name": "widget",
		"data":      map[string]any{"name": "gear"},
	}, alice)
	writeRec := httptest.NewRecorder()
	router.ServeHTTP(writeRec, writeReq)
	var written store.Event
	json.Unmarshal(writeRec.Body.Bytes(), &written)

	readReq := requestAs(http.MethodGet, "/v1/objects/widget/"+written.EntityID.String(), nil, stranger)
	readRec := httptest.NewRecorder()
	router.ServeHTTP(readRec, readReq)
	if readRec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", readRec.Code)
	}
}

func TestHandleUpdateRejectsStaleVersion(t *testing.T) {
	_, router := newTestServer()
	alice := access.Provision("alice")

	writeReq := requestAs(http.MethodPost, "/v1/objects", map[string]any{
		"type_name": "widget",
		"data":      map[string]any{"name": "gear"},
	}, alice)
	writeRec := httptest.NewRecorder()
	router.ServeHTTP(writeRec, writeReq)
	var written store.Event
	json.Unmarshal(writeRec.Body.Bytes(), &written)

	staleVersion := written.Version
	updateReq := requestAs(http.MethodPut, "/v1/objects/widget/"+written.EntityID.String(), map[string]any{
		"data":             map[string]any{"name": "gear2"},
		"expected_version": staleVersion,
	}, alice)
	updateRec := httptest.NewRecorder()
	router.ServeHTTP(updateRec, updateReq)
	if updateRec.Code != http.StatusOK {
		t.Fatalf("first update status = %d, body = %s", updateRec.Code, updateRec.Body.String())
	}

	staleReq := requestAs(http.MethodPut, "/v1/objects/widget/"+written.EntityID.String(), map[string]any{
		"data":             map[string]any{"name": "gear3"},
		"expected_version": staleVersion,
	}, alice)
	staleRec := httptest.NewRecorder()
	router.ServeHTTP(staleRec, staleReq)
	if staleRec.Code != http.StatusConflict {
		t.Fatalf("stale update status = %d, want 409, body = %s", staleRec.Code, staleRec.Body.String())
	}
}

func TestHandleWriteRejectsMissingIdentity(t *testing.T) {
	_, router := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/objects", bytes.NewBufferString(`{"type_name":"widget","data":{}}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleShareReadGrantsStrangerVisibility(t *testing.T) {
	_, router := newTestServer()
	alice := access.Provision("alice")
	bob := access.Provision("bob")

	writeReq := requestAs(http.MethodPost, "/v1/objects", map[string]any{
		"type_name": "widget",
		"data":      map[string]any{"name": "gear"},
	}, alice)
	writeRec := httptest.NewRecorder()
	router.ServeHTTP(writeRec, writeReq)
	var written store.Event
	json.Unmarshal(writeRec.Body.Bytes(), &written)

	shareReq := requestAs(http.MethodPost, "/v1/objects/"+written.EntityID.String()+"/share/read", map[string]any{
		"grantee": "bob",
	}, alice)
	shareRec := httptest.NewRecorder()
	router.ServeHTTP(shareRec, shareReq)
	if shareRec.Code != http.StatusNoContent {
		t.Fatalf("share status = %d, body = %s", shareRec.Code, shareRec.Body.String())
	}

	readReq := requestAs(http.MethodGet, "/v1/objects/widget/"+written.EntityID.String(), nil, bob)
	readRec := httptest.NewRecorder()
	router.ServeHTTP(readRec, readReq)
	if readRec.Code != http.StatusOK {
		t.Fatalf("bob's read status = %d, want 200, body = %s", readRec.Code, readRec.Body.String())
	}
}

func TestHandleQueryReturnsOwnedEntities(t *testing.T) {
	_, router := newTestServer()
	alice := access.Provision("alice")

	for i := 0; i < 3; i++ {
		writeReq := requestAs(http.MethodPost, "/v1/objects", map[string]any{
			"type_name": "widget",
			"data":      map[string]any{"name": "gear"},
		}, alice)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, writeReq)
		if rec.Code != http.StatusCreated {
			t.Fatalf("write %d status = %d", i, rec.Code)
		}
	}

	queryReq := requestAs(http.MethodGet, "/v1/objects/widget", nil, alice)
	queryRec := httptest.NewRecorder()
	router.ServeHTTP(queryRec, queryReq)
	if queryRec.Code != http.StatusOK {
		t.Fatalf("query status = %d, body = %s", queryRec.Code, queryRec.Body.String())
	}

	var page store.Page
	if err := json.Unmarshal(queryRec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode query response: %v", err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("len(page.Items) = %d, want 3", len(page.Items))
	}
}

func TestHandleListTypes(t *testing.T) {
	_, router := newTestServer()
	alice := access.Provision("alice")

	writeReq := requestAs(http.MethodPost, "/v1/objects", map[string]any{
		"type_name": "widget",
		"data":      map[string]any{"name": "gear"},
	}, alice)
	httptest.NewRecorder()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, writeReq)
	if rec.Code != http.StatusCreated {
		t.Fatalf("write status = %d", rec.Code)
	}

	typesReq := requestAs(http.MethodGet, "/v1/types", nil, alice)
	typesRec := httptest.NewRecorder()
	router.ServeHTTP(typesRec, typesReq)
	if typesRec.Code != http.StatusOK {
		t.Fatalf("list-types status = %d", typesRec.Code)
	}
	var types []string
	if err := json.Unmarshal(typesRec.Body.Bytes(), &types); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(types) != 1 || types[0] != "widget" {
		t.Fatalf("types = %v, want [widget]", types)
	}
}

func TestHandleTransition(t *testing.T) {
	_, router := newTestServer()
	alice := access.Provision("alice")

	writeReq := requestAs(http.MethodPost, "/v1/objects", map[string]any{
		"type_name": "order",
		"data":      entity.Data{"total": 10},
		"state":     "DRAFT",
	}, alice)
	writeRec := httptest.NewRecorder()
	router.ServeHTTP(writeRec, writeReq)
	var written store.Event
	json.Unmarshal(writeRec.Body.Bytes(), &written)

	transitionReq := requestAs(http.MethodPost, "/v1/objects/order/"+written.EntityID.String()+"/transition", map[string]any{
		"new_state": "SUBMITTED",
	}, alice)
	transitionRec := httptest.NewRecorder()
	router.ServeHTTP(transitionRec, transitionReq)
	if transitionRec.Code != http.StatusOK {
		t.Fatalf("transition status = %d, body = %s", transitionRec.Code, transitionRec.Body.String())
	}

	var transitioned store.Event
	json.Unmarshal(transitionRec.Body.Bytes(), &transitioned)
	if transitioned.State != "SUBMITTED" {
		t.Fatalf("State = %q, want SUBMITTED", transitioned.State)
	}
}
