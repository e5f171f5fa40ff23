package observer

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voxelrelay.ai/internal/netsys"
	"voxelrelay.ai/internal/observerproto"
	"voxelrelay.ai/internal/persistence/snapshot"
	"voxelrelay.ai/internal/sim/tuning"
)

func newManager(t *testing.T) *netsys.Manager {
	t.Helper()
	m, err := netsys.New(netsys.Config{Tuning: tuning.Defaults(), Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("netsys.New: %v", err)
	}
	return m
}

func newServer(t *testing.T) *Server {
	t.Helper()
	m := newManager(t)
	m.StepOnce()
	return NewServer(m, &snapshot.Store{Dir: t.TempDir()}, log.New(io.Discard, "", 0))
}

func TestBootstrap(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/observer/bootstrap", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rw := httptest.NewRecorder()
	s.BootstrapHandler()(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("status=%d", rw.Code)
	}
	var resp observerproto.BootstrapResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Tick != 1 || resp.WorldParams.TickRateHz != 20 || len(resp.BlockPalette) == 0 || resp.BlockPalette[0] != "air" {
		t.Fatalf("resp=%+v", resp)
	}
	if len(resp.Families) == 0 {
		t.Fatalf("no block families")
	}
}

func TestSessions_EmptyListNotNull(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/observer/sessions", nil)
	req.RemoteAddr = "[::1]:5555"
	rw := httptest.NewRecorder()
	s.SessionsHandler()(rw, req)
	var body map[string]any
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["sessions"].([]any); !ok {
		t.Fatalf("sessions=%v want []", body["sessions"])
	}
}

func TestRejectsRemoteAndWrites(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/observer/bootstrap", nil)
	req.RemoteAddr = "10.0.0.8:5555"
	rw := httptest.NewRecorder()
	s.BootstrapHandler()(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("remote status=%d want 403", rw.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/v1/observer/sessions", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rw = httptest.NewRecorder()
	s.SessionsHandler()(rw, req)
	if rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status=%d want 405", rw.Code)
	}
}

func TestSnapshot_WritesFile(t *testing.T) {
	m := newManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	dir := t.TempDir()
	s := NewServer(m, &snapshot.Store{Dir: dir}, log.New(io.Discard, "", 0))
	req := httptest.NewRequest(http.MethodPost, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rw := httptest.NewRecorder()
	s.SnapshotHandler()(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rw.Code, rw.Body.String())
	}
	var resp observerproto.SnapshotResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	latest, err := snapshot.Latest(dir)
	if err != nil || latest != resp.Path {
		t.Fatalf("latest=%q err=%v want %q", latest, err, resp.Path)
	}
	h, err := snapshot.ReadHeader(latest)
	if err != nil || h.Tick != resp.Tick {
		t.Fatalf("header=%+v err=%v want tick %d", h, err, resp.Tick)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rw = httptest.NewRecorder()
	s.SnapshotHandler()(rw, req)
	if rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status=%d want 405", rw.Code)
	}
}

func TestFamilies_RegisterWhileRunning(t *testing.T) {
	m := newManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()
	s := NewServer(m, &snapshot.Store{Dir: t.TempDir()}, log.New(io.Discard, "", 0))

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/admin/v1/families", strings.NewReader(body))
		req.RemoteAddr = "127.0.0.1:5555"
		rw := httptest.NewRecorder()
		s.FamiliesHandler()(rw, req)
		return rw
	}

	rw := post(`{"name":"mod:glass","ids":[40,41]}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rw.Code, rw.Body.String())
	}
	var resp observerproto.FamiliesResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, f := range resp.Families {
		if f.Name == "mod:glass" && len(f.IDs) == 2 && f.IDs[0] == 40 {
			found = true
		}
	}
	if !found {
		t.Fatalf("families=%+v missing mod:glass", resp.Families)
	}

	if rw := post(`{"name":"mod:glass","ids":[42]}`); rw.Code != http.StatusConflict {
		t.Fatalf("duplicate status=%d want 409", rw.Code)
	}
	if rw := post(`{"name":"mod:air","ids":[0]}`); rw.Code != http.StatusBadRequest {
		t.Fatalf("air status=%d want 400", rw.Code)
	}
	if rw := post(`{`); rw.Code != http.StatusBadRequest {
		t.Fatalf("malformed status=%d want 400", rw.Code)
	}
}
