package r2s3

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestPutFile_SignsPathStyleRequest(t *testing.T) {
	var (
		gotPath, gotAuth, gotHash string
		gotBody                   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		gotHash = r.Header.Get("x-amz-content-sha256")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, Bucket: "relay", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	path := filepath.Join(t.TempDir(), "a b.jsonl.zst")
	_ = os.WriteFile(path, []byte("hello"), 0o644)
	if err := c.PutFile(context.Background(), "traffic/a b.jsonl.zst", path); err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if gotPath != "/relay/traffic/a%20b.jsonl.zst" {
		t.Fatalf("path=%s", gotPath)
	}
	if string(gotBody) != "hello" {
		t.Fatalf("body=%q", gotBody)
	}
	// sha256("hello")
	if gotHash != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Fatalf("payload hash=%s", gotHash)
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AK/20260301/auto/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature=") {
		t.Fatalf("auth=%s", gotAuth)
	}
}

func TestPut_ReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "AccessDenied", http.StatusForbidden)
	}))
	defer srv.Close()
	c, _ := New(Config{Endpoint: srv.URL, Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s"})
	err := c.Put(context.Background(), "k", strings.NewReader("x"), 1)
	if err == nil || !strings.Contains(err.Error(), "status=403") {
		t.Fatalf("err=%v want status=403", err)
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Config{Endpoint: "r2.example.com", Bucket: "b"}); err == nil {
		t.Fatalf("expected error")
	}
}

type fakeUploader struct {
	mu    sync.Mutex
	keys  []string
	fails int
}

func (f *fakeUploader) PutFile(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("flaky")
	}
	f.keys = append(f.keys, key)
	return nil
}

func TestMirror_UploadsWithRetryAndPrefix(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{fails: 1}
	m := NewMirror(up, MirrorConfig{DataDir: dir, Prefix: "/prod/", Backoff: time.Millisecond}, log.New(io.Discard, "", 0))
	m.Enqueue(filepath.Join(dir, "snapshots", "40.snap.zst"))
	m.Enqueue(filepath.Join(filepath.Dir(dir), "elsewhere.txt"))
	m.Close()

	if len(up.keys) != 1 || up.keys[0] != "prod/snapshots/40.snap.zst" {
		t.Fatalf("keys=%v", up.keys)
	}
	st := m.Stats()
	if st.UploadedTotal != 1 || st.FailedTotal != 1 || st.EnqueuedTotal != 2 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestMirror_NilIsNoop(t *testing.T) {
	var m *Mirror
	m.Enqueue("x")
	m.Close()
	if m.Stats() != (Stats{}) {
		t.Fatalf("nil mirror stats not zero")
	}
}
