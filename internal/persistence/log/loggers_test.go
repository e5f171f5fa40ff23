package log

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"voxelrelay.ai/internal/netsys"
	"voxelrelay.ai/internal/replication"
)

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "envelopes")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }
	var closed []string
	w.OnClosed(func(p string) { closed = append(closed, filepath.Base(p)) })

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(closed) != 1 || closed[0] != "envelopes-2026-03-01-10.jsonl.zst" {
		t.Fatalf("closed after rotation=%v", closed)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(closed) != 2 {
		t.Fatalf("closed after Close=%v", closed)
	}

	files, err := Files(dir, "envelopes")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	want := []string{
		filepath.Join(dir, "envelopes-2026-03-01-10.jsonl.zst"),
		filepath.Join(dir, "envelopes-2026-03-01-11.jsonl.zst"),
	}
	if len(files) != 2 || files[0] != want[0] || files[1] != want[1] {
		t.Fatalf("files=%v want %v", files, want)
	}
	var n int
	if err := ReadJSONL(files[1], func(line []byte) error {
		var v map[string]int
		if err := json.Unmarshal(line, &v); err != nil {
			return err
		}
		n = v["n"]
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 2 {
		t.Fatalf("second file n=%d want 2", n)
	}
}

func TestTrafficLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewTrafficLogger(dir, nil)
	l.RecordEnvelope(replication.EnvelopeStats{SessionID: "S1", Time: 50, Bytes: 120, Regions: 1})
	l.RecordEnvelope(replication.EnvelopeStats{SessionID: "S1", Time: 100, Bytes: 30})
	l.RecordSession(netsys.SessionRecord{ID: "S1", Name: "alice", SentMessages: 2})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if l.Errors() != 0 {
		t.Fatalf("errors=%d", l.Errors())
	}

	files, _ := Files(filepath.Join(dir, "traffic"), "envelopes")
	var got []replication.EnvelopeStats
	for _, f := range files {
		if err := ReadJSONL(f, func(line []byte) error {
			var s replication.EnvelopeStats
			if err := json.Unmarshal(line, &s); err != nil {
				return err
			}
			got = append(got, s)
			return nil
		}); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if len(got) != 2 || got[0].Bytes != 120 || got[1].Time != 100 {
		t.Fatalf("envelopes=%+v", got)
	}

	files, _ = Files(filepath.Join(dir, "traffic"), "sessions")
	if len(files) != 1 {
		t.Fatalf("session files=%v", files)
	}
}
