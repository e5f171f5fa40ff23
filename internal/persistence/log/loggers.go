package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelrelay.ai/internal/netsys"
	"voxelrelay.ai/internal/replication"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time
	// onClosed hears about every file this writer finished. It runs under
	// the writer lock and must not block.
	onClosed func(path string)

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) OnClosed(fn func(path string)) {
	w.mu.Lock()
	w.onClosed = fn
	w.mu.Unlock()
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush pushes buffered lines into the current zstd frame.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
		if w.onClosed != nil && err1 == nil {
			w.onClosed(w.pathForHour(w.curHour))
		}
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Files lists the log files under dir for prefix in time order.
func Files(dir, prefix string) ([]string, error) {
	out, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// ReadJSONL decodes every line of a .jsonl.zst file into fn. A truncated
// final frame (server killed mid-write) ends the read without error.
func ReadJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	return nil
}

// TrafficLogger writes one line per sent envelope and one per finished
// session. It satisfies both replication.Recorder and netsys.SessionIndex.
type TrafficLogger struct {
	envelopes *JSONLZstdWriter
	sessions  *JSONLZstdWriter
	logger    *stdlog.Logger

	errors atomic.Uint64
}

func NewTrafficLogger(dir string, logger *stdlog.Logger) *TrafficLogger {
	return &TrafficLogger{
		envelopes: NewJSONLZstdWriter(filepath.Join(dir, "traffic"), "envelopes"),
		sessions:  NewJSONLZstdWriter(filepath.Join(dir, "traffic"), "sessions"),
		logger:    logger,
	}
}

func (l *TrafficLogger) RecordEnvelope(s replication.EnvelopeStats) {
	l.report(l.envelopes.Write(s))
}

func (l *TrafficLogger) RecordSession(r netsys.SessionRecord) {
	if err := l.sessions.Write(r); err != nil {
		l.report(err)
		return
	}
	l.report(l.sessions.Flush())
}

// report logs the first failure and counts the rest.
func (l *TrafficLogger) report(err error) {
	if err == nil {
		return
	}
	if l.errors.Add(1) == 1 && l.logger != nil {
		l.logger.Printf("ERROR traffic log: %v", err)
	}
}

// OnFileClosed registers fn for every traffic file that was rotated out or
// closed on shutdown.
func (l *TrafficLogger) OnFileClosed(fn func(path string)) {
	l.envelopes.OnClosed(fn)
	l.sessions.OnClosed(fn)
}

func (l *TrafficLogger) Errors() uint64 { return l.errors.Load() }

func (l *TrafficLogger) Flush() error {
	return errors.Join(l.envelopes.Flush(), l.sessions.Flush())
}

func (l *TrafficLogger) Close() error {
	return errors.Join(l.envelopes.Close(), l.sessions.Close())
}

var (
	_ replication.Recorder = (*TrafficLogger)(nil)
	_ netsys.SessionIndex  = (*TrafficLogger)(nil)
)
