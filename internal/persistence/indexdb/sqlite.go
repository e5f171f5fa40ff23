package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelrelay.ai/internal/netsys"
	"voxelrelay.ai/internal/replication"
	"voxelrelay.ai/internal/sim/tuning"
)

// SQLiteIndex is a secondary, query-friendly index of sessions and the
// envelopes sent to them. Writes are queued and applied by one goroutine;
// the compressed JSONL traffic logs remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropSession  atomic.Uint64
	dropEnvelope atomic.Uint64
}

type reqKind int

const (
	reqSession reqKind = iota + 1
	reqEnvelope
)

type req struct {
	kind reqKind

	session  netsys.SessionRecord
	envelope replication.EnvelopeStats
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropSessionTotal  uint64 `json:"drop_session_total"`
	DropEnvelopeTotal uint64 `json:"drop_envelope_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// One envelope per client per tick adds up quickly.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			color TEXT NOT NULL,
			character_net_id INTEGER NOT NULL,
			joined_ms INTEGER NOT NULL,
			left_ms INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			sent_messages INTEGER NOT NULL,
			sent_bytes INTEGER NOT NULL,
			recv_messages INTEGER NOT NULL,
			recv_bytes INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS envelopes (
			session_id TEXT NOT NULL,
			time_ms INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			regions INTEGER NOT NULL,
			invalidations INTEGER NOT NULL,
			creates INTEGER NOT NULL,
			updates INTEGER NOT NULL,
			removes INTEGER NOT NULL,
			block_changes INTEGER NOT NULL,
			extra_changes INTEGER NOT NULL,
			events INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_envelopes_time ON envelopes(time_ms);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordSession never blocks; it drops the row if the writer falls behind.
func (s *SQLiteIndex) RecordSession(r netsys.SessionRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSession, session: r}:
	default:
		s.dropSession.Add(1)
	}
}

func (s *SQLiteIndex) RecordEnvelope(e replication.EnvelopeStats) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqEnvelope, envelope: e}:
	default:
		s.dropEnvelope.Add(1)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropSessionTotal:  s.dropSession.Load(),
		DropEnvelopeTotal: s.dropEnvelope.Load(),
	}
}

// UpsertTuning stores the tuning the server runs with, for later analysis.
func (s *SQLiteIndex) UpsertTuning(t tuning.Tuning) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO meta(key,value) VALUES('tuning',?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, string(b))
	return err
}

func (s *SQLiteIndex) Tuning() (tuning.Tuning, bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key='tuning'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return tuning.Tuning{}, false, nil
	}
	if err != nil {
		return tuning.Tuning{}, false, err
	}
	var t tuning.Tuning
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return tuning.Tuning{}, false, err
	}
	return t, true, nil
}

func (s *SQLiteIndex) Sessions(ctx context.Context) ([]netsys.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,name,color,character_net_id,joined_ms,left_ms,failed,
		sent_messages,sent_bytes,recv_messages,recv_bytes FROM sessions ORDER BY joined_ms, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []netsys.SessionRecord
	for rows.Next() {
		var r netsys.SessionRecord
		var failed int
		if err := rows.Scan(&r.ID, &r.Name, &r.Color, &r.CharacterNetID, &r.JoinedMs, &r.LeftMs, &failed,
			&r.SentMessages, &r.SentBytes, &r.RecvMessages, &r.RecvBytes); err != nil {
			return nil, err
		}
		r.Failed = failed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

type Traffic struct {
	Envelopes int
	Bytes     int64
	Regions   int
}

func (s *SQLiteIndex) Traffic(ctx context.Context, sessionID string) (Traffic, error) {
	var t Traffic
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(bytes),0), COALESCE(SUM(regions),0)
		FROM envelopes WHERE session_id=?`, sessionID).Scan(&t.Envelopes, &t.Bytes, &t.Regions)
	return t, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(id,name,color,character_net_id,joined_ms,left_ms,failed,
		sent_messages,sent_bytes,recv_messages,recv_bytes) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertEnvelope, _ := s.db.Prepare(`INSERT OR REPLACE INTO envelopes(session_id,time_ms,seq,bytes,regions,invalidations,
		creates,updates,removes,block_changes,extra_changes,events) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertSession != nil {
			_ = insertSession.Close()
		}
		if insertEnvelope != nil {
			_ = insertEnvelope.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		// envelope sequence per session, assigned here so rows stay ordered
		seq = map[string]int{}
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSession:
			se := r.session
			failed := 0
			if se.Failed {
				failed = 1
			}
			if insertSession != nil {
				if _, err := tx.Stmt(insertSession).Exec(se.ID, se.Name, se.Color, int64(se.CharacterNetID),
					se.JoinedMs, se.LeftMs, failed,
					int64(se.SentMessages), int64(se.SentBytes), int64(se.RecvMessages), int64(se.RecvBytes)); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			delete(seq, se.ID)

		case reqEnvelope:
			e := r.envelope
			n := seq[e.SessionID]
			seq[e.SessionID] = n + 1
			if insertEnvelope != nil {
				if _, err := tx.Stmt(insertEnvelope).Exec(e.SessionID, e.Time, n, e.Bytes, e.Regions, e.Invalidations,
					e.Creates, e.Updates, e.Removes, e.BlockChanges, e.ExtraChanges, e.Events); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
