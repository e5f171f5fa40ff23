package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"voxelrelay.ai/internal/netsys"
	"voxelrelay.ai/internal/persistence/indexdb"
	persistlog "voxelrelay.ai/internal/persistence/log"
	"voxelrelay.ai/internal/replication"
)

// summary folds every logged envelope of one session.
type summary struct {
	record    *netsys.SessionRecord
	envelopes int
	bytes     int64
	firstMs   int64
	lastMs    int64
	regions   int
	invalid   int
	creates   int
	removes   int
	updates   int
	blocks    int
	events    int
}

func main() {
	var (
		dataDir   = flag.String("data", "./data", "runtime data directory written by the server")
		sessionID = flag.String("session", "", "only report this session id (optional)")
		verify    = flag.Bool("verify_index", false, "cross-check envelope totals against the sqlite index")
	)
	flag.Parse()

	trafficDir := filepath.Join(*dataDir, "traffic")
	sums := map[string]*summary{}
	get := func(id string) *summary {
		s := sums[id]
		if s == nil {
			s = &summary{firstMs: -1}
			sums[id] = s
		}
		return s
	}

	envFiles, err := persistlog.Files(trafficDir, "envelopes")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list envelopes:", err)
		os.Exit(1)
	}
	for _, path := range envFiles {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var e replication.EnvelopeStats
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if *sessionID != "" && e.SessionID != *sessionID {
				return nil
			}
			s := get(e.SessionID)
			s.envelopes++
			s.bytes += int64(e.Bytes)
			if s.firstMs < 0 {
				s.firstMs = e.Time
			}
			s.lastMs = e.Time
			s.regions += e.Regions
			s.invalid += e.Invalidations
			s.creates += e.Creates
			s.removes += e.Removes
			s.updates += e.Updates
			s.blocks += e.BlockChanges + e.ExtraChanges
			s.events += e.Events
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}

	sessFiles, err := persistlog.Files(trafficDir, "sessions")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list sessions:", err)
		os.Exit(1)
	}
	for _, path := range sessFiles {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var r netsys.SessionRecord
			if err := json.Unmarshal(line, &r); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if *sessionID != "" && r.ID != *sessionID {
				return nil
			}
			get(r.ID).record = &r
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}

	if len(sums) == 0 {
		fmt.Fprintln(os.Stderr, "no traffic found in", trafficDir)
		os.Exit(1)
	}

	ids := make([]string, 0, len(sums))
	for id := range sums {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		s := sums[id]
		name, status := "?", "open"
		if s.record != nil {
			name = s.record.Name
			status = "left"
			if s.record.Failed {
				status = "failed"
			}
		}
		fmt.Printf("%s name=%s status=%s envelopes=%d bytes=%d span=%d..%dms regions=%d invalidated=%d creates=%d removes=%d updates=%d block_changes=%d events=%d\n",
			id, name, status, s.envelopes, s.bytes, s.firstMs, s.lastMs,
			s.regions, s.invalid, s.creates, s.removes, s.updates, s.blocks, s.events)
		if s.record != nil && s.record.SentMessages != uint64(s.envelopes) {
			fmt.Printf("  note: session reported %d sent messages, log has %d\n", s.record.SentMessages, s.envelopes)
		}
	}

	if !*verify {
		return
	}
	idx, err := indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "relay.sqlite"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open index:", err)
		os.Exit(1)
	}
	defer idx.Close()

	mismatches := 0
	for _, id := range ids {
		t, err := idx.Traffic(context.Background(), id)
		if err != nil {
			fmt.Fprintln(os.Stderr, "index:", err)
			os.Exit(1)
		}
		s := sums[id]
		if t.Envelopes != s.envelopes || t.Bytes != s.bytes || t.Regions != s.regions {
			mismatches++
			fmt.Printf("mismatch %s: index envelopes=%d bytes=%d regions=%d log envelopes=%d bytes=%d regions=%d\n",
				id, t.Envelopes, t.Bytes, t.Regions, s.envelopes, s.bytes, s.regions)
		}
	}
	if mismatches > 0 {
		// The index drops rows under backpressure, so gaps are expected on a busy server.
		fmt.Printf("verify: %d of %d sessions differ\n", mismatches, len(ids))
		os.Exit(1)
	}
	fmt.Printf("verify ok: %d sessions\n", len(ids))
}
