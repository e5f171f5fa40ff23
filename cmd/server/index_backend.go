package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voxelrelay.ai/internal/netsys"
	"voxelrelay.ai/internal/persistence/indexdb"
	"voxelrelay.ai/internal/replication"
	"voxelrelay.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	replication.Recorder
	netsys.SessionIndex
	Close() error
	UpsertTuning(t tuning.Tuning) error
	Stats() indexdb.Stats
}

func openRuntimeIndex(dataDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VR_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "relay.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported VR_INDEX_BACKEND: %s", backend)
	}
}

type sink interface {
	replication.Recorder
	netsys.SessionIndex
}

// sinks fans envelope and session records out to every configured store.
type sinks []sink

func (s sinks) RecordEnvelope(e replication.EnvelopeStats) {
	for _, x := range s {
		x.RecordEnvelope(e)
	}
}

func (s sinks) RecordSession(r netsys.SessionRecord) {
	for _, x := range s {
		x.RecordSession(r)
	}
}
