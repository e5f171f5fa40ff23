package main

import (
	"fmt"
	"io"

	"voxelrelay.ai/internal/netsys"
	"voxelrelay.ai/internal/persistence/indexdb"
	"voxelrelay.ai/internal/persistence/r2s3"
)

type indexStats indexdb.Stats

// writeMetrics renders a minimal Prometheus exposition.
func writeMetrics(w io.Writer, m netsys.Metrics, idx *indexStats, mirror *r2s3.Stats, trafficErrors uint64) {
	fmt.Fprintf(w, "# HELP voxelrelay_tick Current simulation tick.\n")
	fmt.Fprintf(w, "# TYPE voxelrelay_tick gauge\n")
	fmt.Fprintf(w, "voxelrelay_tick %d\n", m.Tick)

	fmt.Fprintf(w, "# HELP voxelrelay_sessions Connected client sessions.\n")
	fmt.Fprintf(w, "# TYPE voxelrelay_sessions gauge\n")
	fmt.Fprintf(w, "voxelrelay_sessions %d\n", len(m.Sessions))

	fmt.Fprintf(w, "# HELP voxelrelay_entities Live entities.\n")
	fmt.Fprintf(w, "# TYPE voxelrelay_entities gauge\n")
	fmt.Fprintf(w, "voxelrelay_entities %d\n", m.Entities)

	fmt.Fprintf(w, "# HELP voxelrelay_bandwidth_per_client Region streaming allowance per client.\n")
	fmt.Fprintf(w, "# TYPE voxelrelay_bandwidth_per_client gauge\n")
	fmt.Fprintf(w, "voxelrelay_bandwidth_per_client %.3f\n", m.Bandwidth)

	fmt.Fprintf(w, "# HELP voxelrelay_session_sent_bytes_total Bytes sent to a client.\n")
	fmt.Fprintf(w, "# TYPE voxelrelay_session_sent_bytes_total counter\n")
	for _, s := range m.Sessions {
		fmt.Fprintf(w, "voxelrelay_session_sent_bytes_total{session=%q} %d\n", s.ID, s.SentBytes)
	}
	fmt.Fprintf(w, "# HELP voxelrelay_session_sent_messages_total Envelopes sent to a client.\n")
	fmt.Fprintf(w, "# TYPE voxelrelay_session_sent_messages_total counter\n")
	for _, s := range m.Sessions {
		fmt.Fprintf(w, "voxelrelay_session_sent_messages_total{session=%q} %d\n", s.ID, s.SentMessages)
	}
	fmt.Fprintf(w, "# HELP voxelrelay_session_received_bytes_total Bytes received from a client.\n")
	fmt.Fprintf(w, "# TYPE voxelrelay_session_received_bytes_total counter\n")
	for _, s := range m.Sessions {
		fmt.Fprintf(w, "voxelrelay_session_received_bytes_total{session=%q} %d\n", s.ID, s.ReceivedBytes)
	}
	fmt.Fprintf(w, "# HELP voxelrelay_session_received_messages_total Envelopes received from a client.\n")
	fmt.Fprintf(w, "# TYPE voxelrelay_session_received_messages_total counter\n")
	for _, s := range m.Sessions {
		fmt.Fprintf(w, "voxelrelay_session_received_messages_total{session=%q} %d\n", s.ID, s.ReceivedMessages)
	}

	fmt.Fprintf(w, "# HELP voxelrelay_session_queue_depth Per-session queue backlog.\n")
	fmt.Fprintf(w, "# TYPE voxelrelay_session_queue_depth gauge\n")
	for _, s := range m.Sessions {
		fmt.Fprintf(w, "voxelrelay_session_queue_depth{session=%q,queue=%q} %d\n", s.ID, "inbound", s.InboundQueue)
		fmt.Fprintf(w, "voxelrelay_session_queue_depth{session=%q,queue=%q} %d\n", s.ID, "block", s.BlockQueue)
		fmt.Fprintf(w, "voxelrelay_session_queue_depth{session=%q,queue=%q} %d\n", s.ID, "extra", s.ExtraQueue)
		fmt.Fprintf(w, "voxelrelay_session_queue_depth{session=%q,queue=%q} %d\n", s.ID, "family", s.FamilyQueue)
		fmt.Fprintf(w, "voxelrelay_session_queue_depth{session=%q,queue=%q} %d\n", s.ID, "event", s.EventQueue)
	}

	fmt.Fprintf(w, "# HELP voxelrelay_session_regions Regions waiting to stream or already streamed.\n")
	fmt.Fprintf(w, "# TYPE voxelrelay_session_regions gauge\n")
	for _, s := range m.Sessions {
		fmt.Fprintf(w, "voxelrelay_session_regions{session=%q,state=%q} %d\n", s.ID, "pending", s.PendingRegions)
		fmt.Fprintf(w, "voxelrelay_session_regions{session=%q,state=%q} %d\n", s.ID, "streamed", s.StreamedRegions)
	}

	fmt.Fprintf(w, "# HELP voxelrelay_session_known_entities Entities the client knows about.\n")
	fmt.Fprintf(w, "# TYPE voxelrelay_session_known_entities gauge\n")
	for _, s := range m.Sessions {
		fmt.Fprintf(w, "voxelrelay_session_known_entities{session=%q} %d\n", s.ID, s.KnownEntities)
	}

	fmt.Fprintf(w, "# HELP voxelrelay_traffic_log_errors_total Failed traffic log writes.\n")
	fmt.Fprintf(w, "# TYPE voxelrelay_traffic_log_errors_total counter\n")
	fmt.Fprintf(w, "voxelrelay_traffic_log_errors_total %d\n", trafficErrors)

	if mirror != nil {
		fmt.Fprintf(w, "# HELP voxelrelay_mirror_queue_depth Files waiting for upload.\n")
		fmt.Fprintf(w, "# TYPE voxelrelay_mirror_queue_depth gauge\n")
		fmt.Fprintf(w, "voxelrelay_mirror_queue_depth %d\n", mirror.QueueDepth)
		fmt.Fprintf(w, "# HELP voxelrelay_mirror_files_total Files handled by the object storage mirror.\n")
		fmt.Fprintf(w, "# TYPE voxelrelay_mirror_files_total counter\n")
		fmt.Fprintf(w, "voxelrelay_mirror_files_total{result=%q} %d\n", "uploaded", mirror.UploadedTotal)
		fmt.Fprintf(w, "voxelrelay_mirror_files_total{result=%q} %d\n", "failed", mirror.FailedTotal)
		fmt.Fprintf(w, "voxelrelay_mirror_files_total{result=%q} %d\n", "dropped", mirror.DroppedTotal)
	}

	if idx == nil {
		return
	}
	fmt.Fprintf(w, "# HELP voxelrelay_index_queue_depth SQLite index writer backlog.\n")
	fmt.Fprintf(w, "# TYPE voxelrelay_index_queue_depth gauge\n")
	fmt.Fprintf(w, "voxelrelay_index_queue_depth %d\n", idx.QueueDepth)
	fmt.Fprintf(w, "# HELP voxelrelay_index_dropped_total Rows dropped because the index writer fell behind.\n")
	fmt.Fprintf(w, "# TYPE voxelrelay_index_dropped_total counter\n")
	fmt.Fprintf(w, "voxelrelay_index_dropped_total{kind=%q} %d\n", "session", idx.DropSessionTotal)
	fmt.Fprintf(w, "voxelrelay_index_dropped_total{kind=%q} %d\n", "envelope", idx.DropEnvelopeTotal)
}
