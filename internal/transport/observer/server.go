package observer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"voxelrelay.ai/internal/netsys"
	"voxelrelay.ai/internal/observerproto"
	"voxelrelay.ai/internal/persistence/snapshot"
	"voxelrelay.ai/internal/protocol"
	"voxelrelay.ai/internal/sim/world"
)

// Server exposes a loopback-only view of the running simulation. The writes it
// accepts are snapshot requests and block family registrations.
type Server struct {
	m     *netsys.Manager
	snaps SnapshotSaver
	log   *log.Logger
}

type SnapshotSaver interface {
	Save(snap snapshot.SnapshotV1) (string, error)
}

func NewServer(m *netsys.Manager, snaps SnapshotSaver, logger *log.Logger) *Server {
	return &Server{m: m, snaps: snaps, log: logger}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allow(rw, r) {
			return
		}
		t := s.m.Tuning()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			Tick:            s.m.Tick(),
			WorldParams: protocol.WorldParams{
				TickRateHz:    t.TickRateHz,
				NetTickRateHz: t.TickRateHz / t.NetTickEvery,
				RegionSize:    world.RegionSize.Array(),
				Seed:          t.Seed,
			},
			BlockPalette: world.Palette(),
		}
		for _, f := range s.m.World().Families() {
			resp.Families = append(resp.Families, protocol.BlockFamily{Name: f.Name, IDs: f.IDs})
		}
		writeJSON(rw, resp)
	}
}

func (s *Server) SessionsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allow(rw, r) {
			return
		}
		mt := s.m.Metrics()
		resp := observerproto.SessionsResponse{
			ProtocolVersion: observerproto.Version,
			Tick:            mt.Tick,
			GameTimeMs:      mt.GameTimeMs,
			Entities:        mt.Entities,
			Sessions:        []observerproto.SessionInfo{},
		}
		for _, sm := range mt.Sessions {
			resp.Sessions = append(resp.Sessions, observerproto.SessionInfo{
				ID:              sm.ID,
				Name:            sm.Name,
				SentMessages:    sm.SentMessages,
				SentBytes:       sm.SentBytes,
				RecvMessages:    sm.ReceivedMessages,
				RecvBytes:       sm.ReceivedBytes,
				Backlog:         sm.InboundQueue + sm.BlockQueue + sm.ExtraQueue + sm.FamilyQueue + sm.EventQueue,
				PendingRegions:  sm.PendingRegions,
				StreamedRegions: sm.StreamedRegions,
				KnownEntities:   sm.KnownEntities,
			})
		}
		writeJSON(rw, resp)
	}
}

// SnapshotHandler captures the world between ticks and saves it.
func (s *Server) SnapshotHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowMethod(rw, r, http.MethodPost) {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		snap, err := s.m.RequestSnapshot(ctx)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		path, err := s.snaps.Save(snap)
		if err != nil {
			s.log.Printf("ERROR admin snapshot: %v", err)
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		s.log.Printf("admin snapshot tick=%d regions=%d path=%s", snap.Header.Tick, len(snap.Regions), path)
		writeJSON(rw, observerproto.SnapshotResponse{
			ProtocolVersion: observerproto.Version,
			Tick:            snap.Header.Tick,
			Regions:         len(snap.Regions),
			Path:            path,
		})
	}
}

// FamiliesHandler lists block families on GET and registers one on POST.
func (s *Server) FamiliesHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if !s.allowMethod(rw, r, http.MethodPost) {
				return
			}
			var f protocol.BlockFamily
			if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&f); err != nil {
				http.Error(rw, "bad family: "+err.Error(), http.StatusBadRequest)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			err := s.m.RegisterFamily(ctx, world.Family{Name: f.Name, IDs: f.IDs})
			switch {
			case errors.Is(err, world.ErrFamilyExists):
				http.Error(rw, err.Error(), http.StatusConflict)
				return
			case errors.Is(err, context.DeadlineExceeded):
				http.Error(rw, err.Error(), http.StatusServiceUnavailable)
				return
			case err != nil:
				http.Error(rw, err.Error(), http.StatusBadRequest)
				return
			}
			s.log.Printf("admin registered family %s ids=%v", f.Name, f.IDs)
		} else if !s.allow(rw, r) {
			return
		}
		resp := observerproto.FamiliesResponse{ProtocolVersion: observerproto.Version}
		for _, f := range s.m.World().Families() {
			resp.Families = append(resp.Families, protocol.BlockFamily{Name: f.Name, IDs: f.IDs})
		}
		writeJSON(rw, resp)
	}
}

func (s *Server) allow(rw http.ResponseWriter, r *http.Request) bool {
	return s.allowMethod(rw, r, http.MethodGet)
}

func (s *Server) allowMethod(rw http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
