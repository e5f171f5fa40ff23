package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"voxelrelay.ai/internal/observerproto"
	"voxelrelay.ai/internal/protocol"
)

const defaultAdminURL = "http://127.0.0.1:8080"

// adminCall sends one request to the server's admin surface and decodes the
// JSON reply into out. Non-2xx replies come back as errors carrying the body.
func adminCall(method, baseURL, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, err := http.NewRequest(method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", defaultAdminURL, "server base url")
	_ = fs.Parse(args)

	var resp observerproto.SessionsResponse
	if err := adminCall(http.MethodGet, *baseURL, "/admin/v1/observer/sessions", nil, &resp); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	printSessions(os.Stdout, resp)
}

func printSessions(w io.Writer, resp observerproto.SessionsResponse) {
	fmt.Fprintf(w, "tick=%d game_time=%s entities=%d sessions=%d\n",
		resp.Tick, time.Duration(resp.GameTimeMs)*time.Millisecond, resp.Entities, len(resp.Sessions))
	for _, s := range resp.Sessions {
		fmt.Fprintf(w, "%s %-12s backlog=%d regions=%d/%d entities=%d sent=%dB/%d recv=%dB/%d\n",
			s.ID, s.Name, s.Backlog, s.StreamedRegions, s.PendingRegions, s.KnownEntities,
			s.SentBytes, s.SentMessages, s.RecvBytes, s.RecvMessages)
	}
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", defaultAdminURL, "server base url")
	_ = fs.Parse(args)

	var resp observerproto.SnapshotResponse
	if err := adminCall(http.MethodPost, *baseURL, "/admin/v1/snapshot", nil, &resp); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("snapshot ok: tick=%d regions=%d path=%s\n", resp.Tick, resp.Regions, resp.Path)
}

// familyCmd registers a block family on the running server. Connected
// clients receive it before any region that uses its ids.
func familyCmd(args []string) {
	fs := flag.NewFlagSet("family", flag.ExitOnError)
	baseURL := fs.String("url", defaultAdminURL, "server base url")
	name := fs.String("name", "", "family name, e.g. mod:glass (required)")
	idList := fs.String("ids", "", "comma separated block ids (required)")
	_ = fs.Parse(args)

	ids, err := parseIDs(*idList)
	if err != nil || strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "need -name and -ids:", err)
		os.Exit(2)
	}
	f := protocol.BlockFamily{Name: strings.TrimSpace(*name), IDs: ids}
	var resp observerproto.FamiliesResponse
	if err := adminCall(http.MethodPost, *baseURL, "/admin/v1/families", f, &resp); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("family ok: %s ids=%v families=%d\n", f.Name, f.IDs, len(resp.Families))
}

func parseIDs(s string) ([]uint16, error) {
	var ids []uint16
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint16(n))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no ids")
	}
	return ids, nil
}
