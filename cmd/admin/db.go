package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	sessionID := fs.String("session", "", "session id filter (traffic)")
	_ = fs.Parse(args)

	q := "sessions"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "relay.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "sessions":
		rows, err := db.Query(`SELECT id,name,color,character_net_id,joined_ms,left_ms,failed,sent_messages,sent_bytes,recv_messages,recv_bytes
			FROM sessions ORDER BY left_ms DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID             string `json:"id"`
				Name           string `json:"name"`
				Color          string `json:"color"`
				CharacterNetID int64  `json:"character_net_id"`
				JoinedMs       int64  `json:"joined_ms"`
				LeftMs         int64  `json:"left_ms"`
				Failed         bool   `json:"failed"`
				SentMessages   int64  `json:"sent_messages"`
				SentBytes      int64  `json:"sent_bytes"`
				RecvMessages   int64  `json:"recv_messages"`
				RecvBytes      int64  `json:"recv_bytes"`
			}
			var failed int
			if err := rows.Scan(&r.ID, &r.Name, &r.Color, &r.CharacterNetID, &r.JoinedMs, &r.LeftMs, &failed,
				&r.SentMessages, &r.SentBytes, &r.RecvMessages, &r.RecvBytes); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Failed = failed != 0
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "traffic":
		q := `SELECT session_id,COUNT(*),SUM(bytes),SUM(regions),SUM(invalidations),SUM(creates),SUM(updates),SUM(removes),SUM(block_changes+extra_changes),SUM(events),MIN(time_ms),MAX(time_ms)
			FROM envelopes GROUP BY session_id ORDER BY SUM(bytes) DESC LIMIT ?`
		args := []any{*limit}
		if s := strings.TrimSpace(*sessionID); s != "" {
			q = `SELECT session_id,COUNT(*),SUM(bytes),SUM(regions),SUM(invalidations),SUM(creates),SUM(updates),SUM(removes),SUM(block_changes+extra_changes),SUM(events),MIN(time_ms),MAX(time_ms)
			FROM envelopes WHERE session_id=? GROUP BY session_id`
			args = []any{s}
		}
		rows, err := db.Query(q, args...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				SessionID     string `json:"session_id"`
				Envelopes     int64  `json:"envelopes"`
				Bytes         int64  `json:"bytes"`
				Regions       int64  `json:"regions"`
				Invalidations int64  `json:"invalidations"`
				Creates       int64  `json:"creates"`
				Updates       int64  `json:"updates"`
				Removes       int64  `json:"removes"`
				BlockChanges  int64  `json:"block_changes"`
				Events        int64  `json:"events"`
				FirstMs       int64  `json:"first_ms"`
				LastMs        int64  `json:"last_ms"`
			}
			if err := rows.Scan(&r.SessionID, &r.Envelopes, &r.Bytes, &r.Regions, &r.Invalidations, &r.Creates,
				&r.Updates, &r.Removes, &r.BlockChanges, &r.Events, &r.FirstMs, &r.LastMs); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "tuning":
		var raw string
		if err := db.QueryRow(`SELECT value FROM meta WHERE key='tuning'`).Scan(&raw); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		fmt.Println(raw)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-limit N] [-session ID] sessions|traffic|tuning")
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
