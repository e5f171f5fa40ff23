package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"voxelrelay.ai/internal/persistence/snapshot"
	"voxelrelay.ai/internal/sim/mathx"
	"voxelrelay.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "family":
			familyCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	paths, err := snapshot.List(filepath.Join(*dataDir, "snapshots"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, p := range paths {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			fmt.Printf("%s error=%v\n", filepath.Base(p), err)
			continue
		}
		fmt.Printf("%s tick=%d seed=%d regions=%d\n", filepath.Base(p), h.Tick, h.Seed, h.Regions)
	}
}

// rollbackCmd resets every edited region overlapping the box back to its
// generated content and writes a new snapshot for the server to boot from.
func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "snapshot path to roll back (optional; defaults to latest)")
	aabb := fs.String("aabb", "", "block box filter: x1,y1,z1:x2,y2,z2 (required)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*aabb) == "" {
		fmt.Fprintln(os.Stderr, "missing -aabb")
		os.Exit(2)
	}
	min, max, err := parseAABB(*aabb)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -aabb:", err)
		os.Exit(2)
	}

	snapDir := filepath.Join(*dataDir, "snapshots")
	toLoad := strings.TrimSpace(*snapPath)
	if toLoad == "" {
		if toLoad, err = snapshot.Latest(snapDir); err != nil {
			fmt.Fprintln(os.Stderr, "list snapshots:", err)
			os.Exit(1)
		}
	}
	if toLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(toLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	kept, reset := rollback(&snap, min, max)
	if reset == 0 {
		fmt.Println("no edited regions in the box; nothing to roll back")
		return
	}
	if strings.TrimSpace(*outPath) == "" {
		// One tick past the source so the server boots from it as the latest.
		*outPath = filepath.Join(snapDir, snapshot.FileName(snap.Header.Tick+1))
		snap.Header.Tick++
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("rollback ok: snapshot=%s aabb=%s reset=%d kept=%d out=%s\n",
		filepath.Base(toLoad), *aabb, reset, kept, *outPath)
}

// rollback drops the edited regions that overlap [min, max]. Dropped regions
// regenerate from the seed on the next boot.
func rollback(snap *snapshot.SnapshotV1, min, max [3]int) (kept, reset int) {
	lo := mathx.RegionOf(mathx.FromArray(min), world.RegionSize)
	hi := mathx.RegionOf(mathx.FromArray(max), world.RegionSize)
	out := snap.Regions[:0]
	for _, r := range snap.Regions {
		p := r.Pos
		if p[0] >= lo.X && p[0] <= hi.X && p[1] >= lo.Y && p[1] <= hi.Y && p[2] >= lo.Z && p[2] <= hi.Z {
			reset++
			continue
		}
		out = append(out, r)
	}
	snap.Regions = out
	return len(out), reset
}

func parseAABB(s string) (min, max [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 3; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
