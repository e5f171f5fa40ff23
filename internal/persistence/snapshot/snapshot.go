package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

// Header is written as a JSON line ahead of the gob body so tools can list
// snapshots without decoding the regions.
type Header struct {
	Version int    `json:"version"`
	Tick    uint64 `json:"tick"`
	Seed    int64  `json:"seed"`
	Regions int    `json:"regions"`
}

// SnapshotV1 holds the edited part of a world. Unedited regions are
// regenerated from the seed.
type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRateHz int `json:"tick_rate_hz"`
	MinRegionY int `json:"min_region_y"`
	MaxRegionY int `json:"max_region_y"`
	Layers     int `json:"layers"`

	Families []FamilyV1 `json:"families,omitempty"`
	Regions  []RegionV1 `json:"regions"`
}

type FamilyV1 struct {
	Name string   `json:"name"`
	IDs  []uint16 `json:"ids"`
}

type RegionV1 struct {
	Pos    [3]int    `json:"pos"`
	Blocks []uint16  `json:"blocks"`
	Layers [][]uint8 `json:"layers,omitempty"`
}

// FileName is "<tick>.snap.zst".
func FileName(tick uint64) string {
	return fmt.Sprintf("%d.snap.zst", tick)
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	snap.Header.Version = Version
	snap.Header.Regions = len(snap.Regions)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Write to a temp file first so a crash never leaves a torn latest snapshot.
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	err := open(path, func(br *bufio.Reader) error {
		if _, err := br.ReadBytes('\n'); err != nil {
			return fmt.Errorf("header: %w", err)
		}
		if err := gob.NewDecoder(br).Decode(&snap); err != nil {
			return fmt.Errorf("gob decode: %w", err)
		}
		return nil
	})
	if err != nil {
		return snap, err
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d not supported", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	err := open(path, func(br *bufio.Reader) error {
		line, err := br.ReadBytes('\n')
		if err != nil {
			return fmt.Errorf("header: %w", err)
		}
		return json.Unmarshal(line, &h)
	})
	return h, err
}

func open(path string, fn func(*bufio.Reader) error) error {
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
	return fn(bufio.NewReaderSize(dec, 256*1024))
}

// List returns the snapshots in dir ordered by tick.
func List(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	type item struct {
		tick uint64
		path string
	}
	var items []item
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(e.Name(), ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		items = append(items, item{tick: tick, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].tick < items[j].tick })
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.path
	}
	return out, nil
}

// Latest returns the newest snapshot in dir, or "" when there is none.
func Latest(dir string) (string, error) {
	all, err := List(dir)
	if err != nil || len(all) == 0 {
		return "", err
	}
	return all[len(all)-1], nil
}

// Store writes snapshots into Dir, keeps the newest Keep of them and reports
// each written file to OnWritten.
type Store struct {
	Dir       string
	Keep      int
	OnWritten func(path string)
}

func (s *Store) Save(snap SnapshotV1) (string, error) {
	path := filepath.Join(s.Dir, FileName(snap.Header.Tick))
	if err := WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	if s.OnWritten != nil {
		s.OnWritten(path)
	}
	if s.Keep > 0 {
		if err := Prune(s.Dir, s.Keep); err != nil {
			return path, fmt.Errorf("prune: %w", err)
		}
	}
	return path, nil
}

// Prune removes all but the newest keep snapshots in dir.
func Prune(dir string, keep int) error {
	all, err := List(dir)
	if err != nil || len(all) <= keep {
		return err
	}
	for _, p := range all[:len(all)-keep] {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
