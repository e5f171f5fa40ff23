package world

import "sort"

// Core palette ids. Zero is always air.
const (
	Air uint16 = iota
	Grass
	Dirt
	Stone
	Sand
	Log
	Water
)

var paletteNames = []string{"air", "grass", "dirt", "stone", "sand", "log", "water"}

func BlockName(id uint16) string {
	if int(id) < len(paletteNames) {
		return paletteNames[id]
	}
	return "unknown"
}

// Family groups block ids registered together under one name, e.g. every
// rotation of a stair. Clients learn new families as they are registered.
type Family struct {
	Name string   `json:"name"`
	IDs  []uint16 `json:"ids"`
}

func coreFamilies() []Family {
	out := make([]Family, 0, len(paletteNames))
	for i, n := range paletteNames {
		out = append(out, Family{Name: "core:" + n, IDs: []uint16{uint16(i)}})
	}
	return out
}

func sortFamilies(fs []Family) {
	sort.Slice(fs, func(i, j int) bool { return fs[i].Name < fs[j].Name })
}

// Palette lists block names by id.
func Palette() []string {
	return append([]string(nil), paletteNames...)
}
