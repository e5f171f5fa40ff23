package replication

import "fmt"

type ViewDistance int32

const (
	ViewNear ViewDistance = iota + 1
	ViewModerate
	ViewFar
	ViewUltra
)

func (v ViewDistance) String() string {
	switch v {
	case ViewNear:
		return "near"
	case ViewModerate:
		return "moderate"
	case ViewFar:
		return "far"
	case ViewUltra:
		return "ultra"
	default:
		return fmt.Sprintf("ViewDistance(%d)", int32(v))
	}
}

func ParseViewDistance(s string) (ViewDistance, error) {
	switch s {
	case "near":
		return ViewNear, nil
	case "", "moderate":
		return ViewModerate, nil
	case "far":
		return ViewFar, nil
	case "ultra":
		return ViewUltra, nil
	}
	return 0, fmt.Errorf("unknown view distance %q", s)
}

// Radius maps v to a region radius using radii ordered near..ultra.
func (v ViewDistance) Radius(radii [4]int) int {
	if v < ViewNear || v > ViewUltra {
		v = ViewModerate
	}
	return radii[v-1]
}
