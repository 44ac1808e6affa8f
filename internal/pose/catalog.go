package pose

import (
	"fmt"
	"strings"
)

// Standard poses for the folding workflow. Gripper 10 is open, 90 is closed.
var (
	Home       = MustNew("home", 90, 90, 90, 90, 10)
	Pickup     = MustNew("pickup", 90, 45, 135, 90, 10)
	Grip       = MustNew("grip", 90, 45, 135, 90, 90)
	Lift       = MustNew("lift", 90, 75, 90, 90, 90)
	FoldStart  = MustNew("fold_start", 60, 60, 120, 45, 90)
	FoldMiddle = MustNew("fold_middle", 90, 90, 90, 90, 70)
	FoldEnd    = MustNew("fold_end", 120, 60, 120, 135, 50)
	Place      = MustNew("place", 90, 45, 120, 90, 10)
	Rest       = MustNew("rest", 90, 120, 60, 90, 10)
)

var catalog = []Pose{Home, Pickup, Grip, Lift, FoldStart, FoldMiddle, FoldEnd, Place, Rest}

// Predefined folding sequences.
var (
	TowelFold = []Pose{Home, Pickup, Grip, Lift, FoldStart, FoldMiddle, FoldEnd, Place, Home}
	ShirtFold = []Pose{Home, Pickup, Grip, Lift, FoldStart, Rest, FoldMiddle, FoldEnd, Place, Home}
)

// sequences holds private copies so edits to the exported slices do not
// change what Sequence returns.
var sequences = map[string][]Pose{
	"towel_fold": append([]Pose(nil), TowelFold...),
	"shirt_fold": append([]Pose(nil), ShirtFold...),
}

// Names returns the catalog pose names in catalog order.
func Names() []string {
	names := make([]string, len(catalog))
	for i, p := range catalog {
		names[i] = p.Name()
	}
	return names
}

// All returns a copy of the catalog.
func All() []Pose {
	out := make([]Pose, len(catalog))
	copy(out, catalog)
	return out
}

// Get looks up a catalog pose by name.
func Get(name string) (Pose, error) {
	for _, p := range catalog {
		if p.Name() == name {
			return p, nil
		}
	}
	return Pose{}, fmt.Errorf("pose %q not found; available poses: %s", name, strings.Join(Names(), ", "))
}

// SequenceNames returns the names of the predefined sequences, sorted.
func SequenceNames() []string {
	return []string{"shirt_fold", "towel_fold"}
}

// Sequence returns a copy of a predefined sequence.
func Sequence(name string) ([]Pose, error) {
	seq, ok := sequences[name]
	if !ok {
		return nil, fmt.Errorf("sequence %q not found; available sequences: %s", name, strings.Join(SequenceNames(), ", "))
	}
	out := make([]Pose, len(seq))
	copy(out, seq)
	return out, nil
}
