package ingest

// Ancestry is the rolling last-seen-node-per-level map that reconstructs
// parent links from row order. It is a map rather than a stack so level skips
// work: "advance a level" both sets that slot and clears every deeper slot,
// which is the stack-pop when the input climbs back up a branch.
//
// State is private to one load's worker and reset on load start, so parent
// resolution is a pure function of insertion order within the load.
type Ancestry struct {
	lastSeen map[int]int64
}

func NewAncestry() *Ancestry {
	return &Ancestry{lastSeen: map[int]int64{}}
}

// Parent returns the realized ancestor for a row at the given level: the node
// last seen at the largest level strictly below it. ok is false when no such
// level exists, in which case the row must be a level-0 root.
func (a *Ancestry) Parent(level int) (nodeID int64, parentLevel int, ok bool) {
	best := -1
	for k := range a.lastSeen {
		if k < level && k > best {
			best = k
		}
	}
	if best < 0 {
		return 0, 0, false
	}
	return a.lastSeen[best], best, true
}

// Advance records the first sibling written at a level and erases every
// deeper slot: descendants of the previous branch cannot be ancestors to
// whatever follows.
func (a *Ancestry) Advance(level int, nodeID int64) {
	if a.lastSeen == nil {
		a.lastSeen = map[int]int64{}
	}
	a.lastSeen[level] = nodeID
	for k := range a.lastSeen {
		if k > level {
			delete(a.lastSeen, k)
		}
	}
}

// At reports the node currently occupying a level slot.
func (a *Ancestry) At(level int) (int64, bool) {
	id, ok := a.lastSeen[level]
	return id, ok
}

func (a *Ancestry) Reset() {
	a.lastSeen = map[int]int64{}
}
