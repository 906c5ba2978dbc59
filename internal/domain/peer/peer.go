package peer

// ID identifies a peer entry in the membership view. Peers are addressed by
// their network address, so the ID doubles as the forwarding destination.
type ID string

// String returns the identifier as text.
func (id ID) String() string { return string(id) }

// View is an immutable, ordered and duplicate-free snapshot of the membership.
type View struct {
	peers   []ID
	index   map[ID]int
	version uint64
}

// NewView creates a view over peers. Duplicates keep their first position.
func NewView(peers []ID, version uint64) View {
	v := View{
		peers:   make([]ID, 0, len(peers)),
		index:   make(map[ID]int, len(peers)),
		version: version,
	}
	for _, p := range peers {
		if _, ok := v.index[p]; ok {
			continue
		}
		v.index[p] = len(v.peers)
		v.peers = append(v.peers, p)
	}
	return v
}

// Len returns the number of peers.
func (v View) Len() int { return len(v.peers) }

// IsEmpty reports whether the view has no peers.
func (v View) IsEmpty() bool { return len(v.peers) == 0 }

// At returns the peer at position i.
func (v View) At(i int) ID { return v.peers[i] }

// IndexOf returns the position of id, or -1 when absent.
func (v View) IndexOf(id ID) int {
	if i, ok := v.index[id]; ok {
		return i
	}
	return -1
}

// Contains reports whether id is part of the view.
func (v View) Contains(id ID) bool {
	_, ok := v.index[id]
	return ok
}

// Peers returns a copy of the ordered peer list.
func (v View) Peers() []ID {
	out := make([]ID, len(v.peers))
	copy(out, v.peers)
	return out
}

// Version identifies the membership state the view was taken from.
func (v View) Version() uint64 { return v.version }
