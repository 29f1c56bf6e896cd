// Package admission decides which manifest frames are new to a session.
package admission

import (
	"github.com/jmylchreest/scvv/internal/manifest"
)

// Filter tracks every UID a session has requested (seen) and every UID whose
// fetch or decode failed (bad). Bad UIDs are never requested again.
//
// A Filter is owned by the session's host goroutine and is not safe for
// concurrent use.
type Filter struct {
	seen map[uint64]struct{}
	bad  map[uint64]struct{}
}

// NewFilter creates an empty filter.
func NewFilter() *Filter {
	return &Filter{
		seen: make(map[uint64]struct{}),
		bad:  make(map[uint64]struct{}),
	}
}

// Admit returns the refs not yet seen or quarantined, in input order, and
// marks them seen. Duplicate UIDs within refs are admitted once.
func (f *Filter) Admit(refs []manifest.FrameRef) []manifest.FrameRef {
	admitted := make([]manifest.FrameRef, 0, len(refs))
	for _, ref := range refs {
		if _, ok := f.bad[ref.UID]; ok {
			continue
		}
		if _, ok := f.seen[ref.UID]; ok {
			continue
		}
		f.seen[ref.UID] = struct{}{}
		admitted = append(admitted, ref)
	}
	return admitted
}

// MarkBad quarantines uid for the rest of the session.
func (f *Filter) MarkBad(uid uint64) {
	f.bad[uid] = struct{}{}
}

// IsBad reports whether uid is quarantined.
func (f *Filter) IsBad(uid uint64) bool {
	_, ok := f.bad[uid]
	return ok
}

// Seen reports whether uid has been admitted before.
func (f *Filter) Seen(uid uint64) bool {
	_, ok := f.seen[uid]
	return ok
}

// SeenCount returns the number of admitted UIDs.
func (f *Filter) SeenCount() int {
	return len(f.seen)
}

// BadCount returns the number of quarantined UIDs.
func (f *Filter) BadCount() int {
	return len(f.bad)
}
