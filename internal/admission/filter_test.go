package admission

import (
	"testing"

	"github.com/jmylchreest/scvv/internal/manifest"
	"github.com/stretchr/testify/assert"
)

func refs(uids ...uint64) []manifest.FrameRef {
	out := make([]manifest.FrameRef, len(uids))
	for i, uid := range uids {
		out[i] = manifest.FrameRef{UID: uid, Index: i}
	}
	return out
}

func uidsOf(refs []manifest.FrameRef) []uint64 {
	out := make([]uint64, len(refs))
	for i, r := range refs {
		out[i] = r.UID
	}
	return out
}

func TestFilter_AdmitOnce(t *testing.T) {
	f := NewFilter()

	assert.Equal(t, []uint64{3, 1, 2}, uidsOf(f.Admit(refs(3, 1, 2))))
	assert.Equal(t, []uint64{4}, uidsOf(f.Admit(refs(1, 2, 3, 4))))
	assert.Empty(t, f.Admit(refs(1, 2, 3, 4)))
	assert.Equal(t, 4, f.SeenCount())
}

func TestFilter_DuplicatesWithinBatch(t *testing.T) {
	f := NewFilter()
	assert.Equal(t, []uint64{5, 6}, uidsOf(f.Admit(refs(5, 5, 6))))
}

func TestFilter_BadFramesNeverReadmitted(t *testing.T) {
	f := NewFilter()

	f.Admit(refs(6, 7, 8))
	f.MarkBad(7)
	assert.True(t, f.IsBad(7))
	assert.False(t, f.IsBad(6))

	// Quarantine holds even for a UID that was never admitted.
	f.MarkBad(9)
	assert.Equal(t, []uint64{10}, uidsOf(f.Admit(refs(7, 9, 10))))
	assert.Equal(t, 2, f.BadCount())
	assert.True(t, f.Seen(7))
	assert.False(t, f.Seen(9))
}
