package manifest

import (
	"encoding/json"
	"path"
	"strconv"
	"strings"
	"sync"
)

// timestampUID resolves a UID that encodes the frame's capture time. An
// explicit uid (number or numeric string) wins. Otherwise the texture file
// name is used: with more than two dot-separated segments the second one,
// else the first. The chosen segment must be all digits.
func timestampUID(raw json.RawMessage, texturePath string) (uint64, bool) {
	if len(raw) != 0 && string(raw) != "null" {
		return explicitUID(raw)
	}

	segments := strings.Split(path.Base(texturePath), ".")
	candidate := segments[0]
	if len(segments) > 2 {
		candidate = segments[1]
	}
	return parseDigits(candidate)
}

func explicitUID(raw json.RawMessage) (uint64, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u, true
		}
		if f, err := n.Float64(); err == nil && f >= 0 {
			return uint64(f), true
		}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseDigits(s)
	}
	return 0, false
}

// parseDigits parses s as an unsigned decimal integer.
func parseDigits(s string) (uint64, bool) {
	u, err := strconv.ParseUint(s, 10, 64)
	return u, err == nil
}

// fallbackKey names a frame whose UID carries no timestamp.
func fallbackKey(raw json.RawMessage, texturePath string) string {
	var s string
	if len(raw) != 0 && json.Unmarshal(raw, &s) == nil && s != "" {
		return "uid:" + s
	}
	return "texture:" + texturePath
}

// uidSequence hands out UIDs to frames without a timestamp. A key keeps its
// UID for the life of the sequence, so repeated polls of a live manifest map
// the same frame to the same UID. New keys get increasing UIDs in the order
// they are first listed.
type uidSequence struct {
	mu    sync.Mutex
	last  uint64
	byKey map[string]uint64
}

func newUIDSequence() *uidSequence {
	return &uidSequence{byKey: make(map[string]uint64)}
}

// assign returns one UID per key. Keys older than the oldest key in this
// call are forgotten, since a live window only slides forward.
func (s *uidSequence) assign(keys []string) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]uint64, len(keys))
	oldest := uint64(0)
	for i, k := range keys {
		uid, ok := s.byKey[k]
		if !ok {
			s.last++
			uid = s.last
			s.byKey[k] = uid
		}
		out[i] = uid
		if i == 0 || uid < oldest {
			oldest = uid
		}
	}

	if len(keys) > 0 {
		for k, uid := range s.byKey {
			if uid < oldest {
				delete(s.byKey, k)
			}
		}
	}
	return out
}
