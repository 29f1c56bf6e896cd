package mesh

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
)

// ErrNoCodec is returned when no codec is registered for a mesh file extension.
var ErrNoCodec = errors.New("no codec registered")

// Codec decodes one compressed mesh payload.
type Codec interface {
	Decode(data []byte) (*Geometry, error)
}

// CodecFunc adapts a function to Codec.
type CodecFunc func(data []byte) (*Geometry, error)

// Decode implements Codec.
func (f CodecFunc) Decode(data []byte) (*Geometry, error) {
	return f(data)
}

// CodecError reports a mesh or texture that could not be decoded.
type CodecError struct {
	Path string
	Err  error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Path, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// Registry maps mesh file extensions to codecs.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// DefaultRegistry returns a registry with the built-in codecs. Draco payloads
// (.drc, .draco) need an external codec registered by the embedding host.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(".scmf", SCMFCodec{})
	return r
}

// Register associates ext (with or without leading dot) with codec.
func (r *Registry) Register(ext string, codec Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[normalizeExt(ext)] = codec
}

// Lookup returns the codec for a mesh path by extension.
func (r *Registry) Lookup(meshPath string) (Codec, error) {
	ext := normalizeExt(path.Ext(stripQuery(meshPath)))
	r.mu.RLock()
	defer r.mu.RUnlock()
	codec, ok := r.codecs[ext]
	if !ok {
		return nil, fmt.Errorf("%w for %q", ErrNoCodec, ext)
	}
	return codec, nil
}

// Decode looks up the codec for meshPath and decodes data, validating the
// result. Every failure is a *CodecError.
func (r *Registry) Decode(meshPath string, data []byte) (*Geometry, error) {
	codec, err := r.Lookup(meshPath)
	if err != nil {
		return nil, &CodecError{Path: meshPath, Err: err}
	}
	g, err := codec.Decode(data)
	if err != nil {
		return nil, &CodecError{Path: meshPath, Err: err}
	}
	if err := g.Validate(); err != nil {
		return nil, &CodecError{Path: meshPath, Err: err}
	}
	return g, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func stripQuery(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		return p[:i]
	}
	return p
}
