// Package transport fetches raw asset bytes for a playback session from
// remote origins or local recordings.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// AssetKind identifies what is being fetched, for logging and error reporting.
type AssetKind int

const (
	KindManifest AssetKind = iota
	KindMesh
	KindTexture
	KindAudioDescriptor
	KindAudio
)

func (k AssetKind) String() string {
	switch k {
	case KindManifest:
		return "manifest"
	case KindMesh:
		return "mesh"
	case KindTexture:
		return "texture"
	case KindAudioDescriptor:
		return "audio_descriptor"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Fetcher retrieves the full body of an asset.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, kind AssetKind) ([]byte, error)
}

// NetworkError reports a failed asset fetch. Status is the HTTP status when
// the origin answered, 0 otherwise.
type NetworkError struct {
	URL    string
	Kind   AssetKind
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching %s %s: status %d", e.Kind, e.URL, e.Status)
	}
	return fmt.Sprintf("fetching %s %s: %v", e.Kind, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is or wraps a *NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
