package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"path"

	"github.com/jmylchreest/scvv/internal/storage"
)

// LocalFetcher serves local:// URLs from a storage sandbox. The URL host names
// the recording directory and the path the asset inside it.
type LocalFetcher struct {
	sandbox *storage.Sandbox
}

// NewLocalFetcher creates a fetcher rooted at sandbox.
func NewLocalFetcher(sandbox *storage.Sandbox) *LocalFetcher {
	return &LocalFetcher{sandbox: sandbox}
}

// Fetch implements Fetcher. Query strings are ignored.
func (f *LocalFetcher) Fetch(ctx context.Context, rawURL string, kind AssetKind) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &NetworkError{URL: rawURL, Kind: kind, Err: err}
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != LocalScheme {
		return nil, &NetworkError{URL: rawURL, Kind: kind, Err: fmt.Errorf("not a %s URL", LocalScheme)}
	}

	data, err := f.sandbox.ReadFile(path.Join(u.Host, u.Path))
	if err != nil {
		ne := &NetworkError{URL: rawURL, Kind: kind, Err: err}
		if errors.Is(err, fs.ErrNotExist) {
			ne.Status = http.StatusNotFound
		}
		return nil, ne
	}
	return data, nil
}

// Mux routes local:// URLs to a local fetcher and everything else to a remote one.
type Mux struct {
	Remote Fetcher
	Local  Fetcher
}

// Fetch implements Fetcher.
func (m *Mux) Fetch(ctx context.Context, rawURL string, kind AssetKind) ([]byte, error) {
	if IsLocal(rawURL) {
		if m.Local == nil {
			return nil, &NetworkError{URL: rawURL, Kind: kind, Err: errors.New("local recordings are not configured")}
		}
		return m.Local.Fetch(ctx, rawURL, kind)
	}
	return m.Remote.Fetch(ctx, rawURL, kind)
}
