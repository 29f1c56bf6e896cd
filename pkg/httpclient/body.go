package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// Content-Encoding tokens the client can decode.
const (
	EncodingGzip    = "gzip"
	EncodingDeflate = "deflate"
	EncodingBrotli  = "br"
)

var decoders = map[string]func(io.Reader) (io.Reader, error){
	EncodingGzip:    func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) },
	EncodingDeflate: func(r io.Reader) (io.Reader, error) { return flate.NewReader(r), nil },
	EncodingBrotli:  func(r io.Reader) (io.Reader, error) { return brotli.NewReader(r), nil },
}

// body decodes and caps a response body. Close closes the decoder and the
// underlying connection body.
type body struct {
	r         io.Reader
	dec       io.Reader
	raw       io.ReadCloser
	remaining int64 // -1 when uncapped
}

func (c *Client) wrapBody(resp *http.Response) io.ReadCloser {
	b := &body{r: resp.Body, raw: resp.Body, remaining: -1}

	if enc := strings.ToLower(strings.TrimSpace(resp.Header.Get(HeaderContentEncoding))); c.cfg.EnableDecompression && enc != "" {
		if newDecoder, ok := decoders[enc]; ok {
			dec, err := newDecoder(resp.Body)
			if err != nil {
				c.logger.Warn("unreadable encoded body, returning raw bytes",
					slog.String("encoding", enc),
					slog.String("error", err.Error()),
				)
			} else {
				b.r, b.dec = dec, dec
			}
		}
	}
	if c.cfg.MaxResponseSize > 0 {
		b.remaining = c.cfg.MaxResponseSize
	}
	return b
}

func (b *body) Read(p []byte) (int, error) {
	if b.remaining == 0 {
		// Probe for more data only once the cap is reached.
		var one [1]byte
		if n, _ := b.r.Read(one[:]); n > 0 {
			return 0, ErrResponseTooLarge
		}
		return 0, io.EOF
	}
	if b.remaining > 0 && int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.r.Read(p)
	if b.remaining > 0 {
		b.remaining -= int64(n)
	}
	return n, err
}

func (b *body) Close() error {
	if c, ok := b.dec.(io.Closer); ok {
		_ = c.Close()
	}
	return b.raw.Close()
}

func discard(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 4096))
	_ = rc.Close()
}
