package mesh

import (
	"bytes"
	"fmt"
	"image"

	// Register texture decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// TextureHandle is a compressed texture whose header has been verified. The
// renderer uploads Data as-is.
type TextureHandle struct {
	Format string
	Width  int
	Height int
	Data   []byte
}

// ProbeTexture reads the image header to confirm data is a supported,
// non-empty texture.
func ProbeTexture(texturePath string, data []byte) (*TextureHandle, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &CodecError{Path: texturePath, Err: fmt.Errorf("reading texture header: %w", err)}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &CodecError{Path: texturePath, Err: fmt.Errorf("texture is %dx%d", cfg.Width, cfg.Height)}
	}
	return &TextureHandle{
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
		Data:   data,
	}, nil
}
