// Package imaging reads image headers without decoding pixel data.
package imaging

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ErrUnreadable reports a file whose dimensions cannot be determined.
var ErrUnreadable = errors.New("image unreadable")

// Dimensions returns the pixel width and height recorded in the image header
// at path. Missing, truncated, or unsupported files yield ErrUnreadable.
func Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("%w: %s header reports %dx%d", ErrUnreadable, format, cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, nil
}
