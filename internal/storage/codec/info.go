package codec

import (
	"fmt"

	"github.com/libresprite/recovery/internal/doc"
)

// DocumentInfo summarizes a backup without decoding its payloads.
type DocumentInfo struct {
	Format   doc.PixelFormat `json:"format" yaml:"format"`
	Width    int             `json:"width" yaml:"width"`
	Height   int             `json:"height" yaml:"height"`
	Frames   int             `json:"frames" yaml:"frames"`
	Filename string          `json:"filename" yaml:"filename"`
}

// Valid reports whether the info describes a decodable sprite.
func (i DocumentInfo) Valid() bool {
	return i.Format.Valid() &&
		i.Width > 0 && i.Width <= doc.MaxDimension &&
		i.Height > 0 && i.Height <= doc.MaxDimension &&
		i.Frames >= 1
}

// Description renders the info for a recovery listing, e.g.
// "RGB Sprite 64x64, 3 frames: walk.ase".
func (i DocumentInfo) Description() string {
	unit := "frames"
	if i.Frames == 1 {
		unit = "frame"
	}
	name := i.Filename
	if name == "" {
		name = DefaultFilename
	}
	return fmt.Sprintf("%s Sprite %dx%d, %d %s: %s", i.Format, i.Width, i.Height, i.Frames, unit, name)
}

// RawImagesAs selects how the raw fallback lays out payloads.
type RawImagesAs int

const (
	// Frames places every payload as a consecutive frame of a single layer.
	Frames RawImagesAs = iota
	// Layers places every payload on its own layer in frame 0.
	Layers
)

// String returns "frames" or "layers".
func (r RawImagesAs) String() string {
	if r == Layers {
		return "layers"
	}
	return "frames"
}

// ParseRawImagesAs parses "frames" or "layers".
func ParseRawImagesAs(s string) (RawImagesAs, error) {
	switch s {
	case "frames", "":
		return Frames, nil
	case "layers":
		return Layers, nil
	default:
		return Frames, fmt.Errorf("codec: unknown raw layout %q (want frames or layers)", s)
	}
}
