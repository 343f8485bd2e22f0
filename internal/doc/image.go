package doc

import "fmt"

// PixelFormat identifies the pixel layout of an image or sprite.
type PixelFormat uint8

const (
	// FormatRGB stores 4 bytes per pixel (R, G, B, A).
	FormatRGB PixelFormat = iota
	// FormatGrayscale stores 2 bytes per pixel (value, alpha).
	FormatGrayscale
	// FormatIndexed stores 1 byte per pixel (palette index).
	FormatIndexed
)

// MaxDimension is the largest accepted width or height.
const MaxDimension = 0xfffff

// String returns the format name.
func (f PixelFormat) String() string {
	switch f {
	case FormatRGB:
		return "RGB"
	case FormatGrayscale:
		return "Grayscale"
	case FormatIndexed:
		return "Indexed"
	default:
		return fmt.Sprintf("PixelFormat(%d)", uint8(f))
	}
}

// Valid reports whether f is a known format.
func (f PixelFormat) Valid() bool {
	return f <= FormatIndexed
}

// BytesPerPixel returns the storage size of one pixel, or 0 for unknown formats.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGB:
		return 4
	case FormatGrayscale:
		return 2
	case FormatIndexed:
		return 1
	default:
		return 0
	}
}

// ParsePixelFormat parses a format name as returned by String.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch s {
	case "RGB", "rgb":
		return FormatRGB, nil
	case "Grayscale", "grayscale":
		return FormatGrayscale, nil
	case "Indexed", "indexed":
		return FormatIndexed, nil
	default:
		return 0, fmt.Errorf("doc: unknown pixel format %q", s)
	}
}

// Image is a raster image stored row-major without padding.
type Image struct {
	Format PixelFormat
	Width  int
	Height int
	Pix    []byte
}

// NewImage allocates a zeroed image.
func NewImage(format PixelFormat, width, height int) *Image {
	return &Image{
		Format: format,
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*format.BytesPerPixel()),
	}
}

// Stride returns the number of bytes per row.
func (img *Image) Stride() int {
	return img.Width * img.Format.BytesPerPixel()
}

// Validate checks the dimensions and pixel buffer length.
func (img *Image) Validate() error {
	if !img.Format.Valid() {
		return fmt.Errorf("doc: invalid pixel format %d", img.Format)
	}
	if img.Width < 1 || img.Height < 1 || img.Width > MaxDimension || img.Height > MaxDimension {
		return fmt.Errorf("doc: invalid image size %dx%d", img.Width, img.Height)
	}
	if want := img.Stride() * img.Height; len(img.Pix) != want {
		return fmt.Errorf("doc: pixel buffer is %d bytes, want %d", len(img.Pix), want)
	}
	return nil
}

// Clone returns a deep copy of the image.
func (img *Image) Clone() *Image {
	c := *img
	c.Pix = append([]byte(nil), img.Pix...)
	return &c
}

// MarshalText implements encoding.TextMarshaler.
func (f PixelFormat) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("doc: invalid pixel format %d", uint8(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *PixelFormat) UnmarshalText(b []byte) error {
	v, err := ParsePixelFormat(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}
