package imagecodec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/libresprite/recovery/internal/doc"
)

// Magic identifies a raw image payload ('FINE' read as little-endian uint32).
const Magic uint32 = 0x454E4946

const headerSize = 4 + 1 + 4 + 4 + 4

// MaxPixelBytes is the largest pixel buffer a payload may carry.
const MaxPixelBytes = 1<<31 - 1

// A zstd block decodes to at most 128 KiB and takes at least 4 bytes.
const (
	zstdMaxBlock      = 128 << 10
	zstdMinBlockBytes = 4
)

// Codec errors.
var (
	ErrInvalidMagic = errors.New("imagecodec: invalid magic")
	ErrTruncated    = errors.New("imagecodec: truncated payload")
	ErrCorrupted    = errors.New("imagecodec: corrupted payload")
	ErrTooLarge     = errors.New("imagecodec: image too large")
)

// Codec encodes and decodes one raster image.
type Codec interface {
	Encode(w io.Writer, img *doc.Image) error
	Decode(r io.Reader) (*doc.Image, error)
}

// Raw is the default Codec: a fixed header followed by zstd-compressed pixels.
type Raw struct {
	// Level is the zstd encoder level. Zero means zstd.SpeedDefault.
	Level zstd.EncoderLevel

	once    sync.Once
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	initErr error
}

// NewRaw returns a Raw codec using level.
func NewRaw(level zstd.EncoderLevel) *Raw {
	return &Raw{Level: level}
}

var defaultRaw = &Raw{}

// Default returns the shared Raw codec.
func Default() Codec {
	return defaultRaw
}

func (c *Raw) init() error {
	c.once.Do(func() {
		level := c.Level
		if level == 0 {
			level = zstd.SpeedDefault
		}
		c.enc, c.initErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(level),
			zstd.WithEncoderConcurrency(1),
		)
		if c.initErr != nil {
			return
		}
		c.dec, c.initErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(MaxPixelBytes),
		)
	})
	return c.initErr
}

// Encode writes img to w.
func (c *Raw) Encode(w io.Writer, img *doc.Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	if err := checkPixelLen(len(img.Pix)); err != nil {
		return err
	}
	if err := c.init(); err != nil {
		return fmt.Errorf("imagecodec: init zstd: %w", err)
	}

	buf := make([]byte, headerSize, headerSize+len(img.Pix)/2)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	buf[4] = byte(img.Format)
	binary.LittleEndian.PutUint32(buf[5:9], uint32(img.Width))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(img.Height))
	binary.LittleEndian.PutUint32(buf[13:17], uint32(len(img.Pix)))
	buf = c.enc.EncodeAll(img.Pix, buf)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("imagecodec: write: %w", err)
	}
	return nil
}

// Decode reads one image from r. r is read to EOF.
func (c *Raw) Decode(r io.Reader) (*doc.Image, error) {
	if err := c.init(); err != nil {
		return nil, fmt.Errorf("imagecodec: init zstd: %w", err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("imagecodec: read: %w", err)
	}
	if len(data) < headerSize {
		return nil, ErrTruncated
	}
	if binary.LittleEndian.Uint32(data[0:4]) != Magic {
		return nil, ErrInvalidMagic
	}

	img := &doc.Image{
		Format: doc.PixelFormat(data[4]),
		Width:  int(binary.LittleEndian.Uint32(data[5:9])),
		Height: int(binary.LittleEndian.Uint32(data[9:13])),
	}
	rawLen := int(binary.LittleEndian.Uint32(data[13:17]))
	if !img.Format.Valid() || img.Width < 1 || img.Height < 1 ||
		img.Width > doc.MaxDimension || img.Height > doc.MaxDimension {
		return nil, fmt.Errorf("%w: header %s %dx%d", ErrCorrupted, img.Format, img.Width, img.Height)
	}
	if rawLen != img.Stride()*img.Height {
		return nil, fmt.Errorf("%w: pixel length %d for %dx%d", ErrCorrupted, rawLen, img.Width, img.Height)
	}

	body := data[headerSize:]
	if err := checkPixelLen(rawLen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if rawLen > maxDecodedLen(len(body)) {
		return nil, fmt.Errorf("%w: %d compressed bytes cannot hold %d pixel bytes", ErrCorrupted, len(body), rawLen)
	}
	var fh zstd.Header
	if err := fh.Decode(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if fh.HasFCS && fh.FrameContentSize != uint64(rawLen) {
		return nil, fmt.Errorf("%w: frame holds %d bytes, want %d", ErrCorrupted, fh.FrameContentSize, rawLen)
	}

	img.Pix, err = c.dec.DecodeAll(body, make([]byte, 0, rawLen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if len(img.Pix) != rawLen {
		return nil, fmt.Errorf("%w: decoded %d bytes, want %d", ErrCorrupted, len(img.Pix), rawLen)
	}
	return img, nil
}

func checkPixelLen(n int) error {
	if n > MaxPixelBytes {
		return fmt.Errorf("%w: %d pixel bytes, limit %d", ErrTooLarge, n, MaxPixelBytes)
	}
	return nil
}

// maxDecodedLen bounds what n bytes of zstd frame can expand to.
func maxDecodedLen(n int) int {
	return (n/zstdMinBlockBytes + 1) * zstdMaxBlock
}

// EncodeBytes is a convenience wrapper returning the encoded payload.
func EncodeBytes(c Codec, img *doc.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
