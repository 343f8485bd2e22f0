package codec

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/libresprite/recovery/internal/core/domain"
	"github.com/libresprite/recovery/internal/doc"
	"github.com/libresprite/recovery/internal/imagecodec"
	"github.com/libresprite/recovery/internal/infra/buildinfo"
	"github.com/libresprite/recovery/internal/storage/fsutil"
)

// Payload naming and raw fallback defaults.
const (
	PayloadPrefix = "img-"
	PayloadExt    = ".bin"

	DefaultFilename = "Unknown"
	DefaultWidth    = 256
	DefaultHeight   = 256

	// MaxRawDimension clamps sizes taken from an untrusted source.
	MaxRawDimension = 99999

	maxLayers = 9999
	maxFrames = 99999

	filePerm = 0o600
)

// PayloadName returns the sortable payload file name of a cel.
func PayloadName(layer, frame int) string {
	return fmt.Sprintf("%s%04d-%05d%s", PayloadPrefix, layer, frame, PayloadExt)
}

// Codec reads and writes backup directories.
type Codec struct {
	images imagecodec.Codec
	logger *slog.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithImageCodec sets the raster codec used for payloads.
func WithImageCodec(ic imagecodec.Codec) Option {
	return func(c *Codec) {
		if ic != nil {
			c.images = ic
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Codec) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a Codec.
func New(opts ...Option) *Codec {
	c := &Codec{
		images: imagecodec.Default(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Payload is one encoded file of a backup.
type Payload struct {
	Name string
	Data []byte
}

// Encoded is a document serialized in memory, ready to be written.
type Encoded struct {
	Info     DocumentInfo
	Header   []byte
	Payloads []Payload
	// Digest is a murmur3 hash over the header and all payloads.
	Digest uint64
}

// Size returns the number of bytes WriteEncoded will write.
func (e *Encoded) Size() int64 {
	n := int64(len(e.Header))
	for _, p := range e.Payloads {
		n += int64(len(p.Data))
	}
	return n
}

// Encode serializes d. The document is read-locked only while its content
// is copied into the encoding; no I/O happens under the lock.
func (c *Codec) Encode(d *doc.Document) (*Encoded, error) {
	filename := d.Filename()

	var (
		h        *header
		payloads []Payload
		encErr   error
	)
	d.Read(func(s *doc.Sprite) {
		h, payloads, encErr = c.encodeSprite(s, filename)
	})
	if encErr != nil {
		return nil, encErr
	}

	hdr, err := encodeHeader(h)
	if err != nil {
		return nil, err
	}
	info, _ := h.info()

	hasher := murmur3.New64()
	hasher.Write(hdr)
	for _, p := range payloads {
		hasher.Write([]byte(p.Name))
		hasher.Write(p.Data)
	}

	return &Encoded{
		Info:     info,
		Header:   hdr,
		Payloads: payloads,
		Digest:   hasher.Sum64(),
	}, nil
}

func (c *Codec) encodeSprite(s *doc.Sprite, filename string) (*header, []Payload, error) {
	if !s.Format.Valid() || s.Width < 1 || s.Height < 1 || s.Width > doc.MaxDimension || s.Height > doc.MaxDimension {
		return nil, nil, domain.ErrInvalidDocument.WithDetailsf("sprite %s %dx%d", s.Format, s.Width, s.Height)
	}
	if len(s.Layers) > maxLayers || s.Frames() > maxFrames {
		return nil, nil, domain.ErrInvalidDocument.WithDetailsf("%d layers, %d frames exceed limits", len(s.Layers), s.Frames())
	}

	h := &header{
		Format:           s.Format.String(),
		Width:            s.Width,
		Height:           s.Height,
		Frames:           s.Frames(),
		Filename:         filename,
		TransparentColor: s.TransparentColor,
		FrameDurations:   append([]int(nil), s.FrameDurations...),
		Layers:           make([]layerHeader, 0, len(s.Layers)),
		Writer:           buildinfo.Writer(),
	}

	var payloads []Payload
	for li, layer := range s.Layers {
		lh := layerHeader{Name: layer.Name, Visible: layer.Visible}
		for _, cel := range layer.Cels {
			if cel.Image == nil {
				continue
			}
			if cel.Frame < 0 || cel.Frame >= s.Frames() {
				return nil, nil, domain.ErrInvalidDocument.WithDetailsf("layer %d has a cel at frame %d of %d", li, cel.Frame, s.Frames())
			}
			data, err := imagecodec.EncodeBytes(c.images, cel.Image)
			if err != nil {
				return nil, nil, domain.ErrInvalidDocument.WithDetailsf("layer %d frame %d", li, cel.Frame).WithCause(err)
			}
			name := PayloadName(li, cel.Frame)
			payloads = append(payloads, Payload{Name: name, Data: data})
			lh.Cels = append(lh.Cels, celHeader{
				Frame:   cel.Frame,
				X:       cel.X,
				Y:       cel.Y,
				Opacity: cel.Opacity,
				Payload: name,
			})
		}
		h.Layers = append(h.Layers, lh)
	}
	return h, payloads, nil
}

// WriteEncoded writes enc into dir, which must exist and be empty. Payloads
// are written before the header and every file is fsynced; callers publish
// dir by renaming it afterwards.
func (c *Codec) WriteEncoded(dir string, enc *Encoded) error {
	for _, p := range enc.Payloads {
		if err := fsutil.WriteFileSync(filepath.Join(dir, p.Name), p.Data, filePerm); err != nil {
			return domain.ErrIO.WithDetails("write payload " + p.Name).WithCause(err)
		}
	}
	if err := fsutil.WriteFileSync(filepath.Join(dir, HeaderFile), enc.Header, filePerm); err != nil {
		return domain.ErrIO.WithDetails("write header").WithCause(err)
	}
	return nil
}

// WriteDocument encodes d and writes it into dir.
func (c *Codec) WriteDocument(dir string, d *doc.Document) error {
	enc, err := c.Encode(d)
	if err != nil {
		return err
	}
	return c.WriteEncoded(dir, enc)
}

// ReadDocumentInfo parses the header of the backup in dir. A missing or
// damaged header yields domain.ErrFormat.
func (c *Codec) ReadDocumentInfo(dir string) (DocumentInfo, error) {
	_, info, err := c.readHeader(dir)
	return info, err
}

func (c *Codec) readHeader(dir string) (*header, DocumentInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, HeaderFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, DocumentInfo{}, domain.ErrFormat.WithDetails("header missing")
		}
		return nil, DocumentInfo{}, domain.ErrIO.WithDetails("read header").WithCause(err)
	}
	return decodeHeader(data)
}

// ReadStructured rebuilds the document from the header and its payloads.
// Cels whose payload is missing or undecodable are dropped; if every cel is
// lost the backup is reported as domain.ErrFormat.
func (c *Codec) ReadStructured(dir string) (*doc.Document, error) {
	h, info, err := c.readHeader(dir)
	if err != nil {
		return nil, err
	}

	s := doc.NewSprite(info.Format, info.Width, info.Height)
	s.TransparentColor = h.TransparentColor
	s.SetFrames(info.Frames)
	for i, d := range h.FrameDurations {
		if i < len(s.FrameDurations) && d > 0 {
			s.FrameDurations[i] = d
		}
	}

	var total, lost int
	for _, lh := range h.Layers {
		layer := s.AddLayer(lh.Name)
		layer.Visible = lh.Visible
		for _, ch := range lh.Cels {
			total++
			if ch.Frame < 0 || ch.Frame >= info.Frames || !validPayloadName(ch.Payload) {
				lost++
				continue
			}
			img, err := c.readImage(filepath.Join(dir, ch.Payload))
			if err == nil && img.Format != info.Format {
				err = fmt.Errorf("payload format %s, sprite format %s", img.Format, info.Format)
			}
			if err != nil {
				lost++
				c.logger.Warn("dropping unreadable cel", "dir", dir, "payload", ch.Payload, "error", err)
				continue
			}
			layer.SetCel(&doc.Cel{Frame: ch.Frame, X: ch.X, Y: ch.Y, Opacity: ch.Opacity, Image: img})
		}
	}
	if total > 0 && lost == total {
		return nil, domain.ErrFormat.WithDetailsf("none of %d payloads could be decoded", total)
	}

	return doc.NewDocument(s, info.Filename), nil
}

// RawFallbackAllowed reports whether a structured read failure leaves the
// payloads worth rebuilding: an invalid header or one written by another
// format version. I/O failures are not.
func RawFallbackAllowed(err error) bool {
	return errors.Is(err, domain.ErrFormat) || errors.Is(err, domain.ErrVersionMismatch)
}

// ReadDocument rebuilds the document from dir, falling back to the raw
// frames layout when the header is missing, invalid or of another version.
func (c *Codec) ReadDocument(dir string) (*doc.Document, error) {
	d, err := c.ReadStructured(dir)
	if err == nil {
		return d, nil
	}
	if !RawFallbackAllowed(err) {
		return nil, err
	}

	c.logger.Warn("structured restore failed, using raw images", "dir", dir, "error", err)
	d, rawErr := c.ReadDocumentWithRawImages(dir, Frames)
	if rawErr != nil {
		return nil, domain.ErrFormat.WithDetails("structured and raw restore failed").WithCause(errors.Join(err, rawErr))
	}
	return d, nil
}

// ReadDocumentWithRawImages rebuilds a document from the payloads alone.
// Payloads are taken in lexicographic name order; an undecodable payload
// leaves its frame or layer empty.
func (c *Codec) ReadDocumentWithRawImages(dir string, as RawImagesAs) (*doc.Document, error) {
	names, err := listPayloads(dir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, domain.ErrFormat.WithDetails("no raster payloads")
	}

	images := make([]*doc.Image, len(names))
	decoded := 0
	for i, name := range names {
		img, err := c.readImage(filepath.Join(dir, name))
		if err != nil {
			c.logger.Warn("skipping undecodable payload", "dir", dir, "payload", name, "error", err)
			continue
		}
		images[i] = img
		decoded++
	}
	if decoded == 0 {
		return nil, domain.ErrFormat.WithDetailsf("none of %d payloads could be decoded", len(names))
	}

	info := c.rawInfo(dir, images)
	s := doc.NewSprite(info.Format, info.Width, info.Height)

	switch as {
	case Layers:
		for i, img := range images {
			layer := s.AddLayer(fmt.Sprintf("Layer %d", i+1))
			if img != nil && img.Format == info.Format {
				layer.SetCel(&doc.Cel{Frame: 0, Opacity: 255, Image: img})
			}
		}
	default:
		layer := s.AddLayer("Layer 1")
		s.SetFrames(len(images))
		for i, img := range images {
			if img != nil && img.Format == info.Format {
				layer.SetCel(&doc.Cel{Frame: i, Opacity: 255, Image: img})
			}
		}
	}

	return doc.NewDocument(s, info.Filename), nil
}

// rawInfo picks sprite dimensions for the raw path: the header when it is
// readable, otherwise the first decoded image, otherwise fixed defaults.
func (c *Codec) rawInfo(dir string, images []*doc.Image) DocumentInfo {
	info, err := c.ReadDocumentInfo(dir)
	if err != nil {
		info = DocumentInfo{Format: doc.FormatRGB, Width: DefaultWidth, Height: DefaultHeight}
		for _, img := range images {
			if img != nil {
				info.Format, info.Width, info.Height = img.Format, img.Width, img.Height
				break
			}
		}
	}
	if info.Filename == "" {
		info.Filename = DefaultFilename
	}
	info.Width = clamp(info.Width, 1, MaxRawDimension)
	info.Height = clamp(info.Height, 1, MaxRawDimension)
	return info
}

func (c *Codec) readImage(path string) (*doc.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return c.images.Decode(bytes.NewReader(data))
}

func listPayloads(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrBackupNotFound.WithDetails(filepath.Base(dir))
		}
		return nil, domain.ErrIO.WithDetails("list payloads").WithCause(err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), PayloadPrefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func validPayloadName(name string) bool {
	return strings.HasPrefix(name, PayloadPrefix) && filepath.Base(name) == name
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
