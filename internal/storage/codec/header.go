package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/libresprite/recovery/internal/core/domain"
	"github.com/libresprite/recovery/internal/doc"
)

// Header file constants.
const (
	HeaderFile    = "doc.hdr"
	HeaderMagic   = "FINE"
	FormatVersion = 1

	prefixSize    = 4 + 2 + 4
	checksumSize  = blake2b.Size256
	maxHeaderSize = 16 << 20
)

type celHeader struct {
	Frame   int    `json:"frame"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Opacity uint8  `json:"opacity"`
	Payload string `json:"payload"`
}

type layerHeader struct {
	Name    string      `json:"name"`
	Visible bool        `json:"visible"`
	Cels    []celHeader `json:"cels,omitempty"`
}

type header struct {
	Format           string        `json:"format"`
	Width            int           `json:"width"`
	Height           int           `json:"height"`
	Frames           int           `json:"frames"`
	Filename         string        `json:"filename"`
	TransparentColor uint32        `json:"transparent_color"`
	FrameDurations   []int         `json:"frame_durations"`
	Layers           []layerHeader `json:"layers"`
	Writer           string        `json:"writer,omitempty"`
}

func (h *header) info() (DocumentInfo, error) {
	format, err := doc.ParsePixelFormat(h.Format)
	if err != nil {
		return DocumentInfo{}, err
	}
	return DocumentInfo{
		Format:   format,
		Width:    h.Width,
		Height:   h.Height,
		Frames:   h.Frames,
		Filename: h.Filename,
	}, nil
}

func encodeHeader(h *header) ([]byte, error) {
	body, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal header: %w", err)
	}

	out := make([]byte, 0, prefixSize+len(body)+checksumSize)
	out = append(out, HeaderMagic...)
	out = binary.LittleEndian.AppendUint16(out, FormatVersion)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	out = append(out, body...)
	sum := blake2b.Sum256(out)
	return append(out, sum[:]...), nil
}

func decodeHeader(data []byte) (*header, DocumentInfo, error) {
	if len(data) < prefixSize+checksumSize {
		return nil, DocumentInfo{}, domain.ErrFormat.WithDetails("header truncated")
	}
	if !bytes.Equal(data[:4], []byte(HeaderMagic)) {
		return nil, DocumentInfo{}, domain.ErrFormat.WithDetails("invalid header magic")
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != FormatVersion {
		return nil, DocumentInfo{}, domain.ErrVersionMismatch.WithDetailsf("header version %d, supported %d", v, FormatVersion)
	}

	n := int(binary.LittleEndian.Uint32(data[6:10]))
	if n > maxHeaderSize || prefixSize+n+checksumSize != len(data) {
		return nil, DocumentInfo{}, domain.ErrFormat.WithDetailsf("header length %d does not match file size %d", n, len(data))
	}

	want := data[prefixSize+n:]
	got := blake2b.Sum256(data[:prefixSize+n])
	if !bytes.Equal(got[:], want) {
		return nil, DocumentInfo{}, domain.ErrFormat.WithDetails("header checksum mismatch")
	}

	var h header
	if err := json.Unmarshal(data[prefixSize:prefixSize+n], &h); err != nil {
		return nil, DocumentInfo{}, domain.ErrFormat.WithDetails("header body").WithCause(err)
	}
	info, err := h.info()
	if err != nil {
		return nil, DocumentInfo{}, domain.ErrFormat.WithCause(err)
	}
	if !info.Valid() {
		return nil, DocumentInfo{}, domain.ErrFormat.WithDetailsf("invalid document info %s %dx%d frames=%d",
			info.Format, info.Width, info.Height, info.Frames)
	}
	return &h, info, nil
}
