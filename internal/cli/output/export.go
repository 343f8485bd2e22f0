package output

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"path/filepath"

	"github.com/libresprite/recovery/internal/doc"
	"github.com/libresprite/recovery/internal/storage/fsutil"
)

// ExportPNG writes every frame of d as "<name>-NNN.png" in dir and returns
// the written paths. Visible layers are composited bottom to top with their
// cel opacity. Indexed pixels are shown as gray levels.
func ExportPNG(dir, name string, d *doc.Document, progress *ProgressBar) ([]string, error) {
	var frames []*image.NRGBA
	d.Read(func(s *doc.Sprite) {
		for f := 0; f < s.Frames(); f++ {
			frames = append(frames, Composite(s, f))
		}
	})

	if progress != nil {
		progress.SetTotal(int64(len(frames)))
	}
	paths := make([]string, 0, len(frames))
	for f, img := range frames {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return paths, fmt.Errorf("encode frame %d: %w", f, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("%s-%03d.png", name, f))
		if err := fsutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
			return paths, fmt.Errorf("write frame %d: %w", f, err)
		}
		paths = append(paths, path)
		if progress != nil {
			progress.Increment(1)
		}
	}
	if progress != nil {
		progress.Finish()
	}
	return paths, nil
}

// Composite flattens frame f of s into an NRGBA image of the sprite size.
func Composite(s *doc.Sprite, frame int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, s.Width, s.Height))
	for _, layer := range s.Layers {
		if !layer.Visible {
			continue
		}
		cel := layer.Cel(frame)
		if cel == nil || cel.Image == nil || cel.Opacity == 0 {
			continue
		}
		src := toNRGBA(cel.Image, s.TransparentColor)
		r := src.Bounds().Add(image.Pt(cel.X, cel.Y))
		mask := image.NewUniform(color.Alpha{A: cel.Opacity})
		draw.DrawMask(dst, r, src, image.Point{}, mask, image.Point{}, draw.Over)
	}
	return dst
}

func toNRGBA(img *doc.Image, transparent uint32) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	bpp := img.Format.BytesPerPixel()
	for i := 0; i < img.Width*img.Height && (i+1)*bpp <= len(img.Pix); i++ {
		px := img.Pix[i*bpp : (i+1)*bpp]
		var c color.NRGBA
		switch img.Format {
		case doc.FormatRGB:
			c = color.NRGBA{R: px[0], G: px[1], B: px[2], A: px[3]}
		case doc.FormatGrayscale:
			c = color.NRGBA{R: px[0], G: px[0], B: px[0], A: px[1]}
		case doc.FormatIndexed:
			if uint32(px[0]) != transparent {
				c = color.NRGBA{R: px[0], G: px[0], B: px[0], A: 0xff}
			}
		}
		copy(out.Pix[i*4:i*4+4], []byte{c.R, c.G, c.B, c.A})
	}
	return out
}
