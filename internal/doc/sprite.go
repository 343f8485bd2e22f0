package doc

import "sort"

// DefaultFrameDuration is the frame duration in milliseconds for new frames.
const DefaultFrameDuration = 100

// Cel places an image on a layer at a given frame.
type Cel struct {
	Frame   int
	X, Y    int
	Opacity uint8
	Image   *Image
}

// Layer is an ordered stack entry of a sprite.
type Layer struct {
	Name    string
	Visible bool
	Cels    []*Cel
}

// NewLayer returns an empty visible layer.
func NewLayer(name string) *Layer {
	return &Layer{Name: name, Visible: true}
}

// Cel returns the cel at frame, or nil.
func (l *Layer) Cel(frame int) *Cel {
	for _, c := range l.Cels {
		if c.Frame == frame {
			return c
		}
	}
	return nil
}

// SetCel places c on the layer, replacing any cel at the same frame.
// Cels are kept sorted by frame.
func (l *Layer) SetCel(c *Cel) {
	for i, old := range l.Cels {
		if old.Frame == c.Frame {
			l.Cels[i] = c
			return
		}
	}
	l.Cels = append(l.Cels, c)
	sort.Slice(l.Cels, func(i, j int) bool { return l.Cels[i].Frame < l.Cels[j].Frame })
}

// Sprite is the image content of a document.
type Sprite struct {
	Format           PixelFormat
	Width            int
	Height           int
	TransparentColor uint32
	// FrameDurations holds one duration in milliseconds per frame.
	FrameDurations []int
	// Layers are ordered bottom to top.
	Layers []*Layer
}

// NewSprite returns a sprite with one frame and no layers.
func NewSprite(format PixelFormat, width, height int) *Sprite {
	return &Sprite{
		Format:         format,
		Width:          width,
		Height:         height,
		FrameDurations: []int{DefaultFrameDuration},
	}
}

// Frames returns the number of frames.
func (s *Sprite) Frames() int {
	return len(s.FrameDurations)
}

// SetFrames grows or shrinks the frame list to n frames (n >= 1).
func (s *Sprite) SetFrames(n int) {
	if n < 1 {
		n = 1
	}
	for len(s.FrameDurations) < n {
		s.FrameDurations = append(s.FrameDurations, DefaultFrameDuration)
	}
	s.FrameDurations = s.FrameDurations[:n]
}

// AddLayer appends a new top layer and returns it.
func (s *Sprite) AddLayer(name string) *Layer {
	l := NewLayer(name)
	s.Layers = append(s.Layers, l)
	return l
}
