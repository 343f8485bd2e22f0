package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// Unit selects how progress amounts are printed.
type Unit int

const (
	// UnitCount prints plain counts, "3/10".
	UnitCount Unit = iota
	// UnitBytes prints IEC sizes, "1.5 MiB/3.0 MiB".
	UnitBytes
)

// ProgressBar renders a single updating progress line.
type ProgressBar struct {
	w       io.Writer
	title   string
	unit    Unit
	total   int64
	current int64
	width   int
	mu      sync.Mutex
}

// NewProgressBar creates a new progress bar.
func NewProgressBar(w io.Writer, title string, unit Unit) *ProgressBar {
	return &ProgressBar{
		w:     w,
		title: title,
		unit:  unit,
		width: 30,
	}
}

// SetTotal sets the total amount.
func (p *ProgressBar) SetTotal(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
}

// Update sets the progress.
func (p *ProgressBar) Update(current, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = current
	p.total = total
	p.render()
}

// Increment adds to the current progress.
func (p *ProgressBar) Increment(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += n
	p.render()
}

// Finish completes the progress bar.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = p.total
	p.render()
	fmt.Fprintln(p.w)
}

func (p *ProgressBar) render() {
	if p.total <= 0 {
		fmt.Fprintf(p.w, "\r%s %s", p.title, p.amount(p.current))
		return
	}

	percent := min(float64(p.current)/float64(p.total), 1)
	filled := int(float64(p.width) * percent)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", p.width-filled)

	fmt.Fprintf(p.w, "\r%s [%s] %3.0f%% (%s/%s)",
		p.title,
		bar,
		percent*100,
		p.amount(p.current),
		p.amount(p.total),
	)
}

func (p *ProgressBar) amount(n int64) string {
	if p.unit == UnitBytes {
		return humanize.IBytes(uint64(max(n, 0)))
	}
	return humanize.Comma(n)
}
