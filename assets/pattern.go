package assets

import (
	"time"

	"github.com/loov/hrtime"
)

// patternSpeed is how many pixels per second the bars scroll.
const patternSpeed = 60

// Pattern produces an animated test image of scrolling colour bars, standing
// in for an emulator framebuffer or video decoder.
type Pattern struct {
	Width  int
	Height int

	now   func() time.Duration
	start time.Duration
	buf   []byte
}

func NewPattern(width, height int) *Pattern {
	return newPattern(width, height, hrtime.Now)
}

func newPattern(width, height int, now func() time.Duration) *Pattern {
	return &Pattern{
		Width:  width,
		Height: height,
		now:    now,
		start:  now(),
		buf:    make([]byte, width*height*4),
	}
}

var barColors = [][3]byte{
	{255, 255, 255},
	{255, 255, 0},
	{0, 255, 255},
	{0, 255, 0},
	{255, 0, 255},
	{255, 0, 0},
	{0, 0, 255},
	{0, 0, 0},
}

// Next renders the pattern for the current time. The returned slice is
// reused by the following call.
func (p *Pattern) Next() []byte {
	p.render(p.now() - p.start)
	return p.buf
}

func (p *Pattern) render(elapsed time.Duration) {
	offset := int(elapsed.Seconds() * patternSpeed)
	barWidth := max(1, p.Width/len(barColors))

	for y := 0; y < p.Height; y++ {
		row := p.buf[y*p.Width*4 : (y+1)*p.Width*4]
		for x := 0; x < p.Width; x++ {
			color := barColors[((x+offset)/barWidth)%len(barColors)]
			row[x*4] = color[0]
			row[x*4+1] = color[1]
			row[x*4+2] = color[2]
			row[x*4+3] = 255
		}
	}
}
