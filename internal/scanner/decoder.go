package scanner

import (
	"bufio"
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

// Decoder is the capability the controller needs from a QR decoding library.
type Decoder interface {
	Pause()
	Resume()
	Paused() bool
}

// NoCodeFound is the transient error a decoder reports for frames without a code.
const NoCodeFound = "QR code not found"

// LineDecoder treats each line of a reader as one decoded frame. Blank lines
// are frames without a code. While paused, a repeat of the last decoded text
// is dropped, the way a camera keeps seeing a code that is still in view; any
// other line is held until Resume.
type LineDecoder struct {
	r       io.Reader
	mu      sync.Mutex
	paused  bool
	resumed chan struct{}
	last    string
	now     func() time.Time
}

// NewLineDecoder reads frames from r.
func NewLineDecoder(r io.Reader) *LineDecoder {
	return &LineDecoder{r: r, now: time.Now}
}

func (d *LineDecoder) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.paused {
		d.paused = true
		d.resumed = make(chan struct{})
	}
}

func (d *LineDecoder) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.paused {
		d.paused = false
		close(d.resumed)
	}
}

func (d *LineDecoder) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// Run feeds frames to the callbacks until the reader is exhausted or ctx ends.
func (d *LineDecoder) Run(ctx context.Context, onDecode func(text string, at time.Time), onError func(msg string)) error {
	sc := bufio.NewScanner(d.r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		text := strings.TrimSpace(sc.Text())

		d.mu.Lock()
		paused, resumed, last := d.paused, d.resumed, d.last
		d.mu.Unlock()

		if text == "" {
			if !paused && onError != nil {
				onError(NoCodeFound)
			}
			continue
		}
		if paused {
			if text == last {
				log.Printf("scanner paused, dropped repeat of %q", text)
				continue
			}
			select {
			case <-resumed:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		d.mu.Lock()
		d.last = text
		d.mu.Unlock()
		onDecode(text, d.now())
	}
	return sc.Err()
}
