package display

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/devices/v3/waveshare2in13v4"
	"periph.io/x/host/v3"
)

// ErrBusyTimeout is returned by WaitUntilReady when the panel stays busy.
var ErrBusyTimeout = errors.New("panel busy timeout")

// epd is the subset of the waveshare driver the panel uses.
type epd interface {
	Init() error
	Clear(color.Color) error
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Sleep() error
	Halt() error
	Bounds() image.Rectangle
}

// EPaper drives a Waveshare 2.13" v4 HAT. Driver calls block on the panel's
// busy line, so each one runs in its own goroutine and WaitUntilReady bounds
// how long the caller waits for it. An operation that outlives
// WaitUntilReady is abandoned: the next operation resets the panel with Init
// instead of queueing behind it.
type EPaper struct {
	dev    epd
	port   spi.PortCloser
	logger *slog.Logger

	mu        sync.Mutex
	done      chan struct{}
	gen       uint64
	lastErr   error
	sleeping  bool
	abandoned bool

	closeWait time.Duration
}

// OpenEPaper initialises the host drivers, opens the SPI port (empty name
// picks the first one) and wakes the panel.
func OpenEPaper(spiPort string, logger *slog.Logger) (*EPaper, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	port, err := spireg.Open(spiPort)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", spiPort, err)
	}

	opts := waveshare2in13v4.EPD2in13v4
	dev, err := waveshare2in13v4.NewHat(port, &opts)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("epaper hat: %w", err)
	}

	p := newEPaper(dev, logger)
	p.port = port
	if err := dev.Init(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("epaper init: %w", err)
	}
	return p, nil
}

func newEPaper(dev epd, logger *slog.Logger) *EPaper {
	return &EPaper{
		dev:       dev,
		logger:    logger.With("component", "epaper"),
		closeWait: 5 * time.Second,
	}
}

func (p *EPaper) Clear() error {
	return p.start(func() (bool, error) {
		return false, p.dev.Clear(color.White)
	})
}

// DrawRegion rasterizes layout for the panel and puts the panel to sleep
// once the frame is on the glass. The next operation wakes it again.
func (p *EPaper) DrawRegion(layout Layout) error {
	frame := p.frame(layout)
	return p.start(func() (bool, error) {
		if err := p.dev.Draw(p.dev.Bounds(), frame, image.Point{}); err != nil {
			return false, err
		}
		if err := p.dev.Sleep(); err != nil {
			p.logger.Warn("epaper sleep failed", "error", err)
			return false, nil
		}
		return true, nil
	})
}

func (p *EPaper) WaitUntilReady(timeout time.Duration) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.lastErr
	case <-t.C:
		p.mu.Lock()
		if p.done == done {
			p.abandoned = true
		}
		p.mu.Unlock()
		return ErrBusyTimeout
	}
}

// Close halts the panel and releases the SPI port. Halt is skipped while an
// operation is still driving the panel.
func (p *EPaper) Close() error {
	var err error
	if werr := p.WaitUntilReady(p.closeWait); errors.Is(werr, ErrBusyTimeout) {
		p.logger.Warn("panel still busy, skipping halt", "error", werr)
	} else {
		err = p.dev.Halt()
	}
	if p.port != nil {
		if cerr := p.port.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// start runs op in the background. op reports whether it left the panel in
// deep sleep.
func (p *EPaper) start(op func() (bool, error)) error {
	p.mu.Lock()
	reset := false
	if p.done != nil {
		select {
		case <-p.done:
		default:
			if !p.abandoned {
				p.mu.Unlock()
				return ErrPanelBusy
			}
			reset = true
		}
	}
	done := make(chan struct{})
	p.done = done
	p.gen++
	gen := p.gen
	p.lastErr = nil
	p.abandoned = false
	wake := p.sleeping || reset
	p.mu.Unlock()

	if reset {
		p.logger.Warn("resetting panel after busy timeout")
	}

	go func() {
		defer close(done)

		var (
			asleep bool
			err    error
		)
		if wake {
			err = p.dev.Init()
		}
		if err == nil {
			asleep, err = op()
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.gen != gen {
			return
		}
		p.lastErr = err
		if err == nil {
			p.sleeping = asleep
		}
	}()
	return nil
}

func (p *EPaper) frame(layout Layout) image.Image {
	bounds := p.dev.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var gray *image.Gray
	if h > w {
		gray = Portrait(Rasterize(layout, h, w))
	} else {
		gray = Rasterize(layout, w, h)
	}

	img := image1bit.NewVerticalLSB(bounds)
	draw.Draw(img, img.Bounds(), gray, image.Point{}, draw.Src)
	return img
}
