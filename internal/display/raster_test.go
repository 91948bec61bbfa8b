package display

import (
	"image"
	"image/color"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func inked(img *image.Gray) int {
	n := 0
	for _, p := range img.Pix {
		if p < 128 {
			n++
		}
	}
	return n
}

func sampleLayout() Layout {
	return Layout{
		Region: "CHAMONIX",
		Blocks: []Block{
			{StationID: "prarion", Wind: "15.1 km/h", Direction: "W 270", Temperature: "-3.5C", Observed: "22:13", Highlight: true},
			{StationID: "brevent", Wind: "--", Direction: "--", Temperature: "--", Observed: "no data", Missing: true},
			{StationID: "a-very-long-station-name", Wind: "1.0 km/h", Direction: "N 0", Temperature: "1.0C", Observed: "22:10"},
		},
		StatusLine: "UPD 22:15 | WIFI OK",
	}
}

func TestRasterize(t *testing.T) {
	img := Rasterize(sampleLayout(), 250, 122)
	if got := img.Bounds(); got != image.Rect(0, 0, 250, 122) {
		t.Fatalf("Bounds() = %v", got)
	}
	if inked(img) == 0 {
		t.Fatal("nothing drawn")
	}
	// paper stays white in the bottom-right corner
	if got := img.GrayAt(249, 121).Y; got != paper {
		t.Fatalf("corner = %d, want %d", got, paper)
	}
}

func TestRasterizeErrorLayout(t *testing.T) {
	l := Layout{Region: "SOLENT", Error: &ErrorScreen{Title: "NO WEATHER DATA", Detail: "timeout for 6m0s"}, StatusLine: "UPD --:--"}
	if inked(Rasterize(l, 250, 122)) == 0 {
		t.Fatal("nothing drawn")
	}
}

func TestRasterizeEmptyLayout(t *testing.T) {
	Rasterize(Layout{}, 10, 10)
}

func TestPortrait(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 2))
	src.SetGray(0, 0, color.Gray{Y: 1})
	src.SetGray(3, 1, color.Gray{Y: 2})

	dst := Portrait(src)
	if got := dst.Bounds(); got != image.Rect(0, 0, 2, 4) {
		t.Fatalf("Bounds() = %v", got)
	}
	if got := dst.GrayAt(1, 0).Y; got != 1 {
		t.Errorf("top-left moved to (1,0) = %d, want 1", got)
	}
	if got := dst.GrayAt(0, 3).Y; got != 2 {
		t.Errorf("bottom-right moved to (0,3) = %d, want 2", got)
	}
}

func TestClip(t *testing.T) {
	if got := clip("brambles", 4); got != "bram" {
		t.Errorf("clip() = %q", got)
	}
	if got := clip("kn", 4); got != "kn" {
		t.Errorf("clip() = %q", got)
	}
	if got := clip("kn", 0); got != "" {
		t.Errorf("clip() = %q", got)
	}
}

type fakeEPD struct {
	mu      sync.Mutex
	calls   []string
	release chan struct{}
	drawn   image.Image
}

func (d *fakeEPD) record(c string) {
	d.mu.Lock()
	d.calls = append(d.calls, c)
	d.mu.Unlock()
}

func (d *fakeEPD) Init() error { d.record("init"); return nil }

func (d *fakeEPD) Clear(color.Color) error {
	if d.release != nil {
		<-d.release
	}
	d.record("clear")
	return nil
}

func (d *fakeEPD) Draw(_ image.Rectangle, src image.Image, _ image.Point) error {
	d.mu.Lock()
	d.drawn = src
	d.mu.Unlock()
	d.record("draw")
	return nil
}

func (d *fakeEPD) Sleep() error            { d.record("sleep"); return nil }
func (d *fakeEPD) Halt() error             { d.record("halt"); return nil }
func (d *fakeEPD) Bounds() image.Rectangle { return image.Rect(0, 0, 122, 250) }

func (d *fakeEPD) history() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.Join(d.calls, ",")
}

func testEPaper(dev *fakeEPD) *EPaper {
	return newEPaper(dev, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEPaperDrawSleepsAndWakes(t *testing.T) {
	dev := &fakeEPD{}
	p := testEPaper(dev)

	if err := p.DrawRegion(sampleLayout()); err != nil {
		t.Fatalf("DrawRegion() error = %v", err)
	}
	if err := p.WaitUntilReady(time.Second); err != nil {
		t.Fatalf("WaitUntilReady() error = %v", err)
	}
	if err := p.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := p.WaitUntilReady(time.Second); err != nil {
		t.Fatalf("WaitUntilReady() error = %v", err)
	}

	if got, want := dev.history(), "draw,sleep,init,clear"; got != want {
		t.Fatalf("calls = %q, want %q", got, want)
	}
	if got := dev.drawn.Bounds(); got != dev.Bounds() {
		t.Fatalf("frame bounds = %v, want %v", got, dev.Bounds())
	}
}

func TestEPaperBusyWhileInFlight(t *testing.T) {
	dev := &fakeEPD{release: make(chan struct{})}
	p := testEPaper(dev)

	if err := p.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := p.DrawRegion(sampleLayout()); err != ErrPanelBusy {
		t.Fatalf("DrawRegion() while busy error = %v, want %v", err, ErrPanelBusy)
	}

	close(dev.release)
	if err := p.WaitUntilReady(time.Second); err != nil {
		t.Fatalf("WaitUntilReady() after release error = %v", err)
	}
	if err := p.DrawRegion(sampleLayout()); err != nil {
		t.Fatalf("DrawRegion() error = %v", err)
	}
	if err := p.WaitUntilReady(time.Second); err != nil {
		t.Fatalf("WaitUntilReady() error = %v", err)
	}
}

func TestEPaperResetsAfterBusyTimeout(t *testing.T) {
	dev := &fakeEPD{release: make(chan struct{})}
	p := testEPaper(dev)

	if err := p.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := p.WaitUntilReady(10 * time.Millisecond); err != ErrBusyTimeout {
		t.Fatalf("WaitUntilReady() error = %v, want %v", err, ErrBusyTimeout)
	}

	// The stuck clear is abandoned; the next operation re-initialises the
	// panel instead of reporting busy.
	if err := p.DrawRegion(sampleLayout()); err != nil {
		t.Fatalf("DrawRegion() after timeout error = %v", err)
	}
	if err := p.WaitUntilReady(time.Second); err != nil {
		t.Fatalf("WaitUntilReady() error = %v", err)
	}
	if got, want := dev.history(), "init,draw,sleep"; got != want {
		t.Fatalf("calls = %q, want %q", got, want)
	}

	// The abandoned operation finishing late does not disturb the panel state.
	close(dev.release)
	time.Sleep(10 * time.Millisecond)
	if err := p.WaitUntilReady(time.Second); err != nil {
		t.Fatalf("WaitUntilReady() after late completion error = %v", err)
	}
}

func TestEPaperCloseSkipsHaltWhileBusy(t *testing.T) {
	dev := &fakeEPD{release: make(chan struct{})}
	defer close(dev.release)
	p := testEPaper(dev)

	if err := p.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	p.closeWait = 10 * time.Millisecond
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if strings.Contains(dev.history(), "halt") {
		t.Fatalf("calls = %q, want no halt while busy", dev.history())
	}
}

func TestEPaperCloseHaltsWhenIdle(t *testing.T) {
	dev := &fakeEPD{}
	if err := testEPaper(dev).Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := dev.history(); got != "halt" {
		t.Fatalf("calls = %q, want %q", got, "halt")
	}
}

func TestEPaperIdleIsReady(t *testing.T) {
	if err := testEPaper(&fakeEPD{}).WaitUntilReady(time.Millisecond); err != nil {
		t.Fatalf("WaitUntilReady() error = %v", err)
	}
}
