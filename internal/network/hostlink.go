package network

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const associationPoll = 500 * time.Millisecond

// Prober reports whether the named interface (any, when empty) is up with
// a usable address.
type Prober func(iface string) bool

type HostLinkOptions struct {
	// Interface is the wireless interface to watch; empty accepts any
	// non-loopback interface.
	Interface string
	UserAgent string
	// ResetCommand is run by Reset, e.g. "nmcli radio wifi off". Empty
	// disables resets.
	ResetCommand []string
}

// HostLink treats an interface that is up and carries a unicast address as
// associated. Association itself is left to the OS supplicant.
type HostLink struct {
	opts   HostLinkOptions
	http   *resty.Client
	logger *slog.Logger
	probe  Prober

	mu        sync.RWMutex
	connected bool
}

func NewHostLink(opts HostLinkOptions, logger *slog.Logger) *HostLink {
	client := resty.New().
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "application/json")

	return &HostLink{
		opts:   opts,
		http:   client,
		logger: logger.With("component", "network"),
		probe:  InterfaceUp,
	}
}

// WithProber replaces the association check.
func (l *HostLink) WithProber(p Prober) *HostLink {
	l.probe = p
	return l
}

func (l *HostLink) Connect(ctx context.Context, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if l.probe(l.opts.Interface) {
			l.setConnected(true)
			return true
		}
		if !time.Now().Before(deadline) {
			l.setConnected(false)
			l.logger.Warn("association timed out", "interface", l.opts.Interface, "timeout", timeout)
			return false
		}

		wait := min(associationPoll, time.Until(deadline))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.setConnected(false)
			return false
		case <-timer.C:
		}
	}
}

func (l *HostLink) IsConnected() bool {
	l.mu.RLock()
	connected := l.connected
	l.mu.RUnlock()
	if !connected {
		return false
	}
	if !l.probe(l.opts.Interface) {
		l.setConnected(false)
		return false
	}
	return true
}

func (l *HostLink) Get(ctx context.Context, url string, timeout time.Duration) (Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)

	resp, err := l.http.R().
		SetContext(reqCtx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		cancel()
		return Response{}, err
	}

	raw := resp.RawResponse
	length := int64(-1)
	if raw != nil {
		length = raw.ContentLength
	}
	return Response{
		Status:        resp.StatusCode(),
		Body:          &cancelOnClose{ReadCloser: resp.RawBody(), cancel: cancel},
		ContentLength: length,
	}, nil
}

func (l *HostLink) Reset() error {
	if len(l.opts.ResetCommand) == 0 {
		return nil
	}
	l.setConnected(false)
	out, err := exec.Command(l.opts.ResetCommand[0], l.opts.ResetCommand[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("reset link (%s): %w: %s", strings.Join(l.opts.ResetCommand, " "), err, strings.TrimSpace(string(out)))
	}
	l.logger.Info("link reset", "command", strings.Join(l.opts.ResetCommand, " "))
	return nil
}

// InterfaceUp is the default Prober, backed by net.Interfaces.
func InterfaceUp(name string) bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if name != "" && iface.Name != name {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.IsGlobalUnicast() {
				return true
			}
		}
	}
	return false
}

func (l *HostLink) setConnected(v bool) {
	l.mu.Lock()
	l.connected = v
	l.mu.Unlock()
}

// cancelOnClose keeps the per-request deadline alive until the body has
// been consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
