//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const repoRootRel = ".."   // relative to ./e2e
const mainPkgRel = "./cmd" // main.go lives in cmd/

const backendBody = `{"region":"solent","stations":[
	{"id":"brambles","wind_speed_ms":7.5,"wind_direction_deg":225,"temperature_c":11.2,"timestamp":1700000000},
	{"id":"lymington","wind_speed_ms":null,"wind_direction_deg":null,"temperature_c":null,"timestamp":null}
]}`

type heartbeat struct {
	DeviceID string `json:"device_id"`
	BootID   string `json:"boot_id"`
	Region   string `json:"region"`
	State    string `json:"state"`
}

func TestSmoke_Heartbeat(t *testing.T) {
	repoRoot := repoRootPath(t)
	broker, port := startMosquitto(t)

	var requests atomic.Int32
	var userAgent atomic.Value
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/weather/solent" {
			http.NotFound(w, r)
			return
		}
		requests.Add(1)
		userAgent.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(backendBody))
	}))
	t.Cleanup(backend.Close)

	beats := subscribe(t, broker, port, "displays/e2e-display/heartbeat")

	bin := buildBinary(t, repoRoot)
	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=debug",
		"DEVICE_ID=e2e-display",
		"REGION=solent",
		"BACKEND_URL="+backend.URL,
		"WIFI_INTERFACE="+liveInterface(t),
		"PANEL=terminal",
		"HEARTBEAT_INTERVAL=1s",
		"MQTT_BROKER="+broker,
		"MQTT_PORT="+port,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("start display: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	var hb heartbeat
	select {
	case msg := <-beats:
		if err := json.Unmarshal(msg, &hb); err != nil {
			t.Fatalf("decode heartbeat: %v (%s)", err, msg)
		}
	case <-time.After(30 * time.Second):
		t.Fatalf("no heartbeat within 30s")
	}

	if hb.DeviceID != "e2e-display" {
		t.Fatalf("device_id=%q want=%q", hb.DeviceID, "e2e-display")
	}
	if hb.Region != "solent" {
		t.Fatalf("region=%q want=%q", hb.Region, "solent")
	}
	if hb.BootID == "" || hb.State == "" {
		t.Fatalf("heartbeat missing boot id or state: %+v", hb)
	}

	waitFor(t, 10*time.Second, func() bool { return requests.Load() > 0 })
	if ua, _ := userAgent.Load().(string); !strings.HasPrefix(ua, "WeatherDisplay/") {
		t.Fatalf("user agent=%q want WeatherDisplay/ prefix", ua)
	}

	stopDisplay(t, cmd)
}

func startMosquitto(t *testing.T) (host, port string) {
	t.Helper()

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2",
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort("1883/tcp").WithStartupTimeout(30 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err = c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "1883/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	return host, mapped.Port()
}

func subscribe(t *testing.T, host, port, topic string) <-chan []byte {
	t.Helper()

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%s", host, port)).
		SetClientID("e2e-observer")
	client := paho.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		t.Fatalf("observer connect: %v", token.Error())
	}
	t.Cleanup(func() { client.Disconnect(250) })

	out := make(chan []byte, 16)
	token := client.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		select {
		case out <- m.Payload():
		default:
		}
	})
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		t.Fatalf("observer subscribe: %v", token.Error())
	}
	return out
}

// liveInterface finds an up, non-loopback interface with an address so the
// display considers the network associated.
func liveInterface(t *testing.T) string {
	t.Helper()

	ifaces, err := net.Interfaces()
	if err != nil {
		t.Fatalf("list interfaces: %v", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.IsGlobalUnicast() {
				return iface.Name
			}
		}
	}
	t.Skip("no live network interface")
	return ""
}

func repoRootPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	repo := filepath.Clean(filepath.Join(wd, repoRootRel))
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("repo root %q does not contain go.mod: %v", repo, err)
	}

	return repo
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()

	tmp := t.TempDir()
	out := filepath.Join(tmp, "weather-display")

	build := exec.Command("go", "build", "-o", out, mainPkgRel)
	build.Dir = repoRoot
	build.Env = os.Environ()

	b, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(b))
	}

	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("condition not met after %s", timeout)
}

func stopDisplay(t *testing.T, cmd *exec.Cmd) {
	t.Helper()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		t.Fatalf("display did not exit in time")
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				t.Fatalf("display exited non-zero: %v", err)
			}
			t.Fatalf("display wait error: %v", err)
		}
	}
}
