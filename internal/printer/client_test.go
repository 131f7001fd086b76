package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// fakeDevice answers requests for the hosts marked up and fails the rest at
// the transport level.
type fakeDevice struct {
	mu       sync.Mutex
	up       map[string]bool
	attempts []string
	handler  http.Handler
}

func newFakeDevice(handler http.Handler, upHosts ...string) *fakeDevice {
	d := &fakeDevice{up: make(map[string]bool), handler: handler}
	for _, h := range upHosts {
		d.up[h] = true
	}
	return d
}

func (d *fakeDevice) transport() http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		d.mu.Lock()
		d.attempts = append(d.attempts, req.URL.Host)
		up := d.up[req.URL.Host]
		d.mu.Unlock()

		if !up {
			return nil, fmt.Errorf("dial tcp %s: connect: connection refused", req.URL.Host)
		}
		rec := httptest.NewRecorder()
		d.handler.ServeHTTP(rec, req)
		return rec.Result(), nil
	})
}

func (d *fakeDevice) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.attempts)
}

// fakeResolver hands out current and, on refresh, next.
type fakeResolver struct {
	mu         sync.Mutex
	static     bool
	current    Address
	next       Address
	refreshErr error
	refreshes  int
}

func (r *fakeResolver) Static() bool { return r.static }

func (r *fakeResolver) Resolve(context.Context) (Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, nil
}

func (r *fakeResolver) Refresh(context.Context, Address) (Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes++
	if r.refreshErr != nil {
		return Address{}, r.refreshErr
	}
	r.current = r.next
	return r.current, nil
}

func (r *fakeResolver) refreshCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshes
}

func addr(ip string) Address {
	return Address{IP: netip.MustParseAddr(ip), Source: SourceResolved}
}

func newTestClient(t *testing.T, r AddressResolver, d *fakeDevice) *Client {
	t.Helper()
	c, err := NewClient(r, ClientConfig{ID: "id", Key: "key", Transport: d.transport()})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func jsonHandler(routes map[string]string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			http.Error(w, `{"message": "Not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	})
}

var statusIdle = map[string]string{"GET /api/v1/printer/status": `"idle"`}

func TestClient_RetriesOnceAfterRefresh(t *testing.T) {
	dev := newFakeDevice(jsonHandler(statusIdle), "10.0.0.9")
	res := &fakeResolver{current: addr("10.0.0.5"), next: addr("10.0.0.9")}
	c := newTestClient(t, res, dev)

	status, err := c.PrinterStatus(context.Background())
	if err != nil {
		t.Fatalf("PrinterStatus() error = %v", err)
	}
	if status != StatusIdle {
		t.Errorf("PrinterStatus() = %q, want %q", status, StatusIdle)
	}
	if res.refreshCount() != 1 {
		t.Errorf("refreshes = %d, want 1", res.refreshCount())
	}
	if dev.attemptCount() != 2 {
		t.Errorf("attempts = %d, want 2", dev.attemptCount())
	}
}

func TestClient_TwoFailuresAreUnreachable(t *testing.T) {
	dev := newFakeDevice(jsonHandler(statusIdle))
	res := &fakeResolver{current: addr("10.0.0.5"), next: addr("10.0.0.9")}
	c := newTestClient(t, res, dev)

	_, err := c.PrinterStatus(context.Background())
	if !errors.Is(err, ErrDeviceUnreachable) {
		t.Fatalf("PrinterStatus() error = %v, want ErrDeviceUnreachable", err)
	}
	if res.refreshCount() != 1 {
		t.Errorf("refreshes = %d, want 1", res.refreshCount())
	}
	if dev.attemptCount() != 2 {
		t.Errorf("attempts = %d, want exactly 2", dev.attemptCount())
	}
}

func TestClient_RefreshFailureIsUnreachable(t *testing.T) {
	dev := newFakeDevice(jsonHandler(statusIdle))
	res := &fakeResolver{current: addr("10.0.0.5"), refreshErr: ErrNotFound}
	c := newTestClient(t, res, dev)

	_, err := c.PrinterStatus(context.Background())
	if !errors.Is(err, ErrDeviceUnreachable) {
		t.Fatalf("PrinterStatus() error = %v, want ErrDeviceUnreachable", err)
	}
	if dev.attemptCount() != 1 {
		t.Errorf("attempts = %d, want 1", dev.attemptCount())
	}
}

func TestClient_StaticModeNeverRetries(t *testing.T) {
	dev := newFakeDevice(jsonHandler(statusIdle))
	res := &fakeResolver{static: true, current: Address{IP: netip.MustParseAddr("10.0.0.5"), Source: SourceStatic}}
	c := newTestClient(t, res, dev)

	_, err := c.PrinterStatus(context.Background())
	if !errors.Is(err, ErrDeviceUnreachable) {
		t.Fatalf("PrinterStatus() error = %v, want ErrDeviceUnreachable", err)
	}
	if res.refreshCount() != 0 || dev.attemptCount() != 1 {
		t.Errorf("refreshes = %d, attempts = %d; want 0 and 1", res.refreshCount(), dev.attemptCount())
	}
}

func TestClient_RejectedIsNotRetried(t *testing.T) {
	dev := newFakeDevice(jsonHandler(nil), "10.0.0.5")
	res := &fakeResolver{current: addr("10.0.0.5"), next: addr("10.0.0.9")}
	c := newTestClient(t, res, dev)

	_, err := c.PrintJob(context.Background())
	if !errors.Is(err, ErrDeviceRejected) {
		t.Fatalf("PrintJob() error = %v, want ErrDeviceRejected", err)
	}
	if code, ok := StatusCode(err); !ok || code != http.StatusNotFound {
		t.Errorf("StatusCode() = %d, %v; want 404, true", code, ok)
	}
	if errors.Is(err, ErrDeviceUnreachable) {
		t.Error("rejected request reported as unreachable")
	}
	if res.refreshCount() != 0 || dev.attemptCount() != 1 {
		t.Errorf("refreshes = %d, attempts = %d; want 0 and 1", res.refreshCount(), dev.attemptCount())
	}
}

func TestClient_State(t *testing.T) {
	tests := []struct {
		name   string
		routes map[string]string
		want   State
	}{
		{
			name:   "idle",
			routes: statusIdle,
			want:   State{PrinterStatus: StatusIdle, PrintJobState: JobNone},
		},
		{
			name: "printing",
			routes: map[string]string{
				"GET /api/v1/printer/status":   `"printing"`,
				"GET /api/v1/print_job/state": `"printing"`,
			},
			want: State{PrinterStatus: StatusPrinting, PrintJobState: JobPrinting},
		},
		{
			name: "paused",
			routes: map[string]string{
				"GET /api/v1/printer/status":         `"printing"`,
				"GET /api/v1/print_job/state":        `"paused"`,
				"GET /api/v1/print_job/pause_source": `"user"`,
			},
			want: State{PrinterStatus: StatusPrinting, PrintJobState: JobPaused, PauseSource: "user"},
		},
		{
			name:   "printing without job",
			routes: map[string]string{"GET /api/v1/printer/status": `"printing"`},
			want:   State{PrinterStatus: StatusPrinting, PrintJobState: JobNone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice(jsonHandler(tt.routes), "10.0.0.5")
			c := newTestClient(t, &fakeResolver{current: addr("10.0.0.5")}, dev)

			got, err := c.State(context.Background())
			if err != nil {
				t.Fatalf("State() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("State() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClient_PrinterInfoAndJob(t *testing.T) {
	routes := map[string]string{
		"GET /api/v1/printer": `{"status": "printing",
			"bed": {"temperature": {"current": 59.8, "target": 60}},
			"heads": [{"extruders": [{"hotend": {"temperature": {"current": 210.1, "target": 210}},
				"feeder": {"max_speed": 45}}]}]}`,
		"GET /api/v1/print_job": `{"name": "benchy", "state": "printing", "time_total": 3600,
			"time_elapsed": 4000, "progress": 0.5, "datetime_started": "2024-03-01T10:00:00",
			"datetime_finished": "", "pause_source": ""}`,
	}
	dev := newFakeDevice(jsonHandler(routes), "10.0.0.5")
	c := newTestClient(t, &fakeResolver{current: addr("10.0.0.5")}, dev)

	info, err := c.PrinterInfo(context.Background())
	if err != nil {
		t.Fatalf("PrinterInfo() error = %v", err)
	}
	ext, ok := info.PrimaryExtruder()
	if !ok || ext.Hotend.Temperature.Target != 210 || ext.Feeder.MaxSpeed != 45 {
		t.Errorf("PrimaryExtruder() = %+v, %v", ext, ok)
	}
	if info.Bed.Temperature.Current != 59.8 {
		t.Errorf("bed current = %v, want 59.8", info.Bed.Temperature.Current)
	}

	job, err := c.PrintJob(context.Background())
	if err != nil {
		t.Fatalf("PrintJob() error = %v", err)
	}
	if job.Remaining() != 0 {
		t.Errorf("Remaining() = %v, want 0 when elapsed exceeds total", job.Remaining())
	}
	started, ok := job.Started()
	if !ok || started.Hour() != 10 || started.Location().String() != "UTC" {
		t.Errorf("Started() = %v, %v; want 10:00 UTC", started, ok)
	}
	if _, ok := job.Finished(); ok {
		t.Error("Finished() ok = true for empty timestamp")
	}
}

func TestClient_PauseResumeAndLEDs(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	dev := newFakeDevice(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, r.Method+" "+r.URL.Path+" "+string(b))
		mu.Unlock()
		if r.Method == http.MethodGet {
			io.WriteString(w, "50")
			return
		}
		io.WriteString(w, "{}")
	}), "10.0.0.5")
	c := newTestClient(t, &fakeResolver{current: addr("10.0.0.5")}, dev)
	ctx := context.Background()

	if err := c.Pause(ctx); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if err := c.Resume(ctx); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if err := c.SetLEDBrightness(ctx, 100); err != nil {
		t.Fatalf("SetLEDBrightness() error = %v", err)
	}
	level, err := c.LEDBrightness(ctx)
	if err != nil || level != 50 {
		t.Errorf("LEDBrightness() = %v, %v; want 50", level, err)
	}
	if err := c.SetLEDBrightness(ctx, 101); err == nil {
		t.Error("SetLEDBrightness(101) error = nil, want range error")
	}

	want := []string{
		`PUT /api/v1/print_job/state {"target":"pause"}`,
		`PUT /api/v1/print_job/state {"target":"print"}`,
		`PUT /api/v1/printer/led/brightness 100`,
		`GET /api/v1/printer/led/brightness `,
	}
	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != len(want) {
		t.Fatalf("requests = %q, want %q", bodies, want)
	}
	for i := range want {
		if bodies[i] != want[i] {
			t.Errorf("request[%d] = %q, want %q", i, bodies[i], want[i])
		}
	}
}

func TestClient_SubmitPrintJob(t *testing.T) {
	var gotName, gotContent string
	dev := newFakeDevice(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/print_job" {
			http.NotFound(w, r)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName, gotContent = hdr.Filename, string(b)
		io.WriteString(w, `{"message": "ok"}`)
	}), "10.0.0.5")
	c := newTestClient(t, &fakeResolver{current: addr("10.0.0.5")}, dev)

	path := filepath.Join(t.TempDir(), "upload.tmp")
	if err := os.WriteFile(path, []byte("G28\nG1 X10\n"), 0600); err != nil {
		t.Fatalf("writing model: %v", err)
	}

	if err := c.SubmitPrintJob(context.Background(), "cube.gcode", path); err != nil {
		t.Fatalf("SubmitPrintJob() error = %v", err)
	}
	if gotName != "cube.gcode" || gotContent != "G28\nG1 X10\n" {
		t.Errorf("device got %q with %q", gotName, gotContent)
	}
}

func TestClient_VerifyAuth(t *testing.T) {
	dev := newFakeDevice(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Authorization required."}`, http.StatusForbidden)
	}), "10.0.0.5")
	c := newTestClient(t, &fakeResolver{current: addr("10.0.0.5")}, dev)

	if code, _ := StatusCode(c.VerifyAuth(context.Background())); code != http.StatusForbidden {
		t.Errorf("VerifyAuth() status = %d, want 403", code)
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	if _, err := NewClient(&fakeResolver{}, ClientConfig{ID: "id"}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewClient() error = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewClient(nil, ClientConfig{ID: "id", Key: "key"}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewClient(nil) error = %v, want ErrInvalidConfig", err)
	}
}
