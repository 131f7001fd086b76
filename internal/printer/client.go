package printer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"time"

	"github.com/icholy/digest"
)

const (
	apiPrefix = "/api/v1/"

	defaultAPIPort    = 80
	defaultCameraPort = 8080
	defaultTimeout    = 10 * time.Second

	// maxJSONBody bounds JSON responses; maxBinaryBody bounds containers and images.
	maxJSONBody   = 1 << 20
	maxBinaryBody = 64 << 20

	// maxRejectedBody is how much of a non-2xx body is kept on RejectedError.
	maxRejectedBody = 256
)

// AddressResolver supplies the printer address. *Locator implements it.
type AddressResolver interface {
	Static() bool
	Resolve(ctx context.Context) (Address, error)
	Refresh(ctx context.Context, stale Address) (Address, error)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// ID and Key are the digest credential pair issued by the printer.
	ID  string
	Key string

	APIPort    int
	CameraPort int

	// Timeout bounds each request attempt, including reading the body.
	Timeout time.Duration

	// Transport is the underlying round tripper. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// Client is the printer's HTTP API session.
//
// Every operation targets the resolver's current address. On a transport
// failure in dynamic mode the address is refreshed once and the request is
// retried once; any further failure is ErrDeviceUnreachable. Static mode never
// retries. A non-2xx status is returned as *RejectedError without retrying.
//
// Thread Safety:
//   - Safe for concurrent use.
type Client struct {
	resolver   AddressResolver
	http       *http.Client
	apiPort    int
	cameraPort int
	logger     Logger
}

// NewClient creates a Client using resolver for addressing.
func NewClient(resolver AddressResolver, cfg ClientConfig) (*Client, error) {
	if resolver == nil {
		return nil, fmt.Errorf("%w: address resolver is required", ErrInvalidConfig)
	}
	if cfg.ID == "" || cfg.Key == "" {
		return nil, fmt.Errorf("%w: credential id and key are required", ErrInvalidConfig)
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = defaultAPIPort
	}
	if cfg.CameraPort == 0 {
		cfg.CameraPort = defaultCameraPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &Client{
		resolver: resolver,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &digest.Transport{
				Username:  cfg.ID,
				Password:  cfg.Key,
				Transport: base,
			},
		},
		apiPort:    cfg.APIPort,
		cameraPort: cfg.CameraPort,
		logger:     noopLogger{},
	}, nil
}

// SetLogger sets the logger for retry diagnostics.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// requestBuilder creates one attempt's request against baseURL ("http://host[:port]").
type requestBuilder func(ctx context.Context, baseURL string) (*http.Request, error)

// do runs build against the current address, applying the refresh-and-retry-once
// policy on transport failure. The caller closes the returned body.
func (c *Client) do(ctx context.Context, op string, port int, build requestBuilder) (*http.Response, error) {
	addr, err := c.resolver.Resolve(ctx)
	if err != nil {
		return nil, unreachable(op, err)
	}

	resp, err := c.attempt(ctx, addr, port, build)
	if err == nil {
		return resp, nil
	}
	var be *buildError
	if errors.As(err, &be) {
		return nil, fmt.Errorf("printer: %s: %w", op, be.err)
	}
	if ctx.Err() != nil || c.resolver.Static() {
		return nil, unreachable(op, err)
	}

	c.logger.Warn("printer request failed, re-resolving address",
		"op", op, "ip", addr.String(), "error", err)

	fresh, rerr := c.resolver.Refresh(ctx, addr)
	if rerr != nil {
		return nil, unreachable(op, fmt.Errorf("%w (refresh: %w)", err, rerr))
	}

	resp, err = c.attempt(ctx, fresh, port, build)
	if err != nil {
		var be *buildError
		if errors.As(err, &be) {
			return nil, fmt.Errorf("printer: %s: %w", op, be.err)
		}
		return nil, unreachable(op, err)
	}
	return resp, nil
}

type buildError struct{ err error }

func (e *buildError) Error() string { return e.err.Error() }

func (c *Client) attempt(ctx context.Context, addr Address, port int, build requestBuilder) (*http.Response, error) {
	req, err := build(ctx, baseURL(addr.IP, port))
	if err != nil {
		return nil, &buildError{err: err}
	}
	return c.http.Do(req)
}

func baseURL(ip netip.Addr, port int) string {
	if port == defaultAPIPort {
		return "http://" + ip.String()
	}
	return "http://" + netip.AddrPortFrom(ip, uint16(port)).String()
}

func unreachable(op string, err error) error {
	if errors.Is(err, ErrDeviceUnreachable) {
		return fmt.Errorf("printer: %s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrDeviceUnreachable, op, err)
}

// call performs an API request and returns the response body of a 2xx answer.
func (c *Client) call(ctx context.Context, op, method, path string, body []byte, contentType string, limit int64) ([]byte, error) {
	resp, err := c.do(ctx, op, c.apiPort, func(ctx context.Context, base string) (*http.Request, error) {
		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, base+apiPrefix+path, r)
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return readBody(op, resp, limit)
}

// readBody reads a response body, converting a non-2xx status to *RejectedError.
func readBody(op string, resp *http.Response, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > maxRejectedBody {
			data = data[:maxRejectedBody]
		}
		return nil, &RejectedError{Op: op, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if err != nil {
		return nil, unreachable(op, fmt.Errorf("reading response: %w", err))
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, v any) error {
	data, err := c.call(ctx, op, http.MethodGet, path, nil, "", maxJSONBody)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("printer: %s: decoding response: %w", op, err)
	}
	return nil
}

func (c *Client) putJSON(ctx context.Context, op, path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("printer: %s: encoding request: %w", op, err)
	}
	_, err = c.call(ctx, op, http.MethodPut, path, body, "application/json", maxJSONBody)
	return err
}

// getCamera fetches path from the camera port. The caller closes the body.
func (c *Client) getCamera(ctx context.Context, op, query string) (*http.Response, error) {
	resp, err := c.do(ctx, op, c.cameraPort, func(ctx context.Context, base string) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, base+"/?"+query, nil)
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		_, err := readBody(op, resp, maxRejectedBody)
		return nil, err
	}
	return resp, nil
}

