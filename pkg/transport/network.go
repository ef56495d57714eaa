package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rsas-protocol/rsas-go/pkg/version"
)

// Network defaults.
const (
	DefaultCommandPath  = "/command"
	DefaultDialTimeout  = 2 * time.Second
	DefaultHTTPTimeout  = 5 * time.Second
	maxNetworkBodyBytes = 64 << 10
)

// NetworkConfig configures NetworkOpener.
type NetworkConfig struct {
	// CommandPath is the HTTP path commands are POSTed to.
	CommandPath string

	// DialTimeout bounds the reachability check done by Open.
	DialTimeout time.Duration

	// Client performs the command requests. Its Timeout bounds each request.
	Client *http.Client
}

// NetworkOpener opens HTTP connections to network-discovered modules.
type NetworkOpener struct {
	cfg    NetworkConfig
	dialer net.Dialer
}

// NewNetworkOpener creates a NetworkOpener, filling unset fields with defaults.
func NewNetworkOpener(cfg NetworkConfig) *NetworkOpener {
	if cfg.CommandPath == "" {
		cfg.CommandPath = DefaultCommandPath
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &NetworkOpener{cfg: cfg, dialer: net.Dialer{Timeout: cfg.DialTimeout}}
}

// Open checks that the endpoint accepts TCP connections. Requests themselves
// are made per Write.
func (o *NetworkOpener) Open(ctx context.Context, ref Ref) (Conn, error) {
	if ref.Kind != KindNetwork || ref.Address == "" || ref.Port <= 0 {
		return nil, fmt.Errorf("%w: not a network ref: %+v", ErrUnavailable, ref)
	}

	probe, err := o.dialer.DialContext(ctx, "tcp", ref.String())
	if err != nil {
		return nil, mapNetError(ref, err)
	}
	_ = probe.Close()

	ctx, cancel := context.WithCancel(context.Background())
	return &networkConn{
		ref:    ref,
		url:    "http://" + ref.String() + o.cfg.CommandPath,
		client: o.cfg.Client,
		buf:    newReadBuffer(),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func mapNetError(ref Ref, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %s: %v", ErrTimeout, ref, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, ref, err)
	}
}

type networkConn struct {
	ref    Ref
	url    string
	client *http.Client
	buf    *readBuffer

	// ctx outlives individual Write calls and is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (c *networkConn) Ref() Ref { return c.ref }

// Write starts the POST and returns; the body arrives through ReadAvailable.
func (c *networkConn) Write(ctx context.Context, p []byte) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return ctxErr(err)
	}

	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, c.url, bytes.NewReader(p))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("User-Agent", version.UserAgent())

	c.buf.reset()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		resp, err := c.client.Do(req)
		if err != nil {
			if c.ctx.Err() == nil {
				c.buf.fail(mapNetError(c.ref, err))
			}
			return
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxNetworkBodyBytes))
		c.buf.append(body)
		if err != nil && c.ctx.Err() == nil {
			c.buf.fail(mapNetError(c.ref, err))
			return
		}
		c.buf.finish()
	}()
	return nil
}

func (c *networkConn) ReadAvailable(ctx context.Context, window time.Duration, complete Completion) ([]byte, error) {
	if c.ctx.Err() != nil {
		return nil, ErrClosed
	}
	return c.buf.collect(ctx, window, complete)
}

func (c *networkConn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
	return nil
}

var _ Opener = (*NetworkOpener)(nil)
