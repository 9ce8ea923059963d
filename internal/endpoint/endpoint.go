// Package endpoint owns the single gRPC connection to a GlobeSort server and
// exposes the blocking Ping and SortIntegers calls.
package endpoint

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"globesort/internal/wire"
	pkgerrors "globesort/pkg/errors"
)

const (
	// DefaultMaxMessageSize fits sort payloads of several hundred thousand
	// integers.
	DefaultMaxMessageSize  = 100 * 1024 * 1024
	DefaultDialTimeout     = 5 * time.Second
	DefaultShutdownTimeout = 2 * time.Second
)

// Caller is the pair of blocking calls the measurement protocol depends on.
type Caller interface {
	Ping(ctx context.Context) error
	SortIntegers(ctx context.Context, values []int32) ([]int32, error)
}

// Option configures Open.
type Option func(*options)

type options struct {
	maxMessageSize int
	dialTimeout    time.Duration
	callTimeout    time.Duration
	logger         *zap.Logger
}

// WithMaxMessageSize sets the largest inbound message accepted.
func WithMaxMessageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxMessageSize = n
		}
	}
}

// WithDialTimeout bounds how long Open waits for the channel to become ready.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithCallTimeout applies a deadline to every call. Zero leaves calls
// bounded only by the caller's context.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) { o.callTimeout = d }
}

// WithLogger sets the logger used for connection lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Endpoint is an open connection to host:port. It is not safe for
// concurrent use by more than one logical caller.
type Endpoint struct {
	host           string
	port           int
	maxMessageSize int
	callTimeout    time.Duration

	conn   *grpc.ClientConn
	logger *zap.Logger
}

// Open connects to the server and waits until the channel is ready. Any
// failure, including an invalid address, is a *errors.ConnectionError.
func Open(ctx context.Context, host string, port int, opts ...Option) (*Endpoint, error) {
	o := options{
		maxMessageSize: DefaultMaxMessageSize,
		dialTimeout:    DefaultDialTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if host == "" {
		return nil, &pkgerrors.ConnectionError{Address: host, Port: port, Err: pkgerrors.ErrInvalidHost}
	}
	if port < 1 || port > 65535 {
		return nil, &pkgerrors.ConnectionError{Address: host, Port: port, Err: pkgerrors.ErrInvalidPort}
	}

	target := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(o.maxMessageSize),
			grpc.ForceCodec(wire.Codec{}),
		),
	)
	if err != nil {
		return nil, &pkgerrors.ConnectionError{
			Address: host,
			Port:    port,
			Err:     fmt.Errorf("%w: %v", pkgerrors.ErrConnectionFailed, err),
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, o.dialTimeout)
	defer cancel()

	start := time.Now()
	if err := waitReady(dialCtx, conn); err != nil {
		conn.Close()
		return nil, &pkgerrors.ConnectionError{Address: host, Port: port, Err: err}
	}
	o.logger.Debug("connected",
		zap.String("target", target),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("max_message_size", o.maxMessageSize))

	return &Endpoint{
		host:           host,
		port:           port,
		maxMessageSize: o.maxMessageSize,
		callTimeout:    o.callTimeout,
		conn:           conn,
		logger:         o.logger,
	}, nil
}

// waitReady drives the channel out of IDLE and returns once it is READY.
// A transient failure is reported immediately rather than retried.
func waitReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.TransientFailure, connectivity.Shutdown:
			return fmt.Errorf("%w: channel entered %s", pkgerrors.ErrConnectionFailed, state)
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("%w: %v", pkgerrors.ErrConnectionTimeout, ctx.Err())
		}
	}
}

// Host returns the server host.
func (e *Endpoint) Host() string { return e.host }

// Port returns the server port.
func (e *Endpoint) Port() int { return e.port }

// MaxMessageSize returns the inbound message limit in bytes.
func (e *Endpoint) MaxMessageSize() int { return e.maxMessageSize }

// Address returns host:port.
func (e *Endpoint) Address() string {
	return net.JoinHostPort(e.host, strconv.Itoa(e.port))
}

// Ping sends an empty request and waits for the empty reply.
func (e *Endpoint) Ping(ctx context.Context) error {
	return e.invoke(ctx, "Ping", wire.PingMethod, &wire.Empty{}, &wire.Empty{})
}

// SortIntegers sends values in a single request and returns the response
// values as received, sentinel included.
func (e *Endpoint) SortIntegers(ctx context.Context, values []int32) ([]int32, error) {
	resp := &wire.IntArray{}
	if err := e.invoke(ctx, "SortIntegers", wire.SortIntegersMethod, &wire.IntArray{Values: values}, resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (e *Endpoint) invoke(ctx context.Context, name, method string, req, resp any) error {
	if e.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
	}
	if err := e.conn.Invoke(ctx, method, req, resp); err != nil {
		return e.classify(name, err)
	}
	return nil
}

var (
	oversizeRe  = regexp.MustCompile(`larger than max \((\d+) vs\. (\d+)\)`)
	unmarshalRe = regexp.MustCompile(`failed to unmarshal`)
)

// classify maps a gRPC call error onto the error taxonomy. A response that
// exceeds our own receive limit is a protocol error; a limit reported by the
// server is an ordinary remote failure.
func (e *Endpoint) classify(method string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return &pkgerrors.RPCError{Method: method, Err: fmt.Errorf("%w: %v", pkgerrors.ErrRemoteCall, err)}
	}

	switch st.Code() {
	case codes.ResourceExhausted:
		if m := oversizeRe.FindStringSubmatch(st.Message()); m != nil {
			if limit, _ := strconv.Atoi(m[2]); limit == e.maxMessageSize {
				return &pkgerrors.ProtocolError{
					Method: method,
					Err:    fmt.Errorf("%w: %s", pkgerrors.ErrMessageTooLarge, st.Message()),
				}
			}
		}
	case codes.DeadlineExceeded:
		return &pkgerrors.RPCError{
			Method: method,
			Code:   st.Code().String(),
			Err:    fmt.Errorf("%w: %s", pkgerrors.ErrCallTimeout, st.Message()),
		}
	case codes.Internal:
		if unmarshalRe.MatchString(st.Message()) {
			return &pkgerrors.ProtocolError{
				Method: method,
				Err:    fmt.Errorf("%w: %s", pkgerrors.ErrMalformedMessage, st.Message()),
			}
		}
	}

	return &pkgerrors.RPCError{
		Method: method,
		Code:   st.Code().String(),
		Err:    fmt.Errorf("%w: %s", pkgerrors.ErrRemoteCall, st.Message()),
	}
}

// Close shuts the connection down, waiting at most timeout. When the timeout
// elapses the connection is abandoned; Close never fails.
func (e *Endpoint) Close(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	done := make(chan error, 1)
	go func() { done <- e.conn.Close() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			e.logger.Debug("close", zap.String("target", e.Address()), zap.Error(err))
		}
	case <-timer.C:
		e.logger.Warn("shutdown timed out, abandoning connection",
			zap.String("target", e.Address()),
			zap.Duration("timeout", timeout))
	}
}
