package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/logging"
	"github.com/ynput/openpype/internal/mainthread"
	"github.com/ynput/openpype/internal/store"
)

// maxLineSize bounds one request line.
const maxLineSize = 4 << 20

// Server serves store operations to socket clients. All store access is
// posted onto the main-thread queue.
type Server struct {
	store  store.InstanceStore
	queue  *mainthread.Queue
	logger *logging.Logger

	callTimeout time.Duration
	slots       chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	listener net.Listener
	wg       sync.WaitGroup

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	started bool
}

// NewServer creates a Server for st. Store operations run on queue, which
// the caller must drain on its main thread.
//
// st and queue must be non-nil. Passing nil will panic early to surface
// wiring bugs immediately.
func NewServer(st store.InstanceStore, queue *mainthread.Queue, opts ...Option) *Server {
	if st == nil {
		panic("bridge: store must not be nil")
	}
	if queue == nil {
		panic("bridge: main thread queue must not be nil")
	}

	cfg := &config{
		logger:         logging.NopLogger(),
		maxConnections: defaultMaxConnections,
		callTimeout:    defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.maxConnections <= 0 {
		cfg.maxConnections = defaultMaxConnections
	}
	if cfg.callTimeout <= 0 {
		cfg.callTimeout = defaultCallTimeout
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}

	return &Server{
		store:       st,
		queue:       queue,
		logger:      cfg.logger.With("component", "bridge"),
		callTimeout: cfg.callTimeout,
		slots:       make(chan struct{}, cfg.maxConnections),
		conns:       make(map[net.Conn]struct{}),
	}
}

// Start listens on address and begins accepting connections. It returns
// once the listener is bound; the accept loop runs in the background.
func (s *Server) Start(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("bridge: already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("bridge: failed to listen on %s: %w", address, err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = ln
	s.started = true
	s.logger.Info("bridge listening", "address", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open connection, then waits for all
// goroutines to finish. It is safe to call multiple times.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	_ = s.listener.Close()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
}

// acceptLoop accepts connections until the listener closes. Accept errors
// back off exponentially instead of spinning.
func (s *Server) acceptLoop() {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 5 * time.Millisecond
	eb.MaxInterval = time.Second
	eb.MaxElapsedTime = 0

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			wait := eb.NextBackOff()
			s.logger.Warn("bridge accept failed", "error", err, "retry_in", wait)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		eb.Reset()

		select {
		case s.slots <- struct{}{}:
		case <-s.ctx.Done():
			_ = conn.Close()
			return
		}
		if !s.track(conn) {
			<-s.slots
			_ = conn.Close()
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.slots }()
			defer s.untrack(conn)
			s.serve(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

// serve answers requests on conn in order until the client disconnects.
func (s *Server) serve(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	s.logger.Debug("bridge client connected", "remote", remote)
	defer s.logger.Debug("bridge client disconnected", "remote", remote)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.handle(line)
		if err := enc.Encode(resp); err != nil {
			s.logger.Warn("bridge write failed", "remote", remote, "error", err)
			return
		}
	}
	if err := scanner.Err(); err != nil && s.ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("bridge read failed", "remote", remote, "error", err)
	}
}

func (s *Server) handle(line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{Error: &ResponseError{Code: CodeInvalidRequest, Message: fmt.Sprintf("malformed request: %v", err)}}
	}

	var params Params
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return Response{ID: req.ID, Error: &ResponseError{Code: CodeInvalidRequest, Message: fmt.Sprintf("malformed params: %v", err)}}
		}
	}

	op, err := s.operation(req.Method, params)
	if err != nil {
		return Response{ID: req.ID, Error: &ResponseError{Code: CodeUnknownMethod, Message: err.Error()}}
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.callTimeout)
	defer cancel()
	result, err := s.queue.Call(ctx, func() (any, error) {
		// Expired requests were already answered with an error.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return op(ctx)
	})
	if err != nil {
		s.logger.Debug("bridge call failed", "method", req.Method, "id", params.ID, "error", err)
		return Response{ID: req.ID, Error: responseError(err)}
	}
	return Response{ID: req.ID, Result: result}
}

// operation returns the store call for method.
func (s *Server) operation(method string, p Params) (func(context.Context) (any, error), error) {
	switch method {
	case MethodList:
		return func(ctx context.Context) (any, error) {
			records, err := s.store.List(ctx)
			if err != nil {
				return nil, err
			}
			return toRecordJSON(records), nil
		}, nil
	case MethodRead:
		return func(ctx context.Context) (any, error) {
			return s.store.Read(ctx, p.ID)
		}, nil
	case MethodWrite:
		return func(ctx context.Context) (any, error) {
			return true, s.store.Write(ctx, p.ID, p.Data)
		}, nil
	case MethodDelete:
		return func(ctx context.Context) (any, error) {
			return true, s.store.Delete(ctx, p.ID)
		}, nil
	}
	return nil, fmt.Errorf("unknown method %q", method)
}
