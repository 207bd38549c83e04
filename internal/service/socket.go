// Package service serves a gloom Registry over a stream socket and
// provides the matching client.
//
// The protocol is one CBOR request and one CBOR response per connection.
// A request is a map with an "action" field plus the action's own fields.
// The response is {ok, error, code, data}.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jcalabro/gloomd/internal/codec"
	"github.com/jcalabro/gloomd/internal/metrics"
)

// ActionFunc processes the request for one action. raw is the full CBOR
// request, including the "action" field. A nil result yields {ok: true}.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the envelope of every reply.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Code  string           `cbor:"code,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// ServerConfig configures a SocketServer.
type ServerConfig struct {
	// Network is "unix" or "tcp".
	Network string
	Address string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxRequestBytes caps how much of a connection is read for one
	// request.
	MaxRequestBytes int64
}

// SocketServer dispatches socket requests to registered actions.
type SocketServer struct {
	config   ServerConfig
	handlers map[string]ActionFunc
	logger   *slog.Logger

	activeConnections sync.WaitGroup
}

// NewSocketServer returns a server for config. Register actions with
// Handle before calling Serve.
func NewSocketServer(config ServerConfig, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		config:   config,
		handlers: make(map[string]ActionFunc),
		logger:   logger,
	}
}

// Handle registers handler for action. It panics on a duplicate action.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Listen opens the configured socket. A stale unix socket file at the
// address is removed first.
func (s *SocketServer) Listen() (net.Listener, error) {
	if s.config.Network == "unix" {
		if err := os.Remove(s.config.Address); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale socket %s: %w", s.config.Address, err)
		}
	}
	listener, err := net.Listen(s.config.Network, s.config.Address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s %s: %w", s.config.Network, s.config.Address, err)
	}
	return listener, nil
}

// ListenAndServe opens the socket and serves it until ctx is cancelled.
func (s *SocketServer) ListenAndServe(ctx context.Context) error {
	listener, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled, then waits
// for in-flight requests to finish. It closes listener and, for unix
// sockets, removes the socket file on return.
func (s *SocketServer) Serve(ctx context.Context, listener net.Listener) error {
	defer func() {
		listener.Close()
		if s.config.Network == "unix" {
			os.Remove(s.config.Address)
		}
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening",
		"network", s.config.Network,
		"address", listener.Addr().String(),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	started := time.Now()
	logger := s.logger.With("request_id", uuid.NewString())

	conn.SetReadDeadline(started.Add(s.config.ReadTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, s.config.MaxRequestBytes)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.fail(conn, logger, "", fmt.Errorf("%w: %v", ErrBadRequest, err), started)
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.fail(conn, logger, "", fmt.Errorf("%w: %v", ErrBadRequest, err), started)
		return
	}
	if header.Action == "" {
		s.fail(conn, logger, "", fmt.Errorf("%w: missing required field: action", ErrBadRequest), started)
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.fail(conn, logger, header.Action, fmt.Errorf("%w: unknown action %q", ErrBadRequest, header.Action), started)
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.fail(conn, logger, header.Action, err, started)
		return
	}

	s.succeed(conn, logger, header.Action, result, started)
}

func (s *SocketServer) fail(conn net.Conn, logger *slog.Logger, action string, err error, started time.Time) {
	code := ErrorCode(err)
	if code == CodeInternal {
		logger.Error("action failed", "action", action, "error", err)
	} else {
		logger.Debug("action rejected", "action", action, "code", code, "error", err)
	}
	if _, known := s.handlers[action]; known {
		metrics.ObserveRequest(action, code, time.Since(started))
	}

	s.write(conn, logger, Response{
		OK:    false,
		Error: err.Error(),
		Code:  code,
	})
}

func (s *SocketServer) succeed(conn net.Conn, logger *slog.Logger, action string, result any, started time.Time) {
	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.fail(conn, logger, action, fmt.Errorf("marshaling response: %w", err), started)
			return
		}
		response.Data = data
	}

	logger.Debug("action handled", "action", action, "elapsed", time.Since(started))
	metrics.ObserveRequest(action, CodeOK, time.Since(started))
	s.write(conn, logger, response)
}

// write sends response. Failures only get logged: the connection is
// closing either way.
func (s *SocketServer) write(conn net.Conn, logger *slog.Logger, response Response) {
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		logger.Debug("failed to write response", "error", err)
	}
}
