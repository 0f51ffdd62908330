package server

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/kvstash/kvstash/internal/engine"
	"github.com/kvstash/kvstash/internal/logging"
	"github.com/kvstash/kvstash/internal/metrics"
	"github.com/kvstash/kvstash/internal/pool"
)

// Server accepts TCP connections and dispatches exactly one request per
// connection through a bounded worker pool, cloning the engine handle
// once per connection so each dispatched task owns its own read-side
// state without sharing file descriptors across goroutines.
type Server struct {
	eng  engine.Engine
	pool *pool.Pool
	ln   net.Listener
}

// New wires eng and pool together behind a not-yet-listening Server.
func New(eng engine.Engine, workers *pool.Pool) *Server {
	return &Server{eng: eng, pool: workers}
}

// Serve binds addr and accepts connections until the listener is closed
// (by Close, from another goroutine) or Accept returns a fatal error.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.ln = ln
	logging.Info("listening", zap.String("addr", addr))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}

		handle := s.eng.Clone()
		metrics.PoolQueueDepth.Inc()
		err = s.pool.Submit(func() {
			defer handle.Close()
			handleConn(conn, handle)
		})
		metrics.PoolQueueDepth.Dec()
		if err != nil {
			logging.Warn("dropping connection: pool closed", zap.Error(err))
			handle.Close()
			conn.Close()
		}
	}
}

// Close stops accepting new connections. In-flight connections continue
// running on their pool workers; call pool.Shutdown separately to wait
// for them.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func handleConn(conn net.Conn, eng engine.Engine) {
	defer conn.Close()
	start := time.Now()

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		logging.Warn("failed to read request", zap.Error(err))
		return
	}

	req, err := decodeRequest(line)
	if err != nil {
		writeResponse(conn, errResponse(err))
		metrics.RequestsTotal.WithLabelValues("unknown", "protocol_error").Inc()
		return
	}

	resp := dispatch(eng, req)
	writeResponse(conn, resp)

	outcome := "ok"
	if !resp.OK {
		outcome = "error"
	}
	metrics.RequestsTotal.WithLabelValues(string(req.Op), outcome).Inc()
	metrics.RequestDuration.WithLabelValues(string(req.Op)).Observe(time.Since(start).Seconds())
}

func dispatch(eng engine.Engine, req Request) Response {
	switch req.Op {
	case OpGet:
		value, found, err := eng.Get(req.Key)
		if err != nil {
			return errResponse(err)
		}
		if !found {
			return missResponse()
		}
		return foundResponse(value)
	case OpSet:
		if err := eng.Set(req.Key, req.Value); err != nil {
			return errResponse(err)
		}
		return okResponse()
	case OpRemove:
		if err := eng.Remove(req.Key); err != nil {
			return errResponse(wireError(err))
		}
		return okResponse()
	default:
		return errResponse(ErrMalformedRequest)
	}
}

// wireError translates an engine error into the error the client is
// contractually allowed to depend on for its own display logic, since
// engine.ErrKeyNotFound's own message is an internal diagnostic string,
// not a wire-level guarantee.
func wireError(err error) error {
	if errors.Is(err, engine.ErrKeyNotFound) {
		return errKeyNotFound
	}
	return err
}

var errKeyNotFound = errors.New("Key not found")

func writeResponse(conn net.Conn, resp Response) {
	data, err := encodeResponse(resp)
	if err != nil {
		logging.Error("failed to encode response", zap.Error(err))
		return
	}
	if _, err := conn.Write(data); err != nil {
		logging.Warn("failed to write response", zap.Error(err))
	}
}
