// Package server implements the KVS wire server: a listener that accepts
// one client connection at a time and drives it through the
// ReadingRequest -> Dispatching -> WritingResponse state machine from
// spec §4.2.
package server

import (
	"errors"
	"io"
	"log"
	"net"

	"github.com/Tomatosoup97/distributed-rust/internal/kvs"
	"github.com/Tomatosoup97/distributed-rust/internal/kvs/wire"
)

// Server accepts KVS client connections and dispatches requests to an
// [kvs.Engine].
type Server struct {
	engine kvs.Engine
	logger *log.Logger
}

// New creates a Server driving engine, logging dropped connections to
// logger.
func New(engine kvs.Engine, logger *log.Logger) *Server {
	return &Server{engine: engine, logger: logger}
}

// Serve accepts connections on ln until it returns an error (typically
// because ln was closed). Per spec §4.2/§5.1, connections are handled one
// at a time — no fan-out — so the listener is not resumed until the
// current connection's loop exits.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}

		s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	dec := wire.NewDecoder(conn)
	enc := wire.NewEncoder(conn)

	for {
		req, err := dec.DecodeRequest()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Printf("kvs: connection %s: read request: %v", conn.RemoteAddr(), err)
			}

			return
		}

		resp := s.dispatch(req)

		if err := enc.EncodeResponse(resp); err != nil {
			s.logger.Printf("kvs: connection %s: write response: %v", conn.RemoteAddr(), err)

			return
		}
	}
}

func (s *Server) dispatch(req wire.Request) wire.Response {
	switch req.Kind {
	case wire.KindPing:
		return wire.PongResponse()

	case wire.KindGet:
		value, ok, err := s.engine.Get(req.Key)
		if err != nil {
			return wire.ErrorResponse(err.Error())
		}

		if !ok {
			return wire.ValueNotFoundResponse()
		}

		return wire.ValueFoundResponse(value)

	case wire.KindSet:
		if err := s.engine.Set(req.Key, req.Value); err != nil {
			return wire.ErrorResponse(err.Error())
		}

		return wire.SuccessResponse()

	case wire.KindRemove:
		if err := s.engine.Remove(req.Key); err != nil {
			if kvs.IsKeyNotFound(err) {
				return wire.ErrorResponse(kvs.ErrKeyNotFound.Error())
			}

			return wire.ErrorResponse(err.Error())
		}

		return wire.SuccessResponse()

	default:
		return wire.ErrorResponse("unknown request kind: " + string(req.Kind))
	}
}
