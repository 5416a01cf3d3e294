package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nickyhof/TreeDB"
	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/wire"
)

// maxLineSize bounds one request line.
const maxLineSize = 16 << 20

type Options struct {
	// Identity is the author of commits made by connections that never send
	// IDENTIFY.
	Identity core.Identity
	// RequireIdentity rejects statements until the client sends IDENTIFY.
	RequireIdentity bool
	// TLS enables TLS on the listener when set.
	TLS    *tls.Config
	Logger logrus.FieldLogger
}

// Server is a TCP SQL server that exposes a TreeDB repository. Every
// connection gets its own engine on a session of the shared repository.
type Server struct {
	listener net.Listener
	instance *TreeDB.Instance
	opts     Options
	log      logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[uuid.UUID]net.Conn
	wg    sync.WaitGroup
}

// NewServer creates a new SQL server for the given repository.
func NewServer(instance *TreeDB.Instance, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		instance: instance,
		opts:     opts,
		log:      log.WithField("component", "server"),
		ctx:      ctx,
		cancel:   cancel,
		conns:    map[uuid.UUID]net.Conn{},
	}
}

// Start begins listening for connections on the specified address.
func (s *Server) Start(addr string) error {
	var listener net.Listener
	var err error
	if s.opts.TLS != nil {
		listener, err = tls.Listen("tcp", addr, s.opts.TLS)
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener

	s.log.WithFields(logrus.Fields{"addr": listener.Addr().String(), "tls": s.TLSEnabled()}).Info("SQL server listening")

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every open connection, then waits for the
// connection handlers to return.
func (s *Server) Stop() error {
	s.cancel()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) TLSEnabled() bool {
	return s.opts.TLS != nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.WithError(err).Warn("accept failed")
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) track(id uuid.UUID, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[id] = conn
	return true
}

func (s *Server) untrack(id uuid.UUID) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	state := &ConnectionState{
		id:     uuid.New(),
		engine: s.instance.Engine(s.opts.Identity),
	}
	state.log = s.log.WithFields(logrus.Fields{"conn": state.id.String(), "remote": conn.RemoteAddr().String()})
	if !s.track(state.id, conn) {
		return
	}
	defer s.untrack(state.id)

	state.log.Info("client connected")
	defer state.log.Info("client disconnected")

	if err := s.send(conn, wire.Success(wire.HelloType, wire.HelloResponse{
		ConnectionID: state.id.String(),
		Version:      Version,
		Branch:       state.engine.CurrentBranch(),
	})); err != nil {
		state.log.WithError(err).Debug("failed to send hello")
		return
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			return
		}

		response := s.handleLine(line, state)
		if err := s.send(conn, response); err != nil {
			state.log.WithError(err).Warn("write failed")
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && s.ctx.Err() == nil {
		state.log.WithError(err).Warn("read failed")
	}
}

func (s *Server) send(conn net.Conn, response wire.Response) error {
	data, err := wire.EncodeResponse(response)
	if err != nil {
		return err
	}
	_, err = conn.Write(data)
	return err
}

func (s *Server) handleLine(line string, state *ConnectionState) wire.Response {
	query := line
	if strings.HasPrefix(line, "{") {
		req, err := wire.DecodeRequest([]byte(line))
		if err != nil {
			return wire.Failure(fmt.Errorf("%w: malformed request: %v", core.ErrInvalidArgument, err))
		}
		query = strings.TrimSpace(req.Query)
	}

	if isIdentifyCommand(query) {
		return s.handleIdentify(query, state)
	}
	if s.opts.RequireIdentity && !state.identified {
		return wire.Failure(fmt.Errorf("%w: send IDENTIFY <name> <email> first", core.ErrInvalidArgument))
	}
	return s.executeQuery(query, state)
}

func (s *Server) executeQuery(query string, state *ConnectionState) wire.Response {
	result, err := state.engine.Execute(s.ctx, query)
	if err != nil {
		state.log.WithError(err).WithField("code", core.ErrorCode(err)).Debug("query failed")
		return wire.Failure(err)
	}
	return wire.Encode(result)
}
