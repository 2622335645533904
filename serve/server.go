package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"sync"

	fimlet "github.com/michaai/fimlet"
	"github.com/michaai/fimlet/fim"
)

// Completer processes a completion request against a settings snapshot.
type Completer interface {
	Complete(ctx context.Context, req *fimlet.Request, cfg fimlet.Config) *fimlet.Response
	Close()
}

// Server listens on a Unix domain socket for completion requests.
type Server struct {
	listener net.Listener
	sockPath string
	engine   Completer
	settings *Settings

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewServer creates a new IPC server bound to the given socket path.
func NewServer(sockPath string) (*Server, error) {
	return NewServerWithCompleter(sockPath, fim.NewEngine(), NewSettings())
}

// NewServerWithCompleter creates a new IPC server with a custom Completer
// and settings source.
func NewServerWithCompleter(sockPath string, completer Completer, settings *Settings) (*Server, error) {
	// Remove stale socket file if it exists
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		listener: listener,
		sockPath: sockPath,
		engine:   completer,
		settings: settings,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Serve accepts connections and handles requests.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close aborts in-flight provider calls, shuts down the engine and removes
// the socket file. It is safe to call more than once.
func (s *Server) Close() {
	s.once.Do(func() {
		s.cancel()
		s.listener.Close()
		s.engine.Close()
		s.settings.Close()
		os.Remove(s.sockPath)
	})
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			slog.Warn("failed to read request", "error", err)
		}
		return
	}

	raw := scanner.Bytes()
	slog.Debug("request", "bytes", len(raw))

	// Check if this is a config request (has "action" field)
	var cfgReq fimlet.ConfigRequest
	if err := json.Unmarshal(raw, &cfgReq); err == nil && cfgReq.Action != "" {
		s.writeJSON(conn, s.handleConfigRequest(&cfgReq))
		return
	}

	var req fimlet.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Warn("invalid request", "error", err)
		return
	}

	resp := s.engine.Complete(s.ctx, &req, s.settings.Snapshot())
	resp.RequestID = req.RequestID
	s.writeJSON(conn, resp)
}

// maxRequestBytes bounds a single request line; buffers are whole documents.
const maxRequestBytes = 16 << 20

func (s *Server) handleConfigRequest(req *fimlet.ConfigRequest) *fimlet.ConfigResponse {
	var resp fimlet.ConfigResponse

	switch req.Action {
	case "get":
		cfg := s.settings.Snapshot()
		resp.Config = &cfg

	case "reload":
		cfg := s.settings.Reload()
		resp.Config = &cfg
		slog.Info("settings reloaded", "endpoint", cfg.Endpoint, "model", cfg.Model)

	case "defaults":
		resp.Config = fimlet.DefaultConfig()

	case "validate":
		warnings, err := validateConfig(fimlet.ConfigPath())
		if err != nil {
			resp.Error = &fimlet.Error{
				Code:    "config_error",
				Message: err.Error(),
			}
		} else {
			resp.Warnings = warnings
		}

	default:
		resp.Error = &fimlet.Error{
			Code:    "unknown_action",
			Message: "unknown config action: " + req.Action,
		}
	}
	return &resp
}

func (s *Server) writeJSON(conn net.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	slog.Debug("response", "data", string(data))

	conn.Write(append(data, '\n'))
}
