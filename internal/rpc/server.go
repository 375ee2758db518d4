package rpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/steveyegge/atlas/internal/cache"
)

// maxRequestSize bounds one request line.
const maxRequestSize = 1 << 20

// Notifier receives notify requests and reports daemon state for status.
type Notifier interface {
	Notify(p *NotifyParams) NotifyAck
	QueueDepth() int
	SessionID() string
}

// Server answers queries from the cache over a unix socket.
type Server struct {
	socketPath string
	cache      *cache.Cache
	notifier   Notifier
	logger     *log.Logger
	startedAt  time.Time

	listener net.Listener
	wg       sync.WaitGroup

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	running bool
}

// NewServer creates a server. notifier may be nil, in which case notify is
// rejected.
func NewServer(socketPath string, c *cache.Cache, notifier Notifier, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "[rpc] ", log.LstdFlags)
	}
	return &Server{
		socketPath: socketPath,
		cache:      c,
		notifier:   notifier,
		logger:     logger,
		conns:      make(map[net.Conn]struct{}),
	}
}

// SocketPath returns the socket the server listens on.
func (s *Server) SocketPath() string { return s.socketPath }

// Start binds the socket and begins accepting connections. A leftover
// socket file is replaced; callers hold the daemon lock.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server already running")
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to bind socket %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to secure socket: %w", err)
	}
	s.listener = listener
	s.running = true
	s.startedAt = time.Now()

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Printf("Listening on %s", s.socketPath)
	return nil
}

// Stop closes the listener and every open connection, waits for handlers
// to return and removes the socket file.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	err := s.listener.Close()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if rmErr := os.Remove(s.socketPath); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Printf("Accept error: %v", err)
			continue
		}

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxRequestSize)
	enc := json.NewEncoder(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := enc.Encode(s.Handle(line)); err != nil {
			return
		}
	}
}

// Handle decodes one request line and returns the response value.
func (s *Server) Handle(line []byte) any {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return ErrorResponse{Error: fmt.Sprintf("malformed request: %v", err)}
	}
	result, err := s.dispatch(&req)
	if err != nil {
		return ErrorResponse{Error: err.Error()}
	}
	return result
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadParams, err)
	}
	return nil
}

func (s *Server) dispatch(req *Request) (any, error) {
	switch req.Method {
	case MethodFind:
		var p FindParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return FindResult{Keyword: p.Keyword, Hits: s.cache.Find(p.Keyword)}, nil

	case MethodScope:
		var p ScopeParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return ScopeResult{Files: s.cache.Scope(p.Paths)}, nil

	case MethodStatus:
		res := StatusResult{
			Stats:     s.cache.Stats(),
			PID:       os.Getpid(),
			StartedAt: s.startedAt,
			Source:    "daemon",
		}
		if s.notifier != nil {
			res.Session = s.notifier.SessionID()
			res.QueueDepth = s.notifier.QueueDepth()
		}
		return res, nil

	case MethodNotify:
		if s.notifier == nil {
			return nil, fmt.Errorf("notify is not available")
		}
		var p NotifyParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if p.Event == "" {
			return nil, fmt.Errorf("%w: event is required", ErrBadParams)
		}
		return s.notifier.Notify(&p), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, req.Method)
}
