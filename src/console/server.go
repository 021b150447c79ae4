package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const eot = "\x04"

type Options struct {
	Host     string
	Port     int
	Hello    string
	Timeout  func() time.Duration
	Registry *Registry
	Logger   *slog.Logger
}

// Server accepts one console connection at a time.
type Server struct {
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	ln       net.Listener
	conn     net.Conn
	stopping bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Timeout == nil {
		opts.Timeout = func() time.Duration { return time.Minute }
	}
	return &Server{opts: opts, log: opts.Logger.With("component", "console")}
}

// Start listens and serves in the background until Stop.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("console: listen %s: %w", addr, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ln, s.cancel, s.stopping = ln, cancel, false
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.log.Info("console started", "addr", ln.Addr().String())
	go s.acceptLoop(ctx, ln)
	return nil
}

// Addr is the bound address, useful with port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop says goodbye to the connected operator, closes the listener and waits
// for the serving goroutine.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.ln == nil || s.stopping {
		s.mu.Unlock()
		return
	}
	s.log.Info("stopping console")
	s.stopping = true
	_ = s.ln.Close()
	if tc, ok := s.conn.(*net.TCPConn); ok {
		// unblocks the pending read, writes still go through
		_ = tc.CloseRead()
	} else if s.conn != nil {
		_ = s.conn.Close()
	}
	done := s.done
	s.mu.Unlock()

	<-done
	s.cancel()
	s.mu.Lock()
	s.ln = nil
	s.mu.Unlock()
}

func (s *Server) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer close(s.done)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isStopping() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}
		s.mu.Lock()
		if s.stopping {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conn = conn
		s.mu.Unlock()

		s.serve(ctx, conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	log := s.log.With("session", uuid.NewString(), "remote", conn.RemoteAddr().String())
	log.Info("connection accepted")
	defer func() {
		_ = conn.Close()
		log.Info("connection closed")
	}()

	write := func(text string) {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		_, _ = io.WriteString(conn, text)
	}
	write(s.opts.Hello + " says hello!\n")
	write("Type \"help\" to get a list of available operations.\n")

	r := bufio.NewReader(conn)
	for {
		write("> ")
		timeout := s.opts.Timeout()
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		line, err := r.ReadString('\n')
		if err != nil {
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				write(fmt.Sprintf("\nTimed out after %g seconds.\n", timeout.Seconds()))
			case s.isStopping():
				write("\nI have to go, bye.\n")
			case strings.TrimSpace(line) == eot:
				write("\nGot end of transmission without a goodbye. How rude!\n")
			default:
				write("\nThe connection got closed without a goodbye. How rude!\n")
			}
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == eot {
			write("\nGot end of transmission without a goodbye. How rude!\n")
			return
		}

		trimmed := strings.TrimSpace(line)
		switch trimmed {
		case "bye":
			write("Goodbye!\n")
			return
		case "help":
			write(s.opts.Registry.Help())
			continue
		}
		log.Info("command received", "command", trimmed)
		reply, err := s.run(ctx, trimmed)
		if err != nil {
			log.Warn("command failed", "command", trimmed, "error", err)
			reply = "Error: " + err.Error()
		}
		if reply != "" {
			if !strings.HasSuffix(reply, "\n") {
				reply += "\n"
			}
			write(reply)
		}
	}
}

func (s *Server) run(ctx context.Context, line string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.opts.Registry.Run(ctx, line)
}
