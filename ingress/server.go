// Package ingress accepts client connections, frames and tokenizes protocol
// lines, rejects structurally invalid commands with numeric replies and hands
// everything else to a Handler.
package ingress

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/lrstanley/girc"
	"github.com/presbrey/ircgate/config"
	"github.com/presbrey/ircgate/irc"
	"github.com/presbrey/ircgate/linecodec"
	"github.com/presbrey/ircgate/metrics"
	"github.com/presbrey/ircgate/transport"
)

// Handler receives commands that passed the structural checks.
type Handler interface {
	HandleCommand(sess *Session, e *girc.Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(sess *Session, e *girc.Event)

// HandleCommand calls f(sess, e).
func (f HandlerFunc) HandleCommand(sess *Session, e *girc.Event) { f(sess, e) }

// Server is the ingress server.
type Server struct {
	config    *config.Config
	handler   Handler
	metrics   *metrics.Metrics
	validate  *validator.Validate
	tlsConfig *tls.Config

	listener    *transport.Listener
	tlsListener *transport.Listener
	admin       *echo.Echo

	mu       sync.Mutex
	sessions map[string]*Session
	shutdown chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// shutdownWriteTimeout bounds the closing ERROR line sent to each client.
const shutdownWriteTimeout = time.Second

// New creates a server for cfg. A nil handler accepts every valid command
// without a reply.
func New(cfg *config.Config, handler Handler) (*Server, error) {
	if handler == nil {
		handler = HandlerFunc(func(*Session, *girc.Event) {})
	}

	s := &Server{
		config:   cfg,
		handler:  handler,
		metrics:  metrics.New(),
		validate: irc.NewValidator(),
		sessions: make(map[string]*Session),
		shutdown: make(chan struct{}),
	}

	if cfg.TLS.Enabled || cfg.TLS.StartTLS {
		tlsConfig, err := transport.NewTLSConfig(transport.TLSOptions{
			CertFile:          cfg.TLS.Cert,
			KeyFile:           cfg.TLS.Key,
			ACMEDomains:       cfg.TLS.ACMEDomains,
			ACMECacheDir:      cfg.TLS.ACMECacheDir,
			ServerName:        cfg.Server.Name,
			Organization:      cfg.Server.Network,
			BindAddr:          cfg.TLSListenAddress(),
			SaveGenerated:     cfg.TLS.SaveGenerated,
			GeneratedCertPath: cfg.TLS.GeneratedCertPath,
			GeneratedKeyPath:  cfg.TLS.GeneratedKeyPath,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set up TLS: %w", err)
		}
		s.tlsConfig = tlsConfig
	}

	s.admin = s.newAdmin()
	return s, nil
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Start opens the plain listener and, when TLS is enabled, the TLS listener.
func (s *Server) Start() error {
	ln, err := transport.Listen(s.config.ListenAddress(), nil)
	if err != nil {
		return fmt.Errorf("failed to start IRC listener: %w", err)
	}
	s.listener = ln
	log.Printf("IRC listener started on %s", ln.Addr())

	if s.config.TLS.Enabled {
		tln, err := transport.Listen(s.config.TLSListenAddress(), s.tlsConfig)
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to start TLS listener: %w", err)
		}
		s.tlsListener = tln
		log.Printf("TLS listener started on %s", tln.Addr())
	}

	if s.config.Admin.Enabled {
		addr := s.config.AdminListenAddress()
		go func() {
			if err := s.admin.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logf("Admin server error: %v", err)
			}
		}()
		log.Printf("Admin server started on %s", addr)
	}

	s.wg.Add(1)
	go s.acceptConnections(s.listener)
	if s.tlsListener != nil {
		s.wg.Add(1)
		go s.acceptConnections(s.tlsListener)
	}
	return nil
}

// Addr returns the plain listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// TLSAddr returns the TLS listener address, or nil when TLS is disabled.
func (s *Server) TLSAddr() net.Addr {
	if s.tlsListener == nil {
		return nil
	}
	return s.tlsListener.Addr()
}

// Shutdown closes the listeners and every open connection, then waits for
// the connection goroutines to exit or ctx to end. Calling it again is a
// no-op apart from the wait.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Printf("Stopping IRC server...")
	s.stopOnce.Do(func() { close(s.shutdown) })

	var errMsgs []string
	for _, ln := range []*transport.Listener{s.listener, s.tlsListener} {
		if ln == nil {
			continue
		}
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errMsgs = append(errMsgs, fmt.Sprintf("error closing listener %s: %v", ln.Addr(), err))
		}
	}

	if s.config.Admin.Enabled {
		if err := s.admin.Shutdown(ctx); err != nil {
			errMsgs = append(errMsgs, fmt.Sprintf("error stopping admin server: %v", err))
		}
	}

	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	timeout := shutdownWriteTimeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	for _, sess := range sessions {
		go sess.shutdown("ERROR :Server shutting down", timeout)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errMsgs = append(errMsgs, ctx.Err().Error())
	}

	if len(errMsgs) > 0 {
		return fmt.Errorf("errors during shutdown: %s", strings.Join(errMsgs, "; "))
	}
	log.Printf("IRC server stopped")
	return nil
}

func (s *Server) logf(format string, args ...any) {
	log.Printf(format, args...)
}

func (s *Server) acceptConnections(ln *transport.Listener) {
	defer s.wg.Done()
	for {
		stream, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logf("Error accepting connection: %v", err)
			continue
		}

		sess := newSession(s, stream)
		s.mu.Lock()
		s.sessions[sess.ID] = sess
		s.mu.Unlock()

		s.metrics.ConnectionsTotal.WithLabelValues(metrics.Secure(stream.IsSecure())).Inc()
		s.metrics.ActiveConnections.Inc()

		s.wg.Add(1)
		go s.serve(sess)
	}
}

// serve runs the read loop of one session until the client goes away or
// the line limit is exceeded.
func (s *Server) serve(sess *Session) {
	defer s.wg.Done()
	defer func() {
		sess.Close()
		s.mu.Lock()
		delete(s.sessions, sess.ID)
		s.mu.Unlock()
		s.metrics.ActiveConnections.Dec()
		s.logf("[%s] Client disconnected", sess.RemoteAddr())
	}()

	s.logf("[%s] New client connected (%s, secure=%v)", sess.RemoteAddr(), sess.ID, sess.IsSecure())

	for {
		if timeout := s.config.Limits.ReadTimeout.Duration; timeout > 0 {
			sess.currentStream().SetReadDeadline(time.Now().Add(timeout))
		}

		line, err := sess.reader.ReadLine()
		if err != nil {
			switch {
			case errors.Is(err, linecodec.ErrLineTooLong):
				s.metrics.LineTooLong.Inc()
				sess.SendRaw("ERROR :Line too long")
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			default:
				s.logf("[%s] Error reading from client: %v", sess.RemoteAddr(), err)
			}
			return
		}
		s.metrics.LinesReceived.Inc()

		if s.config.Debug {
			s.logf("[%s] <= %s", sess.ID, line)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		if !s.dispatch(sess, line) {
			return
		}
	}
}

// dispatch tokenizes and checks one line. It returns false when the
// connection must end.
func (s *Server) dispatch(sess *Session, line string) bool {
	if raw := rawSource(line); raw != "" {
		if err := irc.ValidateSource(raw); err != nil {
			s.metrics.ValidationFailures.WithLabelValues("", "invalid_source").Inc()
			if s.config.Debug {
				s.logf("[%s] Dropping line with invalid source %q: %v", sess.ID, raw, err)
			}
			return true
		}
	}

	e := girc.ParseEvent(line)
	if e == nil {
		return true
	}
	e.Command = strings.ToUpper(e.Command)

	if e.Command == "STARTTLS" {
		return s.startTLS(sess)
	}

	if err := checkCommand(s.validate, e); err != nil {
		s.metrics.ValidationFailures.WithLabelValues(e.Command, kind(err)).Inc()
		numeric, params := reply(e.Command, err)
		if werr := sess.Numeric(numeric, params...); werr != nil {
			return false
		}
		return true
	}

	s.handler.HandleCommand(sess, e)
	return true
}

// rawSource returns the prefix of a line without its leading colon, after
// any message tags.
func rawSource(line string) string {
	if strings.HasPrefix(line, "@") {
		_, rest, ok := strings.Cut(line, " ")
		if !ok {
			return ""
		}
		line = strings.TrimLeft(rest, " ")
	}
	if !strings.HasPrefix(line, ":") {
		return ""
	}
	line = line[1:]
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i]
	}
	return line
}

// startTLS upgrades the session stream in place. A refused upgrade keeps the
// plain connection; a failed handshake ends it.
func (s *Server) startTLS(sess *Session) bool {
	plain, ok := sess.currentStream().(*transport.PlainStream)
	switch {
	case !ok:
		sess.Numeric(errStartTLS, "STARTTLS failed (already using TLS)")
		return true
	case !s.config.TLS.StartTLS || s.tlsConfig == nil:
		sess.Numeric(errStartTLS, "STARTTLS failed (not available)")
		return true
	case sess.reader.Codec().Buffered() > 0:
		sess.Numeric(errStartTLS, "STARTTLS failed (pending plaintext)")
		return true
	}

	if err := sess.Numeric(rplStartTLS, "STARTTLS successful, proceed with TLS handshake"); err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	secure, err := transport.Upgrade(ctx, plain, s.tlsConfig)
	if err != nil {
		s.logf("[%s] STARTTLS handshake failed: %v", sess.RemoteAddr(), err)
		return false
	}

	sess.setStream(secure)
	s.metrics.TLSUpgrades.Inc()
	s.logf("[%s] Connection upgraded to TLS", sess.RemoteAddr())
	return true
}
