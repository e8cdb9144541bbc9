// Package smtpsink is a minimal SMTP server that accepts and keeps every
// message it receives. Recipients whose local part starts with "fail" are
// rejected, and the password "wrong" fails authentication, so both the happy
// path and endpoint failures can be exercised without a real mail server.
package smtpsink

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"
)

const RejectedPassword = "wrong"

// Message is one accepted DATA transaction.
type Message struct {
	From string
	To   []string
	Data []byte
}

type Server struct {
	listener net.Listener
	logger   *slog.Logger

	mu       sync.Mutex
	messages []Message
	rejected int
	conns    sync.WaitGroup
}

// Listen binds the sink to addr. Use "127.0.0.1:0" for an ephemeral port.
func Listen(addr string, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return &Server{listener: ln, logger: logger}, nil
}

func (s *Server) Addr() *net.TCPAddr {
	return s.listener.Addr().(*net.TCPAddr)
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.conns.Wait()
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

func (s *Server) Rejected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}

type session struct {
	from  string
	rcpts []string
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	remote := conn.RemoteAddr().String()

	reply := func(format string, args ...any) bool {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return tp.PrintfLine(format, args...) == nil
	}

	if !reply("220 smtp-sink ready") {
		return
	}

	var sess session
	for {
		conn.SetReadDeadline(time.Now().Add(time.Minute))
		line, err := tp.ReadLine()
		if err != nil {
			return
		}

		verb, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "EHLO":
			tp.PrintfLine("250-smtp-sink greets %s", arg)
			tp.PrintfLine("250-AUTH PLAIN")
			reply("250 SIZE 10485760")
		case "HELO":
			reply("250 smtp-sink")
		case "AUTH":
			s.auth(tp, arg, reply)
		case "MAIL":
			sess = session{from: extractAddress(arg)}
			reply("250 2.1.0 OK")
		case "RCPT":
			to := extractAddress(arg)
			if strings.HasPrefix(strings.ToLower(to), "fail") {
				s.mu.Lock()
				s.rejected++
				s.mu.Unlock()
				s.logger.Info("recipient rejected", "remote", remote, "to", to)
				reply("550 5.1.1 <%s>: mailbox unavailable", to)
				continue
			}
			sess.rcpts = append(sess.rcpts, to)
			reply("250 2.1.5 OK")
		case "DATA":
			if len(sess.rcpts) == 0 {
				reply("554 5.5.1 no valid recipients")
				continue
			}
			reply("354 End data with <CR><LF>.<CR><LF>")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			n := s.store(Message{From: sess.from, To: sess.rcpts, Data: data})
			s.logger.Info("message accepted",
				"remote", remote,
				"from", sess.from,
				"to", strings.Join(sess.rcpts, ","),
				"bytes", len(data),
			)
			sess = session{}
			reply("250 2.0.0 OK queued as %d", n)
		case "RSET":
			sess = session{}
			reply("250 2.0.0 OK")
		case "NOOP":
			reply("250 2.0.0 OK")
		case "QUIT":
			reply("221 2.0.0 Bye")
			return
		default:
			reply("502 5.5.2 command not recognized")
		}
	}
}

func (s *Server) auth(tp *textproto.Conn, arg string, reply func(string, ...any) bool) {
	mech, initial, _ := strings.Cut(arg, " ")
	if !strings.EqualFold(mech, "PLAIN") {
		reply("504 5.5.4 unrecognized authentication type")
		return
	}

	if initial == "" {
		reply("334 ")
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		initial = line
	}

	decoded, err := base64.StdEncoding.DecodeString(initial)
	if err != nil {
		reply("501 5.5.2 cannot decode response")
		return
	}
	// identity \0 username \0 password
	parts := bytes.Split(decoded, []byte{0})
	if len(parts) != 3 || string(parts[2]) == RejectedPassword {
		reply("535 5.7.8 authentication credentials invalid")
		return
	}
	reply("235 2.7.0 Authentication successful")
}

func (s *Server) store(msg Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return len(s.messages)
}

// extractAddress pulls the address out of "FROM:<a@b> PARAM=..." style arguments.
func extractAddress(arg string) string {
	start := strings.IndexByte(arg, '<')
	end := strings.IndexByte(arg, '>')
	if start >= 0 && end > start {
		return arg[start+1 : end]
	}
	if _, after, ok := strings.Cut(arg, ":"); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(arg)
}
