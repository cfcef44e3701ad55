// Package relay implements the outbound mail-relay wire protocol over raw
// sockets: plaintext, implicit-TLS, and STARTTLS-upgraded connections with
// LOGIN/PLAIN authentication and strict command/response turn-taking.
package relay

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"
)

type Client struct {
	Host     string
	Port     int
	Username string
	Password string
	Security string // "none", "tls", "starttls"

	// HeloDomain defaults to "localhost" when empty.
	HeloDomain string
	// DialTimeout bounds the TCP connect (and implicit TLS handshake).
	DialTimeout time.Duration
	// IOTimeout bounds every individual command/response exchange.
	IOTimeout time.Duration
	// TLS overrides the handshake config; ServerName defaults to Host.
	TLS *tls.Config
}

const (
	defaultDialTimeout = 25 * time.Second
	defaultIOTimeout   = 30 * time.Second
)

// Result carries the provider's literal acceptance line plus the full
// session transcript. The transcript is diagnostic output only and must not
// be persisted with campaign content.
type Result struct {
	MessageID   string
	ServerReply string
	Transcript  []string
}

// Send delivers one message over one authenticated connection. Exactly one
// socket is opened per call and always closed, on error paths included. The
// client holds no mutable state, so concurrent Sends each get an
// independent session.
func (c *Client) Send(ctx context.Context, msg Message) (Result, error) {
	if err := msg.validate(); err != nil {
		return Result{}, err
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()

	s := newSession(conn, c.Host, c.helo(), c.ioTimeout(), c.TLS)
	res, err := c.run(ctx, s, msg)
	res.Transcript = s.transcript
	return res, err
}

func (c *Client) run(ctx context.Context, s *session, msg Message) (Result, error) {
	steps := []func() error{
		s.greeting,
		s.ehlo,
	}
	if c.Security == "starttls" {
		steps = append(steps, s.startTLS)
	}
	steps = append(steps, func() error { return s.authenticate(c.Username, c.Password) })

	payload, messageID := msg.build()
	steps = append(steps,
		func() error { return s.mailFrom(msg.From) },
		func() error { return s.rcptTo(msg.To) },
	)

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			s.quit()
			return Result{}, &ConnectionError{Op: "session", Err: err}
		}
		if err := step(); err != nil {
			s.quit()
			return Result{}, err
		}
	}

	reply, err := s.data(payload)
	if err != nil {
		s.quit()
		return Result{ServerReply: reply}, err
	}
	s.quit()
	return Result{MessageID: messageID, ServerReply: reply}, nil
}

// dial opens the socket according to the security mode. For implicit TLS the
// session is encrypted from byte one and the first server line is still the
// numeric ready status.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	d := &net.Dialer{Timeout: c.dialTimeout()}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Op: "dial " + addr, Err: err}
	}
	if c.Security != "tls" {
		return conn, nil
	}

	cfg := &tls.Config{ServerName: c.Host}
	if c.TLS != nil {
		cfg = c.TLS.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = c.Host
		}
	}
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, &ConnectionError{Op: "tls handshake", Err: err}
	}
	return tlsConn, nil
}

func (c *Client) helo() string {
	if c.HeloDomain != "" {
		return c.HeloDomain
	}
	return "localhost"
}

func (c *Client) dialTimeout() time.Duration {
	if c.DialTimeout > 0 {
		return c.DialTimeout
	}
	return defaultDialTimeout
}

func (c *Client) ioTimeout() time.Duration {
	if c.IOTimeout > 0 {
		return c.IOTimeout
	}
	return defaultIOTimeout
}

func (m Message) validate() error {
	switch {
	case m.From == "":
		return fmt.Errorf("relay: message from address required")
	case m.To == "":
		return fmt.Errorf("relay: message to address required")
	case m.Subject == "":
		return fmt.Errorf("relay: message subject required")
	case m.HTMLBody == "" && m.PlainBody == "":
		return fmt.Errorf("relay: message needs an html or plain body")
	}
	return nil
}
