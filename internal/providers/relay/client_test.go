package relay

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeServer struct {
	ln net.Listener

	mu       sync.Mutex
	commands []string
}

// startFakeServer runs handler for each accepted connection and returns the
// client pointed at it.
func startFakeServer(t *testing.T, handler func(s *fakeServer, conn net.Conn)) (*fakeServer, *Client) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{ln: ln}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handler(s, conn)
			}()
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return s, &Client{
		Host:        host,
		Port:        port,
		Security:    "none",
		DialTimeout: 2 * time.Second,
		IOTimeout:   2 * time.Second,
	}
}

func (s *fakeServer) saw(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.commands {
		if strings.HasPrefix(strings.ToUpper(c), prefix) {
			n++
		}
	}
	return n
}

func (s *fakeServer) recordCmd(line string) {
	s.mu.Lock()
	s.commands = append(s.commands, line)
	s.mu.Unlock()
}

// acceptAll speaks just enough of the protocol to accept any message.
// rejectRcpt and rejectLogin flip individual steps to rejections.
func acceptAll(rejectRcpt, rejectLogin, rejectPlain bool) func(s *fakeServer, conn net.Conn) {
	return func(s *fakeServer, conn net.Conn) {
		br := bufio.NewReader(conn)
		say := func(line string) { fmt.Fprintf(conn, "%s\r\n", line) }
		readLine := func() (string, bool) {
			raw, err := br.ReadString('\n')
			if err != nil {
				return "", false
			}
			line := strings.TrimRight(raw, "\r\n")
			s.recordCmd(line)
			return line, true
		}

		say("220 fake ready")
		for {
			line, ok := readLine()
			if !ok {
				return
			}
			verb := strings.ToUpper(line)
			switch {
			case strings.HasPrefix(verb, "EHLO"):
				say("250-fake greets you")
				say("250 AUTH LOGIN PLAIN")
			case verb == "AUTH LOGIN":
				if rejectLogin {
					say("504 5.5.4 mechanism not supported")
					continue
				}
				say("334 VXNlcm5hbWU6")
				if _, ok := readLine(); !ok {
					return
				}
				say("334 UGFzc3dvcmQ6")
				if _, ok := readLine(); !ok {
					return
				}
				say("235 2.7.0 authentication successful")
			case strings.HasPrefix(verb, "AUTH PLAIN"):
				if rejectPlain {
					say("535 5.7.8 authentication credentials invalid")
					continue
				}
				say("235 2.7.0 authentication successful")
			case strings.HasPrefix(verb, "MAIL FROM"):
				say("250 sender ok")
			case strings.HasPrefix(verb, "RCPT TO"):
				if rejectRcpt {
					say("550 5.1.1 mailbox unavailable for policy reasons")
					continue
				}
				say("250 recipient ok")
			case verb == "DATA":
				say("354 go ahead")
				for {
					bodyLine, ok := readLine()
					if !ok {
						return
					}
					if bodyLine == "." {
						break
					}
				}
				say("250 2.0.0 OK queued as fake-42")
			case verb == "QUIT":
				say("221 bye")
				return
			default:
				say("502 command not implemented")
			}
		}
	}
}

func testMessage() Message {
	return Message{
		From:      "sender@example.com",
		FromName:  "Sender",
		To:        "rcpt@example.com",
		Subject:   "greetings",
		HTMLBody:  "<p>hello</p>",
		PlainBody: "hello\n.starts with a dot",
	}
}

func TestSendSuccess(t *testing.T) {
	srv, client := startFakeServer(t, acceptAll(false, false, false))
	client.Username = "user"
	client.Password = "hunter2"

	res, err := client.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.MessageID == "" {
		t.Fatalf("expected a message id")
	}
	if !strings.Contains(res.ServerReply, "queued as fake-42") {
		t.Fatalf("expected literal server acceptance, got %q", res.ServerReply)
	}
	if len(res.Transcript) == 0 {
		t.Fatalf("expected a transcript")
	}
	for _, line := range res.Transcript {
		if strings.Contains(line, "hunter2") {
			t.Fatalf("credentials leaked into transcript: %q", line)
		}
	}
	if srv.saw("QUIT") != 1 {
		t.Fatalf("session must terminate with QUIT")
	}
}

func TestSendNoAuthWhenNoCredentials(t *testing.T) {
	srv, client := startFakeServer(t, acceptAll(false, false, false))

	if _, err := client.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if srv.saw("AUTH") != 0 {
		t.Fatalf("no credentials configured, no AUTH expected")
	}
}

func TestSendRcptRejected(t *testing.T) {
	srv, client := startFakeServer(t, acceptAll(true, false, false))
	client.Username = "user"
	client.Password = "pw"

	_, err := client.Send(context.Background(), testMessage())
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if pe.Code != 550 || !strings.Contains(pe.Line, "policy reasons") {
		t.Fatalf("literal rejection text must be preserved: %+v", pe)
	}
	// auth happens once, before the recipient step, and is never retried
	if got := srv.saw("AUTH"); got != 1 {
		t.Fatalf("expected exactly 1 AUTH attempt, got %d", got)
	}
	if srv.saw("DATA") != 0 {
		t.Fatalf("DATA must not be issued after a rejected recipient")
	}
}

func TestAuthFallbackToPlain(t *testing.T) {
	srv, client := startFakeServer(t, acceptAll(false, true, false))
	client.Username = "user"
	client.Password = "pw"

	if _, err := client.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if srv.saw("AUTH LOGIN") != 1 || srv.saw("AUTH PLAIN") != 1 {
		t.Fatalf("expected LOGIN then PLAIN, saw %d/%d", srv.saw("AUTH LOGIN"), srv.saw("AUTH PLAIN"))
	}
}

func TestAuthBothMechanismsRejected(t *testing.T) {
	srv, client := startFakeServer(t, acceptAll(false, true, true))
	client.Username = "user"
	client.Password = "pw"

	_, err := client.Send(context.Background(), testMessage())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	// never proceed to an unauthenticated send
	if srv.saw("MAIL FROM") != 0 {
		t.Fatalf("MAIL FROM must not follow failed authentication")
	}
}

func TestGreetingNotReady(t *testing.T) {
	_, client := startFakeServer(t, func(s *fakeServer, conn net.Conn) {
		fmt.Fprintf(conn, "421 service not available\r\n")
	})

	_, err := client.Send(context.Background(), testMessage())
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.Code != 421 {
		t.Fatalf("expected 421 ProtocolError, got %v", err)
	}
}

// A server that advertises and accepts the upgrade but drops the connection
// during TLS negotiation is a connection error, never a successful send.
func TestStartTLSNegotiationDropped(t *testing.T) {
	_, client := startFakeServer(t, func(s *fakeServer, conn net.Conn) {
		br := bufio.NewReader(conn)
		say := func(line string) { fmt.Fprintf(conn, "%s\r\n", line) }
		say("220 fake ready")
		for {
			raw, err := br.ReadString('\n')
			if err != nil {
				return
			}
			verb := strings.ToUpper(strings.TrimRight(raw, "\r\n"))
			switch {
			case strings.HasPrefix(verb, "EHLO"):
				say("250-fake greets you")
				say("250 STARTTLS")
			case verb == "STARTTLS":
				say("220 ready for TLS")
				conn.Close() // hang up mid-negotiation
				return
			}
		}
	})
	client.Security = "starttls"

	_, err := client.Send(context.Background(), testMessage())
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
}

func TestStartTLSUpgradeAndResendEhlo(t *testing.T) {
	tlsCfg := selfSignedTLS(t)
	srv, client := startFakeServer(t, func(s *fakeServer, conn net.Conn) {
		br := bufio.NewReader(conn)
		say := func(line string) { fmt.Fprintf(conn, "%s\r\n", line) }
		say("220 fake ready")
		for {
			raw, err := br.ReadString('\n')
			if err != nil {
				return
			}
			line := strings.TrimRight(raw, "\r\n")
			s.recordCmd(line)
			if strings.ToUpper(line) == "STARTTLS" {
				say("220 ready for TLS")
				tlsConn := tls.Server(conn, tlsCfg)
				if err := tlsConn.Handshake(); err != nil {
					return
				}
				// continue the session encrypted, accepting everything
				acceptAll(false, false, false)(s, wrapGreetingless(tlsConn))
				return
			}
			if strings.HasPrefix(strings.ToUpper(line), "EHLO") {
				say("250-fake greets you")
				say("250 STARTTLS")
			}
		}
	})
	client.Security = "starttls"
	client.TLS = &tls.Config{InsecureSkipVerify: true}

	if _, err := client.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("send: %v", err)
	}
	// EHLO before the upgrade, and again on the encrypted channel
	if got := srv.saw("EHLO"); got != 2 {
		t.Fatalf("expected EHLO twice (pre and post upgrade), got %d", got)
	}
}

func TestImplicitTLS(t *testing.T) {
	tlsCfg := selfSignedTLS(t)
	srv, client := startFakeServer(t, func(s *fakeServer, conn net.Conn) {
		tlsConn := tls.Server(conn, tlsCfg)
		if err := tlsConn.Handshake(); err != nil {
			return
		}
		acceptAll(false, false, false)(s, tlsConn)
	})
	client.Security = "tls"
	client.TLS = &tls.Config{InsecureSkipVerify: true}

	res, err := client.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(res.ServerReply, "queued") {
		t.Fatalf("unexpected reply %q", res.ServerReply)
	}
	if srv.saw("QUIT") != 1 {
		t.Fatalf("session must terminate with QUIT")
	}
}

// wrapGreetingless swallows the duplicate greeting acceptAll writes so it
// can drive a session that is already past its banner.
func wrapGreetingless(conn net.Conn) net.Conn {
	return &greetinglessConn{Conn: conn}
}

type greetinglessConn struct {
	net.Conn
	skipped bool
}

func (c *greetinglessConn) Write(p []byte) (int, error) {
	if !c.skipped && strings.HasPrefix(string(p), "220 ") {
		c.skipped = true
		return len(p), nil
	}
	return c.Conn.Write(p)
}

func selfSignedTLS(t *testing.T) *tls.Config {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{der},
			PrivateKey:  key,
		}},
	}
}
