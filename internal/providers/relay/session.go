package relay

import (
	"bufio"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// sessionState tracks where we are in the command sequence. Every transition
// method checks the current state first, so an out-of-order call fails
// immediately instead of confusing the server.
type sessionState int

const (
	stateConnected sessionState = iota // socket open, greeting not read
	stateGreeted                      // 220 greeting consumed
	stateHello                        // EHLO accepted
	stateReady                        // authenticated (or no auth required)
	stateMail                         // MAIL FROM accepted
	stateRcpt                         // RCPT TO accepted
	stateData                         // DATA accepted, body in flight
	stateClosed
)

const redacted = "[redacted]"

type session struct {
	conn       net.Conn
	br         *bufio.Reader
	state      sessionState
	host       string // for TLS certificate validation on upgrade
	heloDomain string
	ioTimeout  time.Duration
	tlsBase    *tls.Config
	transcript []string
	lastReply  []string
	extensions map[string]string
}

func newSession(conn net.Conn, host, heloDomain string, ioTimeout time.Duration, tlsBase *tls.Config) *session {
	return &session{
		conn:       conn,
		br:         bufio.NewReader(conn),
		state:      stateConnected,
		host:       host,
		heloDomain: heloDomain,
		ioTimeout:  ioTimeout,
		tlsBase:    tlsBase,
		extensions: map[string]string{},
	}
}

func (s *session) require(want sessionState, step string) error {
	if s.state != want {
		return fmt.Errorf("relay: %s issued out of order (session state %d)", step, s.state)
	}
	return nil
}

// record appends one transcript entry. The transcript travels back to the
// caller for diagnostics but is never persisted with campaign content.
func (s *session) record(dir, line string) {
	s.transcript = append(s.transcript, dir+" "+line)
}

func (s *session) deadline() {
	if s.ioTimeout > 0 {
		_ = s.conn.SetDeadline(time.Now().Add(s.ioTimeout))
	}
}

// writeLine sends one CRLF-terminated command. logAs overrides what lands in
// the transcript so credential blobs stay out of it.
func (s *session) writeLine(line, logAs string) error {
	s.deadline()
	if _, err := s.conn.Write([]byte(line + "\r\n")); err != nil {
		s.state = stateClosed
		return &ConnectionError{Op: "write", Err: err}
	}
	if logAs == "" {
		logAs = line
	}
	s.record("C:", logAs)
	return nil
}

// readReply consumes one (possibly multiline) numeric reply and returns the
// status code plus the final line's text. All lines of the reply are kept in
// lastReply for callers that need them (EHLO extension parsing).
func (s *session) readReply() (int, string, error) {
	var code int
	var last string
	s.lastReply = s.lastReply[:0]
	for {
		s.deadline()
		raw, err := s.br.ReadString('\n')
		if err != nil {
			s.state = stateClosed
			return 0, "", &ConnectionError{Op: "read", Err: err}
		}
		line := strings.TrimRight(raw, "\r\n")
		s.record("S:", line)
		s.lastReply = append(s.lastReply, line)
		if len(line) < 3 {
			return 0, line, &ProtocolError{Cmd: "reply", Line: line}
		}
		c, err := strconv.Atoi(line[:3])
		if err != nil {
			return 0, line, &ProtocolError{Cmd: "reply", Line: line}
		}
		code, last = c, line
		if len(line) == 3 || line[3] == ' ' {
			return code, last, nil
		}
		// hyphen after the code means a continuation line follows
	}
}

// cmd is one strict command/response turn: write, read, validate the status
// class (expectClass is the leading digit, e.g. 2 or 3).
func (s *session) cmd(expectClass int, line, logAs string) (int, string, error) {
	if err := s.writeLine(line, logAs); err != nil {
		return 0, "", err
	}
	code, reply, err := s.readReply()
	if err != nil {
		return code, reply, err
	}
	if code/100 != expectClass {
		verb := line
		if i := strings.IndexByte(line, ' '); i > 0 {
			verb = line[:i]
		}
		return code, reply, &ProtocolError{Cmd: verb, Code: code, Line: reply}
	}
	return code, reply, nil
}

// greeting consumes the server banner; the first line must be a numeric
// ready status.
func (s *session) greeting() error {
	if err := s.require(stateConnected, "greeting"); err != nil {
		return err
	}
	code, reply, err := s.readReply()
	if err != nil {
		return err
	}
	if code != 220 {
		return &ProtocolError{Cmd: "greeting", Code: code, Line: reply}
	}
	s.state = stateGreeted
	return nil
}

// ehlo identifies the client and collects advertised extensions. Called once
// after the greeting and again after a STARTTLS upgrade (mandatory, the
// pre-upgrade extension list is void).
func (s *session) ehlo() error {
	if err := s.require(stateGreeted, "EHLO"); err != nil {
		return err
	}
	if err := s.writeLine("EHLO "+s.heloDomain, ""); err != nil {
		return err
	}
	code, reply, err := s.readReply()
	if err != nil {
		return err
	}
	if code/100 != 2 {
		return &ProtocolError{Cmd: "EHLO", Code: code, Line: reply}
	}
	s.extensions = map[string]string{}
	for i, line := range s.lastReply {
		if i == 0 || len(line) < 5 {
			continue // first line is the server identity
		}
		ext := strings.ToUpper(strings.TrimSpace(line[4:]))
		if ext == "" {
			continue
		}
		name, rest, _ := strings.Cut(ext, " ")
		s.extensions[name] = rest
	}
	s.state = stateHello
	return nil
}

// startTLS upgrades the plaintext socket in place. Certificate validation
// uses the hostname the connection was dialed with.
func (s *session) startTLS() error {
	if err := s.require(stateHello, "STARTTLS"); err != nil {
		return err
	}
	if _, _, err := s.cmd(2, "STARTTLS", ""); err != nil {
		return err
	}
	cfg := &tls.Config{ServerName: s.host}
	if s.tlsBase != nil {
		cfg = s.tlsBase.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = s.host
		}
	}
	tlsConn := tls.Client(s.conn, cfg)
	s.deadline()
	if err := tlsConn.Handshake(); err != nil {
		s.state = stateClosed
		return &ConnectionError{Op: "starttls handshake", Err: err}
	}
	s.conn = tlsConn
	s.br = bufio.NewReader(tlsConn)
	s.state = stateGreeted // EHLO must be re-issued on the upgraded channel
	return s.ehlo()
}

// authenticate tries the challenge/response mechanism first and falls back
// to the single-blob mechanism on rejection. Rejection of both is terminal:
// the session never proceeds unauthenticated.
func (s *session) authenticate(username, password string) error {
	if err := s.require(stateHello, "AUTH"); err != nil {
		return err
	}
	if username == "" {
		s.state = stateReady
		return nil
	}

	err := s.authLogin(username, password)
	if err == nil {
		s.state = stateReady
		return nil
	}
	if IsConnectionError(err) {
		return err
	}

	err = s.authPlain(username, password)
	if err == nil {
		s.state = stateReady
		return nil
	}
	if IsConnectionError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrAuthFailed, err)
}

func (s *session) authLogin(username, password string) error {
	if _, _, err := s.cmd(3, "AUTH LOGIN", ""); err != nil {
		return err
	}
	b64 := base64.StdEncoding.EncodeToString
	if _, _, err := s.cmd(3, b64([]byte(username)), redacted); err != nil {
		return err
	}
	if _, _, err := s.cmd(2, b64([]byte(password)), redacted); err != nil {
		return err
	}
	return nil
}

func (s *session) authPlain(username, password string) error {
	blob := base64.StdEncoding.EncodeToString([]byte("\x00" + username + "\x00" + password))
	_, _, err := s.cmd(2, "AUTH PLAIN "+blob, "AUTH PLAIN "+redacted)
	return err
}

func (s *session) mailFrom(addr string) error {
	if err := s.require(stateReady, "MAIL FROM"); err != nil {
		return err
	}
	if _, _, err := s.cmd(2, "MAIL FROM:<"+addr+">", ""); err != nil {
		return err
	}
	s.state = stateMail
	return nil
}

func (s *session) rcptTo(addr string) error {
	if err := s.require(stateMail, "RCPT TO"); err != nil {
		return err
	}
	if _, _, err := s.cmd(2, "RCPT TO:<"+addr+">", ""); err != nil {
		return err
	}
	s.state = stateRcpt
	return nil
}

// data sends the begin-body marker, the dot-stuffed payload, and the
// end-of-body marker. Returns the server's literal acceptance line.
func (s *session) data(payload []byte) (string, error) {
	if err := s.require(stateRcpt, "DATA"); err != nil {
		return "", err
	}
	if _, _, err := s.cmd(3, "DATA", ""); err != nil {
		return "", err
	}
	s.state = stateData

	s.deadline()
	if _, err := s.conn.Write(dotStuff(payload)); err != nil {
		s.state = stateClosed
		return "", &ConnectionError{Op: "write body", Err: err}
	}
	s.record("C:", fmt.Sprintf("[%d byte body]", len(payload)))
	if err := s.writeLine(".", ""); err != nil {
		return "", err
	}
	code, reply, err := s.readReply()
	if err != nil {
		return "", err
	}
	if code/100 != 2 {
		return reply, &ProtocolError{Cmd: "DATA", Code: code, Line: reply}
	}
	s.state = stateReady
	return reply, nil
}

func (s *session) quit() {
	if s.state == stateClosed {
		return
	}
	// best effort; the socket is closed regardless
	_ = s.writeLine("QUIT", "")
	_, _, _ = s.readReply()
	s.state = stateClosed
}

// dotStuff normalizes line endings to CRLF and doubles leading dots so the
// body cannot terminate the DATA phase early.
func dotStuff(body []byte) []byte {
	text := string(body)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	var b strings.Builder
	b.Grow(len(text) + len(lines)*2)
	for _, line := range lines {
		if strings.HasPrefix(line, ".") {
			b.WriteByte('.')
		}
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}
