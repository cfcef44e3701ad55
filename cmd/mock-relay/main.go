// mock-relay is a local stand-in for both outbound transports: a minimal
// mail-relay server on a TCP port and a webhook relay endpoint over HTTP.
// Outcomes are configurable so dispatch behavior (rejections, auth failures,
// quota) can be exercised without a real provider.
package main

import (
	"bufio"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"
)

type cfg struct {
	SMTPPort string `envconfig:"SMTP_PORT" default:"2525"`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8081"`

	// Accounts authenticate with these; empty accepts anything.
	Username string `envconfig:"MOCK_USERNAME" default:""`
	Password string `envconfig:"MOCK_PASSWORD" default:""`

	// RejectRcptSubstr fails RCPT TO for matching addresses.
	RejectRcptSubstr string  `envconfig:"MOCK_REJECT_RCPT_SUBSTR" default:"reject"`
	FailureRate      float64 `envconfig:"MOCK_FAILURE_RATE" default:"0"`

	// TLS cert/key enable STARTTLS advertisement.
	TLSCertFile string `envconfig:"MOCK_TLS_CERT_FILE" default:""`
	TLSKeyFile  string `envconfig:"MOCK_TLS_KEY_FILE" default:""`

	// Webhook knobs.
	BearerToken  string `envconfig:"MOCK_BEARER_TOKEN" default:""`
	InitialQuota int64  `envconfig:"MOCK_INITIAL_QUOTA" default:"500"`
	DelayMs      int    `envconfig:"MOCK_DELAY_MS" default:"0"`
}

type server struct {
	cfg     cfg
	tlsCfg  *tls.Config
	quota   int64
	rng     *rand.Rand
	rngMu   sync.Mutex
	counter uint64
}

func main() {
	var c cfg
	if err := envconfig.Process("", &c); err != nil {
		slog.Error("mock relay config load failed", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	s := &server{cfg: c, quota: c.InitialQuota, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}

	if c.TLSCertFile != "" && c.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLSCertFile, c.TLSKeyFile)
		if err != nil {
			slog.Error("mock relay tls load failed", "err", err)
			os.Exit(1)
		}
		s.tlsCfg = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	go s.serveSMTP()

	router := mux.NewRouter()
	router.HandleFunc("/v1/messages", s.handleWebhook).Methods(http.MethodPost)

	slog.Info("mock relay listening", "smtp_port", c.SMTPPort, "http_port", c.HTTPPort)
	if err := http.ListenAndServe(":"+c.HTTPPort, router); err != nil {
		slog.Error("mock relay http server failed", "err", err)
		os.Exit(1)
	}
}

func (s *server) serveSMTP() {
	ln, err := net.Listen("tcp", ":"+s.cfg.SMTPPort)
	if err != nil {
		slog.Error("mock relay smtp listen failed", "err", err)
		os.Exit(1)
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			slog.Error("mock relay smtp accept failed", "err", err)
			continue
		}
		go s.handleSMTP(conn)
	}
}

func (s *server) handleSMTP(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	say := func(line string) { fmt.Fprintf(conn, "%s\r\n", line) }

	say("220 mock-relay ready")
	var authed bool
	for {
		raw, err := br.ReadString('\n')
		if err != nil {
			return
		}
		line := strings.TrimRight(raw, "\r\n")
		verb := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(verb, "EHLO"), strings.HasPrefix(verb, "HELO"):
			say("250-mock-relay greets you")
			if s.tlsCfg != nil {
				say("250-STARTTLS")
			}
			say("250-AUTH LOGIN PLAIN")
			say("250 OK")
		case verb == "STARTTLS":
			if s.tlsCfg == nil {
				say("454 TLS not available")
				continue
			}
			say("220 ready for TLS")
			tlsConn := tls.Server(conn, s.tlsCfg)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			conn = tlsConn
			br = bufio.NewReader(conn)
			say = func(line string) { fmt.Fprintf(conn, "%s\r\n", line) }
		case strings.HasPrefix(verb, "AUTH LOGIN"):
			say("334 VXNlcm5hbWU6")
			user, err := br.ReadString('\n')
			if err != nil {
				return
			}
			say("334 UGFzc3dvcmQ6")
			pass, err := br.ReadString('\n')
			if err != nil {
				return
			}
			if !s.credsOK(decodeB64(user), decodeB64(pass)) {
				say("535 5.7.8 authentication credentials invalid")
				continue
			}
			authed = true
			say("235 authentication successful")
		case strings.HasPrefix(verb, "AUTH PLAIN"):
			blob := strings.TrimSpace(line[len("AUTH PLAIN"):])
			parts := strings.SplitN(decodeB64(blob), "\x00", 3)
			if len(parts) != 3 || !s.credsOK(parts[1], parts[2]) {
				say("535 5.7.8 authentication credentials invalid")
				continue
			}
			authed = true
			say("235 authentication successful")
		case strings.HasPrefix(verb, "MAIL FROM"):
			if s.cfg.Username != "" && !authed {
				say("530 5.7.0 authentication required")
				continue
			}
			say("250 sender ok")
		case strings.HasPrefix(verb, "RCPT TO"):
			if s.cfg.RejectRcptSubstr != "" && strings.Contains(strings.ToLower(line), s.cfg.RejectRcptSubstr) {
				say("550 5.1.1 recipient rejected by policy")
				continue
			}
			if s.roll() {
				say("451 4.3.0 temporary recipient failure")
				continue
			}
			say("250 recipient ok")
		case verb == "DATA":
			say("354 end data with <CRLF>.<CRLF>")
			for {
				bodyLine, err := br.ReadString('\n')
				if err != nil {
					return
				}
				if strings.TrimRight(bodyLine, "\r\n") == "." {
					break
				}
			}
			id := atomic.AddUint64(&s.counter, 1)
			say(fmt.Sprintf("250 2.0.0 OK queued as mock-%06d", id))
		case verb == "RSET", verb == "NOOP":
			say("250 OK")
		case verb == "QUIT":
			say("221 bye")
			return
		default:
			say("502 command not implemented")
		}
	}
}

type webhookRequest struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	HTMLBody  string `json:"htmlBody"`
	PlainBody string `json:"plainBody"`
	FromName  string `json:"fromName"`
	FromAlias string `json:"fromAlias"`
}

type webhookResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
	RemainingQuota *int64 `json:"remainingQuota,omitempty"`
}

func (s *server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.BearerToken != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.BearerToken {
		writeJSON(w, http.StatusUnauthorized, webhookResponse{Status: "error", Message: "bad token"})
		return
	}
	var req webhookRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Message: "invalid json"})
		return
	}
	if req.To == "" || req.Subject == "" {
		writeJSON(w, http.StatusOK, webhookResponse{Status: "error", Message: "missing to/subject"})
		return
	}
	if s.cfg.DelayMs > 0 {
		time.Sleep(time.Duration(s.cfg.DelayMs) * time.Millisecond)
	}
	if s.roll() {
		writeJSON(w, http.StatusOK, webhookResponse{Status: "error", Message: "simulated rejection"})
		return
	}
	left := atomic.AddInt64(&s.quota, -1)
	if left < 0 {
		writeJSON(w, http.StatusOK, webhookResponse{Status: "error", Message: "quota exhausted"})
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{Status: "success", Message: "queued", RemainingQuota: &left})
}

func (s *server) credsOK(user, pass string) bool {
	if s.cfg.Username == "" {
		return true
	}
	return user == s.cfg.Username && pass == s.cfg.Password
}

func decodeB64(s string) string {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return string(b)
}

func (s *server) roll() bool {
	if s.cfg.FailureRate <= 0 {
		return false
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < s.cfg.FailureRate
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
