package email

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"

	"EmailBlaster/internal/models"
)

// smtpStub speaks just enough SMTP for gomail: no STARTTLS, no AUTH.
type smtpStub struct {
	ln       net.Listener
	rejectTo string
	messages chan string
}

func newSMTPStub(t *testing.T) *smtpStub {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &smtpStub{ln: ln, messages: make(chan string, 10)}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *smtpStub) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *smtpStub) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *smtpStub) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(line string) { conn.Write([]byte(line + "\r\n")) }

	reply("220 stub ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 stub")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO"):
			if s.rejectTo != "" && strings.Contains(cmd, strings.ToUpper(s.rejectTo)) {
				reply("550 mailbox unavailable")
				continue
			}
			reply("250 OK")
		case cmd == "DATA":
			reply("354 go ahead")
			var buf bytes.Buffer
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if strings.TrimRight(l, "\r\n") == "." {
					break
				}
				buf.WriteString(l)
			}
			s.messages <- buf.String()
			reply("250 queued")
		case cmd == "RSET", cmd == "NOOP":
			reply("250 OK")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func TestSendNoTransport(t *testing.T) {
	s := &Sender{}
	_, err := s.Send(context.Background(), Message{To: "a@x.com"}, nil)
	if !errors.Is(err, ErrNoTransport) {
		t.Fatalf("expected ErrNoTransport, got %v", err)
	}
	if s.HasDefault() {
		t.Fatal("empty sender must not report a default transport")
	}
}

func TestSendThroughAccount(t *testing.T) {
	stub := newSMTPStub(t)
	s := &Sender{}
	account := &models.EmailAccount{Name: "News", Email: "news@acme.io", SMTPHost: "127.0.0.1", SMTPPort: stub.port()}

	id, err := s.Send(context.Background(), Message{
		To:              "ann@x.com",
		Subject:         "Hi Ann",
		HTML:            "<p>Hello</p>",
		ListUnsubscribe: "http://localhost:3000/unsubscribe/abc",
	}, account)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.HasSuffix(id, "@acme.io>") {
		t.Fatalf("unexpected message id %q", id)
	}

	raw := <-stub.messages
	for _, want := range []string{
		"From: News <news@acme.io>",
		"To: ann@x.com",
		"Subject: Hi Ann",
		"List-Unsubscribe: <http://localhost:3000/unsubscribe/abc>",
		"Message-ID: " + id,
		"<p>Hello</p>",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q:\n%s", want, raw)
		}
	}
}

func TestSendDefaultTransport(t *testing.T) {
	stub := newSMTPStub(t)
	s := &Sender{Host: "127.0.0.1", Port: stub.port(), From: "noreply@example.com"}

	if _, err := s.Send(context.Background(), Message{To: "bob@x.com", Subject: "s", HTML: "b"}, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if raw := <-stub.messages; !strings.Contains(raw, "From: noreply@example.com") {
		t.Fatalf("default from not used:\n%s", raw)
	}
}

func TestSendRejected(t *testing.T) {
	stub := newSMTPStub(t)
	stub.rejectTo = "bad@x.com"
	s := &Sender{Host: "127.0.0.1", Port: stub.port(), From: "noreply@example.com"}

	_, err := s.Send(context.Background(), Message{To: "bad@x.com", Subject: "s", HTML: "b"}, nil)
	if err == nil || !strings.Contains(err.Error(), "550") {
		t.Fatalf("expected 550 rejection, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	stub := newSMTPStub(t)
	s := &Sender{}

	ok := &models.EmailAccount{Email: "a@x.com", SMTPHost: "127.0.0.1", SMTPPort: stub.port()}
	if err := s.Verify(context.Background(), ok); err != nil {
		t.Fatalf("verify: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	_, p, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()
	port, _ := strconv.Atoi(p)

	down := &models.EmailAccount{Email: "a@x.com", SMTPHost: "127.0.0.1", SMTPPort: port}
	if err := s.Verify(context.Background(), down); err == nil {
		t.Fatal("expected verify to fail against a closed port")
	}
}

func TestSendCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Sender{Host: "127.0.0.1", Port: 1}
	if _, err := s.Send(ctx, Message{To: "a@x.com"}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDomainOf(t *testing.T) {
	cases := map[string]string{
		"news@acme.io":        "acme.io",
		"News <news@acme.io>": "acme.io",
		"":                    "localhost",
		"broken@":             "localhost",
	}
	for in, want := range cases {
		if got := domainOf(in); got != want {
			t.Errorf("domainOf(%q) = %q, want %q", in, got, want)
		}
	}
}
