package relay

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/nexusmail/nexus-mailer/internal/domain"
)

// Manager opens authenticated relay sessions. It holds no state beyond dial
// parameters; retry and backoff decisions belong to the delivery worker.
type Manager struct {
	dialTimeout time.Duration
}

func NewManager() *Manager {
	return &Manager{dialTimeout: 10 * time.Second}
}

// Session is one live SMTP connection. The protocol forbids concurrent use,
// so a session is owned by exactly one worker and driven sequentially.
type Session struct {
	client *smtp.Client
	host   string
}

// Open dials the identity's relay and authenticates immediately, so that bad
// credentials surface at open time instead of on the first send.
func (m *Manager) Open(identity *domain.SMTPIdentity) (*Session, error) {
	addr := net.JoinHostPort(identity.Host, strconv.Itoa(identity.Port))

	conn, err := net.DialTimeout("tcp", addr, m.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, identity.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open smtp session with %s: %w", addr, err)
	}

	if identity.UseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: identity.Host}); err != nil {
			client.Close()
			return nil, fmt.Errorf("starttls with %s failed: %w", addr, err)
		}
	}

	if identity.Username != "" {
		auth := smtp.PlainAuth("", identity.Username, identity.Password, identity.Host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, fmt.Errorf("authentication with %s failed: %w", addr, err)
		}
	}

	return &Session{client: client, host: identity.Host}, nil
}

// Send delivers one prepared message over the live session.
func (s *Session) Send(from, to string, msg []byte) error {
	if err := s.client.Mail(from); err != nil {
		return err
	}

	if err := s.client.Rcpt(to); err != nil {
		return err
	}

	w, err := s.client.Data()
	if err != nil {
		return err
	}

	if _, err := w.Write(msg); err != nil {
		w.Close()
		return err
	}

	return w.Close()
}

// Close ends the session politely, falling back to dropping the connection
// when the relay no longer answers.
func (s *Session) Close() error {
	if err := s.client.Quit(); err != nil {
		return s.client.Close()
	}
	return nil
}
