package inbound

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/config"
)

// Mailbox opens sessions against the support inbox.
type Mailbox interface {
	Open(ctx context.Context) (Session, error)
}

// Session is one logged-in, folder-selected mailbox connection.
type Session interface {
	SearchUnseen(ctx context.Context) ([]uint32, error)
	Fetch(ctx context.Context, uid uint32) ([]byte, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Close() error
}

type imapClient interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
	Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}

// IMAPMailbox reads unseen messages over IMAP and flags them \Seen once handled.
type IMAPMailbox struct {
	cfg       config.MailboxConfig
	logger    *zap.Logger
	newClient func(ctx context.Context) (imapClient, func(), error)
}

// IMAPOption customizes the mailbox.
type IMAPOption func(*IMAPMailbox)

// WithIMAPLogger overrides the logger.
func WithIMAPLogger(logger *zap.Logger) IMAPOption {
	return func(m *IMAPMailbox) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func withIMAPClientFactory(factory func(ctx context.Context) (imapClient, func(), error)) IMAPOption {
	return func(m *IMAPMailbox) {
		m.newClient = factory
	}
}

// NewIMAPMailbox builds a mailbox from configuration.
func NewIMAPMailbox(cfg config.MailboxConfig, opts ...IMAPOption) *IMAPMailbox {
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	m := &IMAPMailbox{cfg: cfg, logger: zap.NewNop()}
	m.newClient = m.dial
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open connects, authenticates and selects the configured folder.
func (m *IMAPMailbox) Open(ctx context.Context) (Session, error) {
	if m.cfg.Host == "" || m.cfg.Username == "" || m.cfg.Password == "" {
		return nil, errors.New("imap mailbox not configured")
	}
	client, extend, err := m.newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("imap connect: %w", err)
	}
	extend()
	if err := client.Login(m.cfg.Username, m.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap auth: %w", err)
	}
	if _, err := client.Select(m.cfg.Folder, nil).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap select %s: %w", m.cfg.Folder, err)
	}
	return &imapSession{client: client, extend: extend, logger: m.logger}, nil
}

// dial opens the TCP/TLS connection itself so each command can carry a deadline.
func (m *IMAPMailbox) dial(ctx context.Context) (imapClient, func(), error) {
	dialer := &net.Dialer{Timeout: m.cfg.Timeout}
	var (
		conn net.Conn
		err  error
	)
	if m.cfg.UseTLS {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config: &tls.Config{
				ServerName:         m.cfg.Host,
				InsecureSkipVerify: m.cfg.InsecureSkipVerify, //nolint:gosec
			},
		}
		conn, err = tlsDialer.DialContext(ctx, "tcp", m.cfg.Addr())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", m.cfg.Addr())
	}
	if err != nil {
		return nil, nil, err
	}
	timeout := m.cfg.Timeout
	extend := func() { _ = conn.SetDeadline(time.Now().Add(timeout)) }
	client := imapclient.New(conn, nil)
	return &imapClientWrapper{Client: client}, extend, nil
}

type imapSession struct {
	client imapClient
	extend func()
	logger *zap.Logger
}

func (s *imapSession) SearchUnseen(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.extend()
	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	uids := data.AllUIDs()
	result := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		result = append(result, uint32(uid))
	}
	return result, nil
}

func (s *imapSession) Fetch(ctx context.Context, uid uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.extend()
	section := &imap.FetchItemBodySection{Peek: true}
	opts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}
	buffers, err := s.client.Fetch(imap.UIDSetNum(imap.UID(uid)), opts).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch %d: %w", uid, err)
	}
	for _, buf := range buffers {
		if body := buf.FindBodySection(section); body != nil {
			return body, nil
		}
		if len(buf.BodySection) > 0 {
			return buf.BodySection[0].Bytes, nil
		}
	}
	return nil, fmt.Errorf("imap fetch %d: message not found", uid)
}

func (s *imapSession) MarkSeen(ctx context.Context, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.extend()
	store := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Silent: true, Flags: []imap.Flag{imap.FlagSeen}}
	if err := s.client.Store(imap.UIDSetNum(imap.UID(uid)), store, nil).Close(); err != nil {
		return fmt.Errorf("imap store seen %d: %w", uid, err)
	}
	return nil
}

func (s *imapSession) Close() error {
	s.extend()
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Warn("imap logout failed", zap.Error(err))
	}
	return s.client.Close()
}

type imapClientWrapper struct{ *imapclient.Client }

func (w *imapClientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *imapClientWrapper) Logout() commandWaiter { return w.Client.Logout() }
func (w *imapClientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *imapClientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}
func (w *imapClientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}
func (w *imapClientWrapper) Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter {
	return w.Client.Store(numSet, store, options)
}
