package inbound

import (
	"context"
	"errors"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-intake/internal/config"
)

type waitResult struct{ err error }

func (w waitResult) Wait() error { return w.err }

type selectResult struct{ err error }

func (s selectResult) Wait() (*imap.SelectData, error) { return &imap.SelectData{}, s.err }

type searchResult struct{ data *imap.SearchData }

func (s searchResult) Wait() (*imap.SearchData, error) { return s.data, nil }

type fetchResult struct {
	buffers []*imapclient.FetchMessageBuffer
	err     error
}

func (f fetchResult) Collect() ([]*imapclient.FetchMessageBuffer, error) { return f.buffers, f.err }
func (f fetchResult) Close() error                                      { return f.err }

type fakeIMAP struct {
	loginErr  error
	bodies    map[imap.UID][]byte
	stored    []imap.NumSet
	closed    bool
	loggedOut bool
}

func (f *fakeIMAP) Login(string, string) commandWaiter { return waitResult{f.loginErr} }
func (f *fakeIMAP) Logout() commandWaiter {
	f.loggedOut = true
	return waitResult{}
}
func (f *fakeIMAP) Close() error {
	f.closed = true
	return nil
}
func (f *fakeIMAP) Select(string, *imap.SelectOptions) selectWaiter { return selectResult{} }
func (f *fakeIMAP) UIDSearch(*imap.SearchCriteria, *imap.SearchOptions) searchWaiter {
	var uids []imap.UID
	for uid := range f.bodies {
		uids = append(uids, uid)
	}
	return searchResult{data: &imap.SearchData{All: imap.UIDSetNum(uids...)}}
}
func (f *fakeIMAP) Fetch(numSet imap.NumSet, _ *imap.FetchOptions) fetchWaiter {
	var out []*imapclient.FetchMessageBuffer
	for uid, body := range f.bodies {
		if imap.UIDSetNum(uid).String() == numSet.String() {
			out = append(out, &imapclient.FetchMessageBuffer{
				UID:         uid,
				BodySection: []imapclient.FetchBodySectionBuffer{{Section: &imap.FetchItemBodySection{}, Bytes: body}},
			})
		}
	}
	return fetchResult{buffers: out}
}
func (f *fakeIMAP) Store(numSet imap.NumSet, _ *imap.StoreFlags, _ *imap.StoreOptions) fetchWaiter {
	f.stored = append(f.stored, numSet)
	return fetchResult{}
}

func testMailbox(client *fakeIMAP) *IMAPMailbox {
	cfg := config.MailboxConfig{Host: "imap.uni.test", Username: "helpdesk", Password: "secret"}
	return NewIMAPMailbox(cfg, withIMAPClientFactory(func(context.Context) (imapClient, func(), error) {
		return client, func() {}, nil
	}))
}

func TestIMAPSessionFlow(t *testing.T) {
	ctx := context.Background()
	client := &fakeIMAP{bodies: map[imap.UID][]byte{7: []byte("raw message")}}

	session, err := testMailbox(client).Open(ctx)
	require.NoError(t, err)

	uids, err := session.SearchUnseen(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint32{7}, uids)

	raw, err := session.Fetch(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw message"), raw)

	_, err = session.Fetch(ctx, 8)
	assert.Error(t, err)

	require.NoError(t, session.MarkSeen(ctx, 7))
	require.Len(t, client.stored, 1)

	require.NoError(t, session.Close())
	assert.True(t, client.loggedOut)
	assert.True(t, client.closed)
}

func TestIMAPOpenFailures(t *testing.T) {
	_, err := NewIMAPMailbox(config.MailboxConfig{}).Open(context.Background())
	assert.Error(t, err)

	client := &fakeIMAP{loginErr: errors.New("bad credentials")}
	_, err = testMailbox(client).Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "imap auth")
	assert.True(t, client.closed)
}

func TestIMAPSessionHonoursCancelledContext(t *testing.T) {
	client := &fakeIMAP{bodies: map[imap.UID][]byte{}}
	session, err := testMailbox(client).Open(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, session.MarkSeen(ctx, 1))
	assert.Empty(t, client.stored)
}
