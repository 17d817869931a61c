package inbound

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParsePlainMessage(t *testing.T) {
	msg := Parse(crlf(
		"From: \"Ana Student\" <ana@uni.test>",
		"Subject: =?UTF-8?Q?Caf=C3=A9_card?=",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"  My card is blocked.  ",
	))

	assert.Equal(t, "ana@uni.test", msg.Sender)
	assert.Equal(t, "Café card", msg.Subject)
	assert.Equal(t, "My card is blocked.", msg.Body)
	assert.Empty(t, msg.Attachments)
	assert.Empty(t, msg.DecodeErrors)
}

func TestParseMultipartPrefersPlainAndKeepsAttachments(t *testing.T) {
	msg := Parse(crlf(
		"From: ben@uni.test",
		"Subject: Printer",
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=outer",
		"",
		"--outer",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>Printer <b>jams</b> &amp; smokes</p>",
		"--outer",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Printer jams and smokes",
		"--outer",
		"Content-Type: image/PNG",
		"Content-Disposition: attachment; filename=\"jam.png\"",
		"Content-Transfer-Encoding: base64",
		"",
		"aGVsbG8=",
		"--outer--",
		"",
	))

	assert.Equal(t, "ben@uni.test", msg.Sender)
	assert.Equal(t, "Printer jams and smokes", msg.Body)
	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	assert.Equal(t, "jam.png", att.FileName)
	assert.Equal(t, "image/png", att.ContentType)
	assert.Equal(t, []byte("hello"), att.Data)
}

func TestParseHTMLOnlyIsStripped(t *testing.T) {
	msg := Parse(crlf(
		"From: cai@uni.test",
		"Subject: Html",
		"Content-Type: multipart/alternative; boundary=b",
		"",
		"--b",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<div>Room <i>12</i> &amp; 13</div><script>x()</script>",
		"--b--",
		"",
	))
	assert.Equal(t, "Room 12 & 13", msg.Body)
}

func TestParseNeverFails(t *testing.T) {
	empty := Parse(nil)
	assert.NotNil(t, empty.Attachments)
	assert.NotNil(t, empty.DecodeErrors)
	assert.Empty(t, empty.Body)

	garbage := Parse([]byte("\x00\x01 not an email"))
	assert.NotNil(t, garbage.Attachments)
}

func TestIsBounce(t *testing.T) {
	assert.True(t, IsBounce("MAILER-DAEMON@uni.test", "hello"))
	assert.True(t, IsBounce("postmaster@uni.test", "hello"))
	assert.True(t, IsBounce("ana@uni.test", "Undeliverable: your message"))
	assert.False(t, IsBounce("ana@uni.test", "Wifi broken"))
}
