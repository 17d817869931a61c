// Package inbound reads support email from the mailbox and decodes it.
package inbound

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"regexp"
	"strings"

	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
	htmlcharset "golang.org/x/net/html/charset"
)

// DecodeErrorMarker replaces a field that could not be decoded.
const DecodeErrorMarker = "[decode error]"

const maxAttachmentBytes = 25 << 20

func init() {
	gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	}
}

// Attachment is one file carried by a message.
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ParsedMessage is the decoded view of one raw email. Fields are never nil.
type ParsedMessage struct {
	Subject      string
	Sender       string
	Body         string
	Attachments  []Attachment
	DecodeErrors []string
}

var angleAddress = regexp.MustCompile(`<([^<>\s]+@[^<>\s]+)>`)

var stripHTML = bluemonday.StrictPolicy()

// Parse decodes raw bytes into a ParsedMessage. It never fails: a message that
// cannot be read at all yields an empty result.
func Parse(raw []byte) (msg ParsedMessage) {
	msg = emptyMessage()
	defer func() {
		if r := recover(); r != nil {
			msg = emptyMessage()
			msg.DecodeErrors = append(msg.DecodeErrors, fmt.Sprintf("panic: %v", r))
		}
	}()
	if len(raw) == 0 {
		return msg
	}

	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) && !gomessage.IsUnknownEncoding(err) {
		msg.DecodeErrors = append(msg.DecodeErrors, fmt.Sprintf("message: %v", err))
		return msg
	}
	if reader == nil {
		return msg
	}
	defer reader.Close()

	msg.Subject = decodeSubject(&reader.Header, &msg)
	msg.Sender = extractSender(reader.Header.Get("From"))

	mediaType, _, _ := reader.Header.ContentType()
	multipart := strings.HasPrefix(strings.ToLower(mediaType), "multipart/")
	readParts(reader, multipart, &msg)
	return msg
}

func emptyMessage() ParsedMessage {
	return ParsedMessage{Attachments: []Attachment{}, DecodeErrors: []string{}}
}

func decodeSubject(header *gomail.Header, msg *ParsedMessage) string {
	subject, err := header.Subject()
	if err == nil {
		return strings.TrimSpace(subject)
	}
	dec := &mime.WordDecoder{CharsetReader: htmlcharset.NewReaderLabel}
	if decoded, derr := dec.DecodeHeader(header.Get("Subject")); derr == nil {
		return strings.TrimSpace(decoded)
	}
	msg.DecodeErrors = append(msg.DecodeErrors, fmt.Sprintf("subject: %v", err))
	return DecodeErrorMarker
}

// extractSender pulls the address out of "Name <addr>" and otherwise returns the raw header.
func extractSender(from string) string {
	if m := angleAddress.FindStringSubmatch(from); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(from)
}

func readParts(reader *gomail.Reader, multipart bool, msg *ParsedMessage) {
	var (
		plainFound bool
		htmlBody   string
	)
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			msg.DecodeErrors = append(msg.DecodeErrors, fmt.Sprintf("part: %v", err))
			if !plainFound {
				msg.Body = DecodeErrorMarker
				plainFound = true
			}
			break
		}

		switch header := part.Header.(type) {
		case *gomail.InlineHeader:
			if plainFound {
				continue
			}
			mediaType, _, ctErr := header.ContentType()
			if ctErr != nil || mediaType == "" {
				mediaType = "text/plain"
			}
			mediaType = strings.ToLower(mediaType)
			if multipart && mediaType != "text/plain" && mediaType != "text/html" {
				continue
			}
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				msg.DecodeErrors = append(msg.DecodeErrors, fmt.Sprintf("body: %v", readErr))
				msg.Body = DecodeErrorMarker
				plainFound = true
				continue
			}
			if multipart && mediaType == "text/html" {
				if htmlBody == "" {
					htmlBody = htmlToText(string(body))
				}
				continue
			}
			msg.Body = strings.TrimSpace(string(body))
			plainFound = true
		case *gomail.AttachmentHeader:
			if att, ok := readAttachment(part, header, msg); ok {
				msg.Attachments = append(msg.Attachments, att)
			}
		}
	}
	if !plainFound && htmlBody != "" {
		msg.Body = htmlBody
	}
}

func readAttachment(part *gomail.Part, header *gomail.AttachmentHeader, msg *ParsedMessage) (Attachment, bool) {
	filename, err := header.Filename()
	if err != nil {
		msg.DecodeErrors = append(msg.DecodeErrors, fmt.Sprintf("attachment name: %v", err))
		filename = DecodeErrorMarker
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		filename = "attachment.bin"
	}
	contentType, _, ctErr := header.ContentType()
	if ctErr != nil || strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}
	data, err := io.ReadAll(io.LimitReader(part.Body, maxAttachmentBytes+1))
	if err != nil {
		msg.DecodeErrors = append(msg.DecodeErrors, fmt.Sprintf("attachment %s: %v", filename, err))
		return Attachment{}, false
	}
	if len(data) > maxAttachmentBytes {
		msg.DecodeErrors = append(msg.DecodeErrors, fmt.Sprintf("attachment %s: exceeds %d bytes", filename, maxAttachmentBytes))
		return Attachment{}, false
	}
	return Attachment{FileName: filename, ContentType: strings.ToLower(contentType), Data: data}, true
}

func htmlToText(s string) string {
	return strings.TrimSpace(html.UnescapeString(stripHTML.Sanitize(s)))
}
