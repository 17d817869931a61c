package notify

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
	htmlPolicy   *bluemonday.Policy
)

func renderer() (goldmark.Markdown, *bluemonday.Policy) {
	markdownOnce.Do(func() {
		markdown = goldmark.New(goldmark.WithExtensions(extension.Linkify))
		htmlPolicy = bluemonday.UGCPolicy()
	})
	return markdown, htmlPolicy
}

// compose renders a markdown body into sanitized HTML and keeps the source as the text part.
func compose(to, subject, body string) Message {
	md, policy := renderer()
	var buf bytes.Buffer
	html := ""
	if err := md.Convert([]byte(body), &buf); err == nil {
		html = policy.Sanitize(buf.String())
	}
	return Message{To: to, Subject: subject, HTML: html, Text: body}
}

// quote turns free text into a markdown block quote so user content cannot restructure the notice.
func quote(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

// Confirmation acknowledges a new ticket. tempPassword is only set for freshly provisioned accounts.
func Confirmation(to, title, ticketID, tempPassword string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello,\n\nWe have received your ticket **%s** (reference `%s`). ", escape(title), ticketID)
	b.WriteString("A member of staff will look into it and reply as soon as possible.\n")
	if tempPassword != "" {
		fmt.Fprintf(&b, "\nAn account was created for you. Sign in with **%s** and the temporary password `%s`, then change it.\n", escape(to), tempPassword)
	}
	b.WriteString("\nStudent Support")
	return compose(to, fmt.Sprintf("Your Ticket '%s' Has Been Received", title), b.String())
}

// Duplicate tells the sender their message matches an earlier ticket.
func Duplicate(to, title, priorTicketID string) Message {
	body := fmt.Sprintf("Hello,\n\nYour message **%s** matches ticket `%s`, which we already have on file. "+
		"No new ticket was created. Please follow up on the existing ticket instead.\n\nStudent Support", escape(title), priorTicketID)
	return compose(to, "Duplicate Ticket Submission", body)
}

// Response forwards a staff answer to the ticket creator.
func Response(to, title, responder, message string) Message {
	body := fmt.Sprintf("Hello,\n\n%s replied to your ticket **%s**:\n\n%s\n\nStudent Support", escape(responder), escape(title), quote(message))
	return compose(to, fmt.Sprintf("Update on Your Ticket: '%s'", title), body)
}

// Redirect tells a specialist a ticket now belongs to them.
func Redirect(to, title, ticketID string) Message {
	body := fmt.Sprintf("Hello,\n\nTicket **%s** (reference `%s`) has been assigned to you.\n\nStudent Support", escape(title), ticketID)
	return compose(to, fmt.Sprintf("New Ticket Assigned: '%s'", title), body)
}

// Update tells the previously assigned staff member the student added information.
func Update(to, title, supplement string) Message {
	body := fmt.Sprintf("Hello,\n\nThe student updated ticket **%s**:\n\n%s\n\nStudent Support", escape(title), quote(supplement))
	return compose(to, fmt.Sprintf("Ticket Updated: '%s'", title), body)
}

// Returned asks the student for more information.
func Returned(to, title, reason string) Message {
	body := fmt.Sprintf("Hello,\n\nYour ticket **%s** needs more information before we can continue:\n\n%s\n\nStudent Support", escape(title), quote(reason))
	return compose(to, fmt.Sprintf("Update on Your Ticket: '%s'", title), body)
}

// Closed confirms a ticket was closed.
func Closed(to, title string, byInactivity bool) Message {
	reason := "It has been closed."
	if byInactivity {
		reason = "It was closed automatically after a period of inactivity."
	}
	body := fmt.Sprintf("Hello,\n\nYour ticket **%s** is now closed. %s\n\nStudent Support", escape(title), reason)
	return compose(to, fmt.Sprintf("Your Ticket '%s' Has Been Closed", title), body)
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "<", "&lt;", ">", "&gt;",
)

func escape(s string) string {
	return markdownEscaper.Replace(s)
}
