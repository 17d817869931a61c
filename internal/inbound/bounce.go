package inbound

import "strings"

var (
	bounceSenders  = []string{"mailer-daemon", "postmaster@"}
	bounceSubjects = []string{"delivery status notification", "undeliverable", "mail delivery failed"}
)

// IsBounce reports whether a message is an automated delivery failure notice.
func IsBounce(sender, subject string) bool {
	s := strings.ToLower(sender)
	for _, p := range bounceSenders {
		if strings.Contains(s, p) {
			return true
		}
	}
	subj := strings.ToLower(subject)
	for _, p := range bounceSubjects {
		if strings.Contains(subj, p) {
			return true
		}
	}
	return false
}
