// Package mail delivers verification codes by email. Mail is the seam the
// admin notifier depends on; SMTP is the production implementation.
package mail

import (
	"context"
	"io"
)

// Message is one email. From may be empty to use the sender's default and
// may carry a display name ("Admin Console <no-reply@example.org>").
type Message struct {
	From     string
	To       []string
	Subject  string
	TextBody string
	HTMLBody string
}

type Mail interface {
	io.Closer
	Send(ctx context.Context, msg Message) error
}
