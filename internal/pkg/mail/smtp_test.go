package mail

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	netmail "net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSMTPRequiresHostPort(t *testing.T) {
	_, err := NewSMTP(SMTPConfig{Host: "localhost"})
	assert.ErrorIs(t, err, ErrSMTPHostPortRequired)
}

func TestSendValidatesBeforeDialing(t *testing.T) {
	// Arrange
	s, err := NewSMTP(SMTPConfig{Host: "127.0.0.1", Port: 1})
	require.NoError(t, err)

	// Act
	errNoRcpt := s.Send(context.Background(), Message{From: "noreply@example.org"})
	errNoSender := s.Send(context.Background(), Message{To: []string{"admin@example.org"}})
	errBadSender := s.Send(context.Background(), Message{From: "not an address", To: []string{"admin@example.org"}})

	// Assert
	assert.ErrorIs(t, errNoRcpt, ErrSMTPNoRecipients)
	assert.ErrorIs(t, errNoSender, ErrSMTPNoSender)
	assert.ErrorIs(t, errBadSender, ErrSMTPBadSender)
}

func TestSendHonoursCanceledContext(t *testing.T) {
	s, err := NewSMTP(SMTPConfig{Host: "127.0.0.1", Port: 1, From: "noreply@example.org"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = s.Send(ctx, Message{To: []string{"admin@example.org"}, TextBody: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderMultipart(t *testing.T) {
	// Arrange
	sender, err := netmail.ParseAddress("Admin Console <no-reply@example.org>")
	require.NoError(t, err)

	// Act
	raw, err := render(sender, Message{
		To:       []string{"admin@example.org"},
		Subject:  "Your admin verification code",
		TextBody: "code 123456",
		HTMLBody: "<b>123456</b>",
	}, time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))

	// Assert
	require.NoError(t, err)
	msg, err := netmail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)
	assert.Equal(t, "admin@example.org", msg.Header.Get("To"))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])
	var bodies []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(p)
		require.NoError(t, err)
		bodies = append(bodies, string(b))
	}
	assert.Equal(t, []string{"code 123456", "<b>123456</b>"}, bodies)
}

func TestRenderPlainText(t *testing.T) {
	sender := &netmail.Address{Address: "no-reply@example.org"}

	raw, err := render(sender, Message{To: []string{"a@example.org"}, TextBody: "hello"}, time.Now())

	require.NoError(t, err)
	assert.Contains(t, string(raw), "Content-Type: text/plain; charset=UTF-8\r\n")
	assert.True(t, strings.HasSuffix(string(raw), "\r\n\r\nhello"))
}
