package worker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/domain"
	"github.com/Priya8975/bulk-mail-dispatcher/internal/smtpsink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	tests := []struct {
		name     string
		env      Envelope
		contains []string
	}{
		{
			name: "plain text with display name",
			env: Envelope{
				FromName: "News Team", FromEmail: "news@example.com", To: "jane.doe@example.com",
				Subject: "Hello Jane Doe", Body: "Hi Jane",
			},
			contains: []string{"News Team", "<news@example.com>", "jane.doe@example.com", "Subject: Hello Jane Doe", "text/plain", "Hi Jane"},
		},
		{
			name: "html body without display name",
			env: Envelope{
				FromEmail: "news@example.com", To: "bob@corp.io",
				Subject: "Report", Body: "<p>Hi Bob</p>", IsHTML: true,
			},
			contains: []string{"news@example.com", "text/html", "<p>Hi Bob</p>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := buildMessage(tt.env)
			require.NoError(t, err)

			var buf bytes.Buffer
			_, err = msg.WriteTo(&buf)
			require.NoError(t, err)

			out := buf.String()
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			assert.NotEmpty(t, msg.GetMessageID())
		})
	}
}

func TestBuildMessage_Attachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("quarterly numbers"), 0o600))

	msg, err := buildMessage(Envelope{FromEmail: "a@example.com", To: "b@example.com", Subject: "s", Body: "b", Attachment: path})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "report.txt")

	_, err = buildMessage(Envelope{FromEmail: "a@example.com", To: "b@example.com", Subject: "s", Attachment: filepath.Join(t.TempDir(), "missing.pdf")})
	assert.Error(t, err)
}

func TestBuildMessage_InvalidAddresses(t *testing.T) {
	_, err := buildMessage(Envelope{FromEmail: "not an address", To: "b@example.com"})
	assert.Error(t, err)

	_, err = buildMessage(Envelope{FromEmail: "a@example.com", To: "nope"})
	assert.Error(t, err)
}

func setupSink(t *testing.T) *smtpsink.Server {
	t.Helper()
	srv, err := smtpsink.Listen("127.0.0.1:0", testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv
}

func sinkEndpoint(srv *smtpsink.Server, password string) domain.Endpoint {
	return domain.Endpoint{
		ID:                 "ep-sink",
		Host:               "127.0.0.1",
		Port:               srv.Addr().Port,
		Username:           "mailer",
		Password:           password,
		MaxMessagesPerConn: 2,
	}
}

func TestSMTPHandle_SendsThroughSink(t *testing.T) {
	srv := setupSink(t)
	dialer := NewSMTPDialer(5*time.Second, false, testLogger())

	handle, err := dialer.Dial(sinkEndpoint(srv, "secret"))
	require.NoError(t, err)
	defer handle.Close()

	ctx := context.Background()
	// Three sends with a cap of two messages per connection forces one redial.
	for _, to := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		id, err := handle.Send(ctx, Envelope{
			FromName: "News", FromEmail: "news@example.com", To: to,
			Subject: "Hello", Body: "Body for " + to,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}

	msgs := srv.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"c@example.com"}, msgs[2].To)
	assert.Contains(t, string(msgs[2].Data), "Body for c@example.com")
}

func TestSMTPHandle_RejectedRecipientIsTransportError(t *testing.T) {
	srv := setupSink(t)
	dialer := NewSMTPDialer(5*time.Second, false, testLogger())

	handle, err := dialer.Dial(sinkEndpoint(srv, "secret"))
	require.NoError(t, err)
	defer handle.Close()

	_, err = handle.Send(context.Background(), Envelope{FromEmail: "news@example.com", To: "fail.me@example.com", Subject: "s", Body: "b"})

	var terr *domain.TransportError
	require.True(t, errors.As(err, &terr), "expected transport error, got %v", err)
	assert.Equal(t, "ep-sink", terr.EndpointID)
	assert.Empty(t, srv.Messages())
}

func TestSMTPDialer_Verify(t *testing.T) {
	srv := setupSink(t)
	dialer := NewSMTPDialer(5*time.Second, false, testLogger())
	ctx := context.Background()

	assert.NoError(t, dialer.Verify(ctx, sinkEndpoint(srv, "secret")))
	assert.Error(t, dialer.Verify(ctx, sinkEndpoint(srv, smtpsink.RejectedPassword)))
}
