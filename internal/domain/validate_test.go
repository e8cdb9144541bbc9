package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpec() JobSpec {
	return JobSpec{
		Sender:     Sender{FromName: "News", FromEmail: "news@example.com", Subject: "Hello {Name}"},
		Recipients: []string{"jane.doe@example.com"},
	}
}

func TestValidate_JobSpec(t *testing.T) {
	tooMany := make([]string, MaxRecipients+1)
	for i := range tooMany {
		tooMany[i] = "r@example.com"
	}
	atLimit := tooMany[:MaxRecipients]

	tests := []struct {
		name      string
		mutate    func(*JobSpec)
		wantField string
	}{
		{name: "valid", mutate: func(*JobSpec) {}},
		{name: "recipients at limit", mutate: func(s *JobSpec) { s.Recipients = atLimit }},
		{name: "nil recipients", mutate: func(s *JobSpec) { s.Recipients = nil }, wantField: "recipients"},
		{name: "empty recipients", mutate: func(s *JobSpec) { s.Recipients = []string{} }, wantField: "recipients"},
		{name: "too many recipients", mutate: func(s *JobSpec) { s.Recipients = tooMany }, wantField: "recipients"},
		{name: "missing from email", mutate: func(s *JobSpec) { s.Sender.FromEmail = "" }, wantField: "from_email"},
		{name: "malformed from email", mutate: func(s *JobSpec) { s.Sender.FromEmail = "not-an-address" }, wantField: "from_email"},
		{name: "missing subject", mutate: func(s *JobSpec) { s.Sender.Subject = "" }, wantField: "subject"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(&spec)

			err := Validate(spec.Normalize())
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestValidate_EndpointParams(t *testing.T) {
	params := EndpointParams{Host: " smtp.example.com ", Username: "mailer", Password: "secret"}.Normalize()
	require.NoError(t, Validate(params))

	assert.Equal(t, "smtp.example.com", params.Host)
	assert.Equal(t, DefaultSMTPPort, params.Port)
	assert.Equal(t, DefaultMaxMessagesPerConn, params.MaxMessagesPerConn)
	assert.Equal(t, "mailer", params.Name)

	missing := []EndpointParams{
		{Username: "u", Password: "p"},
		{Host: "h", Password: "p"},
		{Host: "h", Username: "u", Password: "   "},
		{Host: "h", Username: "u", Password: "p", Port: 70000},
	}
	for _, p := range missing {
		err := Validate(p.Normalize())
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), "params %+v should be rejected", p)
	}
}
