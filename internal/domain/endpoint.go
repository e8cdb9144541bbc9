package domain

import (
	"strings"
	"time"
)

const (
	DefaultSMTPPort           = 587
	DefaultMaxMessagesPerConn = 100
)

// Endpoint is an outbound SMTP server that jobs rotate through.
type Endpoint struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Host               string    `json:"host"`
	Port               int       `json:"port"`
	Secure             bool      `json:"secure"`
	Username           string    `json:"username"`
	Password           string    `json:"-"`
	MaxMessagesPerConn int       `json:"max_messages_per_conn"`
	CreatedAt          time.Time `json:"created_at"`
}

type EndpointParams struct {
	Name               string `json:"name"`
	Host               string `json:"host" validate:"required"`
	Port               int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Secure             bool   `json:"secure"`
	Username           string `json:"username" validate:"required"`
	Password           string `json:"password" validate:"required"`
	MaxMessagesPerConn int    `json:"max_messages_per_conn" validate:"omitempty,min=1"`
}

// Normalize trims the textual fields and fills in defaults for the optional ones.
func (p EndpointParams) Normalize() EndpointParams {
	p.Name = strings.TrimSpace(p.Name)
	p.Host = strings.TrimSpace(p.Host)
	p.Username = strings.TrimSpace(p.Username)
	if strings.TrimSpace(p.Password) == "" {
		p.Password = ""
	}
	if p.Port == 0 {
		p.Port = DefaultSMTPPort
	}
	if p.MaxMessagesPerConn == 0 {
		p.MaxMessagesPerConn = DefaultMaxMessagesPerConn
	}
	if p.Name == "" {
		p.Name = p.Username
	}
	return p
}

type HealthStatus string

const (
	HealthActive  HealthStatus = "active"
	HealthDead    HealthStatus = "dead"
	HealthUnknown HealthStatus = "unknown"
)

// EndpointHealth is the rolling send tally for one endpoint.
type EndpointHealth struct {
	Status              HealthStatus `json:"status"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	SuccessCount        int          `json:"success_count"`
	LastError           string       `json:"last_error,omitempty"`
	LastCheckedAt       *time.Time   `json:"last_checked_at,omitempty"`
}

type EndpointWithHealth struct {
	Endpoint
	Health EndpointHealth `json:"health"`
}
