package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveVariables(t *testing.T) {
	tests := []struct {
		address string
		name    string
		domain  string
	}{
		{address: "jane.doe@example.com", name: "Jane Doe", domain: "example.com"},
		{address: "a1_b-2@x.io", name: "A B", domain: "x.io"},
		{address: "john__smith--99@mail.org", name: "John Smith", domain: "mail.org"},
		{address: "12345@numbers.net", name: "", domain: "numbers.net"},
		{address: "élodie.martin@example.fr", name: "Élodie Martin", domain: "example.fr"},
		{address: "no-at-sign", name: "No At Sign", domain: ""},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			vars := DeriveVariables(tt.address)
			assert.Equal(t, tt.address, vars["Email"])
			assert.Equal(t, tt.domain, vars["Domain"])
			assert.Equal(t, tt.name, vars["Name"])
		})
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		address  string
		want     string
	}{
		{name: "name", template: "Hello {Name}", address: "jane.doe@example.com", want: "Hello Jane Doe"},
		{name: "separators collapse", template: "Hello {Name}", address: "a1_b-2@x.io", want: "Hello A B"},
		{name: "all keys", template: "{Name} <{Email}> at {Domain}", address: "bob@corp.io", want: "Bob <bob@corp.io> at corp.io"},
		{name: "repeated", template: "{Name}, {Name}!", address: "amy@x.io", want: "Amy, Amy!"},
		{name: "unknown placeholder untouched", template: "Hi {Unknown} {Name}", address: "amy@x.io", want: "Hi {Unknown} Amy"},
		{name: "case sensitive keys", template: "{name}", address: "amy@x.io", want: "{name}"},
		{name: "empty template", template: "", address: "amy@x.io", want: ""},
		{name: "empty name renders blank", template: "Hi {Name}!", address: "42@x.io", want: "Hi !"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.template, DeriveVariables(tt.address)))
		})
	}
}
