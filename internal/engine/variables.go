package engine

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Variables holds the per-recipient values available to subject and body
// templates under the keys Email, Domain and Name.
type Variables map[string]string

var (
	nameSeparators = regexp.MustCompile(`[._\d-]+`)
	placeholder    = regexp.MustCompile(`\{(Email|Domain|Name)\}`)
)

// DeriveVariables builds template variables from a recipient address.
// "jane.doe@example.com" gives Name "Jane Doe" and Domain "example.com".
func DeriveVariables(address string) Variables {
	parts := strings.Split(address, "@")
	local := parts[0]
	domain := ""
	if len(parts) > 1 {
		domain = parts[1]
	}

	words := strings.Fields(nameSeparators.ReplaceAllString(local, " "))
	for i, w := range words {
		words[i] = capitalize(w)
	}

	return Variables{
		"Email":  address,
		"Domain": domain,
		"Name":   strings.Join(words, " "),
	}
}

func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + word[size:]
}

// Render substitutes {Email}, {Domain} and {Name}. Other placeholders are
// left as they are.
func Render(template string, vars Variables) string {
	if template == "" {
		return ""
	}
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		return vars[m[1:len(m)-1]]
	})
}
