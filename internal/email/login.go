package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

const LoginSubject = "Your sign-in link"

var loginTemplate = template.Must(template.New("login").Parse(
	`<p>Click the link below to sign in to {{.BaseURL}}. The link expires {{.ExpiresIn}}.</p>` +
		`<p><a href="{{.AuthenticationURL}}">{{.AuthenticationURL}}</a></p>` +
		`<p>If you did not request this email you can ignore it.</p>`,
))

// LoginData is what the login template renders.
type LoginData struct {
	BaseURL           string
	AuthenticationURL string
	ExpiresIn         string
}

func RenderLogin(data LoginData) (string, error) {
	var buf bytes.Buffer
	if err := loginTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render login email: %w", err)
	}
	return buf.String(), nil
}

// HumanizeTTL renders the largest whole unit of d, e.g. "in 30 minutes".
func HumanizeTTL(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day")
	case d >= time.Hour:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "in 1 " + unit
	}
	return fmt.Sprintf("in %d %ss", n, unit)
}
