package email_test

import (
	"strings"
	"testing"
	"time"

	"github.com/ErlanBelekov/passwordless/internal/email"
)

func TestRenderLogin_ContainsLinkAndExpiry(t *testing.T) {
	body, err := email.RenderLogin(email.LoginData{
		BaseURL:           "http://localhost:8080/auth/verify",
		AuthenticationURL: "http://localhost:8080/auth/verify?token=abc.def",
		ExpiresIn:         "in 30 minutes",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, `href="http://localhost:8080/auth/verify?token=abc.def"`) {
		t.Errorf("body missing link: %s", body)
	}
	if !strings.Contains(body, "in 30 minutes") {
		t.Errorf("body missing expiry: %s", body)
	}
}

func TestRenderLogin_EscapesHTML(t *testing.T) {
	body, err := email.RenderLogin(email.LoginData{BaseURL: "<script>"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(body, "<script>") {
		t.Errorf("base URL was not escaped: %s", body)
	}
}

func TestHumanizeTTL(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{30 * time.Minute, "in 30 minutes"},
		{time.Minute, "in 1 minute"},
		{90 * time.Minute, "in 1 hour"},
		{48 * time.Hour, "in 2 days"},
		{10 * time.Second, "in 10 seconds"},
	}
	for _, tc := range cases {
		if got := email.HumanizeTTL(tc.in); got != tc.want {
			t.Errorf("HumanizeTTL(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
