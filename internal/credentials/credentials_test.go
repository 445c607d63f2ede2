package credentials

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestGetServiceName(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"", "cookbooksync"},
		{"sync.example.com", "cookbooksync-sync.example.com"},
		{"localhost:8080", "cookbooksync-localhost:8080"},
	}

	for _, tt := range tests {
		if got := getServiceName(tt.host); got != tt.want {
			t.Errorf("getServiceName(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestKeyringRoundTrip(t *testing.T) {
	keyring.MockInit()

	if err := Set("sync.example.com", "u1", "secret"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := Get("sync.example.com", "u1")
	if err != nil || got != "secret" {
		t.Fatalf("Get() = %q, %v", got, err)
	}
	if _, err := Get("other.example.com", "u1"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Get() on other host error = %v, want ErrTokenNotFound", err)
	}
	if err := Delete("sync.example.com", "u1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := Delete("sync.example.com", "u1"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("second Delete() error = %v, want ErrTokenNotFound", err)
	}
}

func TestKeyringValidation(t *testing.T) {
	keyring.MockInit()

	if err := Set("h", "", "t"); err == nil {
		t.Error("Set() with empty uid should fail")
	}
	if err := Set("h", "u", ""); err == nil {
		t.Error("Set() with empty token should fail")
	}
	if _, err := Get("h", ""); err == nil {
		t.Error("Get() with empty uid should fail")
	}
	if err := Delete("h", ""); err == nil {
		t.Error("Delete() with empty uid should fail")
	}
}

func TestResolve(t *testing.T) {
	keyring.MockInit()
	if err := Set("sync.example.com", "u1", "from-keyring"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		uid        string
		env        string
		wantToken  string
		wantSource Source
		wantErr    bool
	}{
		{name: "keyring wins over env", uid: "u1", env: "from-env", wantToken: "from-keyring", wantSource: SourceKeyring},
		{name: "env fallback", uid: "u2", env: "from-env", wantToken: "from-env", wantSource: SourceEnv},
		{name: "anonymous uses env", uid: "", env: "from-env", wantToken: "from-env", wantSource: SourceEnv},
		{name: "nothing configured", uid: "u2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(ENV_API_TOKEN, tt.env)
			r := NewResolver("https://sync.example.com/api")

			creds, err := r.Resolve(tt.uid)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if r.Token(tt.uid) != "" {
					t.Error("Token() should be empty when nothing is configured")
				}
				return
			}
			if creds.Token != tt.wantToken || creds.Source != tt.wantSource {
				t.Errorf("Resolve() = %+v, want token %q from %s", creds, tt.wantToken, tt.wantSource)
			}
		})
	}
}

func TestResolveKeyringUnavailable(t *testing.T) {
	t.Setenv(ENV_API_TOKEN, "from-env")
	r := NewResolver("https://sync.example.com")
	r.available = func() bool { return false }
	r.lookup = func(string, string) (string, error) {
		t.Fatal("keyring should not be consulted when unavailable")
		return "", nil
	}

	if got := r.Token("u1"); got != "from-env" {
		t.Errorf("Token() = %q, want from-env", got)
	}
}

func TestHostOf(t *testing.T) {
	if got := HostOf("https://sync.example.com:8443/v1"); got != "sync.example.com:8443" {
		t.Errorf("HostOf() = %q", got)
	}
	if got := HostOf(""); got != "" {
		t.Errorf("HostOf(\"\") = %q", got)
	}
}
