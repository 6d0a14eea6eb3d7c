package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubAuthn struct {
	result Result
	calls  int
}

func (s *stubAuthn) Authenticate(_ context.Context, _ *http.Request) Result {
	s.calls++
	return s.result
}

func TestChain(t *testing.T) {
	alice := &Identity{Subject: "alice"}

	tests := []struct {
		name      string
		votes     []Result
		def       Decision
		want      Decision
		subject   string
		evaluated int
	}{
		{"first yes wins", []Result{{Decision: Yes, Identity: alice}, {Decision: No}}, No, Yes, "alice", 1},
		{"no stops chain", []Result{{Decision: No, Err: ErrUnauthenticated}, {Decision: Yes, Identity: alice}}, Yes, No, "", 1},
		{"abstain continues", []Result{{Decision: Abstain}, {Decision: Yes, Identity: alice}}, No, Yes, "alice", 2},
		{"all abstain default no", []Result{{Decision: Abstain}}, No, No, "", 1},
		{"all abstain default yes", []Result{{Decision: Abstain}}, Yes, Yes, "anonymous", 1},
		{"empty chain", nil, Yes, Yes, "anonymous", 0},
		{"unset default rejects", []Result{{Decision: Abstain}}, Decision(0), No, "", 1},
		{"empty chain unset default", nil, Decision(0), No, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stubs []*stubAuthn
			chain := &Chain{Default: tt.def}
			for _, v := range tt.votes {
				s := &stubAuthn{result: v}
				stubs = append(stubs, s)
				chain.Authenticators = append(chain.Authenticators, s)
			}

			res := chain.Authenticate(context.Background(), httptest.NewRequest("GET", "/mcp", nil))
			if res.Decision != tt.want {
				t.Fatalf("Decision = %s, want %s", res.Decision, tt.want)
			}
			if tt.want == Yes && res.Identity.Subject != tt.subject {
				t.Errorf("Subject = %q, want %q", res.Identity.Subject, tt.subject)
			}
			if tt.want == No && !errors.Is(res.Err, ErrUnauthenticated) {
				t.Errorf("Err = %v", res.Err)
			}
			calls := 0
			for _, s := range stubs {
				calls += s.calls
			}
			if calls != tt.evaluated {
				t.Errorf("evaluated %d authenticators, want %d", calls, tt.evaluated)
			}
		})
	}
}

func TestAnonymousIsCopied(t *testing.T) {
	chain := &Chain{Default: Yes}
	res := chain.Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil))
	res.Identity.Subject = "changed"
	if Anonymous.Subject != "anonymous" {
		t.Error("chain handed out the shared Anonymous identity")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", true},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", tt.header)
		token, ok := BearerToken(r)
		if token != tt.token || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q, %v", tt.header, token, ok)
		}
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	if IdentityFromContext(ctx) != nil {
		t.Error("identity in empty context")
	}
	id := &Identity{Subject: "bob", Scopes: []string{"census:read"}}
	got := IdentityFromContext(WithIdentity(ctx, id))
	if got != id || !got.HasScope("census:read") || got.HasScope("admin") {
		t.Errorf("IdentityFromContext = %+v", got)
	}
	var nilID *Identity
	if nilID.HasScope("x") {
		t.Error("nil identity has a scope")
	}
}

func TestLimiter(t *testing.T) {
	l := NewLimiter(2, map[string]int{"premium": 3, "unlimited": 0})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	alice := &Identity{Subject: "alice"}
	for i := range 2 {
		if err := l.Allow(ctx, alice); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	err := l.Allow(ctx, alice)
	if !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("third request: %v", err)
	}
	var rle *RateLimitError
	if !errors.As(err, &rle) || rle.RetryAfter != time.Minute {
		t.Errorf("RetryAfter = %v", rle)
	}

	bob := &Identity{Subject: "bob", ServiceTier: "premium"}
	for i := range 3 {
		if err := l.Allow(ctx, bob); err != nil {
			t.Fatalf("premium request %d: %v", i, err)
		}
	}
	if err := l.Allow(ctx, bob); err == nil {
		t.Error("premium tier exceeded without error")
	}

	carol := &Identity{Subject: "carol", ServiceTier: "unlimited"}
	for range 10 {
		if err := l.Allow(ctx, carol); err != nil {
			t.Fatalf("unlimited tier: %v", err)
		}
	}

	now = now.Add(time.Minute)
	if err := l.Allow(ctx, alice); err != nil {
		t.Errorf("new window: %v", err)
	}
}
