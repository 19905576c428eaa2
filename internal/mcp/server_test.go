package mcp

import (
	"context"
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/forest6511/locksy/pkg/api"
	"github.com/forest6511/locksy/pkg/audit"
	"github.com/forest6511/locksy/pkg/breach"
	"github.com/forest6511/locksy/pkg/locksy"
)

const (
	testEmail    = "agent@example.com"
	testPassword = "correct horse battery staple"
)

// fakeAPI is a minimal in-memory password API.
type fakeAPI struct {
	mu      sync.Mutex
	salt    map[string]string
	hash    map[string]string
	items   []api.PasswordItem
	nextID  int
	session string
}

func newFakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	f := &fakeAPI{salt: map[string]string{}, hash: map[string]string{}}

	reply := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			ok := f.session != "" && r.Header.Get("Authorization") == "Bearer "+f.session
			f.mu.Unlock()
			if !ok {
				reply(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/salt", func(w http.ResponseWriter, r *http.Request) {
		var req api.SaltRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		salt, ok := f.salt[req.Email]
		f.mu.Unlock()
		if !ok {
			reply(w, http.StatusNotFound, map[string]string{"message": "not found"})
			return
		}
		reply(w, http.StatusOK, api.SaltResponse{Salt: salt})
	})
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		var req api.RegisterRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.salt[req.Email] = req.Salt
		f.hash[req.Email] = req.PasswordHash
		f.mu.Unlock()
		reply(w, http.StatusCreated, api.MessageResponse{Message: "ok"})
	})
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req api.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.hash[req.Email] == "" || f.hash[req.Email] != req.PasswordHash {
			reply(w, http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})
			return
		}
		f.session = fmt.Sprintf("access-%d", time.Now().UnixNano())
		reply(w, http.StatusOK, api.LoginResponse{AccessToken: f.session, RefreshToken: "refresh"})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.session = ""
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /passwords", authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		reply(w, http.StatusOK, f.items)
	}))
	mux.HandleFunc("POST /passwords", authed(func(w http.ResponseWriter, r *http.Request) {
		var in api.PasswordInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.nextID++
		item := api.PasswordItem{ID: api.ItemID(strconv.Itoa(f.nextID)), Name: in.Name, Username: in.Username, Secret: in.Secret}
		f.items = append(f.items, item)
		reply(w, http.StatusCreated, item)
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newBreachAPI serves a range API in which only "password1234" is breached.
func newBreachAPI(t *testing.T) *httptest.Server {
	t.Helper()
	sum := sha1.Sum([]byte("password1234")) //nolint:gosec
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimPrefix(r.URL.Path, "/range/") == digest[:5] {
			fmt.Fprintf(w, "%s:7\r\n", digest[5:])
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newTestClient returns a client with a registered account, not logged in.
func newTestClient(t *testing.T) *locksy.Client {
	t.Helper()
	apiSrv := newFakeAPI(t)
	breachSrv := newBreachAPI(t)

	apiClient, err := api.NewClient(apiSrv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	c := locksy.New(apiClient,
		locksy.WithBreachChecker(breach.New(breach.WithBaseURL(breachSrv.URL))),
		locksy.WithDataDir(t.TempDir()),
		locksy.WithAuditSource(audit.SourceMCP))
	t.Cleanup(func() { _ = c.Close() })

	if _, err := c.Register(context.Background(), testEmail, testPassword); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return c
}

// seed logs in with c, stores entries, and returns a Server using policy.
func seed(t *testing.T, c *locksy.Client, policy *Policy) *Server {
	t.Helper()
	ctx := context.Background()

	s, err := NewServer(ctx, &ServerOptions{Client: c, Email: testEmail, Password: testPassword})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	for _, e := range []struct{ name, user, pw string }{
		{"github", "agent", "gh-0123456789"},
		{"bank", "agent", "bank-pw"},
		{"weak", "", "password1234"},
	} {
		if _, err := c.CreatePassword(ctx, e.name, e.user, e.pw); err != nil {
			t.Fatalf("CreatePassword failed: %v", err)
		}
	}
	if policy != nil {
		s.policy = policy
	}
	return s
}

func TestNewServer_NoClient(t *testing.T) {
	if _, err := NewServer(context.Background(), &ServerOptions{}); err == nil {
		t.Error("expected error without a client")
	}
}

func TestNewServer_NoCredentials(t *testing.T) {
	c := locksy.New(mustAPI(t, "http://127.0.0.1:1"))
	t.Setenv(EmailEnv, "")
	t.Setenv(PasswordEnv, "")

	_, err := NewServer(context.Background(), &ServerOptions{Client: c})
	if !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
}

func mustAPI(t *testing.T, url string) *api.Client {
	t.Helper()
	c, err := api.NewClient(url)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewServer_FromEnvironment(t *testing.T) {
	c := newTestClient(t)
	t.Setenv(EmailEnv, testEmail)
	t.Setenv(PasswordEnv, testPassword)

	s, err := NewServer(context.Background(), &ServerOptions{Client: c})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer s.Close()

	// Credentials must not linger in the environment.
	if _, ok := os.LookupEnv(PasswordEnv); ok {
		t.Error("LOCKSY_PASSWORD still set after NewServer")
	}
	if _, ok := os.LookupEnv(EmailEnv); ok {
		t.Error("LOCKSY_EMAIL still set after NewServer")
	}
	if c.Email() != testEmail {
		t.Errorf("Email = %q, want %q", c.Email(), testEmail)
	}
}

func TestNewServer_WrongPassword(t *testing.T) {
	c := newTestClient(t)

	_, err := NewServer(context.Background(), &ServerOptions{Client: c, Email: testEmail, Password: "wrong password here"})
	if !errors.Is(err, locksy.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestNewServer_InvalidPolicyIsFatal(t *testing.T) {
	dir := t.TempDir()
	createTestPolicy(t, dir, "version: 9\n")

	_, err := NewServer(context.Background(), &ServerOptions{
		Client:    locksy.New(mustAPI(t, "http://127.0.0.1:1")),
		PolicyDir: dir,
		Email:     testEmail,
		Password:  testPassword,
	})
	if !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestTools(t *testing.T) {
	c := newTestClient(t)
	s := seed(t, c, nil)
	defer s.Close()
	ctx := context.Background()

	t.Run("entry_list", func(t *testing.T) {
		_, out, err := s.handleEntryList(ctx, nil, EntryListInput{})
		if err != nil {
			t.Fatalf("handleEntryList failed: %v", err)
		}
		if len(out.Entries) != 3 {
			t.Fatalf("got %d entries, want 3", len(out.Entries))
		}
		data, _ := json.Marshal(out)
		for _, pw := range []string{"gh-0123456789", "bank-pw", "password1234"} {
			if strings.Contains(string(data), pw) {
				t.Errorf("entry_list output leaks %q", pw)
			}
		}
	})

	t.Run("entry_list pattern", func(t *testing.T) {
		_, out, err := s.handleEntryList(ctx, nil, EntryListInput{Pattern: "b*"})
		if err != nil {
			t.Fatalf("handleEntryList failed: %v", err)
		}
		if len(out.Entries) != 1 || out.Entries[0].Name != "bank" {
			t.Errorf("entries = %+v, want [bank]", out.Entries)
		}
		if _, _, err := s.handleEntryList(ctx, nil, EntryListInput{Pattern: "["}); err == nil {
			t.Error("expected error for invalid pattern")
		}
	})

	t.Run("entry_get_masked", func(t *testing.T) {
		_, out, err := s.handleEntryGetMasked(ctx, nil, EntryGetMaskedInput{Name: "github"})
		if err != nil {
			t.Fatalf("handleEntryGetMasked failed: %v", err)
		}
		if out.MaskedPassword != "*********6789" || out.PasswordLength != 13 {
			t.Errorf("output = %+v", out)
		}
		if out.Username != "agent" {
			t.Errorf("Username = %q", out.Username)
		}
	})

	t.Run("entry_get_masked errors", func(t *testing.T) {
		if _, _, err := s.handleEntryGetMasked(ctx, nil, EntryGetMaskedInput{}); err == nil {
			t.Error("expected error for empty name")
		}
		_, _, err := s.handleEntryGetMasked(ctx, nil, EntryGetMaskedInput{Name: "missing"})
		if !errors.Is(err, locksy.ErrEntryNotFound) {
			t.Errorf("expected ErrEntryNotFound, got %v", err)
		}
	})

	t.Run("breach_check", func(t *testing.T) {
		_, out, err := s.handleBreachCheck(ctx, nil, BreachCheckInput{Name: "weak"})
		if err != nil {
			t.Fatalf("handleBreachCheck failed: %v", err)
		}
		if !out.Breached || out.Count != 7 {
			t.Errorf("output = %+v, want breached 7", out)
		}

		_, out, err = s.handleBreachCheck(ctx, nil, BreachCheckInput{Name: "github"})
		if err != nil {
			t.Fatalf("handleBreachCheck failed: %v", err)
		}
		if out.Breached || out.Count != 0 {
			t.Errorf("output = %+v, want clean", out)
		}
	})
}

func TestTools_Policy(t *testing.T) {
	c := newTestClient(t)
	s := seed(t, c, &Policy{
		Version:       1,
		DefaultAction: ActionAllow,
		DeniedTools:   []string{ToolBreachCheck},
		DeniedEntries: []string{"bank*"},
	})
	defer s.Close()
	ctx := context.Background()

	_, out, err := s.handleEntryList(ctx, nil, EntryListInput{})
	if err != nil {
		t.Fatalf("handleEntryList failed: %v", err)
	}
	for _, e := range out.Entries {
		if e.Name == "bank" {
			t.Error("denied entry listed")
		}
	}
	if len(out.Entries) != 2 {
		t.Errorf("got %d entries, want 2", len(out.Entries))
	}

	if _, _, err := s.handleEntryGetMasked(ctx, nil, EntryGetMaskedInput{Name: "bank"}); err == nil {
		t.Error("expected denial for a denied entry")
	}
	if _, _, err := s.handleBreachCheck(ctx, nil, BreachCheckInput{Name: "weak"}); err == nil {
		t.Error("expected denial for a denied tool")
	}

	// Both denials are in the activity log.
	events, err := c.Audit().ListEvents(0, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	denied := 0
	for _, e := range events {
		if e.Result == audit.ResultDenied {
			denied++
			if e.Actor.Source != audit.SourceMCP {
				t.Errorf("Source = %q, want mcp", e.Actor.Source)
			}
		}
	}
	if denied != 2 {
		t.Errorf("denied records = %d, want 2", denied)
	}
}

func TestServer_Close(t *testing.T) {
	c := newTestClient(t)
	s, err := NewServer(context.Background(), &ServerOptions{Client: c, Email: testEmail, Password: testPassword})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if c.Email() != "" {
		t.Error("client still logged in after Close")
	}
	if _, _, err := s.handleEntryList(context.Background(), nil, EntryListInput{}); err == nil {
		t.Error("expected error after Close")
	}
}
