package main

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/forest6511/locksy/internal/config"
	"github.com/forest6511/locksy/internal/mcp"
	"github.com/forest6511/locksy/pkg/api"
)

const (
	testEmail       = "carol@example.com"
	testMaster      = "correct horse battery staple"
	testEntrySecret = "gh-Tr0ub4dor&3-entry"
)

// fakeAPI is an in-memory password API shared by every command of a test.
type fakeAPI struct {
	mu      sync.Mutex
	salt    map[string]string
	hash    map[string]string
	items   []api.PasswordItem
	nextID  int
	session string
	seq     int
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
		defer f.mu.Unlock()
		if _, exists := f.hash[req.Email]; exists {
			reply(w, http.StatusConflict, map[string]string{"message": "email already registered"})
			return
		}
		f.salt[req.Email] = req.Salt
		f.hash[req.Email] = req.PasswordHash
		reply(w, http.StatusCreated, api.MessageResponse{Message: "registered"})
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
		f.seq++
		f.session = "access-" + strconv.Itoa(f.seq)
		reply(w, http.StatusOK, api.LoginResponse{AccessToken: f.session, RefreshToken: "refresh-" + strconv.Itoa(f.seq)})
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
		reply(w, http.StatusOK, append([]api.PasswordItem{}, f.items...))
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
	mux.HandleFunc("PUT /passwords/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		var patch api.PasswordPatch
		_ = json.NewDecoder(r.Body).Decode(&patch)
		f.mu.Lock()
		defer f.mu.Unlock()
		for i := range f.items {
			if f.items[i].ID.String() != r.PathValue("id") {
				continue
			}
			if patch.Name != nil {
				f.items[i].Name = *patch.Name
			}
			if patch.Username != nil {
				f.items[i].Username = *patch.Username
			}
			if patch.Secret != nil {
				f.items[i].Secret = *patch.Secret
			}
			reply(w, http.StatusOK, f.items[i])
			return
		}
		reply(w, http.StatusNotFound, map[string]string{"message": "not found"})
	}))
	mux.HandleFunc("DELETE /passwords/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		for i := range f.items {
			if f.items[i].ID.String() == id {
				f.items = append(f.items[:i], f.items[i+1:]...)
				reply(w, http.StatusOK, api.DeleteResponse{ID: api.ItemID(id)})
				return
			}
		}
		reply(w, http.StatusNotFound, map[string]string{"message": "not found"})
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

var configEnv = []string{
	"LOCKSY_API_URL", "LOCKSY_BREACH_URL", "LOCKSY_DATA_DIR", "LOCKSY_LOG_LEVEL",
	"LOCKSY_LOG_FORMAT", "LOCKSY_OFFLINE_CACHE", "LOCKSY_BREACH_POLICY",
	"LOCKSY_BREACH_TIMEOUT", "LOCKSY_HTTP_TIMEOUT", completionEnv,
	mcp.EmailEnv, mcp.PasswordEnv,
}

// setupCLI points the CLI at fresh fake servers and a temporary config
// directory. Prompts for the master password answer testMaster and every
// other password prompt answers *entrySecret.
func setupCLI(t *testing.T) (dir string, entrySecret *string) {
	t.Helper()
	for _, key := range configEnv {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	dir = t.TempDir()
	t.Chdir(dir)
	t.Setenv(config.DirEnv, dir)
	t.Setenv("LOCKSY_API_URL", newFakeAPI(t).URL)
	t.Setenv("LOCKSY_BREACH_URL", newBreachAPI(t).URL)
	t.Setenv(mcp.EmailEnv, testEmail)

	secret := testEntrySecret
	old := readPassword
	readPassword = func(_ *cobra.Command, prompt string) (string, error) {
		if strings.Contains(prompt, "master") {
			return testMaster, nil
		}
		return secret, nil
	}
	t.Cleanup(func() { readPassword = old })
	return dir, &secret
}

// resetFlags restores every flag to its default so one Execute does not
// leak into the next.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfg, logger = nil, nil

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, "", args...)
	if err != nil {
		t.Fatalf("locksy %s failed: %v", strings.Join(args, " "), err)
	}
	return out
}

func registerAccount(t *testing.T) {
	t.Helper()
	out := mustRun(t, "register")
	if !strings.Contains(out, "Account "+testEmail+" registered") {
		t.Fatalf("unexpected register output: %q", out)
	}
}
