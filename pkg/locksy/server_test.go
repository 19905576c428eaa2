package locksy

import (
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/forest6511/locksy/pkg/api"
	"github.com/forest6511/locksy/pkg/breach"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "correct horse battery staple"
)

type fakeAccount struct {
	salt string
	hash string
}

// fakeServer is an in-memory stand-in for the remote API.
type fakeServer struct {
	mu           sync.Mutex
	srv          *httptest.Server
	accounts     map[string]*fakeAccount
	items        []api.PasswordItem
	nextID       int
	tokenSeq     int
	access       string
	refresh      string
	refreshCalls int
	failRefresh  bool
	logouts      []string
	lastRegister *api.RegisterRequest
}

func newFakeServer() *fakeServer {
	return &fakeServer{accounts: make(map[string]*fakeAccount)}
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/salt", f.handleSalt)
	mux.HandleFunc("POST /auth/register", f.handleRegister)
	mux.HandleFunc("POST /auth/login", f.handleLogin)
	mux.HandleFunc("POST /auth/refresh", f.handleRefresh)
	mux.HandleFunc("POST /auth/logout", f.handleLogout)
	mux.HandleFunc("GET /passwords", f.auth(f.handleList))
	mux.HandleFunc("POST /passwords", f.auth(f.handleCreate))
	mux.HandleFunc("PUT /passwords/{id}", f.auth(f.handleUpdate))
	mux.HandleFunc("DELETE /passwords/{id}", f.auth(f.handleDelete))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// rotate issues a new token pair. The caller holds mu.
func (f *fakeServer) rotate() (string, string) {
	f.tokenSeq++
	f.access = fmt.Sprintf("access-%d", f.tokenSeq)
	f.refresh = fmt.Sprintf("refresh-%d", f.tokenSeq)
	return f.access, f.refresh
}

// revokeAccess invalidates the access token the client holds.
func (f *fakeServer) revokeAccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = "revoked"
}

func (f *fakeServer) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		ok := r.Header.Get("Authorization") == "Bearer "+f.access && f.access != ""
		f.mu.Unlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}

func (f *fakeServer) handleSalt(w http.ResponseWriter, r *http.Request) {
	var req api.SaltRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	acct, ok := f.accounts[req.Email]
	f.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, api.SaltResponse{Salt: acct.salt})
}

func (f *fakeServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Envelope == nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.accounts[req.Email]; exists {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	f.accounts[req.Email] = &fakeAccount{salt: req.Salt, hash: req.PasswordHash}
	f.lastRegister = &req
	writeJSON(w, http.StatusCreated, api.MessageResponse{Message: "registered"})
}

func (f *fakeServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Envelope == nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[req.Email]
	if !ok || acct.hash != req.PasswordHash || !strings.Contains(req.Envelope.AADJSON, `"login_at"`) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	access, refresh := f.rotate()
	writeJSON(w, http.StatusOK, api.LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         &api.User{ID: "1", Email: req.Email},
	})
}

func (f *fakeServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req api.RefreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.failRefresh || req.RefreshToken != f.refresh {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	access, refresh := f.rotate()
	writeJSON(w, http.StatusOK, api.TokenPair{AccessToken: access, RefreshToken: refresh})
}

func (f *fakeServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req api.RefreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, req.RefreshToken)
	f.access, f.refresh = "", ""
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeServer) handleList(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := append([]api.PasswordItem{}, f.items...)
	writeJSON(w, http.StatusOK, items)
}

func (f *fakeServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in api.PasswordInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	item := api.PasswordItem{
		ID:       api.ItemID(strconv.Itoa(f.nextID)),
		Name:     in.Name,
		Username: in.Username,
		Secret:   in.Secret,
	}
	f.items = append(f.items, item)
	writeJSON(w, http.StatusCreated, item)
}

func (f *fakeServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch api.PasswordPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

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
		writeJSON(w, http.StatusOK, f.items[i])
		return
	}
	writeError(w, http.StatusNotFound, "not found")
}

func (f *fakeServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := r.PathValue("id")
	for i := range f.items {
		if f.items[i].ID.String() == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			writeJSON(w, http.StatusOK, api.DeleteResponse{ID: api.ItemID(id)})
			return
		}
	}
	writeError(w, http.StatusNotFound, "not found")
}

func (f *fakeServer) registered() *api.RegisterRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRegister
}

func (f *fakeServer) logoutTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.logouts...)
}

func (f *fakeServer) refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

func (f *fakeServer) secret(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.Name == name {
			return item.Secret
		}
	}
	return ""
}

// newBreachServer answers range queries for the given passwords, with one
// zero-count padding row.
func newBreachServer(t *testing.T, breached map[string]int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := strings.TrimPrefix(r.URL.Path, "/range/")
		for pw, n := range breached {
			sum := sha1.Sum([]byte(pw)) //nolint:gosec
			digest := strings.ToUpper(hex.EncodeToString(sum[:]))
			if digest[:5] == prefix {
				fmt.Fprintf(w, "%s:%d\r\n", digest[5:], n)
			}
		}
		fmt.Fprint(w, "00000000000000000000000000000000000:0\r\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newTestClient returns a client wired to a fresh fake server. The breach
// corpus contains "password1234".
func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeServer) {
	t.Helper()

	f := newFakeServer()
	f.srv = httptest.NewServer(f.handler())
	t.Cleanup(f.srv.Close)

	bsrv := newBreachServer(t, map[string]int{"password1234": 42})

	apiClient, err := api.NewClient(f.srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	opts = append([]Option{WithBreachChecker(breach.New(breach.WithBaseURL(bsrv.URL)))}, opts...)
	c := New(apiClient, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c, f
}
