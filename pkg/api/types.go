package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/forest6511/locksy/pkg/envelope"
)

// ItemID identifies a stored item. The server may send it as a JSON number
// or a string.
type ItemID string

// UnmarshalJSON accepts both 42 and "42".
func (id *ItemID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ItemID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("api: invalid item id %s", data)
	}
	*id = ItemID(n.String())
	return nil
}

// MarshalJSON writes integer ids as numbers and everything else as strings.
func (id ItemID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ItemID) String() string { return string(id) }

// SaltRequest is the body of POST /auth/salt.
type SaltRequest struct {
	Email string `json:"email"`
}

// SaltResponse carries the account's base64 salt.
type SaltResponse struct {
	Salt string `json:"salt"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email        string             `json:"email"`
	PasswordHash string             `json:"passwordHash"` // base64 master key
	Salt         string             `json:"salt"`         // base64
	Envelope     *envelope.Envelope `json:"envelope"`
}

// MessageResponse is a bare {"message": ...} reply.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email        string             `json:"email"`
	PasswordHash string             `json:"passwordHash"`
	Envelope     *envelope.Envelope `json:"envelope"`
}

// User is the account summary returned at login.
type User struct {
	ID    ItemID `json:"id,omitempty"`
	Email string `json:"email"`
}

// LoginResponse carries the session tokens.
type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user,omitempty"`
}

// RefreshRequest is the body of POST /auth/refresh and /auth/logout.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// TokenPair is a rotated access/refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// PasswordItem is a stored password as the server returns it. Secret is
// opaque ciphertext (a JSON envelope or a legacy base64 blob).
type PasswordItem struct {
	ID       ItemID `json:"id_password"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

// PasswordInput is the body of POST /passwords.
type PasswordInput struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

// PasswordPatch is the body of PUT /passwords/{id}. Nil fields are left unchanged.
type PasswordPatch struct {
	Name     *string `json:"name,omitempty"`
	Username *string `json:"username,omitempty"`
	Secret   *string `json:"secret,omitempty"`
}

// DeleteResponse is the reply of DELETE /passwords/{id}.
type DeleteResponse struct {
	ID ItemID `json:"id"`
}
