package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Context names the event an envelope is bound to. It renders as the
// "<context>_at" timestamp key in the AAD.
type Context string

const (
	ContextLogin   Context = "login"
	ContextCreated Context = "created"

	// ContextRegistration is an alias that renders as ContextCreated.
	ContextRegistration Context = "registration"
)

// canonical returns the context c renders as. Values outside the known
// set are malformed.
func (c Context) canonical() (Context, error) {
	switch c {
	case ContextLogin, ContextCreated:
		return c, nil
	case ContextRegistration:
		return ContextCreated, nil
	case "":
		return "", fmt.Errorf("%w: aad context is empty", ErrMalformedEnvelope)
	default:
		return "", fmt.Errorf("%w: unknown aad context %q", ErrMalformedEnvelope, string(c))
	}
}

// AAD is the additional authenticated data bound into every envelope.
type AAD struct {
	Version int
	Email   string
	KDF     KDF
	Context Context
	At      int64 // Unix milliseconds
}

// aadHead is the fixed-order prefix of the rendered AAD.
type aadHead struct {
	V     int    `json:"v"`
	Email string `json:"email"`
	KDF   KDF    `json:"kdf"`
}

// Render produces the canonical AAD string:
//
//	{"v":1,"email":"...","kdf":{...},"<context>_at":<ms>}
//
// The output is byte-stable for a given AAD.
func (a AAD) Render() (string, error) {
	ctx, err := a.Context.canonical()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(aadHead{V: a.Version, Email: a.Email, KDF: a.KDF}); err != nil {
		return "", fmt.Errorf("envelope: failed to render aad: %w", err)
	}
	head := strings.TrimSuffix(strings.TrimRight(buf.String(), "\n"), "}")

	return fmt.Sprintf(`%s,"%s_at":%d}`, head, ctx, a.At), nil
}

// ParseAAD reads a rendered AAD string back into its fields.
// Exactly one "<context>_at" key must be present.
func ParseAAD(s string) (AAD, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return AAD{}, fmt.Errorf("%w: aad_json is not an object: %v", ErrMalformedEnvelope, err)
	}

	var a AAD
	if err := decodeField(raw, "v", &a.Version); err != nil {
		return AAD{}, err
	}
	if err := decodeField(raw, "email", &a.Email); err != nil {
		return AAD{}, err
	}
	if err := decodeField(raw, "kdf", &a.KDF); err != nil {
		return AAD{}, err
	}

	for k, v := range raw {
		name, ok := strings.CutSuffix(k, "_at")
		if !ok {
			continue
		}
		if a.Context != "" {
			return AAD{}, fmt.Errorf("%w: aad has more than one context timestamp", ErrMalformedEnvelope)
		}
		ctx, err := Context(name).canonical()
		if err != nil {
			return AAD{}, err
		}
		if err := json.Unmarshal(v, &a.At); err != nil {
			return AAD{}, fmt.Errorf("%w: aad %s: %v", ErrMalformedEnvelope, k, err)
		}
		a.Context = ctx
	}
	if a.Context == "" {
		return AAD{}, fmt.Errorf("%w: aad has no context timestamp", ErrMalformedEnvelope)
	}
	return a, nil
}

func decodeField(raw map[string]json.RawMessage, key string, dst any) error {
	v, ok := raw[key]
	if !ok {
		return fmt.Errorf("%w: aad missing %q", ErrMalformedEnvelope, key)
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("%w: aad %q: %v", ErrMalformedEnvelope, key, err)
	}
	return nil
}
