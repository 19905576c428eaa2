package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

func goldenMaster(t *testing.T) *KeyMaterial {
	t.Helper()
	raw, err := hex.DecodeString(goldenMasterKey)
	if err != nil {
		t.Fatal(err)
	}
	return NewKeyMaterial(raw)
}

func TestDeriveSubKeyVectors(t *testing.T) {
	master := goldenMaster(t)
	defer master.Destroy()

	// HKDF-SHA256(salt="", info=label) over the golden master key.
	tests := []struct {
		purpose Purpose
		length  int
		want    string
	}{
		{PurposeRegistration, 32, "2e2dc904d9f472dd807ad0e790f6a4333b3e1dc20ca62f24530e02be8f8275cf"},
		{PurposeLogin, 32, "603fca0f7d702230224ac29e480c69b18e7c8ca8d094b97ab704cdbabfd12b79"},
		{PurposePasswords, 32, "691996eb48d12761018173640c31049e1c4629162173fbbc9494029c55236f5f"},
		{PurposePasswords, 16, "691996eb48d12761018173640c31049e"},
	}

	for _, tt := range tests {
		t.Run(string(tt.purpose), func(t *testing.T) {
			sub, err := DeriveSubKey(master, tt.purpose, tt.length)
			if err != nil {
				t.Fatalf("DeriveSubKey() error = %v", err)
			}
			defer sub.Destroy()

			if got := hex.EncodeToString(sub.Bytes()); got != tt.want {
				t.Errorf("DeriveSubKey(%s, %d) = %s, want %s", tt.purpose, tt.length, got, tt.want)
			}
		})
	}
}

func TestDeriveSubKeyDomainSeparation(t *testing.T) {
	master := goldenMaster(t)
	defer master.Destroy()

	all := []Purpose{
		PurposeRegistration, PurposeLogin, PurposePasswords, PurposeNotes,
		PurposeCards, PurposeAccountEmail, PurposeAccountPassword, PurposeAudit,
	}

	seen := make(map[string]Purpose)
	for _, p := range all {
		sub, err := DeriveSubKey(master, p, KeyLength)
		if err != nil {
			t.Fatalf("DeriveSubKey(%s) error = %v", p, err)
		}
		k := string(sub.Bytes())
		if prev, dup := seen[k]; dup {
			t.Errorf("DeriveSubKey(%s) collides with %s", p, prev)
		}
		seen[k] = p
		sub.Destroy()
	}
}

func TestDeriveSubKeyDeterministic(t *testing.T) {
	master := goldenMaster(t)
	defer master.Destroy()

	a, err := DeriveSubKey(master, PurposeNotes, KeyLength)
	if err != nil {
		t.Fatalf("DeriveSubKey() error = %v", err)
	}
	defer a.Destroy()
	b, err := DeriveSubKey(master, PurposeNotes, KeyLength)
	if err != nil {
		t.Fatalf("DeriveSubKey() error = %v", err)
	}
	defer b.Destroy()

	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("DeriveSubKey() should be deterministic")
	}
}

func TestDeriveSubKeyErrors(t *testing.T) {
	destroyed := goldenMaster(t)
	destroyed.Destroy()

	live := goldenMaster(t)
	defer live.Destroy()

	tests := []struct {
		name    string
		master  *KeyMaterial
		purpose Purpose
		length  int
		wantErr error
	}{
		{"nil master", nil, PurposeLogin, 32, ErrKeyNotInitialized},
		{"destroyed master", destroyed, PurposeLogin, 32, ErrKeyNotInitialized},
		{"unknown purpose", live, Purpose("locksy_unknown_v1"), 32, nil},
		{"zero length", live, PurposeLogin, 0, nil},
		{"too long", live, PurposeLogin, maxSubKeyLength + 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := DeriveSubKey(tt.master, tt.purpose, tt.length)
			if err == nil {
				sub.Destroy()
				t.Fatal("DeriveSubKey() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("DeriveSubKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPurposeValid(t *testing.T) {
	if !PurposePasswords.Valid() {
		t.Error("PurposePasswords.Valid() = false, want true")
	}
	if Purpose("passwords").Valid() {
		t.Error(`Purpose("passwords").Valid() = true, want false`)
	}
}
