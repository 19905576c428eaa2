package crypto

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"testing"
)

// testSalt is 00 01 02 ... 0f.
func testSalt() []byte {
	salt := make([]byte, SaltLength)
	for i := range salt {
		salt[i] = byte(i)
	}
	return salt
}

// Reference output of argon2id(m=65536, t=3, p=1, len=32) from libargon2.
const goldenMasterKey = "6101207ea093baa3c209b11f2d836974497865e453b006b80c6e0e8a6fb46b99"

func TestDeriveMasterKeyGoldenVector(t *testing.T) {
	key, err := DeriveMasterKey("Tr0ub4dor&3", testSalt(), DefaultKDFParams)
	if err != nil {
		t.Fatalf("DeriveMasterKey() error = %v", err)
	}
	defer key.Destroy()

	if got := hex.EncodeToString(key.Bytes()); got != goldenMasterKey {
		t.Errorf("DeriveMasterKey() = %s, want %s", got, goldenMasterKey)
	}
}

func TestDeriveMasterKeyDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}

	k1, err := DeriveMasterKey("test-password-123", salt, DefaultKDFParams)
	if err != nil {
		t.Fatalf("DeriveMasterKey() error = %v", err)
	}
	defer k1.Destroy()
	k2, err := DeriveMasterKey("test-password-123", salt, DefaultKDFParams)
	if err != nil {
		t.Fatalf("DeriveMasterKey() error = %v", err)
	}
	defer k2.Destroy()

	if k1.Len() != KeyLength {
		t.Errorf("DeriveMasterKey() key length = %d, want %d", k1.Len(), KeyLength)
	}
	if !bytes.Equal(k1.Bytes(), k2.Bytes()) {
		t.Error("DeriveMasterKey() with same inputs should produce identical keys")
	}

	k3, err := DeriveMasterKey("different-password", salt, DefaultKDFParams)
	if err != nil {
		t.Fatalf("DeriveMasterKey() error = %v", err)
	}
	defer k3.Destroy()
	if bytes.Equal(k1.Bytes(), k3.Bytes()) {
		t.Error("DeriveMasterKey() with different password should produce different key")
	}
}

func TestDeriveMasterKeyRejectsBadInput(t *testing.T) {
	weak := DefaultKDFParams
	weak.Memory = 19 * 1024

	fewPasses := DefaultKDFParams
	fewPasses.Time = 1

	shortOut := DefaultKDFParams
	shortOut.KeyLen = 16

	noLanes := DefaultKDFParams
	noLanes.Threads = 0

	tests := []struct {
		name   string
		salt   []byte
		params KDFParams
	}{
		{"short salt", make([]byte, 8), DefaultKDFParams},
		{"long salt", make([]byte, 32), DefaultKDFParams},
		{"nil salt", nil, DefaultKDFParams},
		{"weak memory", testSalt(), weak},
		{"single pass", testSalt(), fewPasses},
		{"short output", testSalt(), shortOut},
		{"zero parallelism", testSalt(), noLanes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DeriveMasterKey("password", tt.salt, tt.params)
			if !errors.Is(err, ErrKDF) {
				t.Errorf("DeriveMasterKey() error = %v, want %v", err, ErrKDF)
			}
			if key != nil {
				t.Error("DeriveMasterKey() returned a key on failure")
			}
		})
	}
}

func TestDeriveMasterKeyContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	key, err := DeriveMasterKeyContext(ctx, "password", testSalt(), DefaultKDFParams)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("DeriveMasterKeyContext() error = %v, want %v", err, context.Canceled)
	}
	if key != nil {
		t.Error("DeriveMasterKeyContext() returned a key after cancellation")
	}
}

func TestDeriveMasterKeyContext(t *testing.T) {
	key, err := DeriveMasterKeyContext(context.Background(), "Tr0ub4dor&3", testSalt(), DefaultKDFParams)
	if err != nil {
		t.Fatalf("DeriveMasterKeyContext() error = %v", err)
	}
	defer key.Destroy()

	if got := hex.EncodeToString(key.Bytes()); got != goldenMasterKey {
		t.Errorf("DeriveMasterKeyContext() = %s, want %s", got, goldenMasterKey)
	}
}

func TestGenerateSalt(t *testing.T) {
	s1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	s2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	if len(s1) != SaltLength {
		t.Errorf("GenerateSalt() length = %d, want %d", len(s1), SaltLength)
	}
	if bytes.Equal(s1, s2) {
		t.Error("GenerateSalt() returned the same salt twice")
	}
}

func TestDefaultKDFParams(t *testing.T) {
	if DefaultKDFParams.Memory != 65536 {
		t.Errorf("Memory = %d, want 65536", DefaultKDFParams.Memory)
	}
	if DefaultKDFParams.Time != 3 {
		t.Errorf("Time = %d, want 3", DefaultKDFParams.Time)
	}
	if DefaultKDFParams.Threads != 1 {
		t.Errorf("Threads = %d, want 1", DefaultKDFParams.Threads)
	}
	if DefaultKDFParams.KeyLen != 32 {
		t.Errorf("KeyLen = %d, want 32", DefaultKDFParams.KeyLen)
	}
	if err := DefaultKDFParams.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
