package password

import (
	"errors"
	"strings"
	"testing"
)

func fastConfig() Config {
	return Config{
		Memory:      minMemoryKB,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	h, err := NewHasher(fastConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	encoded, err := h.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}
	if err := h.Verify("correct horse", encoded); err != nil {
		t.Fatalf("Verify error: %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	h, err := NewHasher(fastConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	encoded, err := h.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if err := h.Verify("battery staple", encoded); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestHashRejectsShortSecret(t *testing.T) {
	h, _ := NewHasher(fastConfig())
	if _, err := h.Hash("short"); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("expected ErrSecretTooShort, got %v", err)
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	h, _ := NewHasher(fastConfig())
	cases := []string{
		"",
		"plain",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$c2hvcnQ$a2V5",
	}
	for _, tc := range cases {
		if err := h.Verify("whatever-secret", tc); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("Verify(%q): expected ErrMalformedHash, got %v", tc, err)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	weak, _ := NewHasher(fastConfig())
	encoded, err := weak.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	strongCfg := fastConfig()
	strongCfg.Time = 2
	strong, _ := NewHasher(strongCfg)

	needs, err := strong.NeedsRehash(encoded)
	if err != nil {
		t.Fatalf("NeedsRehash error: %v", err)
	}
	if !needs {
		t.Fatal("expected stronger config to require rehash")
	}

	needs, err = weak.NeedsRehash(encoded)
	if err != nil {
		t.Fatalf("NeedsRehash error: %v", err)
	}
	if needs {
		t.Fatal("same config should not require rehash")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := fastConfig()
	bad.SaltLength = 8
	if _, err := NewHasher(bad); err == nil {
		t.Fatal("expected short salt to be rejected")
	}
}
