package password

import (
	"strings"
	"testing"
)

func testHashConfig() HashConfig {
	// Floor-level parameters keep the test suite fast.
	return HashConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()

	h, err := NewHasher(testHashConfig())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	return h
}

func TestNewHasherRejectsWeakParameters(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*HashConfig)
	}{
		{"low memory", func(c *HashConfig) { c.Memory = 1024 }},
		{"zero time", func(c *HashConfig) { c.Time = 0 }},
		{"zero parallelism", func(c *HashConfig) { c.Parallelism = 0 }},
		{"short salt", func(c *HashConfig) { c.SaltLength = 8 }},
		{"short key", func(c *HashConfig) { c.KeyLength = 8 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testHashConfig()
			tc.mutate(&cfg)
			if _, err := NewHasher(cfg); err == nil {
				t.Fatal("expected weak parameters to be rejected")
			}
		})
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h := newTestHasher(t)

	encoded, err := h.Hash("correct horse battery 9")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected hash format: %q", encoded)
	}

	ok, err := h.Verify("correct horse battery 9", encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected matching password to verify")
	}

	ok, err = h.Verify("wrong password 1", encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Fatal("expected mismatched password to fail")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h := newTestHasher(t)

	first, err := h.Hash("correct horse battery 9")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	second, err := h.Hash("correct horse battery 9")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct salts to produce distinct hashes")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	h := newTestHasher(t)

	for _, encoded := range []string{
		"",
		"not-a-phc-string",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	} {
		if _, err := h.Verify("any password 1", encoded); err == nil {
			t.Errorf("expected unreadable hash %q to error", encoded)
		}
	}
}

func TestNeedsUpgrade(t *testing.T) {
	h := newTestHasher(t)

	encoded, err := h.Hash("correct horse battery 9")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	needs, err := h.NeedsUpgrade(encoded)
	if err != nil {
		t.Fatalf("NeedsUpgrade failed: %v", err)
	}
	if needs {
		t.Fatal("expected fresh hash to not need upgrade")
	}

	stronger := testHashConfig()
	stronger.Memory = 64 * 1024
	hs, err := NewHasher(stronger)
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	needs, err = hs.NeedsUpgrade(encoded)
	if err != nil {
		t.Fatalf("NeedsUpgrade failed: %v", err)
	}
	if !needs {
		t.Fatal("expected hash below current memory cost to need upgrade")
	}

	// The old hash still verifies with its embedded parameters.
	ok, err := hs.Verify("correct horse battery 9", encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected old hash to verify under stronger config")
	}
}
