package api

import (
	"errors"
	"strings"
	"testing"
)

func TestHashClientSecret_Verify(t *testing.T) {
	hash, err := HashClientSecret("panel-secret")
	if err != nil {
		t.Fatalf("HashClientSecret() error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=1$") {
		t.Errorf("hash = %q, want PHC argon2id prefix", hash)
	}

	ok, err := verifyClientSecret("panel-secret", hash)
	if err != nil || !ok {
		t.Errorf("verifyClientSecret(correct) = %v, %v, want true", ok, err)
	}
	ok, err = verifyClientSecret("wrong", hash)
	if err != nil || ok {
		t.Errorf("verifyClientSecret(wrong) = %v, %v, want false", ok, err)
	}
}

func TestHashClientSecret_Salted(t *testing.T) {
	a, _ := HashClientSecret("same")
	b, _ := HashClientSecret("same")
	if a == b {
		t.Error("two hashes of the same secret should differ")
	}
}

func TestHashClientSecret_Empty(t *testing.T) {
	if _, err := HashClientSecret(""); err == nil {
		t.Error("empty secret should fail")
	}
}

func TestVerifyClientSecret_Plaintext(t *testing.T) {
	if ok, _ := verifyClientSecret("abc", "abc"); !ok {
		t.Error("plaintext match should succeed")
	}
	if ok, _ := verifyClientSecret("abc", "abd"); ok {
		t.Error("plaintext mismatch should fail")
	}
}

func TestVerifyClientSecret_Malformed(t *testing.T) {
	tests := []string{
		"$argon2id$",
		"$argon2id$v=19$m=65536,t=3,p=1$salt",
		"$argon2id$v=18$m=65536,t=3,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$bogus$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=1$!!!$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$",
	}
	for _, encoded := range tests {
		if _, err := verifyClientSecret("x", encoded); !errors.Is(err, errInvalidHash) {
			t.Errorf("verifyClientSecret(%q) error = %v, want errInvalidHash", encoded, err)
		}
	}
}

func TestToken_HashedClientSecret(t *testing.T) {
	env := testServer(t)
	hash, err := HashClientSecret("hashed-secret")
	if err != nil {
		t.Fatalf("HashClientSecret() error: %v", err)
	}
	env.srv.secCfg.Clients["hashed"] = hash

	if !env.srv.checkClient("hashed", "hashed-secret") {
		t.Error("hashed client should authenticate")
	}
	if env.srv.checkClient("hashed", "nope") {
		t.Error("wrong secret should be rejected")
	}

	env.srv.secCfg.Clients["broken"] = "$argon2id$garbage"
	if env.srv.checkClient("broken", "anything") {
		t.Error("malformed hash should be rejected")
	}
}
