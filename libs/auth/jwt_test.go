package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := Claims{
		Sub:   "joao@example.com",
		Roles: []string{"customer"},
		Iat:   time.Now().Unix(),
		Exp:   time.Now().Add(time.Hour).Unix(),
	}
	token, err := SignHS256(claims, "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	got, err := ParseAndVerifyHS256(token, "test-secret")
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if got.Sub != claims.Sub {
		t.Fatalf("sub mismatch: %s", got.Sub)
	}
	if !got.HasRole("customer") || got.HasRole("admin") {
		t.Fatalf("unexpected roles: %v", got.Roles)
	}
}

func TestHS256RejectsWrongSecret(t *testing.T) {
	token, err := SignHS256(Claims{Sub: "joao@example.com"}, "secret-a")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "secret-b"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestHS256RejectsExpired(t *testing.T) {
	token, err := SignHS256(Claims{
		Sub: "joao@example.com",
		Exp: time.Now().Add(-time.Minute).Unix(),
	}, "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "test-secret"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestHS256RejectsTampering(t *testing.T) {
	token, err := SignHS256(Claims{Sub: "joao@example.com", Roles: []string{"customer"}}, "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	forgedJSON := `{"sub":"joao@example.com","roles":["admin"]}`
	parts := strings.Split(token, ".")
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forgedJSON))
	if _, err := ParseAndVerifyHS256(strings.Join(parts, "."), "test-secret"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func signRS256(t *testing.T, claims Claims, key *rsa.PrivateKey) string {
	t.Helper()
	headerEnc := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	payloadJSON := `{"sub":"` + claims.Sub + `","exp":` + strconv.FormatInt(claims.Exp, 10) + `}`
	payloadEnc := base64.RawURLEncoding.EncodeToString([]byte(payloadJSON))
	unsigned := headerEnc + "." + payloadEnc
	hash := sha256.Sum256([]byte(unsigned))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	return unsigned + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func TestRS256Verify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}

	exp := time.Now().Add(time.Hour).Unix()
	token := signRS256(t, Claims{Sub: "joao@example.com", Exp: exp}, key)

	claims, err := VerifyRS256(token, &key.PublicKey)
	if err != nil {
		t.Fatalf("VerifyRS256 failed: %v", err)
	}
	if claims.Sub != "joao@example.com" {
		t.Fatalf("sub mismatch: %s", claims.Sub)
	}

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	if _, err := VerifyRS256(token, &other.PublicKey); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken with wrong key, got %v", err)
	}
}

func TestParseRSAPublicKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	pemKey := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	pub, err := ParseRSAPublicKey(pemKey)
	if err != nil {
		t.Fatalf("ParseRSAPublicKey(pem) failed: %v", err)
	}
	if pub.N.Cmp(key.PublicKey.N) != 0 {
		t.Fatal("parsed key does not match")
	}

	// Env vars often carry the bare base64 body without armor lines.
	bare := base64.StdEncoding.EncodeToString(der)
	if _, err := ParseRSAPublicKey(bare); err != nil {
		t.Fatalf("ParseRSAPublicKey(bare) failed: %v", err)
	}

	if _, err := ParseRSAPublicKey("not a key"); err == nil {
		t.Fatal("expected error for garbage input")
	}
}
