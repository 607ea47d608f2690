package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"strings"
)

// ParseRSAPublicKey accepts an X.509 SubjectPublicKeyInfo key, either as a
// PEM block or as the bare base64 body with the armor stripped. Deployments
// pass the key through an env var, so whitespace and header lines are
// tolerated.
func ParseRSAPublicKey(key string) (*rsa.PublicKey, error) {
	cleaned := strings.NewReplacer(
		"-----BEGIN PUBLIC KEY-----", "",
		"-----END PUBLIC KEY-----", "",
		"\\n", "",
	).Replace(key)
	cleaned = strings.Join(strings.Fields(cleaned), "")

	der, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, errors.New("public key is not valid base64")
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return pub, nil
}
