package usertoken

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
)

const maxJWKSBytes = 1 << 20

// jwk is one entry of a JSON Web Key Set.
type jwk struct {
	Kty string   `json:"kty"`
	Use string   `json:"use"`
	Kid string   `json:"kid"`
	Alg string   `json:"alg"`
	N   string   `json:"n"`
	E   string   `json:"e"`
	X5c []string `json:"x5c"`
}

func (v *Verifier) fetchKeySet(ctx context.Context) ([]jwk, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build jwks request: %w", ErrKeySet, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch jwks: %w", ErrKeySet, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch jwks: status %d", ErrKeySet, resp.StatusCode)
	}

	var payload struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode jwks: %w", ErrKeySet, err)
	}
	return payload.Keys, nil
}

// signingKeys keeps RSA keys meant for signatures that carry a kid and
// usable public material. A missing "use" is treated as "sig".
func signingKeys(keys []jwk) []jwk {
	out := make([]jwk, 0, len(keys))
	for _, k := range keys {
		use := strings.TrimSpace(k.Use)
		if use != "" && use != "sig" {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(k.Kty), "RSA") {
			continue
		}
		if strings.TrimSpace(k.Kid) == "" {
			continue
		}
		if alg := strings.TrimSpace(k.Alg); alg != "" && alg != signingAlg {
			continue
		}
		if len(k.X5c) == 0 && (k.N == "" || k.E == "") {
			continue
		}
		out = append(out, k)
	}
	return out
}

// publicKey prefers the leaf certificate of x5c and falls back to n/e.
func (k jwk) publicKey() (*rsa.PublicKey, error) {
	if len(k.X5c) > 0 {
		return publicKeyFromCert(k.X5c[0])
	}
	return parseRSAPublicKey(k.N, k.E)
}

func publicKeyFromCert(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode x5c: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse x5c certificate: %w", err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("x5c certificate does not hold an rsa key")
	}
	return pub, nil
}

func parseRSAPublicKey(nRaw, eRaw string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(nRaw))
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(eRaw))
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	n := new(big.Int).SetBytes(nBytes)
	eBig := new(big.Int).SetBytes(eBytes)
	if n.Sign() <= 0 || !eBig.IsInt64() {
		return nil, errors.New("invalid rsa key")
	}
	e := int(eBig.Int64())
	if e <= 1 {
		return nil, errors.New("invalid rsa exponent")
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}
