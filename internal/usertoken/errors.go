package usertoken

import "errors"

var (
	// ErrMissingHeader means no Authorization header was sent.
	ErrMissingHeader = errors.New("authorization header missing")
	// ErrMalformedHeader means the header is not "Bearer <token>".
	ErrMalformedHeader = errors.New("malformed authorization header")
	// ErrInvalidToken covers signature, algorithm and claim failures.
	ErrInvalidToken = errors.New("invalid token")
	// ErrKeySet means no usable signing key could be resolved from the JWKS endpoint.
	ErrKeySet = errors.New("signing key set unusable")
)

// IsAuthenticationError reports whether err came out of token verification.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrMissingHeader) ||
		errors.Is(err, ErrMalformedHeader) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrKeySet)
}
