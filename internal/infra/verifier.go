package infra

import "context"

// VerifiedToken is the subject and claims of a bearer token that passed verification.
type VerifiedToken struct {
	UID    string
	Claims map[string]interface{}
}

// TokenVerifier checks a raw bearer token. Both the HS256 verifier and the
// Firebase one satisfy it; the HTTP auth middleware depends only on this.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, raw string) (*VerifiedToken, error)
}
