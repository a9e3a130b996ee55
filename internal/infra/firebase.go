// README: Firebase ID token verification; selected with auth.provider=firebase.
package infra

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

var ErrTokenRevoked = errors.New("token revoked")

type FirebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier builds an Admin SDK auth client for projectID. Without a
// credentials file the SDK falls back to application-default credentials.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (*FirebaseVerifier, error) {
	if projectID == "" {
		return nil, errors.New("firebase project id is empty")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app %s: %w", projectID, err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// VerifyIDToken also rejects tokens whose sessions were revoked; the role
// travels as the "role" custom claim.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, raw string) (*VerifiedToken, error) {
	token, err := v.client.VerifyIDTokenAndCheckRevoked(ctx, raw)
	if auth.IsIDTokenRevoked(err) {
		return nil, ErrTokenRevoked
	}
	if err != nil {
		return nil, fmt.Errorf("verify firebase token: %w", err)
	}
	claims := token.Claims
	if claims == nil {
		claims = map[string]interface{}{}
	}
	return &VerifiedToken{UID: token.UID, Claims: claims}, nil
}
