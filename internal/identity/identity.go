// Package identity verifies third-party sign-in credentials. The only
// production implementation checks the Google ID token signature against
// Google's published keys; a credential that merely looks well-formed is
// rejected. Client-asserted identity objects are never accepted anywhere.
package identity

import (
	"context"
	"time"

	googleAuthIDTokenVerifier "github.com/futurenda/google-auth-id-token-verifier"

	"qrattend/internal/apperr"
)

// Identity is a verified (subject, name, email, avatar) quadruple.
type Identity struct {
	SubjectID string `json:"subject_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// Verifier turns an opaque bearer credential into a verified Identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// GoogleVerifier validates Google ID tokens for a single OAuth client.
type GoogleVerifier struct {
	ClientID string
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{ClientID: clientID}
}

// Verify checks the token signature, audience, and expiry, then extracts the
// profile claims.
func (g *GoogleVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, apperr.InvalidCredential("credential required")
	}

	v := googleAuthIDTokenVerifier.Verifier{}
	if err := v.VerifyIDToken(credential, []string{g.ClientID}); err != nil {
		return Identity{}, apperr.InvalidCredential("signature verification failed")
	}

	claims, err := googleAuthIDTokenVerifier.Decode(credential)
	if err != nil {
		return Identity{}, apperr.InvalidCredential("malformed credential")
	}
	if claims.Exp > 0 && time.Now().Unix() > claims.Exp {
		return Identity{}, apperr.InvalidCredential("credential expired")
	}
	if claims.Sub == "" {
		return Identity{}, apperr.InvalidCredential("credential missing subject")
	}

	return Identity{
		SubjectID: claims.Sub,
		Name:      claims.Name,
		Email:     claims.Email,
		AvatarURL: claims.Picture,
	}, nil
}
