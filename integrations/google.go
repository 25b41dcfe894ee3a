package integrations

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

// IdentityVerifier turns a sign-in credential into a verified email address.
type IdentityVerifier interface {
	VerifyEmail(ctx context.Context, credential string) (string, error)
}

// GoogleVerifier validates Google Identity Services ID tokens issued for clientID.
type GoogleVerifier struct {
	clientID string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID, validate: idtoken.Validate}
}

func (v *GoogleVerifier) VerifyEmail(ctx context.Context, credential string) (string, error) {
	if credential == "" {
		return "", errors.New("missing google credential")
	}

	payload, err := v.validate(ctx, credential, v.clientID)
	if err != nil {
		return "", fmt.Errorf("unable to validate google id token: %w", err)
	}

	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return "", errors.New("google id token carries no email")
	}
	if verified, _ := payload.Claims["email_verified"].(bool); !verified {
		return "", fmt.Errorf("google account email %s is not verified", email)
	}

	return email, nil
}
