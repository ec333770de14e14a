package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/golang-jwt/jwt/v5"
)

// ManagementScope is the token scope of Azure Resource Manager.
const ManagementScope = "https://management.azure.com/.default"

// ErrNoSession is returned when no active Azure session is available.
var ErrNoSession = errors.New("no active Azure session")

// Session describes the identity the scheduler runs as.
type Session struct {
	TenantID  string
	Principal string
	ObjectID  string
	ExpiresOn time.Time
}

// AuthContext verifies that there is an active session before any Azure
// call is made.
type AuthContext interface {
	Check(ctx context.Context) (*Session, error)
}

// SessionChecker obtains a Resource Manager token from the credential chain
// and reads the identity from its claims.
type SessionChecker struct {
	Credential azcore.TokenCredential
}

func (c *SessionChecker) Check(ctx context.Context) (*Session, error) {
	if c.Credential == nil {
		return nil, fmt.Errorf("%w: no credential configured", ErrNoSession)
	}

	token, err := c.Credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{ManagementScope},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}

	if token.Token == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrNoSession)
	}

	session, err := sessionFromToken(token.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}

	session.ExpiresOn = token.ExpiresOn

	return session, nil
}

// The token has just been issued by Entra ID, so its claims are read without
// verifying the signature.
func sessionFromToken(raw string) (*Session, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	token, _, err := parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("could not parse access token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected access token claims type")
	}

	session := &Session{
		TenantID: claimString(claims, "tid"),
		ObjectID: claimString(claims, "oid"),
	}

	for _, key := range []string{"upn", "unique_name", "preferred_username", "appid", "azp"} {
		if value := claimString(claims, key); value != "" {
			session.Principal = value
			break
		}
	}

	return session, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return value
}
