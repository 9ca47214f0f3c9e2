package source

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v80/github"
)

// newAppClient creates an authenticated GitHub client using an App ID and
// private key. If enterpriseURL is non-empty, it configures the client for
// GitHub Enterprise.
func newAppClient(appID int64, privateKey []byte, enterpriseURL string) (*github.Client, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKey)
	if err != nil {
		return nil, fmt.Errorf("parsing github app private key: %w", err)
	}

	// sign a short-lived JWT for the GitHub App
	now := time.Now()
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(9 * time.Minute).Unix(),
		"iss": appID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(key)
	if err != nil {
		return nil, fmt.Errorf("signing github app jwt: %w", err)
	}

	client := github.NewClient(nil).WithAuthToken(signedToken)
	if enterpriseURL != "" {
		// we don't interact with uploads, so just use the same URL for both
		client, err = client.WithEnterpriseURLs(enterpriseURL, enterpriseURL)
		if err != nil {
			return nil, fmt.Errorf("creating github enterprise client: %w", err)
		}
	}
	return client, nil
}

// newInstallationClient exchanges the app client for a client authenticated
// as the installation with the given ID.
func newInstallationClient(ctx context.Context, appClient *github.Client, instID int64) (*github.Client, error) {
	token, _, err := appClient.Apps.CreateInstallationToken(ctx, instID, nil)
	if err != nil {
		return nil, fmt.Errorf("creating installation token for installation ID %d: %w", instID, err)
	}
	return github.NewClient(nil).WithAuthToken(token.GetToken()), nil
}
