package signin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// userInfo is the subset of the provider's userinfo response the platform
// reads. Casdoor returns preferred_username when no display name is set.
type userInfo struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// UserInfoFetcher returns a ProfileFetcher that calls the provider's
// userinfo endpoint with the bearer token from the OAuth exchange.
func UserInfoFetcher(userInfoURL string, client *http.Client) ProfileFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return func(ctx context.Context, token *oauth2.Token) (Profile, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURL, nil)
		if err != nil {
			return Profile{}, err
		}
		token.SetAuthHeader(req)

		resp, err := client.Do(req)
		if err != nil {
			return Profile{}, fmt.Errorf("fetching userinfo: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return Profile{}, fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
		}

		var info userInfo
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
			return Profile{}, fmt.Errorf("decoding userinfo: %w", err)
		}

		name := info.Name
		if name == "" {
			name = info.PreferredUsername
		}
		return Profile{Email: info.Email, Name: name}, nil
	}
}
