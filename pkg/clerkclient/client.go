/**
 * @description
 * This file provides the identity directory client for the credits-service. It wraps
 * the Clerk Backend SDK: it reads a user's public and private metadata to resolve the
 * subscription plan, and writes public metadata when a user changes plan through the
 * self-service endpoint.
 *
 * @dependencies
 * - github.com/clerk/clerk-sdk-go/v2: The official Clerk Backend API SDK.
 */
package clerkclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/user"
)

// DefaultBaseURL is the Clerk Backend API root. The SDK appends the API version.
const DefaultBaseURL = "https://api.clerk.com"

// ErrUserNotFound is returned when the directory has no user with the given id.
var ErrUserNotFound = errors.New("clerk user not found")

// User is the subset of the Clerk user object the service reads.
type User struct {
	ID              string
	PublicMetadata  map[string]interface{}
	PrivateMetadata map[string]interface{}
}

// Client reads and writes user metadata through the Clerk SDK.
type Client struct {
	users *user.Client
}

// NewClient creates a directory client for the given API root and secret key.
// A trailing "/v1" on baseURL is dropped.
func NewClient(baseURL, secretKey string) *Client {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	key := strings.TrimSpace(secretKey)

	config := &clerk.ClientConfig{}
	config.Key = &key
	config.URL = &baseURL
	config.HTTPClient = &http.Client{Timeout: 10 * time.Second}

	return &Client{users: user.NewClient(config)}
}

// GetUser retrieves a user with its metadata. Missing metadata decodes to empty maps.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	found, err := c.users.Get(ctx, userID)
	if err != nil {
		return nil, mapError(userID, err)
	}

	public, err := decodeMetadata(found.PublicMetadata)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public metadata of %s: %w", userID, err)
	}
	private, err := decodeMetadata(found.PrivateMetadata)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private metadata of %s: %w", userID, err)
	}

	return &User{ID: found.ID, PublicMetadata: public, PrivateMetadata: private}, nil
}

// UpdatePublicMetadata merges the given keys into the user's public metadata.
func (c *Client) UpdatePublicMetadata(ctx context.Context, userID string, metadata map[string]interface{}) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}

	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	raw := json.RawMessage(encoded)

	if _, err := c.users.UpdateMetadata(ctx, userID, &user.UpdateMetadataParams{PublicMetadata: &raw}); err != nil {
		return mapError(userID, err)
	}
	return nil
}

func mapError(userID string, err error) error {
	var apiErr *clerk.APIErrorResponse
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return fmt.Errorf("clerk request for %s failed: %w", userID, err)
}

func decodeMetadata(raw json.RawMessage) (map[string]interface{}, error) {
	metadata := map[string]interface{}{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return metadata, nil
	}
	if err := json.Unmarshal(trimmed, &metadata); err != nil {
		return nil, err
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return metadata, nil
}
