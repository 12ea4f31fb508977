package youtube

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// DefaultUploadBase is the root of the media upload endpoint.
const DefaultUploadBase = "https://www.googleapis.com/"

// NewService creates a Data API client that sends requests through client.
// endpoint overrides the API root and is empty in production.
func NewService(ctx context.Context, client *http.Client, endpoint string) (*youtube.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return svc, nil
}
