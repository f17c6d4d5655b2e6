package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Fetcher resolves secret names against Google Secret Manager, caching
// resolved values for the lifetime of the process.
type Fetcher struct {
	client    *secretmanager.Client
	projectID string

	mu    sync.Mutex
	cache map[string]string
}

// NewFetcher constructs a Fetcher for the given project.
func NewFetcher(ctx context.Context, projectID string) (*Fetcher, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errors.New("secrets: project id is required")
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("secrets: create client: %w", err)
	}
	return &Fetcher{
		client:    client,
		projectID: projectID,
		cache:     make(map[string]string),
	}, nil
}

// Resolve fetches the latest version of the named secret.
func (f *Fetcher) Resolve(ctx context.Context, name string) (string, error) {
	if f == nil || f.client == nil {
		return "", errors.New("secrets: fetcher not initialised")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("secrets: secret name is required")
	}

	f.mu.Lock()
	if value, ok := f.cache[name]; ok {
		f.mu.Unlock()
		return value, nil
	}
	f.mu.Unlock()

	resource := name
	if !strings.HasPrefix(resource, "projects/") {
		resource = fmt.Sprintf("projects/%s/secrets/%s/versions/latest", f.projectID, name)
	}

	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resource,
	})
	if err != nil {
		return "", fmt.Errorf("secrets: access %s: %w", name, err)
	}

	value := string(resp.GetPayload().GetData())
	f.mu.Lock()
	f.cache[name] = value
	f.mu.Unlock()
	return value, nil
}

// Close releases the underlying Secret Manager client.
func (f *Fetcher) Close() error {
	if f == nil || f.client == nil {
		return nil
	}
	return f.client.Close()
}
