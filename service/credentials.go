package service

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/bigquery"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// resolveCredentials turns an explicit credentials file into client options.
// An empty path leaves the SDKs on Application Default Credentials.
func resolveCredentials(ctx context.Context, path string) (*google.Credentials, []option.ClientOption, error) {
	if path == "" {
		return nil, nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read credentials file %q: %w", path, err)
	}

	creds, err := google.CredentialsFromJSON(ctx, data, bigquery.Scope, cloudPlatformScope)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse credentials file %q: %w", path, err)
	}
	return creds, []option.ClientOption{option.WithCredentials(creds)}, nil
}

// DetectProjectID reads the project from Application Default Credentials.
func DetectProjectID(ctx context.Context) (string, error) {
	creds, err := google.FindDefaultCredentials(ctx, bigquery.Scope)
	if err != nil {
		return "", fmt.Errorf("failed to find default credentials: %w", err)
	}
	if creds.ProjectID == "" {
		return "", fmt.Errorf("project ID could not be detected from credentials")
	}
	return creds.ProjectID, nil
}
