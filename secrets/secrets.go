// Package secrets reads service credentials and lookup tables from a YAML
// secrets file. Top-level keys are service names; values are arbitrary
// nested mappings addressed by key paths.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("secret not found")

const (
	credentialsPathKey = "credentials_path"
	googleService      = "Google"
	secretFilenameKey  = "secret_filename"
	bigQueryService    = "BigQuery"
	projectIDKey       = "project_id"
)

// Credentials locates the service account file on disk.
type Credentials struct {
	SecretFilename string
	Directory      string
}

func (c Credentials) Path() string {
	return filepath.Join(c.Directory, c.SecretFilename)
}

type Store struct {
	data map[string]any
}

func Load(path string) (*Store, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file %q: %w", path, err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Store, error) {
	data := map[string]any{}
	if err := yaml.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return &Store{data: data}, nil
}

// Lookup walks service followed by keys and returns the value found there.
func (s *Store) Lookup(service string, keys ...string) (any, error) {
	path := append([]string{service}, keys...)

	var cur any = s.data
	for i, k := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a mapping", ErrNotFound, strings.Join(path[:i], "."))
		}
		if cur, ok = m[k]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.Join(path[:i+1], "."))
		}
	}
	return cur, nil
}

func (s *Store) String(service string, keys ...string) (string, error) {
	v, err := s.Lookup(service, keys...)
	if err != nil {
		return "", err
	}
	switch v := v.(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("%w: %s is empty", ErrNotFound, service)
	default:
		return fmt.Sprint(v), nil
	}
}

// StringMap returns a flat mapping with every value rendered as a string,
// so numeric project IDs survive YAML typing.
func (s *Store) StringMap(service string, keys ...string) (map[string]string, error) {
	v, err := s.Lookup(service, keys...)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s %v is not a mapping", service, keys)
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = fmt.Sprint(val)
	}
	return out, nil
}

func (s *Store) Credentials() (Credentials, error) {
	filename, err := s.String(googleService, secretFilenameKey)
	if err != nil {
		return Credentials{}, err
	}
	dir, err := s.String(credentialsPathKey)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{SecretFilename: filename, Directory: dir}, nil
}

// ProjectIDs maps project names to warehouse project IDs.
func (s *Store) ProjectIDs() (map[string]string, error) {
	return s.StringMap(bigQueryService, projectIDKey)
}
