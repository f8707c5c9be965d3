package uploads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// ObjectStore keeps uploaded document bytes. RemoveFiles matches the
// workflow engine's FileRemover so a replaced or deleted document can be
// cleaned up after commit.
type ObjectStore interface {
	Upload(ctx context.Context, objectKey string, data []byte, contentType string) error
	RemoveFiles(ctx context.Context, objectKeys []string) error
}

type GCSStorage struct {
	Client *storage.Client
	Bucket string
	Logger *logrus.Logger
}

// NewGCSStorageFromEnv prefers GCS_CREDENTIALS_JSON and falls back to
// application default credentials.
func NewGCSStorageFromEnv(ctx context.Context, logger *logrus.Logger) (*GCSStorage, error) {
	bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	if bucket == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}
	var opts []option.ClientOption
	if credJSON := strings.TrimSpace(os.Getenv("GCS_CREDENTIALS_JSON")); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("gcs bucket %q not found or not accessible: %v", bucket, err)
	}
	return &GCSStorage{Client: client, Bucket: bucket, Logger: logger}, nil
}

func (s *GCSStorage) Upload(ctx context.Context, objectKey string, data []byte, contentType string) error {
	wc := s.Client.Bucket(s.Bucket).Object(objectKey).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to upload %s: %v", objectKey, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %v", err)
	}
	return nil
}

// RemoveFiles deletes every key it can; missing objects are not errors.
func (s *GCSStorage) RemoveFiles(ctx context.Context, objectKeys []string) error {
	var errs []error
	for _, key := range objectKeys {
		err := s.Client.Bucket(s.Bucket).Object(key).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		if s.Logger != nil {
			s.Logger.WithFields(logrus.Fields{
				"field":      "GCSStorage",
				"object_key": key,
			}).Debug("object removed")
		}
	}
	return errors.Join(errs...)
}

// SignedURL returns a V4 GET URL for a stored document. It needs a service
// account key in GCS_CREDENTIALS_JSON or GCS_SIGNER_EMAIL/GCS_SIGNER_PRIVATE_KEY.
func (s *GCSStorage) SignedURL(objectKey string, expires time.Duration) (string, error) {
	accessID, privateKey, err := loadSignerFromEnv()
	if err != nil {
		return "", err
	}
	return storage.SignedURL(s.Bucket, objectKey, &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		Expires:        time.Now().Add(expires),
		GoogleAccessID: accessID,
		PrivateKey:     privateKey,
	})
}

func (s *GCSStorage) Close() error {
	return s.Client.Close()
}

type serviceAccountJSON struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

func loadSignerFromEnv() (string, []byte, error) {
	if credJSON := strings.TrimSpace(os.Getenv("GCS_CREDENTIALS_JSON")); credJSON != "" {
		var key serviceAccountJSON
		if err := json.Unmarshal([]byte(credJSON), &key); err != nil {
			return "", nil, fmt.Errorf("invalid GCS_CREDENTIALS_JSON: %w", err)
		}
		if key.ClientEmail == "" || key.PrivateKey == "" {
			return "", nil, errors.New("GCS_CREDENTIALS_JSON missing client_email or private_key")
		}
		return key.ClientEmail, normalizePrivateKey(key.PrivateKey), nil
	}
	email := strings.TrimSpace(os.Getenv("GCS_SIGNER_EMAIL"))
	privateKey := strings.TrimSpace(os.Getenv("GCS_SIGNER_PRIVATE_KEY"))
	if email == "" || privateKey == "" {
		return "", nil, errors.New("no signing key configured")
	}
	return email, normalizePrivateKey(privateKey), nil
}

func normalizePrivateKey(key string) []byte {
	return []byte(strings.ReplaceAll(key, "\\n", "\n"))
}

// MemoryStorage keeps objects in process. Used when no bucket is configured
// and in tests.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: map[string]memoryObject{}}
}

func (m *MemoryStorage) Upload(ctx context.Context, objectKey string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectKey] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (m *MemoryStorage) RemoveFiles(ctx context.Context, objectKeys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range objectKeys {
		delete(m.objects, key)
	}
	return nil
}

// Object returns the stored bytes and content type.
func (m *MemoryStorage) Object(objectKey string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[objectKey]
	return o.data, o.contentType, ok
}
