package snapshot

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jaki95/registry-sync/internal/domain"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore keeps snapshots as objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client       *storage.Client
	bucket       string
	objectPrefix string
}

// NewGCSStore creates a GCS-backed store. Application default credentials are
// used when credentialsFile is empty.
func NewGCSStore(ctx context.Context, bucketName, objectPrefix, credentialsFile string) (*GCSStore, error) {
	var client *storage.Client
	var err error

	if credentialsFile != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(credentialsFile))
	} else {
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStore{
		client:       client,
		bucket:       bucketName,
		objectPrefix: strings.Trim(objectPrefix, "/"),
	}, nil
}

func (s *GCSStore) objectName(name string) string {
	if s.objectPrefix == "" {
		return name
	}
	return s.objectPrefix + "/" + name
}

func (s *GCSStore) Save(ctx context.Context, name string, records []domain.OperatorRecord) error {
	if err := validName(name); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	wc := s.client.Bucket(s.bucket).Object(s.objectName(name)).NewWriter(ctx)
	wc.ContentType = "application/json"
	if err := encode(wc, records); err != nil {
		wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (s *GCSStore) Load(ctx context.Context, name string) ([]domain.OperatorRecord, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	rc, err := s.client.Bucket(s.bucket).Object(s.objectName(name)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS object: %w", err)
	}
	defer rc.Close()

	return decode(rc)
}

func (s *GCSStore) List(ctx context.Context) ([]string, error) {
	query := &storage.Query{}
	if s.objectPrefix != "" {
		query.Prefix = s.objectPrefix + "/"
	}

	it := s.client.Bucket(s.bucket).Objects(ctx, query)

	names := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error listing objects: %w", err)
		}

		name := path.Base(attrs.Name)
		if strings.HasSuffix(attrs.Name, "/") || !isSnapshotName(name) {
			continue
		}
		names = append(names, name)
	}

	sort.Strings(names)
	return names, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
