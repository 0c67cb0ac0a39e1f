package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSArea stages artifacts as objects under runs/<runID>/ in a bucket.
type GCSArea struct {
	bucket *storage.BucketHandle
	name   string
	prefix string
}

// NewGCSArea returns an area rooted at gs://bucket/runs/<runID>/. The client
// is shared and not closed by the area.
func NewGCSArea(client *storage.Client, bucket, runID string) *GCSArea {
	return &GCSArea{
		bucket: client.Bucket(bucket),
		name:   bucket,
		prefix: path.Join("runs", runID) + "/",
	}
}

// GCSFactory returns a Factory creating GCSAreas in bucket.
func GCSFactory(client *storage.Client, bucket string) Factory {
	return func(_ context.Context, runID string) (Area, error) {
		return NewGCSArea(client, bucket, runID), nil
	}
}

func (a *GCSArea) Put(ctx context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}

	w := a.bucket.Object(a.prefix + name).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("GCSArea.Put: write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("GCSArea.Put: finalize %s: %w", name, err)
	}
	return nil
}

func (a *GCSArea) Get(ctx context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	r, err := a.bucket.Object(a.prefix + name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCSArea.Get: open %s: %w", name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("GCSArea.Get: read %s: %w", name, err)
	}
	return data, nil
}

func (a *GCSArea) List(ctx context.Context) ([]string, error) {
	var names []string
	it := a.bucket.Objects(ctx, &storage.Query{Prefix: a.prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("GCSArea.List: iterate %s: %w", a.prefix, err)
		}
		names = append(names, strings.TrimPrefix(attrs.Name, a.prefix))
	}
	return names, nil
}

// Cleanup deletes every object under the run prefix, continuing past
// individual failures. It runs on a context detached from ctx's
// cancellation so an abandoned run is still reclaimed.
func (a *GCSArea) Cleanup(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	names, err := a.List(ctx)
	if err != nil {
		return fmt.Errorf("GCSArea.Cleanup: %w", err)
	}

	var errs []error
	for _, name := range names {
		if err := a.bucket.Object(a.prefix + name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("GCSArea.Cleanup: %w", errors.Join(errs...))
	}
	return nil
}

func (a *GCSArea) Location() string {
	return "gs://" + a.name + "/" + a.prefix
}
