package staging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const gcsScheme = "gs://"

// IsGCSURI reports whether ref names a GCS object.
func IsGCSURI(ref string) bool {
	return strings.HasPrefix(ref, gcsScheme)
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !IsGCSURI(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, gcsScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromRef returns the base file name of a local path or GCS URI,
// e.g. "gs://bucket/2023/jan.pdf" gives "jan.pdf".
func FilenameFromRef(ref string) string {
	if IsGCSURI(ref) {
		_, object, err := ParseGCSURI(ref)
		if err != nil {
			return strings.TrimPrefix(ref, gcsScheme)
		}
		return path.Base(object)
	}
	return filepath.Base(ref)
}

// FetchFromGCS downloads the object named by a gs:// URI.
func FetchFromGCS(ctx context.Context, client *storage.Client, uri string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: %w", err)
	}

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: reading bytes: %w", err)
	}
	return data, nil
}

// UploadFile copies a local statement into bucket under objectName.
func UploadFile(ctx context.Context, client *storage.Client, bucket, objectName, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("UploadFile: open %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("UploadFile: copy to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("UploadFile: finalize upload: %w", err)
	}
	return nil
}

// ReadSource loads a statement from a local path or a gs:// URI. client may
// be nil when ref is local.
func ReadSource(ctx context.Context, client *storage.Client, ref string) ([]byte, error) {
	if IsGCSURI(ref) {
		if client == nil {
			return nil, fmt.Errorf("ReadSource: %s needs a storage client", ref)
		}
		return FetchFromGCS(ctx, client, ref)
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("ReadSource: read %s: %w", ref, err)
	}
	return data, nil
}
