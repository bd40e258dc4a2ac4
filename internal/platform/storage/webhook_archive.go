package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const archivePrefix = "webhooks"

var (
	errInvalidBucket   = errors.New("storage: bucket name is required")
	errInvalidProvider = errors.New("storage: provider is required")
)

// objectWriter uploads one object; the GCS implementation is gcsWriter.
type objectWriter func(ctx context.Context, bucket, object string, payload []byte, metadata map[string]string) error

// WebhookArchive stores raw gateway notifications in a bucket, one object per delivery.
type WebhookArchive struct {
	bucket string
	write  objectWriter
}

// NewWebhookArchive archives into bucket using the given client.
func NewWebhookArchive(client *storage.Client, bucket string) (*WebhookArchive, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	return newWebhookArchive(bucket, gcsWriter(client))
}

func newWebhookArchive(bucket string, write objectWriter) (*WebhookArchive, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	return &WebhookArchive{bucket: bucket, write: write}, nil
}

// ArchiveWebhook writes the payload under webhooks/<provider>/<yyyy>/<mm>/<dd>/.
func (a *WebhookArchive) ArchiveWebhook(ctx context.Context, provider string, receivedAt time.Time, payload []byte) error {
	object, err := ArchiveObjectPath(provider, receivedAt, payload)
	if err != nil {
		return err
	}
	metadata := map[string]string{
		"provider":   strings.ToLower(strings.TrimSpace(provider)),
		"receivedAt": receivedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := a.write(ctx, a.bucket, object, payload, metadata); err != nil {
		return fmt.Errorf("storage: archive %s: %w", object, err)
	}
	return nil
}

// ArchiveObjectPath derives a stable object name. Identical payloads received at the same
// instant map to the same object.
func ArchiveObjectPath(provider string, receivedAt time.Time, payload []byte) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || strings.ContainsAny(provider, "/\\") {
		return "", errInvalidProvider
	}
	ts := receivedAt.UTC()
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s/%s/%04d/%02d/%02d/%d-%s.json",
		archivePrefix, provider, ts.Year(), int(ts.Month()), ts.Day(), ts.UnixNano(), hex.EncodeToString(sum[:6])), nil
}

func gcsWriter(client *storage.Client) objectWriter {
	return func(ctx context.Context, bucket, object string, payload []byte, metadata map[string]string) error {
		w := client.Bucket(bucket).Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
		w.ContentType = "application/json"
		w.Metadata = metadata
		if _, err := w.Write(payload); err != nil {
			_ = w.Close()
			return err
		}
		err := w.Close()
		if isPreconditionFailed(err) {
			// the same delivery was archived already
			return nil
		}
		return err
	}
}

func isPreconditionFailed(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusPreconditionFailed
	}
	return status.Code(err) == codes.FailedPrecondition
}
