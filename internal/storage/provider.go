// Package storage abstracts where run artifacts are uploaded so the
// harvester stays independent of a specific backend (GCS, S3, local disk,
// or in-memory for tests).
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
)

// Provider uploads one artifact to a blob store.
type Provider interface {
	// PutObject writes data under the given object path and returns the
	// resulting URI.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Object is one artifact queued for upload.
type Object struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadAll writes every object under prefix. Uploads are independent, not
// transactional: a failure for one object never suppresses the attempts for
// the others. It returns the URIs of the successful uploads along with the
// joined errors of the failed ones.
func UploadAll(ctx context.Context, p Provider, prefix string, objects []Object) ([]string, error) {
	var uris []string
	var errs []error
	for _, obj := range objects {
		key := obj.Name
		if prefix != "" {
			key = path.Join(prefix, obj.Name)
		}
		uri, err := p.PutObject(ctx, key, obj.ContentType, bytes.NewReader(obj.Data))
		if err != nil {
			errs = append(errs, fmt.Errorf("upload %s: %w", key, err))
			continue
		}
		uris = append(uris, uri)
	}
	return uris, errors.Join(errs...)
}
