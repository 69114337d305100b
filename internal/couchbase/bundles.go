package couchbase

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/fhirrecord/internal/archive"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
	"stealthcompany.com/fhirrecord/internal/metrics"
)

// BundleStore keeps assembled bundles as documents keyed Bundle/<encounter>
type BundleStore struct {
	bucket *gocb.Bucket
}

// NewBundleStore creates a store on the default collection of bucket
func NewBundleStore(bucket *gocb.Bucket) *BundleStore {
	return &BundleStore{bucket: bucket}
}

// DocumentID returns the key of the bundle stored under name
func DocumentID(name string) string {
	return "Bundle/" + name
}

// Store upserts the bundle, replacing an earlier run of the same encounter
func (s *BundleStore) Store(ctx context.Context, name string, bundle jsonpath.Node) error {
	col := s.bucket.DefaultCollection()

	_, err := col.Upsert(DocumentID(name), bundle, &gocb.UpsertOptions{Context: ctx})
	if err != nil {
		metrics.RecordArchiveWrite("couchbase", "error")
		return fmt.Errorf("failed to upsert document %s: %w", DocumentID(name), err)
	}

	metrics.RecordArchiveWrite("couchbase", "success")
	log.Debug().Str("doc_id", DocumentID(name)).Msg("Bundle stored in Couchbase")
	return nil
}

// Load reads a stored bundle back
func (s *BundleStore) Load(ctx context.Context, name string) (jsonpath.Node, error) {
	col := s.bucket.DefaultCollection()

	result, err := col.Get(DocumentID(name), &gocb.GetOptions{Context: ctx})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return jsonpath.Node{}, fmt.Errorf("bundle %s: %w", name, archive.ErrNotFound)
		}
		return jsonpath.Node{}, fmt.Errorf("failed to get document %s: %w", DocumentID(name), err)
	}

	var bundle jsonpath.Node
	if err := result.Content(&bundle); err != nil {
		return jsonpath.Node{}, fmt.Errorf("failed to parse document content: %w", err)
	}
	return bundle, nil
}
