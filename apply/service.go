package apply

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pagemark/pagemark/annot"
	"github.com/pagemark/pagemark/ledger"
	"github.com/pagemark/pagemark/observability"
	"github.com/pagemark/pagemark/pdf"
	"github.com/pagemark/pagemark/store"
)

// Service owns the save path: it loads the current revision, runs the
// pipeline, and appends the result as a new version. A revision is
// only recorded once both the blob and the catalog update succeed.
type Service struct {
	blobs store.BlobStore
	docs  store.DocumentStore
	pipe  *Pipeline
	log   observability.Logger
}

func NewService(blobs store.BlobStore, docs store.DocumentStore, log observability.Logger) *Service {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Service{
		blobs: blobs,
		docs:  docs,
		pipe:  NewPipeline(log),
		log:   log,
	}
}

// Upload registers data as a new document and stores it as version 0.
// It returns the catalog record and the document's page count.
func (s *Service) Upload(ctx context.Context, name string, data []byte) (store.Record, int, error) {
	// Parse up front so broken or encrypted files are rejected at the
	// door instead of at first save.
	doc, err := pdf.Parse(data)
	if err != nil {
		return store.Record{}, 0, err
	}
	rec := store.Record{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	key := uuid.NewString()
	if err := s.blobs.Put(key, data); err != nil {
		return store.Record{}, 0, err
	}
	rec.Versions = []string{key}
	if err := s.docs.Put(ctx, rec); err != nil {
		return store.Record{}, 0, err
	}
	s.log.Info("document uploaded",
		observability.String("doc", rec.ID),
		observability.String("name", name),
		observability.Int("bytes", len(data)),
		observability.Int("pages", doc.PageCount()))
	return rec, doc.PageCount(), nil
}

// Current returns the newest revision's bytes along with the record.
func (s *Service) Current(ctx context.Context, docID string) ([]byte, store.Record, error) {
	rec, err := s.docs.Get(ctx, docID)
	if err != nil {
		return nil, store.Record{}, err
	}
	led, err := ledger.FromVersions(rec.Versions)
	if err != nil {
		return nil, store.Record{}, fmt.Errorf("document %s: %w", docID, err)
	}
	data, err := s.blobs.Get(led.Current())
	if err != nil {
		return nil, store.Record{}, err
	}
	return data, rec, nil
}

// ApplyBatch applies actions to docID's newest revision and appends
// the output as a new version. An empty batch is a successful no-op.
// The returned version is the new newest index.
func (s *Service) ApplyBatch(ctx context.Context, docID string, actions []*annot.Action) (int, []Result, error) {
	data, rec, err := s.Current(ctx, docID)
	if err != nil {
		return 0, nil, err
	}
	if len(actions) == 0 {
		return len(rec.Versions) - 1, []Result{}, nil
	}

	doc, err := pdf.Parse(data)
	if err != nil {
		return 0, nil, err
	}
	results, err := s.pipe.Apply(doc, actions)
	if err != nil {
		return 0, nil, err
	}
	out, err := doc.MarshalIncremental()
	if err != nil {
		return 0, nil, err
	}

	led, err := ledger.FromVersions(rec.Versions)
	if err != nil {
		return 0, nil, err
	}
	key := uuid.NewString()
	if err := s.blobs.Put(key, out); err != nil {
		return 0, nil, err
	}
	led.Append(key)
	rec.Versions = led.Versions()
	if err := s.docs.Put(ctx, rec); err != nil {
		// The orphaned blob is harmless; the catalog never saw it.
		s.blobs.Delete(key)
		return 0, nil, err
	}
	s.log.Info("batch applied",
		observability.String("doc", docID),
		observability.Int("actions", len(actions)),
		observability.Int("version", led.Len()-1))
	return led.Len() - 1, results, nil
}

// Revert drops the newest revision. Reverting past the original fails
// with ledger.ErrNoPreviousVersion.
func (s *Service) Revert(ctx context.Context, docID string) (int, error) {
	rec, err := s.docs.Get(ctx, docID)
	if err != nil {
		return 0, err
	}
	led, err := ledger.FromVersions(rec.Versions)
	if err != nil {
		return 0, err
	}
	dropped, err := led.Rollback()
	if err != nil {
		return 0, err
	}
	rec.Versions = led.Versions()
	if err := s.docs.Put(ctx, rec); err != nil {
		return 0, err
	}
	s.blobs.Delete(dropped)
	s.log.Info("document reverted",
		observability.String("doc", docID),
		observability.Int("version", led.Len()-1))
	return led.Len() - 1, nil
}
