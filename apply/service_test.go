package apply

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/pagemark/pagemark/annot"
	"github.com/pagemark/pagemark/coords"
	"github.com/pagemark/pagemark/ledger"
	"github.com/pagemark/pagemark/pdf"
	"github.com/pagemark/pagemark/pdf/pdftest"
	"github.com/pagemark/pagemark/store"
)

func newService(t *testing.T) (*Service, *store.MemoryBlobs) {
	t.Helper()
	blobs := store.NewMemoryBlobs()
	return NewService(blobs, store.NewMemoryDocs(), nil), blobs
}

func uploadFixture(t *testing.T, s *Service) store.Record {
	t.Helper()
	rec, pages, err := s.Upload(context.Background(), "contract.pdf", pdftest.SinglePage(true))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if pages != 1 {
		t.Fatalf("page count = %d, want 1", pages)
	}
	return rec
}

func rectAction() *annot.Action {
	return &annot.Action{
		Kind:     annot.KindRectangle,
		Rect:     coords.Rect{X0: 50, Y0: 50, X1: 150, Y1: 120},
		Viewport: coords.Size{W: 612, H: 792},
	}
}

func TestUploadAndCurrent(t *testing.T) {
	s, _ := newService(t)
	rec := uploadFixture(t, s)
	if rec.ID == "" || len(rec.Versions) != 1 {
		t.Fatalf("upload record = %+v", rec)
	}
	data, got, err := s.Current(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "contract.pdf" {
		t.Errorf("Name = %q", got.Name)
	}
	if !bytes.Equal(data, pdftest.SinglePage(true)) {
		t.Error("Current bytes differ from the upload")
	}
}

func TestUploadRejectsEncrypted(t *testing.T) {
	s, _ := newService(t)
	_, _, err := s.Upload(context.Background(), "locked.pdf", pdftest.Encrypted())
	if !errors.Is(err, pdf.ErrEncrypted) {
		t.Fatalf("Upload = %v, want ErrEncrypted", err)
	}
}

func TestUploadRejectsGarbage(t *testing.T) {
	s, _ := newService(t)
	if _, _, err := s.Upload(context.Background(), "x.pdf", []byte("hello")); err == nil {
		t.Fatal("expected error for non-PDF payload")
	}
}

func TestApplyBatchAppendsVersion(t *testing.T) {
	s, _ := newService(t)
	rec := uploadFixture(t, s)
	ctx := context.Background()

	version, results, err := s.ApplyBatch(ctx, rec.ID, []*annot.Action{rectAction()})
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	if len(results) != 1 || results[0].Outcome != OutcomeApplied {
		t.Errorf("results = %+v", results)
	}

	data, got, err := s.Current(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Versions) != 2 {
		t.Fatalf("Versions = %v, want two entries", got.Versions)
	}
	if !bytes.HasPrefix(data, pdftest.SinglePage(true)) {
		t.Error("new revision must extend the original incrementally")
	}
}

func TestEmptyBatchIsNoOp(t *testing.T) {
	s, _ := newService(t)
	rec := uploadFixture(t, s)
	version, results, err := s.ApplyBatch(context.Background(), rec.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if version != 0 || len(results) != 0 {
		t.Errorf("empty batch: version=%d results=%v", version, results)
	}
	_, got, _ := s.Current(context.Background(), rec.ID)
	if len(got.Versions) != 1 {
		t.Errorf("empty batch grew the version list: %v", got.Versions)
	}
}

func TestFailedBatchLeavesVersionsAlone(t *testing.T) {
	s, _ := newService(t)
	rec := uploadFixture(t, s)
	bad := rectAction()
	bad.Page = 9
	if _, _, err := s.ApplyBatch(context.Background(), rec.ID, []*annot.Action{bad}); err == nil {
		t.Fatal("expected validation error")
	}
	_, got, _ := s.Current(context.Background(), rec.ID)
	if len(got.Versions) != 1 {
		t.Errorf("failed batch recorded a version: %v", got.Versions)
	}
}

func TestRevertRestoresPreviousVersion(t *testing.T) {
	s, blobs := newService(t)
	rec := uploadFixture(t, s)
	ctx := context.Background()

	if _, _, err := s.ApplyBatch(ctx, rec.ID, []*annot.Action{rectAction()}); err != nil {
		t.Fatal(err)
	}
	_, mid, _ := s.Current(ctx, rec.ID)
	droppedKey := mid.Versions[1]

	version, err := s.Revert(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if version != 0 {
		t.Errorf("version after revert = %d, want 0", version)
	}
	data, _, err := s.Current(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, pdftest.SinglePage(true)) {
		t.Error("revert did not restore the original bytes")
	}
	if _, err := blobs.Get(droppedKey); err != store.ErrNotFound {
		t.Error("reverted revision blob should be released")
	}
}

func TestRevertAtOriginalFails(t *testing.T) {
	s, _ := newService(t)
	rec := uploadFixture(t, s)
	_, err := s.Revert(context.Background(), rec.ID)
	if !errors.Is(err, ledger.ErrNoPreviousVersion) {
		t.Fatalf("Revert = %v, want ErrNoPreviousVersion", err)
	}
}

func TestUnknownDocument(t *testing.T) {
	s, _ := newService(t)
	if _, _, err := s.Current(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Current = %v, want ErrNotFound", err)
	}
}
