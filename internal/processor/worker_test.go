package processor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-batcher/internal/config"
	"github.com/kozaktomas/photo-batcher/internal/drive"
	"github.com/kozaktomas/photo-batcher/internal/qr"
	"github.com/kozaktomas/photo-batcher/internal/store"
)

type fakeCloud struct {
	mu        sync.Mutex
	nextID    int
	folders   map[string]*drive.File // name -> folder
	uploads   []string               // uploaded file names in order
	shared    []string               // shared folder ids
	uploadErr error
	ensureErr error
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{folders: map[string]*drive.File{}}
}

func (f *fakeCloud) EnsureFolder(_ context.Context, name, parentID string) (*drive.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	if existing, ok := f.folders[name]; ok {
		return existing, nil
	}
	f.nextID++
	folder := &drive.File{ID: fmt.Sprintf("folder-%d", f.nextID), Name: name}
	f.folders[name] = folder
	return folder, nil
}

func (f *fakeCloud) UploadFile(_ context.Context, folderID, name, _ string) (*drive.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploads = append(f.uploads, name)
	return &drive.File{ID: "file-" + name, Name: name}, nil
}

func (f *fakeCloud) ShareFolder(_ context.Context, folderID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shared = append(f.shared, folderID)
	return "https://drive.example.com/folders/" + folderID, nil
}

type fakeSender struct {
	mu    sync.Mutex
	sends []string // recipient addresses
	err   error
}

func (f *fakeSender) SendPhotosEmail(_ context.Context, to, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sends = append(f.sends, to)
	return nil
}

type testBatch struct {
	store *store.Store
	batch *store.Batch
	alice *store.Registration
	bob   *store.Registration
	// decode answers per path
	payloads map[string]*qr.Payload
}

// newTestBatch seeds a batch of five photos: one stray shot, then alice's
// code with one photo, then bob's code with one photo.
func newTestBatch(t *testing.T) *testBatch {
	t.Helper()
	cfg := &config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")}
	st, err := store.Open(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("could not open test database: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	tb := &testBatch{store: st, payloads: map[string]*qr.Payload{}}

	tb.batch, err = st.CreateBatch(ctx, "Summer Wedding")
	if err != nil {
		t.Fatalf("could not create batch: %v", err)
	}
	tb.alice, err = st.CreateRegistration(ctx, "Alice", "Nowak", "alice@example.com")
	if err != nil {
		t.Fatalf("could not create registration: %v", err)
	}
	tb.bob, err = st.CreateRegistration(ctx, "Bob", "Riha", "bob@example.com")
	if err != nil {
		t.Fatalf("could not create registration: %v", err)
	}

	script := []struct {
		name string
		reg  *store.Registration
	}{
		{"IMG_0001.jpg", nil},
		{"IMG_0002.jpg", tb.alice},
		{"IMG_0003.jpg", nil},
		{"IMG_0004.jpg", tb.bob},
		{"IMG_0005.jpg", nil},
	}
	for _, s := range script {
		path := "/uploads/1/" + s.name
		if _, err := st.AddPhoto(ctx, tb.batch.ID, s.name, path); err != nil {
			t.Fatalf("could not add photo: %v", err)
		}
		if s.reg != nil {
			tb.payloads[path] = &qr.Payload{
				FirstName:      s.reg.FirstName,
				LastName:       s.reg.LastName,
				Email:          s.reg.Email,
				RegistrationID: s.reg.ID,
				Token:          s.reg.QRToken,
			}
		}
	}
	if err := st.AddBatchPhotos(ctx, tb.batch.ID, len(script)); err != nil {
		t.Fatalf("could not set photo count: %v", err)
	}
	if err := st.TransitionBatch(ctx, tb.batch.ID, store.BatchUploaded); err != nil {
		t.Fatalf("could not finalize batch: %v", err)
	}
	return tb
}

func (tb *testBatch) decode(path string) (*qr.Payload, bool) {
	p, ok := tb.payloads[path]
	return p, ok
}

func testConfig(autoEmail bool) *config.Config {
	return &config.Config{
		Drive: config.DriveConfig{
			FolderNameFormat: "FirstName_LastName",
			ParentFolderID:   "parent-1",
		},
		Processing: config.ProcessingConfig{AutoEmail: autoEmail},
	}
}

// fastRetry avoids real backoff sleeps in failure tests.
func fastRetry(w *Worker) {
	w.uploadRetry.MaxAttempts = 2
	w.uploadRetry.Backoff = nil
}

func TestWorkerProcessesBatch(t *testing.T) {
	tb := newTestBatch(t)
	cloud := newFakeCloud()
	mail := &fakeSender{}

	w := newWorker(tb.batch.ID, tb.store, cloud, mail, tb.decode, testConfig(true), zerolog.Nop())
	w.Run(context.Background())

	ctx := context.Background()
	batch, err := tb.store.GetBatch(ctx, tb.batch.ID)
	if err != nil {
		t.Fatalf("could not load batch: %v", err)
	}
	if batch.Status != store.BatchCompleted {
		t.Fatalf("expected completed batch, got %q (%s)", batch.Status, batch.ErrorMessage)
	}
	if batch.ProcessedPhotos != 5 {
		t.Errorf("expected 5 processed photos, got %d", batch.ProcessedPhotos)
	}
	if batch.PeopleFound != 2 || batch.PeopleUploaded != 2 {
		t.Errorf("expected 2 people found and uploaded, got %d and %d",
			batch.PeopleFound, batch.PeopleUploaded)
	}
	if batch.UploadedPhotos != 4 {
		t.Errorf("expected 4 uploaded photos, got %d", batch.UploadedPhotos)
	}
	if batch.UnmatchedPhotos != 1 {
		t.Errorf("expected 1 unmatched photo, got %d", batch.UnmatchedPhotos)
	}
	if batch.ProgressPct() != 100 {
		t.Errorf("expected progress 100, got %d", batch.ProgressPct())
	}

	// one event folder plus one folder per person
	if len(cloud.folders) != 3 {
		t.Errorf("expected 3 folders, got %d (%v)", len(cloud.folders), cloud.folders)
	}
	if _, ok := cloud.folders["Alice_Nowak"]; !ok {
		t.Error("expected a folder for Alice")
	}
	if len(cloud.uploads) != 4 {
		t.Errorf("expected 4 uploads, got %v", cloud.uploads)
	}
	if len(cloud.shared) != 2 {
		t.Errorf("expected 2 shared folders, got %v", cloud.shared)
	}

	alice, err := tb.store.GetRegistration(ctx, tb.alice.ID)
	if err != nil {
		t.Fatalf("could not load registration: %v", err)
	}
	if alice.DriveLink == "" || alice.DriveFolderID == "" {
		t.Errorf("expected drive results written back, got %+v", alice)
	}
	if alice.PhotoCount != 2 || alice.PhotosUploaded != 2 {
		t.Errorf("expected 2 photos counted and uploaded for alice, got %d and %d",
			alice.PhotoCount, alice.PhotosUploaded)
	}
	if !alice.EmailSent {
		t.Error("expected email sent flag for alice")
	}
	if len(mail.sends) != 2 {
		t.Errorf("expected 2 emails, got %v", mail.sends)
	}
}

func TestWorkerNoUploadsFailsBatch(t *testing.T) {
	tb := newTestBatch(t)
	cloud := newFakeCloud()
	cloud.uploadErr = errors.New("storage quota exceeded")

	w := newWorker(tb.batch.ID, tb.store, cloud, nil, tb.decode, testConfig(false), zerolog.Nop())
	fastRetry(w)
	w.Run(context.Background())

	batch, err := tb.store.GetBatch(context.Background(), tb.batch.ID)
	if err != nil {
		t.Fatalf("could not load batch: %v", err)
	}
	if batch.Status != store.BatchFailed {
		t.Errorf("expected failed batch, got %q", batch.Status)
	}
	if batch.ErrorMessage == "" {
		t.Error("expected an error message on the batch")
	}
}

func TestWorkerAuthErrorIsFatal(t *testing.T) {
	tb := newTestBatch(t)
	cloud := newFakeCloud()
	cloud.uploadErr = errors.New("request failed with status 401: invalid credentials")

	w := newWorker(tb.batch.ID, tb.store, cloud, nil, tb.decode, testConfig(false), zerolog.Nop())
	fastRetry(w)
	w.Run(context.Background())

	batch, err := tb.store.GetBatch(context.Background(), tb.batch.ID)
	if err != nil {
		t.Fatalf("could not load batch: %v", err)
	}
	if batch.Status != store.BatchFailed {
		t.Fatalf("expected failed batch, got %q", batch.Status)
	}
	if !strings.Contains(batch.ErrorMessage, "authorization") {
		t.Errorf("expected authorization in error message, got %q", batch.ErrorMessage)
	}
}

func TestWorkerPartialGroupFailure(t *testing.T) {
	tb := newTestBatch(t)
	cloud := newFakeCloud()
	// fail only bob's code photo
	failing := &selectiveCloud{fakeCloud: cloud, failName: "IMG_0004.jpg"}

	w := newWorker(tb.batch.ID, tb.store, failing, nil, tb.decode, testConfig(false), zerolog.Nop())
	fastRetry(w)
	w.Run(context.Background())

	ctx := context.Background()
	batch, err := tb.store.GetBatch(ctx, tb.batch.ID)
	if err != nil {
		t.Fatalf("could not load batch: %v", err)
	}
	// alice's group made it, so the batch completes despite bob's failure
	if batch.Status != store.BatchCompleted {
		t.Fatalf("expected completed batch, got %q (%s)", batch.Status, batch.ErrorMessage)
	}
	if batch.PeopleFound != 2 {
		t.Errorf("expected 2 people found, got %d", batch.PeopleFound)
	}
	if batch.PeopleUploaded != 1 {
		t.Errorf("expected 1 person fully uploaded, got %d", batch.PeopleUploaded)
	}

	bob, err := tb.store.GetRegistration(ctx, tb.bob.ID)
	if err != nil {
		t.Fatalf("could not load registration: %v", err)
	}
	if bob.PhotosUploaded != 1 {
		t.Errorf("expected bob's partial result recorded, got %d uploaded", bob.PhotosUploaded)
	}
}

// selectiveCloud fails uploads for a single file name.
type selectiveCloud struct {
	*fakeCloud
	failName string
}

func (s *selectiveCloud) UploadFile(ctx context.Context, folderID, name, path string) (*drive.File, error) {
	if name == s.failName {
		return nil, errors.New("transfer reset")
	}
	return s.fakeCloud.UploadFile(ctx, folderID, name, path)
}

func TestManagerRejectsDoubleStart(t *testing.T) {
	tb := newTestBatch(t)
	cloud := newFakeCloud()

	release := make(chan struct{})
	blockingDecode := func(path string) (*qr.Payload, bool) {
		<-release
		return tb.decode(path)
	}

	m := NewManager(tb.store, cloud, nil, Decoders{Fast: blockingDecode}, testConfig(false), zerolog.Nop())
	w, err := m.Start(tb.batch.ID, false)
	if err != nil {
		t.Fatalf("could not start worker: %v", err)
	}

	if _, err := m.Start(tb.batch.ID, false); !errors.Is(err, ErrBatchRunning) {
		t.Errorf("expected ErrBatchRunning, got %v", err)
	}

	close(release)
	<-w.done

	if w.Running() {
		t.Error("expected worker to be finished")
	}
}
