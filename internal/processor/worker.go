package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-batcher/internal/config"
	"github.com/kozaktomas/photo-batcher/internal/constants"
	"github.com/kozaktomas/photo-batcher/internal/drive"
	"github.com/kozaktomas/photo-batcher/internal/mailer"
	"github.com/kozaktomas/photo-batcher/internal/qr"
	"github.com/kozaktomas/photo-batcher/internal/segment"
	"github.com/kozaktomas/photo-batcher/internal/sorter"
	"github.com/kozaktomas/photo-batcher/internal/store"
)

// CloudStorage is the capability the worker needs from Drive. The drive
// client satisfies it; tests inject a fake.
type CloudStorage interface {
	EnsureFolder(ctx context.Context, name, parentID string) (*drive.File, error)
	UploadFile(ctx context.Context, folderID, name, path string) (*drive.File, error)
	ShareFolder(ctx context.Context, folderID string) (string, error)
}

// Worker processes one batch end to end: scan, segment, upload, notify.
type Worker struct {
	EventBroadcaster

	batchID int64
	store   *store.Store
	cloud   CloudStorage
	mail    mailer.Sender
	decode  segment.DecodeFunc
	cfg     *config.Config
	log     zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	// eventFolder is created lazily on the first emitted group, so a batch
	// with no recognized codes leaves no empty folder on Drive.
	eventFolder *drive.File

	// authErr, once set, fails every remaining group fast instead of
	// retrying uploads against a revoked credential.
	authErr error

	uploadRetry store.RetryPolicy
}

func newWorker(batchID int64, st *store.Store, cloud CloudStorage, mail mailer.Sender,
	decode segment.DecodeFunc, cfg *config.Config, log zerolog.Logger) *Worker {
	retry := st.Retry()
	retry.Retryable = func(err error) bool {
		return !drive.IsAuthError(err)
	}
	return &Worker{
		batchID:     batchID,
		store:       st,
		cloud:       cloud,
		mail:        mail,
		decode:      decode,
		cfg:         cfg,
		log:         log.With().Int64("batch_id", batchID).Logger(),
		done:        make(chan struct{}),
		uploadRetry: retry,
	}
}

// Running reports whether the worker is still processing.
func (w *Worker) Running() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Done returns a channel that is closed when the worker finishes.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Cancel stops the worker. Work already handed to Drive finishes; nothing
// new is scheduled.
func (w *Worker) Cancel() {
	if w.cancel != nil {
		w.cancel()
	}
	w.SendEvent(Event{Type: "cancelled", Message: "Processing cancelled by user"})
}

// Run executes the batch pipeline and records the outcome. Any error fails
// the batch with a message an operator can act on.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	if err := w.run(ctx); err != nil {
		w.log.Error().Err(err).Msg("batch processing failed")
		// failure is written with a fresh context: a cancelled run must
		// still be able to record that it failed
		if ferr := w.store.MarkBatchFailed(context.Background(), w.batchID, err.Error()); ferr != nil {
			w.log.Error().Err(ferr).Msg("could not mark batch failed")
		}
		w.SendEvent(Event{Type: "failed", Message: err.Error()})
		return
	}
	w.SendEvent(Event{Type: "completed", Message: "Batch processing completed"})
}

func (w *Worker) run(ctx context.Context) error {
	if err := w.store.TransitionBatch(ctx, w.batchID, store.BatchProcessing); err != nil {
		return err
	}

	batch, err := w.store.GetBatch(ctx, w.batchID)
	if err != nil {
		return err
	}

	photos, err := w.store.ListBatchPhotos(ctx, w.batchID)
	if err != nil {
		return err
	}
	order := sorter.NewOrder()
	sort.SliceStable(photos, func(i, j int) bool {
		return order.Less(photos[i].Filename, photos[j].Filename)
	})

	w.appendLog(ctx, "processing_started",
		fmt.Sprintf("Processing %d photos", len(photos)), store.SeverityInfo, nil)
	if err := w.store.SetBatchAction(ctx, w.batchID, "scanning", ""); err != nil {
		w.log.Warn().Err(err).Msg("could not update batch action")
	}

	byPath := make(map[string]*store.Photo, len(photos))
	for i := range photos {
		byPath[photos[i].OriginalPath] = &photos[i]
	}

	processed := 0
	engine := segment.New(w.trackingDecode(ctx, batch, byPath, &processed), segment.NewStoreMatcher(w.store), w.log)

	res, err := engine.Run(ctx, photos, func(ctx context.Context, g *segment.Group) error {
		return w.uploadGroup(ctx, batch, g)
	})
	if err != nil {
		return err
	}

	if err := w.store.SetUnmatchedPhotos(ctx, w.batchID, len(res.Unmatched)); err != nil {
		w.log.Warn().Err(err).Msg("could not record unmatched photo count")
	}
	for _, u := range res.Unmatched {
		if u.QRData == "" {
			continue
		}
		if err := w.store.MarkQRCode(ctx, u.Photo.ID, u.QRData); err != nil {
			w.log.Warn().Err(err).Int64("photo_id", u.Photo.ID).Msg("could not mark unmatched qr photo")
		}
		w.appendLog(ctx, "unmatched_qr",
			fmt.Sprintf("QR code in %s matches no registration", u.Photo.Filename),
			store.SeverityWarning, nil)
	}

	if w.authErr != nil {
		return fmt.Errorf("cloud storage authorization failed, reconnect the Drive account: %w", w.authErr)
	}

	final, err := w.store.GetBatch(ctx, w.batchID)
	if err != nil {
		return err
	}
	if res.PeopleFound > 0 && final.UploadedPhotos == 0 {
		return errors.New("no photos could be uploaded to cloud storage")
	}

	for _, f := range res.Failed {
		w.appendLog(ctx, "group_failed",
			fmt.Sprintf("Photos for %s %s could not be uploaded: %v",
				f.Registration.FirstName, f.Registration.LastName, f.Err),
			store.SeverityError, &f.Registration.ID)
	}

	if err := w.store.SetBatchAction(ctx, w.batchID, "", ""); err != nil {
		w.log.Warn().Err(err).Msg("could not clear batch action")
	}
	if err := w.store.TransitionBatch(ctx, w.batchID, store.BatchCompleted); err != nil {
		return err
	}

	w.appendLog(ctx, "processing_completed",
		fmt.Sprintf("Found %d people, %d unmatched photos, %d failed groups",
			res.PeopleFound, len(res.Unmatched), len(res.Failed)),
		store.SeverityInfo, nil)
	w.log.Info().
		Int("people", res.PeopleFound).
		Int("unmatched", len(res.Unmatched)).
		Int("failed_groups", len(res.Failed)).
		Msg("batch completed")
	return nil
}

// trackingDecode wraps the QR decoder with per-photo bookkeeping: processed
// flags, the monotonic counter, the current file marker and progress events.
func (w *Worker) trackingDecode(ctx context.Context, batch *store.Batch,
	byPath map[string]*store.Photo, processed *int) segment.DecodeFunc {
	return func(path string) (*qr.Payload, bool) {
		photo := byPath[path]
		payload, found := w.decode(path)

		*processed++
		if photo != nil {
			if err := w.store.MarkPhotoProcessed(ctx, photo.ID); err != nil {
				w.log.Warn().Err(err).Int64("photo_id", photo.ID).Msg("could not mark photo processed")
			}
			if err := w.store.SetBatchAction(ctx, w.batchID, "scanning", photo.Filename); err != nil {
				w.log.Warn().Err(err).Msg("could not update current file")
			}
		}
		if err := w.store.SetProcessedPhotos(ctx, w.batchID, *processed); err != nil {
			w.log.Warn().Err(err).Msg("could not update processed count")
		}
		if *processed%constants.ProgressLogInterval == 0 {
			w.appendLog(ctx, "scan_progress",
				fmt.Sprintf("Scanned %d of %d photos", *processed, batch.TotalPhotos),
				store.SeverityInfo, nil)
		}
		w.SendEvent(Event{Type: "progress", Data: map[string]any{
			"processed": *processed,
			"total":     batch.TotalPhotos,
		}})
		return payload, found
	}
}

// uploadGroup mirrors one person's photos to Drive and records the results.
func (w *Worker) uploadGroup(ctx context.Context, batch *store.Batch, g *segment.Group) error {
	if w.authErr != nil {
		return w.authErr
	}

	reg := g.Registration
	if err := w.store.MarkQRCode(ctx, g.Photos[0].ID, g.QRData); err != nil {
		w.log.Warn().Err(err).Msg("could not mark qr photo")
	}
	for _, photo := range g.Photos {
		err := w.store.AssignRegistration(ctx, photo.ID, reg.ID)
		if err != nil && !errors.Is(err, store.ErrAlreadyAssigned) {
			w.log.Warn().Err(err).Int64("photo_id", photo.ID).Msg("could not assign photo")
		}
	}
	if err := w.store.IncrementPeopleFound(ctx, w.batchID); err != nil {
		w.log.Warn().Err(err).Msg("could not bump people counter")
	}
	w.appendLog(ctx, "person_found",
		fmt.Sprintf("Found %d photos for %s %s", len(g.Photos), reg.FirstName, reg.LastName),
		store.SeverityInfo, &reg.ID)

	if w.eventFolder == nil {
		name := drive.EventFolderName(batch.Name, batch.CreatedAt)
		folder, err := w.cloud.EnsureFolder(ctx, name, w.cfg.Drive.ParentFolderID)
		if err != nil {
			return w.cloudErr(fmt.Errorf("could not create event folder: %w", err))
		}
		w.eventFolder = folder
	}

	personName := drive.PersonFolderName(w.cfg.Drive.FolderNameFormat, reg.FirstName, reg.LastName)
	folder, err := w.cloud.EnsureFolder(ctx, personName, w.eventFolder.ID)
	if err != nil {
		return w.cloudErr(fmt.Errorf("could not create folder for %s: %w", personName, err))
	}

	if err := w.store.SetBatchAction(ctx, w.batchID, "uploading", personName); err != nil {
		w.log.Warn().Err(err).Msg("could not update batch action")
	}

	uploaded := 0
	for _, photo := range g.Photos {
		err := w.uploadRetry.Do(ctx, func() error {
			_, uerr := w.cloud.UploadFile(ctx, folder.ID, photo.Filename, photo.OriginalPath)
			return uerr
		})
		if err != nil {
			if drive.IsAuthError(err) {
				return w.cloudErr(err)
			}
			w.appendLog(ctx, "upload_failed",
				fmt.Sprintf("Could not upload %s: %v", photo.Filename, err),
				store.SeverityWarning, &reg.ID)
			continue
		}
		uploaded++
		if err := w.store.MarkPhotoUploaded(ctx, photo.ID); err != nil {
			w.log.Warn().Err(err).Int64("photo_id", photo.ID).Msg("could not mark photo uploaded")
		}
		if err := w.store.AddUploadedPhotos(ctx, w.batchID, 1); err != nil {
			w.log.Warn().Err(err).Msg("could not bump uploaded counter")
		}
	}

	link, err := w.cloud.ShareFolder(ctx, folder.ID)
	if err != nil {
		return w.cloudErr(fmt.Errorf("could not share folder for %s: %w", personName, err))
	}
	if err := w.store.SetDriveResult(ctx, reg.ID, folder.ID, link, len(g.Photos), uploaded); err != nil {
		w.log.Warn().Err(err).Msg("could not record drive result")
	}

	if uploaded < len(g.Photos) {
		return fmt.Errorf("%d of %d photos failed to upload", len(g.Photos)-uploaded, len(g.Photos))
	}

	if err := w.store.IncrementPeopleUploaded(ctx, w.batchID); err != nil {
		w.log.Warn().Err(err).Msg("could not bump uploaded people counter")
	}
	w.appendLog(ctx, "person_uploaded",
		fmt.Sprintf("Uploaded %d photos for %s %s", uploaded, reg.FirstName, reg.LastName),
		store.SeverityInfo, &reg.ID)
	w.SendEvent(Event{Type: "person_uploaded", Message: personName})

	if w.cfg.Processing.AutoEmail && w.mail != nil && reg.Email != "" {
		if err := w.mail.SendPhotosEmail(ctx, reg.Email, reg.FirstName, link); err != nil {
			w.appendLog(ctx, "email_failed",
				fmt.Sprintf("Could not email %s: %v", reg.Email, err),
				store.SeverityWarning, &reg.ID)
		} else if err := w.store.MarkEmailSent(ctx, reg.ID); err != nil {
			w.log.Warn().Err(err).Msg("could not mark email sent")
		}
	}
	return nil
}

// cloudErr records an authorization failure so remaining groups fail fast.
func (w *Worker) cloudErr(err error) error {
	if drive.IsAuthError(err) && w.authErr == nil {
		w.authErr = err
	}
	return err
}

func (w *Worker) appendLog(ctx context.Context, action, message, severity string, regID *int64) {
	e := &store.LogEntry{
		BatchID:        w.batchID,
		Action:         action,
		Message:        message,
		Severity:       severity,
		RegistrationID: regID,
	}
	if err := w.store.AppendLog(ctx, e); err != nil {
		w.log.Warn().Err(err).Str("action", action).Msg("could not append log entry")
	}
}
