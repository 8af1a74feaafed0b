package importer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMaxConcurrentUploads is the upload width used when the worker is
// constructed without an explicit limit.
const DefaultMaxConcurrentUploads = 4

// Notification severities surfaced to the operator.
const (
	NotifySuccess = "success"
	NotifyWarning = "warning"
	NotifyError   = "error"
)

// Upload folders under the tenant prefix.
const (
	FolderItems    = "items"
	FolderReceipts = "receipts"
)

// StoredFile is the reference returned by the binary upload service.
type StoredFile struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	ObjectKey    string `json:"objectKey"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mimeType"`
}

// ItemImage is one uploaded image bound for a created item. IsPrimary is
// true only for the first file of that item.
type ItemImage struct {
	StoredFile
	IsPrimary bool `json:"isPrimary"`
}

// ItemImageSet is the write-back unit: all uploaded images for one item.
type ItemImageSet struct {
	ItemID      int         `json:"itemId"`
	Description string      `json:"description"`
	Images      []ItemImage `json:"images"`
}

// PendingAsset is one description's files awaiting upload.
type PendingAsset struct {
	Description string      `json:"description"`
	Files       []AssetFile `json:"files"`
}

// AssetFinalizePayload is the unit of work handed to the background worker.
// Created once by the confirm handler, then owned entirely by the worker.
type AssetFinalizePayload struct {
	BusinessId      string        `json:"businessId"`
	ProjectId       int           `json:"projectId"`
	TransactionId   int           `json:"transactionId"`
	Assets          []PendingAsset `json:"assets"`
	Receipt         *AssetFile    `json:"receipt,omitempty"`
	TotalAssetCount int           `json:"totalAssetCount"`
}

// AssetFailure is one failed asset task, collected for operator follow-up.
type AssetFailure struct {
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

// ItemService lists the items created for a transaction and persists
// uploaded image references back onto them.
type ItemService interface {
	ListCreatedItems(ctx context.Context, businessId string, transactionId int) ([]CreatedItem, error)
	AttachItemImages(ctx context.Context, businessId string, sets []ItemImageSet) error
}

// ReceiptService attaches an uploaded receipt file to the transaction.
type ReceiptService interface {
	AttachReceipt(ctx context.Context, businessId string, transactionId int, file StoredFile) error
}

// Uploader uploads one file and returns a stored reference. Retry/backoff
// is the uploader's own concern; this worker treats it as a single call
// that eventually succeeds or fails. Delete removes a stored object and
// exists only so orphaned uploads can be discarded when their references
// never reach the database.
type Uploader interface {
	Upload(ctx context.Context, businessId string, folder string, file AssetFile) (StoredFile, error)
	Delete(ctx context.Context, objectKey string) error
}

// Notifier surfaces best-effort status messages to the operator.
type Notifier interface {
	Notify(ctx context.Context, businessId string, severity string, message string)
}

// AssetFinalizationWorker uploads and attaches binary assets to items that
// were created moments earlier. It is dispatched detached after record
// creation; all outcomes are surfaced via the Notifier and logs, never via
// a return value, because the caller has already navigated away.
type AssetFinalizationWorker struct {
	Items                ItemService
	Receipts             ReceiptService
	Store                Uploader
	Notify               Notifier
	Logger               *logrus.Logger
	MaxConcurrentUploads int
}

// Run executes one finalization pass: reconcile created items, upload
// assets under the concurrency limit, write image references back in one
// batch, attach the receipt, report. It never raises past its own boundary.
func (w *AssetFinalizationWorker) Run(ctx context.Context, payload AssetFinalizePayload) {
	started := time.Now()
	logger := w.Logger
	if logger == nil {
		logger = logrus.New()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"business_id":    payload.BusinessId,
				"transaction_id": payload.TransactionId,
				"panic":          fmt.Sprintf("%v", r),
			}).Error("[finalize.panic]")
			w.notify(ctx, payload.BusinessId, NotifyError,
				"item photo upload hit an unexpected error; re-open the purchase to retry")
		}
	}()

	width := w.MaxConcurrentUploads
	if width < 1 {
		width = DefaultMaxConcurrentUploads
	}
	limiter, err := NewConcurrencyLimiter(width)
	if err != nil {
		logger.WithField("error", err.Error()).Error("[finalize.limiter]")
		w.notify(ctx, payload.BusinessId, NotifyError,
			"item photo upload could not start; re-open the purchase to retry")
		return
	}

	logger.WithFields(logrus.Fields{
		"business_id":    payload.BusinessId,
		"transaction_id": payload.TransactionId,
		"asset_count":    payload.TotalAssetCount,
	}).Info("[finalize.reconciling]")

	created, err := w.Items.ListCreatedItems(ctx, payload.BusinessId, payload.TransactionId)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"business_id":    payload.BusinessId,
			"transaction_id": payload.TransactionId,
			"error":          err.Error(),
		}).Error("[finalize.reconciling]")
		w.notify(ctx, payload.BusinessId, NotifyError,
			"could not load the created items; re-open the purchase to retry photo upload")
		return
	}
	bucket := NewReconciliationBucket(created)
	cache := newUploadCache(w.Store)

	logger.WithFields(logrus.Fields{
		"business_id":    payload.BusinessId,
		"transaction_id": payload.TransactionId,
		"created_items":  len(created),
	}).Info("[finalize.uploading]")

	results := make([]<-chan TaskResult[ItemImageSet], 0, len(payload.Assets))
	for _, asset := range payload.Assets {
		asset := asset
		results = append(results, Submit(limiter, func() (ItemImageSet, error) {
			itemID, ok := bucket.Claim(asset.Description)
			if !ok {
				return ItemImageSet{}, fmt.Errorf("no created item found for %q", asset.Description)
			}
			set := ItemImageSet{ItemID: itemID, Description: asset.Description}
			for i, file := range asset.Files {
				stored, err := cache.upload(ctx, payload.BusinessId, FolderItems, file)
				if err != nil {
					return ItemImageSet{}, fmt.Errorf("upload %s: %w", file.Name, err)
				}
				set.Images = append(set.Images, ItemImage{StoredFile: stored, IsPrimary: i == 0})
			}
			return set, nil
		}))
	}

	// Fault-isolating join: every task resolves independently; one failure
	// never aborts the others.
	var sets []ItemImageSet
	var failures []AssetFailure
	for i, ch := range results {
		res := <-ch
		if res.Err != nil {
			failures = append(failures, AssetFailure{
				Description: payload.Assets[i].Description,
				Reason:      res.Err.Error(),
			})
			continue
		}
		sets = append(sets, res.Value)
	}

	logger.WithFields(logrus.Fields{
		"business_id":    payload.BusinessId,
		"transaction_id": payload.TransactionId,
		"succeeded":      len(sets),
		"failed":         len(failures),
	}).Info("[finalize.writing-back]")

	if len(sets) > 0 {
		if err := w.Items.AttachItemImages(ctx, payload.BusinessId, sets); err != nil {
			logger.WithFields(logrus.Fields{
				"business_id":    payload.BusinessId,
				"transaction_id": payload.TransactionId,
				"error":          err.Error(),
			}).Error("[finalize.writing-back]")
			failures = append(failures, AssetFailure{
				Description: "item photos",
				Reason:      "failed to save uploaded photos: " + err.Error(),
			})
			// The objects are orphans now; a retry re-uploads them anyway.
			w.discardUploads(ctx, logger, sets)
		}
	}

	// Receipt failure is recorded separately and never blocks item images.
	if payload.Receipt != nil {
		receipt := *payload.Receipt
		res := <-Submit(limiter, func() (StoredFile, error) {
			return w.Store.Upload(ctx, payload.BusinessId, FolderReceipts, receipt)
		})
		if res.Err != nil {
			failures = append(failures, AssetFailure{Description: "receipt", Reason: res.Err.Error()})
		} else if err := w.Receipts.AttachReceipt(ctx, payload.BusinessId, payload.TransactionId, res.Value); err != nil {
			failures = append(failures, AssetFailure{Description: "receipt", Reason: err.Error()})
		}
	}

	elapsed := time.Since(started).Round(time.Millisecond)
	if len(failures) == 0 {
		logger.WithFields(logrus.Fields{
			"business_id":    payload.BusinessId,
			"transaction_id": payload.TransactionId,
			"elapsed":        elapsed.String(),
		}).Info("[finalize.reported]")
		w.notify(ctx, payload.BusinessId, NotifySuccess,
			fmt.Sprintf("uploaded %d assets in %s", payload.TotalAssetCount, elapsed))
		return
	}

	logger.WithFields(logrus.Fields{
		"business_id":    payload.BusinessId,
		"transaction_id": payload.TransactionId,
		"elapsed":        elapsed.String(),
		"failures":       failures,
	}).Warn("[finalize.reported]")
	w.notify(ctx, payload.BusinessId, NotifyWarning,
		fmt.Sprintf("%d of %d asset uploads need attention; re-open the purchase to retry",
			len(failures), payload.TotalAssetCount))
}

func (w *AssetFinalizationWorker) discardUploads(ctx context.Context, logger *logrus.Logger, sets []ItemImageSet) {
	for _, set := range sets {
		for _, img := range set.Images {
			if img.ObjectKey == "" {
				continue
			}
			if err := w.Store.Delete(ctx, img.ObjectKey); err != nil {
				logger.WithFields(logrus.Fields{
					"object_key": img.ObjectKey,
					"error":      err.Error(),
				}).Warn("[finalize.cleanup]")
			}
		}
	}
}

func (w *AssetFinalizationWorker) notify(ctx context.Context, businessId, severity, message string) {
	if w.Notify == nil {
		return
	}
	w.Notify.Notify(ctx, businessId, severity, message)
}

// uploadCache de-duplicates identical uploads across one run, keyed by
// filename+size+mime. Several drafts can share one source asset; the bytes
// go up once and every sharer receives the same stored reference. Run
// scoped, never shared across runs.
type uploadCache struct {
	store   Uploader
	mu      sync.Mutex
	entries map[string]*uploadEntry
}

type uploadEntry struct {
	done chan struct{}
	file StoredFile
	err  error
}

func newUploadCache(store Uploader) *uploadCache {
	return &uploadCache{store: store, entries: make(map[string]*uploadEntry)}
}

func (c *uploadCache) upload(ctx context.Context, businessId, folder string, file AssetFile) (StoredFile, error) {
	size := file.Size
	if size == 0 {
		size = int64(len(file.Data))
	}
	key := fmt.Sprintf("%s|%d|%s", file.Name, size, file.MimeType)

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		c.mu.Unlock()
		<-entry.done
		return entry.file, entry.err
	}
	entry := &uploadEntry{done: make(chan struct{})}
	c.entries[key] = entry
	c.mu.Unlock()

	entry.file, entry.err = c.store.Upload(ctx, businessId, folder, file)
	close(entry.done)
	return entry.file, entry.err
}
