package importer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeItemService struct {
	mu        sync.Mutex
	created   []CreatedItem
	listErr   error
	attachErr error
	attached  []ItemImageSet
}

func (s *fakeItemService) ListCreatedItems(ctx context.Context, businessId string, transactionId int) ([]CreatedItem, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.created, nil
}

func (s *fakeItemService) AttachItemImages(ctx context.Context, businessId string, sets []ItemImageSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attachErr != nil {
		return s.attachErr
	}
	s.attached = append(s.attached, sets...)
	return nil
}

type fakeUploader struct {
	mu      sync.Mutex
	calls   map[string]int
	failOn  map[string]error
	panicOn string
	deleted []string
}

func (u *fakeUploader) Upload(ctx context.Context, businessId string, folder string, file AssetFile) (StoredFile, error) {
	u.mu.Lock()
	if u.calls == nil {
		u.calls = make(map[string]int)
	}
	u.calls[file.Name]++
	u.mu.Unlock()

	if u.panicOn != "" && file.Name == u.panicOn {
		panic("uploader wedged on " + file.Name)
	}
	if err, ok := u.failOn[file.Name]; ok {
		return StoredFile{}, err
	}
	return StoredFile{
		URL:       "https://storage.test/" + businessId + "/" + folder + "/" + file.Name,
		ObjectKey: businessId + "/" + folder + "/" + file.Name,
		Size:      file.Size,
		MimeType:  file.MimeType,
	}, nil
}

func (u *fakeUploader) Delete(ctx context.Context, objectKey string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deleted = append(u.deleted, objectKey)
	return nil
}

func (u *fakeUploader) callCount(name string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[name]
}

func (u *fakeUploader) deletedKeys() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.deleted...)
}

type fakeReceipts struct {
	mu       sync.Mutex
	err      error
	attached []StoredFile
}

func (r *fakeReceipts) AttachReceipt(ctx context.Context, businessId string, transactionId int, file StoredFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.attached = append(r.attached, file)
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(ctx context.Context, businessId string, severity string, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, severity+": "+message)
}

func (n *fakeNotifier) last(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		t.Fatal("expected a notification")
	}
	return n.messages[len(n.messages)-1]
}

func testWorker(items *fakeItemService, receipts *fakeReceipts, store *fakeUploader, notify *fakeNotifier) *AssetFinalizationWorker {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.ErrorLevel)
	return &AssetFinalizationWorker{
		Items:    items,
		Receipts: receipts,
		Store:    store,
		Notify:   notify,
		Logger:   logger,
	}
}

func pngFile(name string, size int64) AssetFile {
	return AssetFile{Name: name, MimeType: "image/png", Size: size, Data: []byte("img")}
}

func TestFinalize_DuplicateDescriptionsClaimDistinctItems(t *testing.T) {
	items := &fakeItemService{created: []CreatedItem{
		{ID: 101, Description: "Chair"},
		{ID: 102, Description: "Chair"},
	}}
	store := &fakeUploader{}
	notify := &fakeNotifier{}
	worker := testWorker(items, &fakeReceipts{}, store, notify)

	worker.Run(context.Background(), AssetFinalizePayload{
		BusinessId:    "biz-1",
		TransactionId: 7,
		Assets: []PendingAsset{
			{Description: "Chair", Files: []AssetFile{pngFile("chair-a.png", 100)}},
			{Description: "Chair", Files: []AssetFile{pngFile("chair-b.png", 200)}},
			{Description: "Ottoman", Files: []AssetFile{pngFile("ottoman.png", 300)}},
		},
		TotalAssetCount: 3,
	})

	if len(items.attached) != 2 {
		t.Fatalf("expected 2 image sets written back, got %d", len(items.attached))
	}
	seen := map[int]bool{}
	for _, set := range items.attached {
		if set.Description != "Chair" {
			t.Fatalf("unexpected set for %q", set.Description)
		}
		if seen[set.ItemID] {
			t.Fatalf("item %d claimed twice", set.ItemID)
		}
		seen[set.ItemID] = true
	}
	if !seen[101] || !seen[102] {
		t.Fatalf("expected both chair items claimed, got %v", seen)
	}

	// The ottoman has no created item; that failure must not block the rest.
	last := notify.last(t)
	if !strings.HasPrefix(last, NotifyWarning) || !strings.Contains(last, "1 of 3") {
		t.Fatalf("expected a warning citing 1 of 3 uploads, got %q", last)
	}
}

func TestFinalize_ReceiptFailureStillWritesBackImages(t *testing.T) {
	items := &fakeItemService{created: []CreatedItem{{ID: 1, Description: "Lamp"}}}
	store := &fakeUploader{failOn: map[string]error{"receipt.pdf": errors.New("bucket unavailable")}}
	notify := &fakeNotifier{}
	receipts := &fakeReceipts{}
	worker := testWorker(items, receipts, store, notify)

	receipt := AssetFile{Name: "receipt.pdf", MimeType: "application/pdf", Size: 900}
	worker.Run(context.Background(), AssetFinalizePayload{
		BusinessId:    "biz-1",
		TransactionId: 8,
		Assets: []PendingAsset{
			{Description: "Lamp", Files: []AssetFile{pngFile("lamp.png", 150)}},
		},
		Receipt:         &receipt,
		TotalAssetCount: 2,
	})

	if len(items.attached) != 1 || items.attached[0].ItemID != 1 {
		t.Fatalf("item images should be written back despite the receipt failure, got %+v", items.attached)
	}
	if len(receipts.attached) != 0 {
		t.Fatalf("failed receipt must not be attached")
	}
	last := notify.last(t)
	if !strings.HasPrefix(last, NotifyWarning) || !strings.Contains(last, "1 of 2") {
		t.Fatalf("expected a warning citing exactly one issue, got %q", last)
	}
}

func TestFinalize_SuccessNotification(t *testing.T) {
	items := &fakeItemService{created: []CreatedItem{{ID: 1, Description: "Lamp"}}}
	store := &fakeUploader{}
	notify := &fakeNotifier{}
	receipts := &fakeReceipts{}
	worker := testWorker(items, receipts, store, notify)

	receipt := AssetFile{Name: "receipt.pdf", MimeType: "application/pdf", Size: 900}
	worker.Run(context.Background(), AssetFinalizePayload{
		BusinessId:    "biz-1",
		TransactionId: 9,
		Assets: []PendingAsset{
			{Description: "Lamp", Files: []AssetFile{pngFile("lamp.png", 150)}},
		},
		Receipt:         &receipt,
		TotalAssetCount: 2,
	})

	if len(receipts.attached) != 1 {
		t.Fatalf("expected the receipt attached, got %d", len(receipts.attached))
	}
	last := notify.last(t)
	if !strings.HasPrefix(last, NotifySuccess) || !strings.Contains(last, "uploaded 2 assets") {
		t.Fatalf("expected a success report for 2 assets, got %q", last)
	}
}

func TestFinalize_SharedFileUploadsOnce(t *testing.T) {
	items := &fakeItemService{created: []CreatedItem{
		{ID: 1, Description: "Stool"},
		{ID: 2, Description: "Stool"},
	}}
	store := &fakeUploader{}
	notify := &fakeNotifier{}
	worker := testWorker(items, &fakeReceipts{}, store, notify)

	// Both expanded units reference the same stock photo.
	shared := pngFile("stool.png", 400)
	worker.Run(context.Background(), AssetFinalizePayload{
		BusinessId:    "biz-1",
		TransactionId: 10,
		Assets: []PendingAsset{
			{Description: "Stool", Files: []AssetFile{shared}},
			{Description: "Stool", Files: []AssetFile{shared}},
		},
		TotalAssetCount: 2,
	})

	if got := store.callCount("stool.png"); got != 1 {
		t.Fatalf("identical file should upload once, got %d uploads", got)
	}
	if len(items.attached) != 2 {
		t.Fatalf("both items should still receive the image, got %d sets", len(items.attached))
	}
	if items.attached[0].Images[0].URL != items.attached[1].Images[0].URL {
		t.Fatal("sharers should receive the same stored reference")
	}
}

func TestFinalize_FirstFileIsPrimary(t *testing.T) {
	items := &fakeItemService{created: []CreatedItem{{ID: 1, Description: "Bookcase"}}}
	store := &fakeUploader{}
	notify := &fakeNotifier{}
	worker := testWorker(items, &fakeReceipts{}, store, notify)

	worker.Run(context.Background(), AssetFinalizePayload{
		BusinessId:    "biz-1",
		TransactionId: 11,
		Assets: []PendingAsset{
			{Description: "Bookcase", Files: []AssetFile{
				pngFile("front.png", 10),
				pngFile("side.png", 20),
				pngFile("back.png", 30),
			}},
		},
		TotalAssetCount: 3,
	})

	if len(items.attached) != 1 || len(items.attached[0].Images) != 3 {
		t.Fatalf("expected one set of 3 images, got %+v", items.attached)
	}
	for i, img := range items.attached[0].Images {
		if img.IsPrimary != (i == 0) {
			t.Fatalf("image %d: IsPrimary=%v", i, img.IsPrimary)
		}
	}
}

func TestFinalize_WriteBackFailureDiscardsUploads(t *testing.T) {
	items := &fakeItemService{
		created:   []CreatedItem{{ID: 1, Description: "Lamp"}},
		attachErr: errors.New("db write failed"),
	}
	store := &fakeUploader{}
	notify := &fakeNotifier{}
	worker := testWorker(items, &fakeReceipts{}, store, notify)

	worker.Run(context.Background(), AssetFinalizePayload{
		BusinessId:    "biz-1",
		TransactionId: 15,
		Assets: []PendingAsset{
			{Description: "Lamp", Files: []AssetFile{pngFile("lamp.png", 150)}},
		},
		TotalAssetCount: 1,
	})

	deleted := store.deletedKeys()
	if len(deleted) != 1 || deleted[0] != "biz-1/items/lamp.png" {
		t.Fatalf("expected the orphaned object removed, got %v", deleted)
	}
	last := notify.last(t)
	if !strings.HasPrefix(last, NotifyWarning) || !strings.Contains(last, "1 of 1") {
		t.Fatalf("expected a warning for the failed write-back, got %q", last)
	}
}

func TestFinalize_ReconcileErrorNotifiesAndStops(t *testing.T) {
	items := &fakeItemService{listErr: errors.New("db gone")}
	store := &fakeUploader{}
	notify := &fakeNotifier{}
	worker := testWorker(items, &fakeReceipts{}, store, notify)

	worker.Run(context.Background(), AssetFinalizePayload{
		BusinessId:    "biz-1",
		TransactionId: 12,
		Assets: []PendingAsset{
			{Description: "Lamp", Files: []AssetFile{pngFile("lamp.png", 150)}},
		},
		TotalAssetCount: 1,
	})

	if store.callCount("lamp.png") != 0 {
		t.Fatal("no uploads should start when reconciliation fails")
	}
	if !strings.HasPrefix(notify.last(t), NotifyError) {
		t.Fatalf("expected an error notification, got %q", notify.last(t))
	}
}

func TestFinalize_UploadPanicIsContained(t *testing.T) {
	items := &fakeItemService{created: []CreatedItem{
		{ID: 1, Description: "Lamp"},
		{ID: 2, Description: "Rug"},
	}}
	store := &fakeUploader{panicOn: "lamp.png"}
	notify := &fakeNotifier{}
	worker := testWorker(items, &fakeReceipts{}, store, notify)

	worker.Run(context.Background(), AssetFinalizePayload{
		BusinessId:    "biz-1",
		TransactionId: 13,
		Assets: []PendingAsset{
			{Description: "Lamp", Files: []AssetFile{pngFile("lamp.png", 150)}},
			{Description: "Rug", Files: []AssetFile{pngFile("rug.png", 250)}},
		},
		TotalAssetCount: 2,
	})

	// The panicking upload fails its own task; the sibling still lands.
	if len(items.attached) != 1 || items.attached[0].Description != "Rug" {
		t.Fatalf("expected the rug set written back, got %+v", items.attached)
	}
	last := notify.last(t)
	if !strings.HasPrefix(last, NotifyWarning) || !strings.Contains(last, "1 of 2") {
		t.Fatalf("expected a warning citing the panicked upload, got %q", last)
	}
}

func TestFinalize_ExcessAssetReasonNamesDescription(t *testing.T) {
	items := &fakeItemService{created: []CreatedItem{{ID: 1, Description: "Chair"}}}
	store := &fakeUploader{}
	notify := &fakeNotifier{}
	worker := testWorker(items, &fakeReceipts{}, store, notify)

	worker.Run(context.Background(), AssetFinalizePayload{
		BusinessId:    "biz-1",
		TransactionId: 14,
		Assets: []PendingAsset{
			{Description: "Chair", Files: []AssetFile{pngFile("a.png", 10)}},
			{Description: "Chair", Files: []AssetFile{pngFile("b.png", 20)}},
		},
		TotalAssetCount: 2,
	})

	if len(items.attached) != 1 {
		t.Fatalf("expected exactly one set written back, got %d", len(items.attached))
	}
	if !strings.Contains(notify.last(t), "1 of 2") {
		t.Fatalf("expected one exhausted-bucket failure reported, got %q", notify.last(t))
	}
}
