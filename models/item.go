package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/nine4-team/inventory_backend/config"
	"github.com/nine4-team/inventory_backend/importer"
)

// Item is one physical inventory unit created from an expanded draft.
// GroupKey ties duplicate units (same SKU + per-unit price) together for
// review screens; SourceId is the ExpandedDraftRecord id it came from.
type Item struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"index" json:"business_id"`
	ProjectId     int       `gorm:"index" json:"project_id"`
	TransactionId int       `gorm:"index" json:"transaction_id"`
	Description   string    `json:"description"`
	Sku           string    `json:"sku"`
	GroupKey      string    `gorm:"index" json:"group_key"`
	SourceId      string    `json:"source_id"`
	PurchasePrice string    `json:"purchase_price"`
	TaxAmount     string    `json:"tax_amount"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ErrDuplicateImport means this import key was already confirmed for the
// business; the earlier transaction stands.
var ErrDuplicateImport = errors.New("import already confirmed")

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

const createdItemsCacheTTL = 30 * time.Minute

func createdItemsCacheKey(businessId string, transactionId int) string {
	return fmt.Sprintf("TransactionItems:%s:%d", businessId, transactionId)
}

// CreateImportTransaction persists the transaction and its expanded items in
// one database transaction and caches the created set for the finalization
// worker's reconciliation read. A repeated importKey for the same business
// returns ErrDuplicateImport without creating anything.
func CreateImportTransaction(ctx context.Context, businessId string, projectId int, importKey string, totalAmount string, records []importer.ExpandedDraftRecord) (*ProjectTransaction, []Item, error) {
	if businessId == "" {
		return nil, nil, errors.New("business id is required")
	}
	if len(records) == 0 {
		return nil, nil, errors.New("no items to create")
	}
	db := config.GetDB()
	if db == nil {
		return nil, nil, errors.New("db is nil")
	}

	txn := ProjectTransaction{
		BusinessId:  businessId,
		ProjectId:   projectId,
		Source:      TransactionSourceImport,
		ImportKey:   importKey,
		TotalAmount: totalAmount,
	}
	items := make([]Item, 0, len(records))

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&txn).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return ErrDuplicateImport
			}
			return err
		}
		for _, record := range records {
			items = append(items, Item{
				BusinessId:    businessId,
				ProjectId:     projectId,
				TransactionId: txn.ID,
				Description:   record.Template.Description,
				Sku:           record.Template.Sku,
				GroupKey:      record.GroupKey,
				SourceId:      record.ID,
				PurchasePrice: record.Template.PurchasePrice,
				TaxAmount:     record.Template.TaxAmount,
				Notes:         record.Template.Notes,
			})
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		return nil, nil, err
	}

	// Best-effort cache of the created set; the worker falls back to the DB.
	created := make([]importer.CreatedItem, 0, len(items))
	for _, item := range items {
		created = append(created, importer.CreatedItem{ID: item.ID, Description: item.Description})
	}
	_ = config.SetRedisObject(createdItemsCacheKey(businessId, txn.ID), created, createdItemsCacheTTL)

	return &txn, items, nil
}

// InvalidateCreatedItemsCache drops the cached created-item set once the
// finalization run no longer needs it, instead of waiting out the TTL.
func InvalidateCreatedItemsCache(businessId string, transactionId int) {
	_ = config.RemoveRedisKey(createdItemsCacheKey(businessId, transactionId))
}
