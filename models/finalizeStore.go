package models

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/nine4-team/inventory_backend/config"
	"github.com/nine4-team/inventory_backend/importer"
	"github.com/nine4-team/inventory_backend/utils"
)

// FinalizeStore is the finalization worker's view of persistence: it lists
// the items just created for a transaction (cache first, then DB) and
// writes uploaded asset references back.
type FinalizeStore struct{}

func (FinalizeStore) ListCreatedItems(ctx context.Context, businessId string, transactionId int) ([]importer.CreatedItem, error) {
	// The confirm handler caches the created set right after the insert;
	// consult it before hitting the database.
	var cached []importer.CreatedItem
	exists, err := config.GetRedisObject(createdItemsCacheKey(businessId, transactionId), &cached)
	if err == nil && exists && len(cached) > 0 {
		return cached, nil
	}

	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}
	var items []Item
	err = db.WithContext(ctx).
		Select("id", "description").
		Where("business_id = ? AND transaction_id = ?", businessId, transactionId).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	created := make([]importer.CreatedItem, 0, len(items))
	for _, item := range items {
		created = append(created, importer.CreatedItem{ID: item.ID, Description: item.Description})
	}
	return created, nil
}

func (FinalizeStore) AttachItemImages(ctx context.Context, businessId string, sets []importer.ItemImageSet) error {
	if len(sets) == 0 {
		return nil
	}
	db := config.GetDB()
	if db == nil {
		return errors.New("db is nil")
	}

	var images []Image
	for _, set := range sets {
		for _, img := range set.Images {
			images = append(images, Image{
				BusinessId:    businessId,
				ImageUrl:      img.URL,
				ThumbnailUrl:  img.ThumbnailURL,
				ReferenceType: ReferenceTypeItems,
				ReferenceID:   set.ItemID,
				IsPrimary:     img.IsPrimary,
			})
		}
	}
	if len(images) == 0 {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&images).Error
	})
}

func (FinalizeStore) AttachReceipt(ctx context.Context, businessId string, transactionId int, file importer.StoredFile) error {
	db := config.GetDB()
	if db == nil {
		return errors.New("db is nil")
	}

	var txn ProjectTransaction
	if err := db.WithContext(ctx).
		Where("business_id = ? AND id = ?", businessId, transactionId).
		Take(&txn).Error; err != nil {
		return utils.ErrorRecordNotFound
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc := Document{
			BusinessId:    businessId,
			DocumentUrl:   file.URL,
			ReferenceType: ReferenceTypeTransactions,
			ReferenceID:   transactionId,
		}
		if err := tx.Create(&doc).Error; err != nil {
			return err
		}
		return tx.Model(&ProjectTransaction{}).
			Where("id = ?", transactionId).
			Update("receipt_url", file.URL).Error
	})
}
