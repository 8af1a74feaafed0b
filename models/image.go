package models

import "time"

// Image is one uploaded photo attached to an item. IsPrimary marks the
// photo shown on list screens.
type Image struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"index" json:"business_id"`
	ImageUrl      string    `json:"image_url"`
	ThumbnailUrl  string    `json:"thumbnail_url"`
	ReferenceType string    `json:"reference_type"`
	ReferenceID   int       `gorm:"index" json:"reference_id"`
	IsPrimary     bool      `json:"is_primary"`
	CreatedAt     time.Time `json:"created_at"`
}

const ReferenceTypeItems = "items"
