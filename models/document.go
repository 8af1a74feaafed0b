package models

import "time"

// Document is a non-image attachment (receipt files and the like) bound to
// a reference row.
type Document struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"index" json:"business_id"`
	DocumentUrl   string    `json:"document_url"`
	ReferenceType string    `json:"reference_type"`
	ReferenceID   int       `gorm:"index" json:"reference_id"`
	CreatedAt     time.Time `json:"created_at"`
}

const ReferenceTypeTransactions = "project_transactions"
