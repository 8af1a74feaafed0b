package models

import "time"

const TransactionSourceImport = "invoice_import"

// ProjectTransaction groups the items created by one confirmed import.
// ImportKey is the client's idempotency key; the unique index turns a
// double-submitted confirm into a duplicate-key error instead of twin
// transactions.
type ProjectTransaction struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"index;uniqueIndex:uniq_business_import_key" json:"business_id"`
	ProjectId   int       `gorm:"index" json:"project_id"`
	Source      string    `json:"source"`
	ImportKey   string    `gorm:"uniqueIndex:uniq_business_import_key" json:"import_key"`
	TotalAmount string    `json:"total_amount"`
	ReceiptUrl  string    `json:"receipt_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
