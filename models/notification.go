package models

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nine4-team/inventory_backend/config"
)

// Notification is an operator-facing notice. The finalization worker has no
// synchronous caller, so these rows (plus logs) are its only output channel.
type Notification struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index" json:"business_id"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

// NotificationWriter persists notifications and mirrors them to the log.
type NotificationWriter struct {
	Logger *logrus.Logger
}

func (w NotificationWriter) Notify(ctx context.Context, businessId string, severity string, message string) {
	logger := w.Logger
	if logger == nil {
		logger = config.GetLogger()
	}
	logger.WithFields(logrus.Fields{
		"business_id": businessId,
		"severity":    severity,
	}).Info("[notify] " + message)

	db := config.GetDB()
	if db == nil {
		return
	}
	notice := Notification{
		BusinessId: businessId,
		Severity:   severity,
		Message:    message,
	}
	if err := db.WithContext(ctx).Create(&notice).Error; err != nil {
		config.LogError(logger, "notification.go", "Notify", "Create", notice, err)
	}
}

// ListNotifications returns the most recent notices for a business.
func ListNotifications(ctx context.Context, businessId string, limit int) ([]Notification, error) {
	db := config.GetDB()
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var notices []Notification
	err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Order("id DESC").
		Limit(limit).
		Find(&notices).Error
	return notices, err
}
