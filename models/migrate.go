package models

import "github.com/nine4-team/inventory_backend/config"

func MigrateTable() {
	db := config.GetDB()
	if db == nil {
		return
	}
	err := db.AutoMigrate(
		&ProjectTransaction{},
		&Item{},
		&Image{},
		&Document{},
		&Notification{},
	)
	if err != nil {
		config.LogError(config.GetLogger(), "migrate.go", "MigrateTable", "AutoMigrate", nil, err)
	}
}
