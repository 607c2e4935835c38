package db

import (
	"papertrade/internal/models"
)

// positionIndexes are created per position table. The partial unique indexes
// allow one OPEN row per (owner, symbol, side) for futures and per
// (owner, symbol) for margin.
var positionIndexes = map[string][]string{
	models.FuturesPositionsTable: {
		`CREATE INDEX IF NOT EXISTS idx_futures_positions_owner ON futures_positions (owner_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_futures_positions_status ON futures_positions (status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_futures_positions_open ON futures_positions (owner_id, symbol, side) WHERE status = 'OPEN'`,
	},
	models.MarginPositionsTable: {
		`CREATE INDEX IF NOT EXISTS idx_margin_positions_owner ON margin_positions (owner_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_margin_positions_status ON margin_positions (status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_margin_positions_open ON margin_positions (owner_id, symbol) WHERE status = 'OPEN'`,
	},
}

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	if err := db.Gorm.AutoMigrate(
		&models.Wallet{},
		&models.Order{},
		&models.SystemSetting{},
	); err != nil {
		return err
	}
	for _, table := range []string{models.FuturesPositionsTable, models.MarginPositionsTable} {
		if err := db.Gorm.Table(table).AutoMigrate(&models.Position{}); err != nil {
			return err
		}
		for _, stmt := range positionIndexes[table] {
			if err := db.Gorm.Exec(stmt).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
