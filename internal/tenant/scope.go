package tenant

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForTenant returns a GORM scope that keeps a query inside one counter. The
// column is qualified with the statement's table.
func ForTenant(appID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(clause.Eq{
			Column: clause.Column{Table: clause.CurrentTable, Name: "app_id"},
			Value:  appID,
		})
	}
}
