package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Registry persisted in a SQL database (sqlite or postgres) through gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

type BannedIdentityRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Reason    string
	Servers   []string `gorm:"serializer:json"`
	UpdatedAt time.Time
}

func (BannedIdentityRow) TableName() string {
	return "banned_identities"
}

// Creates the store, migrating its table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&BannedIdentityRow{}); err != nil {
		return nil, fmt.Errorf("migrating registry table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Load(ctx context.Context) (map[string]BannedIdentity, error) {
	var rows []BannedIdentityRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorpusUnavailable, err)
	}
	out := make(map[string]BannedIdentity, len(rows))
	for _, row := range rows {
		out[row.ID] = BannedIdentity{
			ID:            row.ID,
			Name:          row.Name,
			Reason:        row.Reason,
			OriginServers: lo.Ternary(row.Servers == nil, []string{}, row.Servers),
		}
	}
	return out, nil
}

func (s *GormStore) Save(ctx context.Context, idents map[string]BannedIdentity) error {
	rows := lo.MapToSlice(idents, func(id string, bi BannedIdentity) BannedIdentityRow {
		return BannedIdentityRow{
			ID:      id,
			Name:    bi.Name,
			Reason:  bi.Reason,
			Servers: lo.Ternary(bi.OriginServers == nil, []string{}, bi.OriginServers),
		}
	})

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) == 0 {
			return tx.Where("1 = 1").Delete(&BannedIdentityRow{}).Error
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(rows, 500).Error; err != nil {
			return err
		}
		return tx.Where("id NOT IN ?", lo.Keys(idents)).Delete(&BannedIdentityRow{}).Error
	})
}
