package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vorth-network/vigil/util/jsonfile"
)

// Policies persisted in a SQL database through gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

type ServerPolicyRow struct {
	ServerID    string `gorm:"primaryKey"`
	Screening   bool
	Do          string
	LogsChannel string
	Whitelist   []string `gorm:"serializer:json"`
	UpdatedAt   time.Time
}

func (ServerPolicyRow) TableName() string {
	return "server_policies"
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&ServerPolicyRow{}); err != nil {
		return nil, fmt.Errorf("migrating policy table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Load(ctx context.Context) (map[string]Record, error) {
	var rows []ServerPolicyRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]Record, len(rows))
	for _, row := range rows {
		whitelist := lo.Map(row.Whitelist, func(id string, _ int) jsonfile.ID {
			return jsonfile.ID(id)
		})
		out[row.ServerID] = Record{
			Screening:   lo.ToPtr(row.Screening),
			Do:          lo.ToPtr(row.Do),
			LogsChannel: OptionalID{Present: true, ID: row.LogsChannel},
			Whitelist:   &whitelist,
		}
	}
	return out, nil
}

func (s *GormStore) Save(ctx context.Context, records map[string]Record) error {
	rows := lo.MapToSlice(records, func(server string, rec Record) ServerPolicyRow {
		row := ServerPolicyRow{
			ServerID:    server,
			Screening:   lo.FromPtr(rec.Screening),
			Do:          lo.FromPtr(rec.Do),
			LogsChannel: rec.LogsChannel.ID,
			Whitelist:   []string{},
		}
		if rec.Whitelist != nil {
			row.Whitelist = jsonfile.Strings(*rec.Whitelist)
		}
		return row
	})

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) == 0 {
			return tx.Where("1 = 1").Delete(&ServerPolicyRow{}).Error
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "server_id"}},
			UpdateAll: true,
		}).CreateInBatches(rows, 500).Error; err != nil {
			return err
		}
		return tx.Where("server_id NOT IN ?", lo.Keys(records)).Delete(&ServerPolicyRow{}).Error
	})
}
