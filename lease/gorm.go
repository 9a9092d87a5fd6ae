package lease

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/connector"
	"github.com/ceyewan/leaseflake/xerrors"
)

// leaseRow worker_leases 表结构，时间以毫秒整数保存，避免方言间的时区差异
type leaseRow struct {
	WorkerID    int64  `gorm:"primaryKey;autoIncrement:false"`
	Version     uint64 `gorm:"not null"`
	HolderToken string `gorm:"size:64;not null"`
	ExpiresMs   int64  `gorm:"not null"`
	GrantedMs   int64  `gorm:"not null"`
	Holder      string `gorm:"size:255"`
	UpdatedAt   time.Time
}

func (r *leaseRow) toLease() WorkerLease {
	return WorkerLease{
		WorkerID:    r.WorkerID,
		Version:     r.Version,
		HolderToken: r.HolderToken,
		ExpiresAt:   time.UnixMilli(r.ExpiresMs),
		GrantedAt:   time.UnixMilli(r.GrantedMs),
		Holder:      r.Holder,
	}
}

func rowFromLease(l WorkerLease) *leaseRow {
	return &leaseRow{
		WorkerID:    l.WorkerID,
		Version:     l.Version,
		HolderToken: l.HolderToken,
		ExpiresMs:   l.ExpiresAt.UnixMilli(),
		GrantedMs:   l.GrantedAt.UnixMilli(),
		Holder:      l.Holder,
	}
}

type gormStore struct {
	conn   connector.TypedConnector[*gorm.DB]
	table  string
	logger clog.Logger
}

func newGormStore(cfg *StoreConfig, conn connector.TypedConnector[*gorm.DB], logger clog.Logger) (*gormStore, error) {
	s := &gormStore{
		conn:   conn,
		table:  cfg.Table,
		logger: logger.With(clog.String("driver", string(DriverGorm))),
	}
	db, err := s.db(context.Background())
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&leaseRow{}); err != nil {
		return nil, xerrors.Wrapf(err, "migrate table %s", s.table)
	}
	return s, nil
}

func (s *gormStore) db(ctx context.Context) (*gorm.DB, error) {
	db := s.conn.GetClient()
	if db == nil {
		return nil, connector.ErrNotConnected
	}
	return db.WithContext(ctx).Table(s.table), nil
}

func (s *gormStore) Get(ctx context.Context, workerID int64) (WorkerLease, bool, error) {
	db, err := s.db(ctx)
	if err != nil {
		return WorkerLease{}, false, err
	}
	var row leaseRow
	err = db.Where("worker_id = ?", workerID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return WorkerLease{}, false, nil
	}
	if err != nil {
		return WorkerLease{}, false, xerrors.Wrap(err, "select lease")
	}
	return row.toLease(), true, nil
}

func (s *gormStore) CompareAndSwap(ctx context.Context, prev WorkerLease, found bool, next WorkerLease) (bool, error) {
	db, err := s.db(ctx)
	if err != nil {
		return false, err
	}
	row := rowFromLease(next)

	if !found {
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if res.Error != nil {
			return false, xerrors.Wrap(res.Error, "insert lease")
		}
		return res.RowsAffected == 1, nil
	}

	res := db.Where("worker_id = ? AND version = ? AND holder_token = ?",
		next.WorkerID, prev.Version, prev.HolderToken).
		Updates(map[string]any{
			"version":      row.Version,
			"holder_token": row.HolderToken,
			"expires_ms":   row.ExpiresMs,
			"granted_ms":   row.GrantedMs,
			"holder":       row.Holder,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return false, xerrors.Wrap(res.Error, "update lease")
	}
	return res.RowsAffected == 1, nil
}

func (s *gormStore) List(ctx context.Context) ([]WorkerLease, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	var rows []leaseRow
	if err := db.Order("worker_id").Find(&rows).Error; err != nil {
		return nil, xerrors.Wrap(err, "list leases")
	}
	out := make([]WorkerLease, len(rows))
	for i := range rows {
		out[i] = rows[i].toLease()
	}
	return out, nil
}

func (s *gormStore) Close() error { return nil }
