package cache

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// cacheRecord is the gorm model backing SQLiteStore.
type cacheRecord struct {
	Key  string `gorm:"primaryKey"`
	Data []byte
}

func (cacheRecord) TableName() string {
	return "cache_entries"
}

// SQLiteStore is the durable single-file backend. SQLite transactions
// give the atomic-write guarantee the Store contract asks for.
type SQLiteStore struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logrus.New()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := db.AutoMigrate(&cacheRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate cache schema: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Get(key string) ([]byte, bool) {
	var rec cacheRecord
	err := s.db.First(&rec, "key = ?", key).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.WithError(err).WithField("key", key).Warn("Failed to read cache row")
		}
		return nil, false
	}
	return rec.Data, true
}

func (s *SQLiteStore) Put(key string, data []byte) error {
	rec := cacheRecord{Key: key, Data: data}
	return s.db.Save(&rec).Error
}

func (s *SQLiteStore) Clear(prefix string) error {
	return s.db.Where("key LIKE ?", prefix+"%").Delete(&cacheRecord{}).Error
}
