package util

import (
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// InitDatabase 打开数据库连接，driver 支持 sqlite（默认）/mysql/pg
func InitDatabase(driver, dsn string, debug bool) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if debug {
		logLevel = gormlogger.Info
	}
	cfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	}
	db, err := createDatabaseInstance(cfg, driver, dsn)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}
