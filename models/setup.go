package models

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite" // Sqlite driver based on CGO
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"neurolabel/utils"
)

// ConnectDataBase Open the configured database and migrate the schema
func ConnectDataBase(config utils.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch config.Driver {
	case "", "sqlite":
		// foreign_keys makes the ON DELETE CASCADE on annotations effective
		dialector = sqlite.Open(config.Sqlite.Filename + "?_foreign_keys=on&_busy_timeout=5000")
	case "mysql":
		dialector = gormmysql.Open(mysqlDSN(config.Mysql))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("cannot connect %s database: %w", config.Driver, err)
	}

	if config.Driver != "mysql" {
		// A single writer avoids SQLITE_BUSY between concurrent transactions.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&ImageRecord{}, &Annotation{}); err != nil {
		return nil, fmt.Errorf("cannot migrate schema: %w", err)
	}
	log.Info(fmt.Sprintf("Connected %s database", dialector.Name()))

	return db, nil
}

func mysqlDSN(config utils.MysqlConfig) string {
	c := mysql.NewConfig()
	c.User = config.User
	c.Passwd = config.Password
	c.Net = "tcp"
	c.Addr = fmt.Sprintf("%s:%d", config.Host, config.Port)
	c.DBName = config.Database
	c.ParseTime = true
	c.Loc = time.UTC
	return c.FormatDSN()
}
