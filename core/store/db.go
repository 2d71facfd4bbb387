package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"incidents-reseau/config"
	"incidents-reseau/core/utils"
)

// NewDB opens the configured database. A postgres URL selects the pgx
// driver; anything else is treated as a sqlite file path (dev and tests).
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	url := strings.TrimSpace(cfg.DBURL)
	if url == "" {
		return nil, fmt.Errorf("db_url is empty")
	}
	var (
		db  *sql.DB
		err error
	)
	if isPostgresURL(url) {
		db, err = sql.Open("pgx", url)
	} else {
		db, err = sql.Open("sqlite", url+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if logger != nil {
		logger.Printf("database connected (%s)", driverLabel(url))
	}
	return db, nil
}

func isPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

func driverLabel(url string) string {
	if isPostgresURL(url) {
		return "postgres"
	}
	return "sqlite"
}
