package postgres

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Connect opens a pooled sqlx connection, retrying while the database comes
// up. Containerized deployments routinely start the service before postgres
// is ready to accept connections.
func Connect(dsn string, logger *logrus.Logger) (*sqlx.DB, error) {
	const maxRetries = 10

	var db *sqlx.DB
	var err error
	for i := 1; i <= maxRetries; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)
			logger.Info("database connected")
			return db, nil
		}
		logger.WithFields(logrus.Fields{
			"attempt": i,
			"error":   err.Error(),
		}).Warn("database not ready, retrying")
		time.Sleep(2 * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to database: %w", err)
}
