package database

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	"markdraft/pkg/logger"

	_ "github.com/lib/pq"
)

// Connect opens the PostgreSQL pool from DB_* environment variables. The
// liveness ping happens in the store layer, which retries.
func Connect() (*sql.DB, error) {
	dbUser := strings.TrimSpace(os.Getenv("DB_USER"))
	dbPass := strings.TrimSpace(os.Getenv("DB_PASSWORD"))
	dbHost := strings.TrimSpace(os.Getenv("DB_HOST"))
	dbPort := strings.TrimSpace(os.Getenv("DB_PORT"))
	dbName := strings.TrimSpace(os.Getenv("DB_NAME"))
	sslMode := strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	if sslMode == "" {
		sslMode = "require"
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", dbUser, dbPass, dbHost, dbPort, dbName, sslMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}
	logger.Sugar.Infof("Opened database pool for %s:%s/%s", dbHost, dbPort, dbName)
	return db, nil
}
