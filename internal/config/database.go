package config

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// createTables creates the necessary tables in the database
func createTables(db *sqlx.DB) error {
	// Create users table
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			handle VARCHAR(255),
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create balances table (one row per user, created together with the user)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS balances (
			user_id BIGINT PRIMARY KEY REFERENCES users(id),
			amount NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (amount >= 0),
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create numbers table (inventory; assigned_to stays NULL until claimed)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS numbers (
			number VARCHAR(20) PRIMARY KEY,
			country VARCHAR(32) NOT NULL DEFAULT 'UNKNOWN',
			assigned_to BIGINT REFERENCES users(id),
			added_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create otps table; (number, otp) is the sole dedup key
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS otps (
			id VARCHAR(36) PRIMARY KEY,
			number VARCHAR(20) NOT NULL,
			otp VARCHAR(8) NOT NULL,
			full_msg TEXT,
			service VARCHAR(64) NOT NULL,
			country VARCHAR(32) NOT NULL,
			fetched_at TIMESTAMP NOT NULL,
			UNIQUE (number, otp)
		)
	`)
	if err != nil {
		return err
	}

	// Create withdrawals table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS withdrawals (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id),
			amount NUMERIC(18,2) NOT NULL,
			method VARCHAR(32) NOT NULL,
			target VARCHAR(255) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			requested_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create indexes for better performance
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_numbers_assigned_to ON numbers(assigned_to)",
		"CREATE INDEX IF NOT EXISTS idx_numbers_free ON numbers(added_at) WHERE assigned_to IS NULL",
		"CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawals(status)",
	}

	for _, idx := range indexes {
		_, err = db.Exec(idx)
		if err != nil {
			log.Printf("Warning: Failed to create index: %v", err)
			// Don't return error here, indexes are not critical
		}
	}

	return nil
}
