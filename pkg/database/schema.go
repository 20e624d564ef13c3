package database

import (
	"context"
	"fmt"

	errs "renter-registry/pkg/errors"
)

// schema is applied in order by EnsureSchema. Every statement is idempotent.
var schema = []struct {
	name  string
	query string
}{
	{"renter_profiles", `CREATE TABLE IF NOT EXISTS renter_profiles (
		renter_id CHAR(36) NOT NULL PRIMARY KEY,
		fingerprint CHAR(64) NOT NULL,
		name_normalized VARCHAR(255) NOT NULL DEFAULT '',
		name_bucket CHAR(4) NOT NULL DEFAULT '',
		location_normalized VARCHAR(255) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_fingerprint (fingerprint),
		KEY idx_name_bucket (name_bucket),
		KEY idx_name (name_normalized),
		KEY idx_created_at (created_at)
	)`},
	{"renter_identifiers", `CREATE TABLE IF NOT EXISTS renter_identifiers (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		renter_id CHAR(36) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		value_normalized VARCHAR(255) NOT NULL,
		UNIQUE KEY uq_renter_kind_value (renter_id, kind, value_normalized),
		KEY idx_kind_value (kind, value_normalized),
		CONSTRAINT fk_identifier_renter FOREIGN KEY (renter_id) REFERENCES renter_profiles (renter_id) ON DELETE CASCADE
	)`},
	{"renter_duplicate_suspects", `CREATE TABLE IF NOT EXISTS renter_duplicate_suspects (
		renter_a CHAR(36) NOT NULL,
		renter_b CHAR(36) NOT NULL,
		score INT NOT NULL,
		confidence VARCHAR(16) NOT NULL,
		detected_at DATETIME(6) NOT NULL,
		PRIMARY KEY (renter_a, renter_b)
	)`},
	{"renter_events", `CREATE TABLE IF NOT EXISTS renter_events (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		renter_id CHAR(36) NOT NULL,
		type VARCHAR(64) NOT NULL,
		at DATETIME(6) NOT NULL,
		data JSON NOT NULL,
		KEY idx_renter_time (renter_id, id)
	)`},
}

// EnsureSchema creates the registry tables when missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	ctx, cancel := db.WithWriteTimeout(ctx)
	defer cancel()
	for _, s := range schema {
		if _, err := db.conn.ExecContext(ctx, s.query); err != nil {
			return errs.NewDB("database.EnsureSchema", fmt.Sprintf("failed to create %s", s.name), err)
		}
	}
	return nil
}

// Tables lists the tables EnsureSchema manages, in creation order.
func Tables() []string {
	out := make([]string, len(schema))
	for i, s := range schema {
		out[i] = s.name
	}
	return out
}
