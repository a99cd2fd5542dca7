package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema lists the DDL statements applied by Migrate, in order.  The MySQL
// driver runs one statement per Exec unless multiStatements is enabled, so
// they are kept separate.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(255) NOT NULL,
		display_name  VARCHAR(120) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          ENUM('MEMBER','INSTRUCTOR','ADMIN') NOT NULL DEFAULT 'MEMBER',
		is_active     TINYINT(1) NOT NULL DEFAULT 1,
		created_at    DATETIME(6) NOT NULL,
		updated_at    DATETIME(6) NOT NULL,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	// utf8mb4_bin makes the name key case-sensitive.
	`CREATE TABLE IF NOT EXISTS stations (
		id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name          VARCHAR(100) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
		display_order INT NOT NULL DEFAULT 0,
		is_active     TINYINT(1) NOT NULL DEFAULT 1,
		created_at    DATETIME(6) NOT NULL,
		updated_at    DATETIME(6) NOT NULL,
		UNIQUE KEY uq_stations_name (name),
		KEY idx_stations_order (is_active, display_order)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS closures (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		starts_at  DATETIME(6) NOT NULL,
		ends_at    DATETIME(6) NOT NULL,
		reason     VARCHAR(500) NOT NULL DEFAULT '',
		category   ENUM('MAINTENANCE','HOLIDAY','EXTERNAL_BOOKING','OTHER') NOT NULL DEFAULT 'OTHER',
		created_at DATETIME(6) NOT NULL,
		KEY idx_closures_window (starts_at, ends_at),
		CONSTRAINT chk_closures_window CHECK (ends_at > starts_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		starts_at  DATETIME(6) NOT NULL,
		ends_at    DATETIME(6) NOT NULL,
		status     ENUM('PENDING','CONFIRMED') NOT NULL DEFAULT 'PENDING',
		created_by BIGINT UNSIGNED NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		KEY idx_reservations_window (starts_at, ends_at),
		KEY idx_reservations_status (status, starts_at),
		CONSTRAINT fk_reservations_creator FOREIGN KEY (created_by) REFERENCES users (id),
		CONSTRAINT chk_reservations_window CHECK (ends_at > starts_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reservation_stations (
		reservation_id BIGINT UNSIGNED NOT NULL,
		station_id     BIGINT UNSIGNED NOT NULL,
		PRIMARY KEY (reservation_id, station_id),
		KEY idx_reservation_stations_station (station_id),
		CONSTRAINT fk_rs_reservation FOREIGN KEY (reservation_id) REFERENCES reservations (id) ON DELETE CASCADE,
		CONSTRAINT fk_rs_station FOREIGN KEY (station_id) REFERENCES stations (id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS reservation_participants (
		reservation_id BIGINT UNSIGNED NOT NULL,
		person_id      BIGINT UNSIGNED NOT NULL,
		joined_at      DATETIME(6) NOT NULL,
		is_instructor  TINYINT(1) NOT NULL DEFAULT 0,
		PRIMARY KEY (reservation_id, person_id),
		KEY idx_participants_person (person_id),
		CONSTRAINT fk_rp_reservation FOREIGN KEY (reservation_id) REFERENCES reservations (id) ON DELETE CASCADE,
		CONSTRAINT fk_rp_person FOREIGN KEY (person_id) REFERENCES users (id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS reservation_comments (
		id             BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		reservation_id BIGINT UNSIGNED NOT NULL,
		author_id      BIGINT UNSIGNED NOT NULL,
		body           TEXT NOT NULL,
		created_at     DATETIME(6) NOT NULL,
		KEY idx_comments_reservation (reservation_id, created_at),
		CONSTRAINT fk_rc_reservation FOREIGN KEY (reservation_id) REFERENCES reservations (id) ON DELETE CASCADE,
		CONSTRAINT fk_rc_author FOREIGN KEY (author_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL,
		expires_at DATETIME(6) NOT NULL,
		revoked_at DATETIME(6) NULL,
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_refresh_tokens_hash (token_hash),
		KEY idx_refresh_tokens_user (user_id, revoked_at),
		CONSTRAINT fk_refresh_tokens_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS booking_guards (
		name VARCHAR(64) NOT NULL PRIMARY KEY
	) ENGINE=InnoDB`,

	`INSERT IGNORE INTO booking_guards (name) VALUES ('reservations'), ('closures')`,
}

// Migrate applies the schema.  Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
