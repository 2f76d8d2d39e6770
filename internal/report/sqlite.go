package report

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	is_admin   INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id),
	date       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_date ON reports(date);
CREATE TABLE IF NOT EXISTS cars (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	report_id     TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	license_plate TEXT NOT NULL,
	description   TEXT NOT NULL,
	area          REAL NOT NULL,
	cost          INTEGER NOT NULL,
	labor_cost    REAL NOT NULL,
	date          TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS photos (
	id           TEXT PRIMARY KEY,
	report_id    TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
	user_id      TEXT NOT NULL,
	date         TEXT NOT NULL,
	filename     TEXT NOT NULL,
	content_type TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_photos_date ON photos(date);
`

// SQLiteDB implements the DB interface on a SQLite file
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (creating if needed) a SQLite database and applies the schema
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteDB{db: db}, nil
}

// AddUser stores a user unless it is already known
func (s *SQLiteDB) AddUser(user *User) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO users (id, name, is_admin, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Name, user.IsAdmin, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (s *SQLiteDB) GetUser(id string) (*User, error) {
	var user User
	err := s.db.QueryRow(`SELECT id, name, is_admin, created_at FROM users WHERE id = ?`, id).
		Scan(&user.ID, &user.Name, &user.IsAdmin, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &user, nil
}

// SetAdmin flags a user as admin
func (s *SQLiteDB) SetAdmin(id string) error {
	res, err := s.db.Exec(`UPDATE users SET is_admin = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveReports upserts the report rows and replaces their cars in one transaction
func (s *SQLiteDB) SaveReports(reports ...*WorkReport) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, report := range reports {
		if err := saveReportTx(tx, report); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reports: %w", err)
	}
	return nil
}

func saveReportTx(tx *sql.Tx, report *WorkReport) error {
	_, err := tx.Exec(
		`INSERT INTO reports (id, user_id, date, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, date = excluded.date`,
		report.ID, report.UserID, report.Date, report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting report: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM cars WHERE report_id = ?`, report.ID); err != nil {
		return fmt.Errorf("clearing cars: %w", err)
	}
	for i, car := range report.Cars {
		_, err := tx.Exec(
			`INSERT INTO cars (report_id, position, license_plate, description, area, cost, labor_cost, date)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			report.ID, i, car.Plate, car.Description, car.Area, car.Cost, car.LaborCost, car.Date,
		)
		if err != nil {
			return fmt.Errorf("inserting car %s: %w", car.Plate, err)
		}
	}
	return nil
}

// GetReport retrieves a report by ID
func (s *SQLiteDB) GetReport(id string) (*WorkReport, error) {
	var report WorkReport
	err := s.db.QueryRow(`SELECT id, user_id, date, created_at FROM reports WHERE id = ?`, id).
		Scan(&report.ID, &report.UserID, &report.Date, &report.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying report: %w", err)
	}

	cars, err := s.loadCars(`WHERE c.report_id = ?`, id)
	if err != nil {
		return nil, err
	}
	report.Cars = cars[id]
	return &report, nil
}

// ListReports returns reports dated within [from, to]
func (s *SQLiteDB) ListReports(from, to string) ([]*WorkReport, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, date, created_at FROM reports WHERE date BETWEEN ? AND ? ORDER BY date, created_at`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	reports := make([]*WorkReport, 0)
	for rows.Next() {
		var report WorkReport
		if err := rows.Scan(&report.ID, &report.UserID, &report.Date, &report.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		reports = append(reports, &report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reports: %w", err)
	}

	cars, err := s.loadCars(`JOIN reports r ON r.id = c.report_id WHERE r.date BETWEEN ? AND ?`, from, to)
	if err != nil {
		return nil, err
	}
	for _, report := range reports {
		report.Cars = cars[report.ID]
	}
	return reports, nil
}

// loadCars groups cars by report ID, in the order they were reported
func (s *SQLiteDB) loadCars(where string, args ...any) (map[string][]Car, error) {
	rows, err := s.db.Query(
		`SELECT c.report_id, c.license_plate, c.description, c.area, c.cost, c.labor_cost, c.date
		 FROM cars c `+where+` ORDER BY c.report_id, c.position`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying cars: %w", err)
	}
	defer rows.Close()

	cars := make(map[string][]Car)
	for rows.Next() {
		var reportID string
		var car Car
		if err := rows.Scan(&reportID, &car.Plate, &car.Description, &car.Area, &car.Cost, &car.LaborCost, &car.Date); err != nil {
			return nil, fmt.Errorf("scanning car: %w", err)
		}
		cars[reportID] = append(cars[reportID], car)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cars: %w", err)
	}
	return cars, nil
}

// SavePhoto inserts or replaces a photo record
func (s *SQLiteDB) SavePhoto(photo *Photo) error {
	_, err := s.db.Exec(
		`INSERT INTO photos (id, report_id, user_id, date, filename, content_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET report_id = excluded.report_id, date = excluded.date,
		   filename = excluded.filename, content_type = excluded.content_type`,
		photo.ID, photo.ReportID, photo.UserID, photo.Date, photo.Filename, photo.ContentType, photo.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting photo: %w", err)
	}
	return nil
}

// GetPhoto retrieves a photo by ID
func (s *SQLiteDB) GetPhoto(id string) (*Photo, error) {
	var photo Photo
	err := s.db.QueryRow(
		`SELECT id, report_id, user_id, date, filename, content_type, created_at FROM photos WHERE id = ?`, id,
	).Scan(&photo.ID, &photo.ReportID, &photo.UserID, &photo.Date, &photo.Filename, &photo.ContentType, &photo.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("photo %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying photo: %w", err)
	}
	return &photo, nil
}

// ListPhotos returns photos dated within [from, to]
func (s *SQLiteDB) ListPhotos(from, to string) ([]*Photo, error) {
	rows, err := s.db.Query(
		`SELECT id, report_id, user_id, date, filename, content_type, created_at
		 FROM photos WHERE date BETWEEN ? AND ? ORDER BY date, created_at`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("querying photos: %w", err)
	}
	defer rows.Close()

	photos := make([]*Photo, 0)
	for rows.Next() {
		var photo Photo
		if err := rows.Scan(&photo.ID, &photo.ReportID, &photo.UserID, &photo.Date, &photo.Filename, &photo.ContentType, &photo.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning photo: %w", err)
		}
		photos = append(photos, &photo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating photos: %w", err)
	}
	return photos, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
