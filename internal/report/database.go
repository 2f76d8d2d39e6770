package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	usersBucketName       = "users"
	reportsBucketName     = "reports"
	reportIndexBucketName = "report_index"
	photosBucketName      = "photos"
	photoIndexBucketName  = "photo_index"
)

// ErrNotFound is returned when a user, report or photo does not exist
var ErrNotFound = errors.New("not found")

// DB defines the interface for database operations
type DB interface {
	// AddUser inserts a user unless one with the same ID exists
	AddUser(user *User) error

	// GetUser retrieves a user by ID
	GetUser(id string) (*User, error)

	// SetAdmin grants admin mode to an existing user
	SetAdmin(id string) error

	// SaveReports inserts or replaces reports with their cars. Either all of
	// them are stored or none is.
	SaveReports(reports ...*WorkReport) error

	// GetReport retrieves a report by ID
	GetReport(id string) (*WorkReport, error)

	// ListReports returns reports dated within [from, to], both inclusive
	ListReports(from, to string) ([]*WorkReport, error)

	// SavePhoto inserts or replaces a photo record
	SavePhoto(photo *Photo) error

	// GetPhoto retrieves a photo by ID
	GetPhoto(id string) (*Photo, error)

	// ListPhotos returns photos dated within [from, to], both inclusive
	ListPhotos(from, to string) ([]*Photo, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB. Reports and photos are
// keyed by "date/id" so a date range is a single cursor walk; the index
// buckets map an ID back to that key.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{usersBucketName, reportsBucketName, reportIndexBucketName, photosBucketName, photoIndexBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func datedKey(date, id string) []byte {
	return []byte(date + "/" + id)
}

// AddUser stores a user unless it is already known
func (b *BoltDB) AddUser(user *User) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(usersBucketName))
		if bucket.Get([]byte(user.ID)) != nil {
			return nil
		}
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshaling user: %w", err)
		}
		return bucket.Put([]byte(user.ID), data)
	})
}

// GetUser retrieves a user by ID
func (b *BoltDB) GetUser(id string) (*User, error) {
	var user *User
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(usersBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SetAdmin flags a user as admin
func (b *BoltDB) SetAdmin(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(usersBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		var user User
		if err := json.Unmarshal(data, &user); err != nil {
			return fmt.Errorf("unmarshaling user: %w", err)
		}
		user.IsAdmin = true
		updated, err := json.Marshal(&user)
		if err != nil {
			return fmt.Errorf("marshaling user: %w", err)
		}
		return bucket.Put([]byte(id), updated)
	})
}

// SaveReports saves reports to the database in a single transaction
func (b *BoltDB) SaveReports(reports ...*WorkReport) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, report := range reports {
			data, err := json.Marshal(report)
			if err != nil {
				return fmt.Errorf("marshaling report %s: %w", report.ID, err)
			}
			if err := putDated(tx, reportsBucketName, reportIndexBucketName, report.ID, report.Date, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetReport retrieves a report by ID
func (b *BoltDB) GetReport(id string) (*WorkReport, error) {
	var report *WorkReport
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := getDated(tx, reportsBucketName, reportIndexBucketName, id)
		if data == nil {
			return fmt.Errorf("report %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &report)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ListReports returns reports dated within [from, to]
func (b *BoltDB) ListReports(from, to string) ([]*WorkReport, error) {
	reports := make([]*WorkReport, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return walkDates(tx, reportsBucketName, from, to, func(v []byte) error {
			var report WorkReport
			if err := json.Unmarshal(v, &report); err != nil {
				return fmt.Errorf("unmarshaling report: %w", err)
			}
			reports = append(reports, &report)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// SavePhoto saves a photo record to the database
func (b *BoltDB) SavePhoto(photo *Photo) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(photo)
		if err != nil {
			return fmt.Errorf("marshaling photo: %w", err)
		}
		return putDated(tx, photosBucketName, photoIndexBucketName, photo.ID, photo.Date, data)
	})
}

// GetPhoto retrieves a photo by ID
func (b *BoltDB) GetPhoto(id string) (*Photo, error) {
	var photo *Photo
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := getDated(tx, photosBucketName, photoIndexBucketName, id)
		if data == nil {
			return fmt.Errorf("photo %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &photo)
	})
	if err != nil {
		return nil, err
	}
	return photo, nil
}

// ListPhotos returns photos dated within [from, to]
func (b *BoltDB) ListPhotos(from, to string) ([]*Photo, error) {
	photos := make([]*Photo, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return walkDates(tx, photosBucketName, from, to, func(v []byte) error {
			var photo Photo
			if err := json.Unmarshal(v, &photo); err != nil {
				return fmt.Errorf("unmarshaling photo: %w", err)
			}
			photos = append(photos, &photo)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return photos, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// putDated stores data under "date/id" and drops the previous key when the
// date of an existing record changed.
func putDated(tx *bbolt.Tx, bucketName, indexName, id, date string, data []byte) error {
	bucket := tx.Bucket([]byte(bucketName))
	index := tx.Bucket([]byte(indexName))
	key := datedKey(date, id)

	if old := index.Get([]byte(id)); old != nil && !bytes.Equal(old, key) {
		if err := bucket.Delete(old); err != nil {
			return err
		}
	}
	if err := bucket.Put(key, data); err != nil {
		return err
	}
	return index.Put([]byte(id), key)
}

func getDated(tx *bbolt.Tx, bucketName, indexName, id string) []byte {
	key := tx.Bucket([]byte(indexName)).Get([]byte(id))
	if key == nil {
		return nil
	}
	return tx.Bucket([]byte(bucketName)).Get(key)
}

// walkDates visits values whose key date lies in [from, to]. Keys sort by
// date because dates are fixed-width ISO strings.
func walkDates(tx *bbolt.Tx, bucketName, from, to string, fn func(v []byte) error) error {
	c := tx.Bucket([]byte(bucketName)).Cursor()
	upper := []byte(to + "/\xff")
	for k, v := c.Seek([]byte(from)); k != nil && bytes.Compare(k, upper) <= 0; k, v = c.Next() {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}
