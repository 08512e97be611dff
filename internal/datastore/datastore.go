// Package datastore persists the camera directory: the metadata looked up by
// camera token when triaging alerts.
package datastore

import (
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/karnali/wildguard-go/internal/errors"
	"github.com/karnali/wildguard-go/internal/logging"
)

// ErrCameraNotFound is returned when no camera record exists for a token.
var ErrCameraNotFound = errors.NewStd("camera not found")

// Camera is one directory record. Record CRUD and slug issuance live
// outside this system; the pipeline only reads these rows.
type Camera struct {
	ID            uint   `gorm:"primaryKey"`
	Token         string `gorm:"uniqueIndex;not null"`
	Name          string
	Location      string `gorm:"index"`
	IsResidential bool
	PublicSlug    string `gorm:"uniqueIndex"`
	IsActive      bool
	CreatedAt     time.Time
	Recipients    []Recipient `gorm:"foreignKey:CameraID;constraint:OnDelete:CASCADE"`
}

// Recipient is one phone-style notification target for a camera.
type Recipient struct {
	ID       uint `gorm:"primaryKey"`
	CameraID uint `gorm:"index;not null"`
	Phone    string
}

// PhoneNumbers flattens the recipient list.
func (c *Camera) PhoneNumbers() []string {
	phones := make([]string, 0, len(c.Recipients))
	for _, recipient := range c.Recipients {
		phones = append(phones, recipient.Phone)
	}
	return phones
}

// Store is the camera directory lookup used by the alert pipeline.
type Store interface {
	CameraByToken(token string) (*Camera, error)
	SaveCamera(camera *Camera) error
	ActiveCameras() ([]Camera, error)
	Close() error
}

// DataStore implements Store on SQLite through GORM.
type DataStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open opens (or creates) the directory database at path and migrates the
// schema.
func Open(path string) (*DataStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	if err := db.AutoMigrate(&Camera{}, &Recipient{}); err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "migrate").
			Build()
	}

	return &DataStore{db: db, logger: logging.ForService("datastore")}, nil
}

// CameraByToken loads the camera record and its recipients for token.
func (ds *DataStore) CameraByToken(token string) (*Camera, error) {
	var camera Camera
	err := ds.db.Preload("Recipients").Where("token = ?", token).First(&camera).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCameraNotFound
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("token", token).
			Build()
	}
	return &camera, nil
}

// SaveCamera inserts or updates a camera record.
func (ds *DataStore) SaveCamera(camera *Camera) error {
	if err := ds.db.Save(camera).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("token", camera.Token).
			Build()
	}
	return nil
}

// ActiveCameras lists all records flagged active.
func (ds *DataStore) ActiveCameras() ([]Camera, error) {
	var cameras []Camera
	if err := ds.db.Preload("Recipients").Where("is_active = ?", true).Find(&cameras).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return cameras, nil
}

// Close closes the underlying database connection.
func (ds *DataStore) Close() error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
