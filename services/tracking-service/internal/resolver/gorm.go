package resolver

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/zipplatformofficial/zip-platform/pkg/geo"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/domain"
)

// ServiceBooking is the maintenance domain's booking row. A service booking
// tracks its assigned technician toward the service address.
type ServiceBooking struct {
	ID               string `gorm:"primaryKey"`
	CustomerID       string `gorm:"index"`
	TechnicianID     string `gorm:"index"`
	Status           string `gorm:"index"` // PENDING|CONFIRMED|IN_PROGRESS|COMPLETED|CANCELLED
	ServiceLatitude  *float64
	ServiceLongitude *float64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RentalBooking is the rental domain's booking row. A rental booking tracks
// its vehicle; the dropoff point, when set, serves as the ETA destination.
type RentalBooking struct {
	ID               string `gorm:"primaryKey"`
	CustomerID       string `gorm:"index"`
	VehicleID        string `gorm:"index"`
	Status           string `gorm:"index"`
	DropoffLatitude  *float64
	DropoffLongitude *float64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type GormDirectory struct{ db *gorm.DB }

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) Migrate() error {
	return d.db.AutoMigrate(&ServiceBooking{}, &RentalBooking{})
}

// Resolve tries the service bookings first, then the rentals, mirroring how
// the platform disambiguates a bare booking id.
func (d *GormDirectory) Resolve(ctx context.Context, bookingID string) (*ResolvedBooking, error) {
	var sb ServiceBooking
	err := d.db.WithContext(ctx).First(&sb, "id = ?", bookingID).Error
	if err == nil {
		rb := &ResolvedBooking{
			Key:        domain.SessionKey{Kind: domain.KindTechnician, BookingID: sb.ID},
			CustomerID: sb.CustomerID,
			ReporterID: sb.TechnicianID,
		}
		if sb.ServiceLatitude != nil && sb.ServiceLongitude != nil {
			rb.Destination = &geo.Point{Lat: *sb.ServiceLatitude, Lon: *sb.ServiceLongitude}
		}
		return rb, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var rl RentalBooking
	err = d.db.WithContext(ctx).First(&rl, "id = ?", bookingID).Error
	if err == nil {
		rb := &ResolvedBooking{
			Key:        domain.SessionKey{Kind: domain.KindVehicle, BookingID: rl.ID},
			CustomerID: rl.CustomerID,
			ReporterID: rl.VehicleID,
		}
		if rl.DropoffLatitude != nil && rl.DropoffLongitude != nil {
			rb.Destination = &geo.Point{Lat: *rl.DropoffLatitude, Lon: *rl.DropoffLongitude}
		}
		return rb, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookingNotFound
	}
	return nil, err
}
