package service

import (
	"context"
	"database/sql"

	"github.com/noah-isme/acadrec-api/internal/models"
	appErrors "github.com/noah-isme/acadrec-api/pkg/errors"
)

type activeCountReader interface {
	CountActive(ctx context.Context, classID string) (int, error)
}

type classCapacityReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// CapacityGate answers seat-availability questions for a class. Cancelled
// registrations never occupy a seat.
type CapacityGate struct {
	registrations activeCountReader
	classes       classCapacityReader
}

// NewCapacityGate constructs a CapacityGate.
func NewCapacityGate(registrations activeCountReader, classes classCapacityReader) *CapacityGate {
	return &CapacityGate{registrations: registrations, classes: classes}
}

// ActiveCount returns the number of seats currently taken.
func (g *CapacityGate) ActiveCount(ctx context.Context, classID string) (int, error) {
	count, err := g.registrations.CountActive(ctx, classID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count registrations")
	}
	return count, nil
}

// HasAvailableSeats reports whether the class can take another registration.
func (g *CapacityGate) HasAvailableSeats(ctx context.Context, classID string) (bool, error) {
	class, err := g.classes.FindByID(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	count, err := g.ActiveCount(ctx, classID)
	if err != nil {
		return false, err
	}
	return count < class.MaxStudents, nil
}
