package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acadrec-api/internal/models"
	appErrors "github.com/noah-isme/acadrec-api/pkg/errors"
)

type mockActiveCounts struct {
	counts map[string]int
}

func (m *mockActiveCounts) CountActive(ctx context.Context, classID string) (int, error) {
	return m.counts[classID], nil
}

type mockClassCapacity struct {
	classes map[string]*models.Class
}

func (m *mockClassCapacity) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func TestCapacityGateHasAvailableSeats(t *testing.T) {
	gate := NewCapacityGate(
		&mockActiveCounts{counts: map[string]int{"class-1": 29, "class-2": 30}},
		&mockClassCapacity{classes: map[string]*models.Class{
			"class-1": {ID: "class-1", MaxStudents: 30},
			"class-2": {ID: "class-2", MaxStudents: 30},
		}},
	)

	ok, err := gate.HasAvailableSeats(context.Background(), "class-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gate.HasAvailableSeats(context.Background(), "class-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCapacityGateClassNotFound(t *testing.T) {
	gate := NewCapacityGate(&mockActiveCounts{}, &mockClassCapacity{})

	_, err := gate.HasAvailableSeats(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCapacityGateActiveCount(t *testing.T) {
	gate := NewCapacityGate(&mockActiveCounts{counts: map[string]int{"class-1": 12}}, &mockClassCapacity{})

	count, err := gate.ActiveCount(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, 12, count)
}
