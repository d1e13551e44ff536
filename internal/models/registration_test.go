package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistrationRequiresIDs(t *testing.T) {
	_, err := NewRegistration("", "class-1")
	assert.Error(t, err)

	_, err = NewRegistration("stu-1", "")
	assert.Error(t, err)

	reg, err := NewRegistration("stu-1", "class-1")
	require.NoError(t, err)
	assert.Equal(t, RegistrationStatusActive, reg.Status)
	assert.Nil(t, reg.Grade)
	assert.WithinDuration(t, time.Now().UTC(), reg.RegistrationDate, time.Minute)
}

func TestRegistrationAssignGrade(t *testing.T) {
	reg, err := NewRegistration("stu-1", "class-1")
	require.NoError(t, err)

	require.NoError(t, reg.AssignGrade(7.5))
	require.NotNil(t, reg.Grade)
	assert.Equal(t, 7.5, *reg.Grade)

	assert.Error(t, reg.AssignGrade(-0.1))
	assert.Error(t, reg.AssignGrade(10.1))
	assert.Equal(t, 7.5, *reg.Grade)
}

func TestRegistrationUpdateGradeRequiresExisting(t *testing.T) {
	reg, err := NewRegistration("stu-1", "class-1")
	require.NoError(t, err)

	assert.Error(t, reg.UpdateGrade(6))

	require.NoError(t, reg.AssignGrade(4))
	require.NoError(t, reg.UpdateGrade(6))
	assert.Equal(t, 6.0, *reg.Grade)
}

func TestRegistrationCancelClearsGrade(t *testing.T) {
	reg, err := NewRegistration("stu-1", "class-1")
	require.NoError(t, err)
	require.NoError(t, reg.AssignGrade(9))

	assert.Error(t, reg.Cancel(""))

	require.NoError(t, reg.Cancel("dropped the course"))
	assert.Equal(t, RegistrationStatusCancelled, reg.Status)
	assert.Nil(t, reg.Grade)
	require.NotNil(t, reg.CancellationDate)
	require.NotNil(t, reg.CancellationReason)
	assert.False(t, reg.CancellationDate.Before(reg.RegistrationDate))

	assert.Error(t, reg.Cancel("again"))
	assert.Error(t, reg.AssignGrade(8))
	assert.False(t, reg.CanBeModified())
}

func TestRegistrationReactivate(t *testing.T) {
	reg, err := NewRegistration("stu-1", "class-1")
	require.NoError(t, err)

	assert.Error(t, reg.Reactivate())

	require.NoError(t, reg.Cancel("schedule conflict"))
	require.NoError(t, reg.Reactivate())
	assert.Equal(t, RegistrationStatusActive, reg.Status)
	assert.Nil(t, reg.CancellationDate)
	assert.Nil(t, reg.CancellationReason)

	require.NoError(t, reg.AssignGrade(8))
	assert.True(t, reg.CanBeModified())
}

func TestRegistrationGradeStatus(t *testing.T) {
	reg, err := NewRegistration("stu-1", "class-1")
	require.NoError(t, err)
	assert.Equal(t, GradeStatusPending, reg.GradeStatus())
	assert.False(t, reg.IsPassing())

	require.NoError(t, reg.AssignGrade(4.99))
	assert.Equal(t, GradeStatusFailed, reg.GradeStatus())
	assert.False(t, reg.IsPassing())

	require.NoError(t, reg.AssignGrade(5))
	assert.Equal(t, GradeStatusPassed, reg.GradeStatus())
	assert.True(t, reg.IsPassing())
}

func TestRegistrationValidate(t *testing.T) {
	reg, err := NewRegistration("stu-1", "class-1")
	require.NoError(t, err)
	require.NoError(t, reg.Validate())

	future := *reg
	future.RegistrationDate = time.Now().UTC().Add(time.Hour)
	assert.Error(t, future.Validate())

	stale := *reg
	stale.RegistrationDate = time.Now().UTC().AddDate(-1, 0, -1)
	assert.Error(t, stale.Validate())

	// Cancellation fields must travel together.
	broken := *reg
	broken.Status = RegistrationStatusCancelled
	assert.Error(t, broken.Validate())

	now := time.Now().UTC()
	reason := "withdrawn"
	require.NoError(t, reg.Cancel(reason))
	require.NoError(t, reg.Validate())

	early := *reg
	past := now.Add(-48 * time.Hour)
	early.RegistrationDate = now
	early.CancellationDate = &past
	assert.Error(t, early.Validate())
}
