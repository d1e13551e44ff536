package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/acadrec-api/pkg/errors"
)

type mockPassedCourses struct {
	passed map[string][]string
	err    error
}

func (m *mockPassedCourses) ListPassedCourseIDs(ctx context.Context, studentID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.passed[studentID], nil
}

func TestPrerequisiteCheckerEmptySetIsSatisfied(t *testing.T) {
	checker := NewPrerequisiteChecker(&mockPassedCourses{}, nil)

	ok, err := checker.HasCompletedAll(context.Background(), "stu-1", nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPrerequisiteCheckerAllPassed(t *testing.T) {
	checker := NewPrerequisiteChecker(&mockPassedCourses{passed: map[string][]string{
		"stu-1": {"course-a", "course-b", "course-c"},
	}}, nil)

	ok, err := checker.HasCompletedAll(context.Background(), "stu-1", []string{"course-a", "course-b"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPrerequisiteCheckerMissingOne(t *testing.T) {
	checker := NewPrerequisiteChecker(&mockPassedCourses{passed: map[string][]string{
		"stu-1": {"course-a"},
	}}, nil)

	ok, err := checker.HasCompletedAll(context.Background(), "stu-1", []string{"course-a", "course-b"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPrerequisiteCheckerNoHistory(t *testing.T) {
	checker := NewPrerequisiteChecker(&mockPassedCourses{}, nil)

	ok, err := checker.HasCompletedAll(context.Background(), "stu-1", []string{"course-a"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPrerequisiteCheckerReaderError(t *testing.T) {
	checker := NewPrerequisiteChecker(&mockPassedCourses{err: errors.New("connection reset")}, nil)

	_, err := checker.HasCompletedAll(context.Background(), "stu-1", []string{"course-a"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
