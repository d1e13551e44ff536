package service

import (
	"context"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/acadrec-api/pkg/errors"
)

type passedCoursesReader interface {
	ListPassedCourseIDs(ctx context.Context, studentID string) ([]string, error)
}

// PrerequisiteChecker decides whether a student has completed a set of
// prerequisite courses. Completion means an active registration whose class
// resolves to the prerequisite course with a passing grade.
type PrerequisiteChecker struct {
	registrations passedCoursesReader
	logger        *zap.Logger
}

// NewPrerequisiteChecker constructs a PrerequisiteChecker.
func NewPrerequisiteChecker(registrations passedCoursesReader, logger *zap.Logger) *PrerequisiteChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrerequisiteChecker{registrations: registrations, logger: logger}
}

// HasCompletedAll reports whether the student passed every course in the
// set. An empty set is vacuously satisfied.
func (c *PrerequisiteChecker) HasCompletedAll(ctx context.Context, studentID string, prerequisiteIDs []string) (bool, error) {
	if len(prerequisiteIDs) == 0 {
		return true, nil
	}
	passed, err := c.registrations.ListPassedCourseIDs(ctx, studentID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed courses")
	}
	passedSet := make(map[string]struct{}, len(passed))
	for _, id := range passed {
		passedSet[id] = struct{}{}
	}
	for _, id := range prerequisiteIDs {
		if _, ok := passedSet[id]; !ok {
			c.logger.Debug("prerequisite not met",
				zap.String("student_id", studentID),
				zap.String("course_id", id),
			)
			return false, nil
		}
	}
	return true, nil
}
