package aggregate

import (
	"github.com/perlin-network/academy/ledger"
)

type ModuleView struct {
	*ledger.Module
	Lessons []*ledger.Lesson
}

// CourseView is a course with its modules and their lessons, each level in
// ascending order index.
type CourseView struct {
	*ledger.Course
	Modules []*ModuleView
}

// LessonIDs lists every lesson of the course in presentation order.
func (c *CourseView) LessonIDs() []uint64 {
	var ids []uint64

	for _, m := range c.Modules {
		for _, l := range m.Lessons {
			ids = append(ids, l.ID)
		}
	}

	return ids
}

func (c *CourseView) LessonCount() int {
	n := 0
	for _, m := range c.Modules {
		n += len(m.Lessons)
	}

	return n
}

// QuizView is a quiz with its questions in the order the quiz lists them.
type QuizView struct {
	*ledger.Quiz
	Questions []*ledger.Question
}

type InstructorView struct {
	Account       ledger.AccountID
	Courses       []*ledger.Course
	Reviews       []*ledger.Review
	AverageRating float64
}

type AchievementView struct {
	*ledger.Achievement
	Earned bool
}

type ProfileView struct {
	Account      ledger.AccountID
	Balance      uint64
	Certificates []*ledger.Certificate
	Achievements []*AchievementView
}
