package ledger

import (
	"sort"

	"github.com/perlin-network/academy/sys"
	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
)

type simQuery func(s *Sim, a *fastjson.Arena, r *argReader) (*fastjson.Value, error)

var marketQueries = map[string]simQuery{
	sys.MethodCourseCount:       (*Sim).getCourseCount,
	sys.MethodCourse:            (*Sim).getCourse,
	sys.MethodCourseModules:     (*Sim).getCourseModules,
	sys.MethodModule:            (*Sim).getModule,
	sys.MethodModuleLessons:     (*Sim).getModuleLessons,
	sys.MethodLesson:            (*Sim).getLesson,
	sys.MethodInstructorCourses: (*Sim).getInstructorCourses,
	sys.MethodEnrolledCourses:   (*Sim).getEnrolledCourses,
	sys.MethodCompletedCourses:  (*Sim).getCompletedCourses,
	sys.MethodEnrollment:        (*Sim).getEnrollment,
	sys.MethodProgress:          (*Sim).getProgress,
	sys.MethodCompletedLessons:  (*Sim).getCompletedLessons,
	sys.MethodCurrentQuiz:       (*Sim).getCurrentQuiz,
	sys.MethodQuiz:              (*Sim).getQuiz,
	sys.MethodQuizQuestions:     (*Sim).getQuizQuestions,
	sys.MethodQuestion:          (*Sim).getQuestion,
	sys.MethodCertificates:      (*Sim).getCertificates,
	sys.MethodCertificate:       (*Sim).getCertificate,
	sys.MethodAchievements:      (*Sim).getAchievements,
	sys.MethodAchievement:       (*Sim).getAchievement,
	sys.MethodHasAchievement:    (*Sim).hasAchievement,
	sys.MethodInstructorReviews: (*Sim).getInstructorReviews,
	sys.MethodReview:            (*Sim).getReview,
}

var tokenQueries = map[string]simQuery{
	sys.MethodBalanceOf: (*Sim).balanceOf,
	sys.MethodAllowance: (*Sim).allowance,
}

func (s *Sim) queryMarket(a *fastjson.Arena, method string, args Args) (*fastjson.Value, error) {
	return s.dispatchQuery(marketQueries, a, method, args)
}

func (s *Sim) queryToken(a *fastjson.Arena, method string, args Args) (*fastjson.Value, error) {
	return s.dispatchQuery(tokenQueries, a, method, args)
}

func (s *Sim) dispatchQuery(queries map[string]simQuery, a *fastjson.Arena, method string, args Args) (*fastjson.Value, error) {
	fn, ok := queries[method]
	if !ok {
		return nil, errors.Wrap(ErrUnknownCall, method)
	}

	r := &argReader{args: args}

	v, err := fn(s, a, r)
	if r.err != nil {
		return nil, errors.Wrap(r.err, method)
	}

	return v, err
}

func notFound(kind string, id uint64) error {
	return errors.Wrapf(ErrNotFound, "%s %d", kind, id)
}

func (s *Sim) getCourseCount(a *fastjson.Arena, _ *argReader) (*fastjson.Value, error) {
	return arenaUint(a, uint64(len(s.courseOrder))), nil
}

func (s *Sim) getCourse(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	id := r.Uint(0)

	c, ok := s.courses[id]
	if !ok {
		return nil, notFound("course", id)
	}

	return c.MarshalArena(a), nil
}

func (s *Sim) getCourseModules(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	id := r.Uint(0)

	c, ok := s.courses[id]
	if !ok {
		return nil, notFound("course", id)
	}

	return arenaUints(a, c.ModuleIDs), nil
}

func (s *Sim) getModule(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	id := r.Uint(0)

	m, ok := s.modules[id]
	if !ok {
		return nil, notFound("module", id)
	}

	return m.MarshalArena(a), nil
}

func (s *Sim) getModuleLessons(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	id := r.Uint(0)

	m, ok := s.modules[id]
	if !ok {
		return nil, notFound("module", id)
	}

	return arenaUints(a, m.LessonIDs), nil
}

func (s *Sim) getLesson(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	id := r.Uint(0)

	l, ok := s.lessons[id]
	if !ok {
		return nil, notFound("lesson", id)
	}

	return l.MarshalArena(a), nil
}

func (s *Sim) getInstructorCourses(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	owner := r.Account(0)

	var ids []uint64

	for _, id := range s.courseOrder {
		if s.courses[id].Owner == owner {
			ids = append(ids, id)
		}
	}

	return arenaUints(a, ids), nil
}

func (s *Sim) getEnrolledCourses(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	return arenaUints(a, s.enrollOrder[r.Account(0)]), nil
}

func (s *Sim) getCompletedCourses(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	return arenaUints(a, s.completedCourses(r.Account(0))), nil
}

func (s *Sim) getEnrollment(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	account, course := r.Account(0), r.Uint(1)

	e, ok := s.enrollments[account][course]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "enrollment of %s in course %d", account.Short(), course)
	}

	return e.MarshalArena(a), nil
}

func (s *Sim) getProgress(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	account, course := r.Account(0), r.Uint(1)

	var progress uint64
	if e, ok := s.enrollments[account][course]; ok {
		progress = e.Progress
	}

	return arenaUint(a, progress), nil
}

func (s *Sim) getCompletedLessons(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	account, course := r.Account(0), r.Uint(1)

	var ids []uint64
	if e, ok := s.enrollments[account][course]; ok {
		ids = e.lessons
	}

	return arenaUints(a, ids), nil
}

func (s *Sim) getCurrentQuiz(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	account, course := r.Account(0), r.Uint(1)

	return arenaUint(a, s.current[account][course]), nil
}

func (s *Sim) getQuiz(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	id := r.Uint(0)

	q, ok := s.quizzes[id]
	if !ok {
		return nil, notFound("quiz", id)
	}

	return q.Quiz.MarshalArena(a), nil
}

func (s *Sim) getQuizQuestions(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	id := r.Uint(0)

	q, ok := s.quizzes[id]
	if !ok {
		return nil, notFound("quiz", id)
	}

	return arenaUints(a, q.QuestionIDs), nil
}

// getQuestion also reports the correct option, as the marketplace contract
// does. Clients must not rely on it.
func (s *Sim) getQuestion(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	id := r.Uint(0)

	q, ok := s.quizItems[id]
	if !ok {
		return nil, notFound("question", id)
	}

	v := q.Question.MarshalArena(a)
	v.Set("answer", arenaUint(a, q.answer))

	return v, nil
}

func (s *Sim) getCertificates(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	account := r.Account(0)

	var ids []uint64

	for id, cert := range s.certificates {
		if cert.Recipient == account {
			ids = append(ids, id)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return arenaUints(a, ids), nil
}

func (s *Sim) getCertificate(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	id := r.Uint(0)

	cert, ok := s.certificates[id]
	if !ok {
		return nil, notFound("certificate", id)
	}

	return cert.MarshalArena(a), nil
}

func (s *Sim) getAchievements(a *fastjson.Arena, _ *argReader) (*fastjson.Value, error) {
	ids := make(map[uint64]bool, len(s.achievements))
	for id := range s.achievements {
		ids[id] = true
	}

	return arenaUints(a, sortedIDs(ids)), nil
}

func (s *Sim) getAchievement(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	id := r.Uint(0)

	ach, ok := s.achievements[id]
	if !ok {
		return nil, notFound("achievement", id)
	}

	return ach.MarshalArena(a), nil
}

func (s *Sim) hasAchievement(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	account, id := r.Account(0), r.Uint(1)

	return arenaBool(a, s.earned[account][id]), nil
}

func (s *Sim) getInstructorReviews(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	instructor := r.Account(0)

	var ids []uint64

	for id, rv := range s.reviews {
		if rv.Instructor == instructor {
			ids = append(ids, id)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return arenaUints(a, ids), nil
}

func (s *Sim) getReview(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	id := r.Uint(0)

	rv, ok := s.reviews[id]
	if !ok {
		return nil, notFound("review", id)
	}

	return rv.MarshalArena(a), nil
}

func (s *Sim) balanceOf(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	return arenaUint(a, s.balances[r.Account(0)]), nil
}

func (s *Sim) allowance(a *fastjson.Arena, r *argReader) (*fastjson.Value, error) {
	owner, spender := r.Account(0), r.Account(1)

	return arenaUint(a, s.allowances[owner][spender]), nil
}
