package ledger

import (
	"context"

	"github.com/perlin-network/academy/errs"
	"github.com/perlin-network/academy/sys"
	"github.com/valyala/fastjson"
)

// Reader decodes marketplace and token queries into typed records.
type Reader struct {
	*Facade

	Market AccountID
	Token  AccountID
}

func NewReader(f *Facade, market, token AccountID) *Reader {
	return &Reader{Facade: f, Market: market, Token: token}
}

func (r *Reader) into(ctx context.Context, dst UnmarshalableValue, contract AccountID, method string, args ...interface{}) error {
	v, err := r.Query(ctx, contract, method, args...)
	if err != nil {
		return err
	}

	if err := dst.UnmarshalValue(v); err != nil {
		return errs.Wrap(errs.KindRemote, "decode "+method, err)
	}

	return nil
}

func (r *Reader) ids(ctx context.Context, method string, args ...interface{}) ([]uint64, error) {
	v, err := r.Query(ctx, r.Market, method, args...)
	if err != nil {
		return nil, err
	}

	ids, err := ValueUint64s(v)
	if err != nil {
		return nil, errs.Wrap(errs.KindRemote, "decode "+method, err)
	}

	return ids, nil
}

func (r *Reader) uint(ctx context.Context, contract AccountID, method string, args ...interface{}) (uint64, error) {
	v, err := r.Query(ctx, contract, method, args...)
	if err != nil {
		return 0, err
	}

	n, err := v.Uint64()
	if err != nil {
		return 0, errs.Wrap(errs.KindRemote, "decode "+method, err)
	}

	return n, nil
}

func (r *Reader) bool(ctx context.Context, method string, args ...interface{}) (bool, error) {
	v, err := r.Query(ctx, r.Market, method, args...)
	if err != nil {
		return false, err
	}

	switch v.Type() {
	case fastjson.TypeTrue:
		return true, nil
	case fastjson.TypeFalse:
		return false, nil
	}

	return false, errs.Errorf(errs.KindRemote, "decode "+method, "expected a bool, got %s", v.Type())
}

func (r *Reader) CourseCount(ctx context.Context) (uint64, error) {
	return r.uint(ctx, r.Market, sys.MethodCourseCount)
}

func (r *Reader) Course(ctx context.Context, id uint64) (*Course, error) {
	var c Course
	if err := r.into(ctx, &c, r.Market, sys.MethodCourse, id); err != nil {
		return nil, err
	}

	return &c, nil
}

func (r *Reader) CourseModuleIDs(ctx context.Context, course uint64) ([]uint64, error) {
	return r.ids(ctx, sys.MethodCourseModules, course)
}

func (r *Reader) Module(ctx context.Context, id uint64) (*Module, error) {
	var m Module
	if err := r.into(ctx, &m, r.Market, sys.MethodModule, id); err != nil {
		return nil, err
	}

	return &m, nil
}

func (r *Reader) ModuleLessonIDs(ctx context.Context, module uint64) ([]uint64, error) {
	return r.ids(ctx, sys.MethodModuleLessons, module)
}

func (r *Reader) Lesson(ctx context.Context, id uint64) (*Lesson, error) {
	var l Lesson
	if err := r.into(ctx, &l, r.Market, sys.MethodLesson, id); err != nil {
		return nil, err
	}

	return &l, nil
}

func (r *Reader) InstructorCourseIDs(ctx context.Context, instructor AccountID) ([]uint64, error) {
	return r.ids(ctx, sys.MethodInstructorCourses, instructor)
}

func (r *Reader) EnrolledCourseIDs(ctx context.Context, account AccountID) ([]uint64, error) {
	return r.ids(ctx, sys.MethodEnrolledCourses, account)
}

func (r *Reader) CompletedCourseIDs(ctx context.Context, account AccountID) ([]uint64, error) {
	return r.ids(ctx, sys.MethodCompletedCourses, account)
}

func (r *Reader) Enrollment(ctx context.Context, account AccountID, course uint64) (*Enrollment, error) {
	var e Enrollment
	if err := r.into(ctx, &e, r.Market, sys.MethodEnrollment, account, course); err != nil {
		return nil, err
	}

	return &e, nil
}

func (r *Reader) Progress(ctx context.Context, account AccountID, course uint64) (uint64, error) {
	return r.uint(ctx, r.Market, sys.MethodProgress, account, course)
}

func (r *Reader) CompletedLessonIDs(ctx context.Context, account AccountID, course uint64) ([]uint64, error) {
	return r.ids(ctx, sys.MethodCompletedLessons, account, course)
}

// CurrentQuizID returns 0 while no quiz exists for the pair.
func (r *Reader) CurrentQuizID(ctx context.Context, account AccountID, course uint64) (uint64, error) {
	return r.uint(ctx, r.Market, sys.MethodCurrentQuiz, account, course)
}

func (r *Reader) Quiz(ctx context.Context, id uint64) (*Quiz, error) {
	var q Quiz
	if err := r.into(ctx, &q, r.Market, sys.MethodQuiz, id); err != nil {
		return nil, err
	}

	return &q, nil
}

func (r *Reader) QuizQuestionIDs(ctx context.Context, quiz uint64) ([]uint64, error) {
	return r.ids(ctx, sys.MethodQuizQuestions, quiz)
}

func (r *Reader) Question(ctx context.Context, id uint64) (*Question, error) {
	var q Question
	if err := r.into(ctx, &q, r.Market, sys.MethodQuestion, id); err != nil {
		return nil, err
	}

	return &q, nil
}

func (r *Reader) CertificateIDs(ctx context.Context, account AccountID) ([]uint64, error) {
	return r.ids(ctx, sys.MethodCertificates, account)
}

func (r *Reader) Certificate(ctx context.Context, id uint64) (*Certificate, error) {
	var c Certificate
	if err := r.into(ctx, &c, r.Market, sys.MethodCertificate, id); err != nil {
		return nil, err
	}

	return &c, nil
}

func (r *Reader) AchievementIDs(ctx context.Context) ([]uint64, error) {
	return r.ids(ctx, sys.MethodAchievements)
}

func (r *Reader) Achievement(ctx context.Context, id uint64) (*Achievement, error) {
	var a Achievement
	if err := r.into(ctx, &a, r.Market, sys.MethodAchievement, id); err != nil {
		return nil, err
	}

	return &a, nil
}

func (r *Reader) HasAchievement(ctx context.Context, account AccountID, id uint64) (bool, error) {
	return r.bool(ctx, sys.MethodHasAchievement, account, id)
}

func (r *Reader) InstructorReviewIDs(ctx context.Context, instructor AccountID) ([]uint64, error) {
	return r.ids(ctx, sys.MethodInstructorReviews, instructor)
}

func (r *Reader) Review(ctx context.Context, id uint64) (*Review, error) {
	var rv Review
	if err := r.into(ctx, &rv, r.Market, sys.MethodReview, id); err != nil {
		return nil, err
	}

	return &rv, nil
}

func (r *Reader) Balance(ctx context.Context, account AccountID) (uint64, error) {
	return r.uint(ctx, r.Token, sys.MethodBalanceOf, account)
}

// Allowance is how much spender may still draw from owner's balance.
func (r *Reader) Allowance(ctx context.Context, owner, spender AccountID) (uint64, error) {
	return r.uint(ctx, r.Token, sys.MethodAllowance, owner, spender)
}
