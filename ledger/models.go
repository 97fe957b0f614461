package ledger

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"
)

type Course struct {
	ID          uint64
	Owner       AccountID
	Title       string
	Description string

	Price       uint64
	Duration    uint64
	XPReward    uint64
	TokenReward uint64

	Active bool
	Paused bool

	Enrollments uint64
	Completions uint64
	CreatedAt   time.Time

	ModuleIDs     []uint64
	Prerequisites []uint64
	Tags          []string
}

var (
	_ UnmarshalableValue = (*Course)(nil)
	_ MarshalableArena   = (*Course)(nil)
)

func (c *Course) UnmarshalValue(v *fastjson.Value) error {
	var err error

	c.ID = v.GetUint64("id")
	if c.ID == 0 {
		return errors.New("course has no id")
	}

	if c.Owner, err = jsonAccount(v, "owner"); err != nil {
		return err
	}

	c.Title = jsonString(v, "title")
	c.Description = jsonString(v, "description")
	c.Price = v.GetUint64("price")
	c.Duration = v.GetUint64("duration")
	c.XPReward = v.GetUint64("xp_reward")
	c.TokenReward = v.GetUint64("token_reward")
	c.Active = v.GetBool("active")
	c.Paused = v.GetBool("paused")
	c.Enrollments = v.GetUint64("enrollments")
	c.Completions = v.GetUint64("completions")
	c.CreatedAt = jsonTime(v, "created_at")
	c.ModuleIDs = jsonUints(v, "module_ids")
	c.Prerequisites = jsonUints(v, "prerequisites")
	c.Tags = jsonStrings(v, "tags")

	return nil
}

func (c *Course) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()

	o.Set("id", arenaUint(arena, c.ID))
	o.Set("owner", arenaAccount(arena, c.Owner))
	o.Set("title", arena.NewString(c.Title))
	o.Set("description", arena.NewString(c.Description))
	o.Set("price", arenaUint(arena, c.Price))
	o.Set("duration", arenaUint(arena, c.Duration))
	o.Set("xp_reward", arenaUint(arena, c.XPReward))
	o.Set("token_reward", arenaUint(arena, c.TokenReward))
	o.Set("active", arenaBool(arena, c.Active))
	o.Set("paused", arenaBool(arena, c.Paused))
	o.Set("enrollments", arenaUint(arena, c.Enrollments))
	o.Set("completions", arenaUint(arena, c.Completions))
	o.Set("created_at", arenaTime(arena, c.CreatedAt))
	o.Set("module_ids", arenaUints(arena, c.ModuleIDs))
	o.Set("prerequisites", arenaUints(arena, c.Prerequisites))
	o.Set("tags", arenaStrings(arena, c.Tags))

	return o
}

// Free reports whether enrolling costs nothing.
func (c *Course) Free() bool {
	return c.Price == 0
}

// Open reports whether the course currently accepts enrollments.
func (c *Course) Open() bool {
	return c.Active && !c.Paused
}

func (c *Course) MarshalEvent(ev *zerolog.Event) {
	ev.Uint64("course_id", c.ID).
		Str("owner", c.Owner.String()).
		Str("title", c.Title).
		Uint64("price", c.Price).
		Int("modules", len(c.ModuleIDs)).
		Msg("Course")
}

type Module struct {
	ID          uint64
	CourseID    uint64
	Title       string
	Description string
	Order       uint64
	LessonIDs   []uint64
	Active      bool
}

func (m *Module) UnmarshalValue(v *fastjson.Value) error {
	m.ID = v.GetUint64("id")
	if m.ID == 0 {
		return errors.New("module has no id")
	}

	m.CourseID = v.GetUint64("course_id")
	m.Title = jsonString(v, "title")
	m.Description = jsonString(v, "description")
	m.Order = v.GetUint64("order")
	m.LessonIDs = jsonUints(v, "lesson_ids")
	m.Active = v.GetBool("active")

	return nil
}

func (m *Module) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()

	o.Set("id", arenaUint(arena, m.ID))
	o.Set("course_id", arenaUint(arena, m.CourseID))
	o.Set("title", arena.NewString(m.Title))
	o.Set("description", arena.NewString(m.Description))
	o.Set("order", arenaUint(arena, m.Order))
	o.Set("lesson_ids", arenaUints(arena, m.LessonIDs))
	o.Set("active", arenaBool(arena, m.Active))

	return o
}

type Lesson struct {
	ID          uint64
	ModuleID    uint64
	Title       string
	Description string
	ContentType string
	ContentURI  string
	Duration    uint64
	Order       uint64
	Active      bool
}

func (l *Lesson) UnmarshalValue(v *fastjson.Value) error {
	l.ID = v.GetUint64("id")
	if l.ID == 0 {
		return errors.New("lesson has no id")
	}

	l.ModuleID = v.GetUint64("module_id")
	l.Title = jsonString(v, "title")
	l.Description = jsonString(v, "description")
	l.ContentType = jsonString(v, "content_type")
	l.ContentURI = jsonString(v, "content_uri")
	l.Duration = v.GetUint64("duration")
	l.Order = v.GetUint64("order")
	l.Active = v.GetBool("active")

	return nil
}

func (l *Lesson) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()

	o.Set("id", arenaUint(arena, l.ID))
	o.Set("module_id", arenaUint(arena, l.ModuleID))
	o.Set("title", arena.NewString(l.Title))
	o.Set("description", arena.NewString(l.Description))
	o.Set("content_type", arena.NewString(l.ContentType))
	o.Set("content_uri", arena.NewString(l.ContentURI))
	o.Set("duration", arenaUint(arena, l.Duration))
	o.Set("order", arenaUint(arena, l.Order))
	o.Set("active", arenaBool(arena, l.Active))

	return o
}

// Enrollment is an account's relationship to a course. It becomes a
// completion once the ledger sets Completed.
type Enrollment struct {
	Account    AccountID
	CourseID   uint64
	Progress   uint64
	EnrolledAt time.Time
	PricePaid  uint64
	Completed  bool
}

func (e *Enrollment) UnmarshalValue(v *fastjson.Value) error {
	var err error

	if e.Account, err = jsonAccount(v, "account"); err != nil {
		return err
	}

	e.CourseID = v.GetUint64("course_id")
	e.Progress = v.GetUint64("progress")
	e.EnrolledAt = jsonTime(v, "enrolled_at")
	e.PricePaid = v.GetUint64("price_paid")
	e.Completed = v.GetBool("completed")

	return nil
}

func (e *Enrollment) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()

	o.Set("account", arenaAccount(arena, e.Account))
	o.Set("course_id", arenaUint(arena, e.CourseID))
	o.Set("progress", arenaUint(arena, e.Progress))
	o.Set("enrolled_at", arenaTime(arena, e.EnrolledAt))
	o.Set("price_paid", arenaUint(arena, e.PricePaid))
	o.Set("completed", arenaBool(arena, e.Completed))

	return o
}

type Quiz struct {
	ID          uint64
	CourseID    uint64
	Account     AccountID
	QuestionIDs []uint64
	Score       uint64
	Passed      bool
	Submitted   bool
	CreatedAt   time.Time
}

func (q *Quiz) UnmarshalValue(v *fastjson.Value) error {
	var err error

	q.ID = v.GetUint64("id")
	if q.ID == 0 {
		return errors.New("quiz has no id")
	}

	if q.Account, err = jsonAccount(v, "account"); err != nil {
		return err
	}

	q.CourseID = v.GetUint64("course_id")
	q.QuestionIDs = jsonUints(v, "question_ids")
	q.Score = v.GetUint64("score")
	q.Passed = v.GetBool("passed")
	q.Submitted = v.GetBool("submitted")
	q.CreatedAt = jsonTime(v, "created_at")

	return nil
}

func (q *Quiz) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()

	o.Set("id", arenaUint(arena, q.ID))
	o.Set("course_id", arenaUint(arena, q.CourseID))
	o.Set("account", arenaAccount(arena, q.Account))
	o.Set("question_ids", arenaUints(arena, q.QuestionIDs))
	o.Set("score", arenaUint(arena, q.Score))
	o.Set("passed", arenaBool(arena, q.Passed))
	o.Set("submitted", arenaBool(arena, q.Submitted))
	o.Set("created_at", arenaTime(arena, q.CreatedAt))

	return o
}

// Question never carries the correct option: nodes may return it, but it is
// not decoded.
type Question struct {
	ID         uint64
	Text       string
	Options    []string
	Difficulty uint64
}

func (q *Question) UnmarshalValue(v *fastjson.Value) error {
	q.ID = v.GetUint64("id")
	if q.ID == 0 {
		return errors.New("question has no id")
	}

	q.Text = jsonString(v, "text")
	q.Options = jsonStrings(v, "options")
	q.Difficulty = v.GetUint64("difficulty")

	if len(q.Options) == 0 {
		return errors.Errorf("question %d has no options", q.ID)
	}

	return nil
}

func (q *Question) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()

	o.Set("id", arenaUint(arena, q.ID))
	o.Set("text", arena.NewString(q.Text))
	o.Set("options", arenaStrings(arena, q.Options))
	o.Set("difficulty", arenaUint(arena, q.Difficulty))

	return o
}

type Certificate struct {
	ID        uint64
	CourseID  uint64
	Recipient AccountID
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
}

func (c *Certificate) UnmarshalValue(v *fastjson.Value) error {
	var err error

	c.ID = v.GetUint64("id")
	if c.ID == 0 {
		return errors.New("certificate has no id")
	}

	if c.Recipient, err = jsonAccount(v, "recipient"); err != nil {
		return err
	}

	c.CourseID = v.GetUint64("course_id")
	c.IssuedAt = jsonTime(v, "issued_at")
	c.ExpiresAt = jsonTime(v, "expires_at")
	c.Revoked = v.GetBool("revoked")

	return nil
}

func (c *Certificate) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()

	o.Set("id", arenaUint(arena, c.ID))
	o.Set("course_id", arenaUint(arena, c.CourseID))
	o.Set("recipient", arenaAccount(arena, c.Recipient))
	o.Set("issued_at", arenaTime(arena, c.IssuedAt))
	o.Set("expires_at", arenaTime(arena, c.ExpiresAt))
	o.Set("revoked", arenaBool(arena, c.Revoked))

	return o
}

// Valid reports whether the certificate is unrevoked and unexpired at t.
func (c *Certificate) Valid(t time.Time) bool {
	if c.Revoked {
		return false
	}

	return c.ExpiresAt.IsZero() || t.Before(c.ExpiresAt)
}

type Achievement struct {
	ID          uint64
	Title       string
	Description string
	XPReward    uint64
	TokenReward uint64
	Trigger     string
	Threshold   uint64

	// Earned is per account and filled in by readers.
	Earned bool
}

func (a *Achievement) UnmarshalValue(v *fastjson.Value) error {
	a.ID = v.GetUint64("id")
	if a.ID == 0 {
		return errors.New("achievement has no id")
	}

	a.Title = jsonString(v, "title")
	a.Description = jsonString(v, "description")
	a.XPReward = v.GetUint64("xp_reward")
	a.TokenReward = v.GetUint64("token_reward")
	a.Trigger = jsonString(v, "trigger")
	a.Threshold = v.GetUint64("threshold")

	return nil
}

func (a *Achievement) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()

	o.Set("id", arenaUint(arena, a.ID))
	o.Set("title", arena.NewString(a.Title))
	o.Set("description", arena.NewString(a.Description))
	o.Set("xp_reward", arenaUint(arena, a.XPReward))
	o.Set("token_reward", arenaUint(arena, a.TokenReward))
	o.Set("trigger", arena.NewString(a.Trigger))
	o.Set("threshold", arenaUint(arena, a.Threshold))

	return o
}

type Review struct {
	ID         uint64
	Reviewer   AccountID
	Instructor AccountID
	CourseID   uint64
	Rating     uint64
	Comment    string
	CreatedAt  time.Time
	Verified   bool
}

func (r *Review) UnmarshalValue(v *fastjson.Value) error {
	var err error

	r.ID = v.GetUint64("id")
	if r.ID == 0 {
		return errors.New("review has no id")
	}

	if r.Reviewer, err = jsonAccount(v, "reviewer"); err != nil {
		return err
	}

	if r.Instructor, err = jsonAccount(v, "instructor"); err != nil {
		return err
	}

	r.CourseID = v.GetUint64("course_id")
	r.Rating = v.GetUint64("rating")
	r.Comment = jsonString(v, "comment")
	r.CreatedAt = jsonTime(v, "created_at")
	r.Verified = v.GetBool("verified")

	return nil
}

func (r *Review) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()

	o.Set("id", arenaUint(arena, r.ID))
	o.Set("reviewer", arenaAccount(arena, r.Reviewer))
	o.Set("instructor", arenaAccount(arena, r.Instructor))
	o.Set("course_id", arenaUint(arena, r.CourseID))
	o.Set("rating", arenaUint(arena, r.Rating))
	o.Set("comment", arena.NewString(r.Comment))
	o.Set("created_at", arenaTime(arena, r.CreatedAt))
	o.Set("verified", arenaBool(arena, r.Verified))

	return o
}
