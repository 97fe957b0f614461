package ledger

import (
	"github.com/perlin-network/academy/errs"
	"github.com/perlin-network/academy/sys"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"
)

const KeyEvent = "event"

// Event is a typed entry of a transaction's event log.
type Event interface {
	UnmarshalableValue
	MarshalableArena

	EventName() string
	MarshalEvent(ev *zerolog.Event)
}

// EventsValue maps every event name a marketplace transaction may emit to
// a constructor for its type.
var EventsValue = map[string]func() Event{
	sys.EventApproval:           func() Event { return &Approval{} },
	sys.EventCourseCreated:      func() Event { return &CourseCreated{} },
	sys.EventCourseUpdated:      func() Event { return &CourseUpdated{} },
	sys.EventCourseStatus:       func() Event { return &CourseStatusChanged{} },
	sys.EventModuleAdded:        func() Event { return &ModuleAdded{} },
	sys.EventLessonAdded:        func() Event { return &LessonAdded{} },
	sys.EventEnrolled:           func() Event { return &Enrolled{} },
	sys.EventRewardPoolFunded:   func() Event { return &RewardPoolFunded{} },
	sys.EventLessonCompleted:    func() Event { return &LessonCompleted{} },
	sys.EventProgressUpdated:    func() Event { return &ProgressUpdated{} },
	sys.EventQuizRequested:      func() Event { return &QuizRequested{} },
	sys.EventQuizSubmitted:      func() Event { return &QuizSubmitted{} },
	sys.EventCertificateIssued:  func() Event { return &CertificateIssued{} },
	sys.EventCertificateRevoked: func() Event { return &CertificateRevoked{} },
	sys.EventReviewSubmitted:    func() Event { return &ReviewSubmitted{} },
	sys.EventAchievementEarned:  func() Event { return &AchievementEarned{} },
}

// DecodeEvent decodes a single event log entry by its name.
func DecodeEvent(v *fastjson.Value) (Event, error) {
	name := jsonString(v, KeyEvent)

	fn, ok := EventsValue[name]
	if !ok {
		return nil, errors.Errorf("unsupported event: %q", name)
	}

	ev := fn()
	if err := ev.UnmarshalValue(v); err != nil {
		return nil, errors.Wrapf(err, "failed to decode event %q", name)
	}

	return ev, nil
}

// MarshalEventArena renders ev with its name attached.
func MarshalEventArena(arena *fastjson.Arena, ev Event) *fastjson.Value {
	o := ev.MarshalArena(arena)
	o.Set(KeyEvent, arena.NewString(ev.EventName()))

	return o
}

// Receipt is the terminal (or, from Lookup, current) state of a transaction.
type Receipt struct {
	TxID   string
	Sender AccountID
	Method string
	Status Status
	Reason string
	Height uint64
	Events []*fastjson.Value
}

// Expect decodes the first event named dst.EventName() into dst. A
// confirmed transaction that lacks it is a protocol violation.
func (r *Receipt) Expect(dst Event) error {
	name := dst.EventName()

	for _, v := range r.Events {
		if jsonString(v, KeyEvent) != name {
			continue
		}

		if err := dst.UnmarshalValue(v); err != nil {
			return errs.Wrap(errs.KindMissingExpectedEvent, "expect "+name, err)
		}

		return nil
	}

	return errs.Errorf(errs.KindMissingExpectedEvent, "expect "+name,
		"transaction %s emitted no %s event", r.TxID, name)
}

// ExpectAll decodes every event named like the ones newEvent returns, in
// log order. Events of other names are skipped.
func (r *Receipt) ExpectAll(newEvent func() Event) ([]Event, error) {
	name := newEvent().EventName()

	var out []Event

	for _, v := range r.Events {
		if jsonString(v, KeyEvent) != name {
			continue
		}

		ev := newEvent()
		if err := ev.UnmarshalValue(v); err != nil {
			return out, errs.Wrap(errs.KindMissingExpectedEvent, "expect "+name, err)
		}

		out = append(out, ev)
	}

	return out, nil
}

// Decode decodes every event in the log.
func (r *Receipt) Decode() ([]Event, error) {
	out := make([]Event, 0, len(r.Events))

	for _, v := range r.Events {
		ev, err := DecodeEvent(v)
		if err != nil {
			return out, err
		}

		out = append(out, ev)
	}

	return out, nil
}

func (r *Receipt) UnmarshalValue(v *fastjson.Value) error {
	var err error

	r.TxID = jsonString(v, "tx_id")
	if r.TxID == "" {
		return errors.New("receipt has no tx_id")
	}

	if v.Exists("sender") {
		if r.Sender, err = jsonAccount(v, "sender"); err != nil {
			return err
		}
	}

	if r.Status, err = ParseStatus(jsonString(v, "status")); err != nil {
		return err
	}

	r.Method = jsonString(v, "method")
	r.Reason = jsonString(v, "reason")
	r.Height = v.GetUint64("height")
	r.Events = v.GetArray("events")

	return nil
}

func (r *Receipt) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()

	o.Set("tx_id", arena.NewString(r.TxID))
	o.Set("sender", arenaAccount(arena, r.Sender))
	o.Set("method", arena.NewString(r.Method))
	o.Set("status", arena.NewString(r.Status.String()))
	o.Set("reason", arena.NewString(r.Reason))
	o.Set("height", arenaUint(arena, r.Height))

	events := arena.NewArray()
	for i, ev := range r.Events {
		events.SetArrayItem(i, ev)
	}

	o.Set("events", events)

	return o
}

func (r *Receipt) MarshalEvent(ev *zerolog.Event) {
	ev.Str("tx_id", r.TxID).
		Str("method", r.Method).
		Str("status", r.Status.String()).
		Str("reason", r.Reason).
		Int("num_events", len(r.Events)).
		Msg("Transaction receipt")
}

type Approval struct {
	Owner   AccountID
	Spender AccountID
	Amount  uint64
}

func (*Approval) EventName() string { return sys.EventApproval }

func (e *Approval) UnmarshalValue(v *fastjson.Value) (err error) {
	if e.Owner, err = jsonAccount(v, "owner"); err != nil {
		return err
	}

	if e.Spender, err = jsonAccount(v, "spender"); err != nil {
		return err
	}

	e.Amount = v.GetUint64("amount")

	return nil
}

func (e *Approval) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()
	o.Set("owner", arenaAccount(arena, e.Owner))
	o.Set("spender", arenaAccount(arena, e.Spender))
	o.Set("amount", arenaUint(arena, e.Amount))

	return o
}

func (e *Approval) MarshalEvent(ev *zerolog.Event) {
	ev.Str("owner", e.Owner.String()).
		Str("spender", e.Spender.String()).
		Uint64("amount", e.Amount).
		Msg("Allowance granted.")
}

type CourseCreated struct {
	CourseID uint64
	Owner    AccountID
}

func (*CourseCreated) EventName() string { return sys.EventCourseCreated }

func (e *CourseCreated) UnmarshalValue(v *fastjson.Value) (err error) {
	if e.CourseID = v.GetUint64("course_id"); e.CourseID == 0 {
		return errors.New("missing course_id")
	}

	e.Owner, err = jsonAccount(v, "owner")

	return err
}

func (e *CourseCreated) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()
	o.Set("course_id", arenaUint(arena, e.CourseID))
	o.Set("owner", arenaAccount(arena, e.Owner))

	return o
}

func (e *CourseCreated) MarshalEvent(ev *zerolog.Event) {
	ev.Uint64("course_id", e.CourseID).Str("owner", e.Owner.String()).Msg("Course created.")
}

type CourseUpdated struct {
	CourseID uint64
}

func (*CourseUpdated) EventName() string { return sys.EventCourseUpdated }

func (e *CourseUpdated) UnmarshalValue(v *fastjson.Value) error {
	if e.CourseID = v.GetUint64("course_id"); e.CourseID == 0 {
		return errors.New("missing course_id")
	}

	return nil
}

func (e *CourseUpdated) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()
	o.Set("course_id", arenaUint(arena, e.CourseID))

	return o
}

func (e *CourseUpdated) MarshalEvent(ev *zerolog.Event) {
	ev.Uint64("course_id", e.CourseID).Msg("Course updated.")
}

type CourseStatusChanged struct {
	CourseID uint64
	Paused   bool
}

func (*CourseStatusChanged) EventName() string { return sys.EventCourseStatus }

func (e *CourseStatusChanged) UnmarshalValue(v *fastjson.Value) error {
	if e.CourseID = v.GetUint64("course_id"); e.CourseID == 0 {
		return errors.New("missing course_id")
	}

	e.Paused = v.GetBool("paused")

	return nil
}

func (e *CourseStatusChanged) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()
	o.Set("course_id", arenaUint(arena, e.CourseID))
	o.Set("paused", arenaBool(arena, e.Paused))

	return o
}

func (e *CourseStatusChanged) MarshalEvent(ev *zerolog.Event) {
	ev.Uint64("course_id", e.CourseID).Bool("paused", e.Paused).Msg("Course status changed.")
}

type ModuleAdded struct {
	ModuleID uint64
	CourseID uint64
}

func (*ModuleAdded) EventName() string { return sys.EventModuleAdded }

func (e *ModuleAdded) UnmarshalValue(v *fastjson.Value) error {
	if e.ModuleID = v.GetUint64("module_id"); e.ModuleID == 0 {
		return errors.New("missing module_id")
	}

	e.CourseID = v.GetUint64("course_id")

	return nil
}

func (e *ModuleAdded) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()
	o.Set("module_id", arenaUint(arena, e.ModuleID))
	o.Set("course_id", arenaUint(arena, e.CourseID))

	return o
}

func (e *ModuleAdded) MarshalEvent(ev *zerolog.Event) {
	ev.Uint64("module_id", e.ModuleID).Uint64("course_id", e.CourseID).Msg("Module added.")
}

type LessonAdded struct {
	LessonID uint64
	ModuleID uint64
}

func (*LessonAdded) EventName() string { return sys.EventLessonAdded }

func (e *LessonAdded) UnmarshalValue(v *fastjson.Value) error {
	if e.LessonID = v.GetUint64("lesson_id"); e.LessonID == 0 {
		return errors.New("missing lesson_id")
	}

	e.ModuleID = v.GetUint64("module_id")

	return nil
}

func (e *LessonAdded) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()
	o.Set("lesson_id", arenaUint(arena, e.LessonID))
	o.Set("module_id", arenaUint(arena, e.ModuleID))

	return o
}

func (e *LessonAdded) MarshalEvent(ev *zerolog.Event) {
	ev.Uint64("lesson_id", e.LessonID).Uint64("module_id", e.ModuleID).Msg("Lesson added.")
}

type Enrolled struct {
	CourseID uint64
	Account  AccountID
	Price    uint64
}

func (*Enrolled) EventName() string { return sys.EventEnrolled }

func (e *Enrolled) UnmarshalValue(v *fastjson.Value) (err error) {
	if e.CourseID = v.GetUint64("course_id"); e.CourseID == 0 {
		return errors.New("missing course_id")
	}

	e.Price = v.GetUint64("price")
	e.Account, err = jsonAccount(v, "account")

	return err
}

func (e *Enrolled) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()
	o.Set("course_id", arenaUint(arena, e.CourseID))
	o.Set("account", arenaAccount(arena, e.Account))
	o.Set("price", arenaUint(arena, e.Price))

	return o
}

func (e *Enrolled) MarshalEvent(ev *zerolog.Event) {
	ev.Uint64("course_id", e.CourseID).
		Str("account", e.Account.String()).
		Uint64("price", e.Price).
		Msg("Enrolled.")
}

type RewardPoolFunded struct {
	Funder AccountID
	Amount uint64
	Pool   uint64
}

func (*RewardPoolFunded) EventName() string { return sys.EventRewardPoolFunded }

func (e *RewardPoolFunded) UnmarshalValue(v *fastjson.Value) (err error) {
	e.Amount = v.GetUint64("amount")
	e.Pool = v.GetUint64("pool")
	e.Funder, err = jsonAccount(v, "funder")

	return err
}

func (e *RewardPoolFunded) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()
	o.Set("funder", arenaAccount(arena, e.Funder))
	o.Set("amount", arenaUint(arena, e.Amount))
	o.Set("pool", arenaUint(arena, e.Pool))

	return o
}

func (e *RewardPoolFunded) MarshalEvent(ev *zerolog.Event) {
	ev.Str("funder", e.Funder.String()).
		Uint64("amount", e.Amount).
		Uint64("pool", e.Pool).
		Msg("Reward pool funded.")
}

type LessonCompleted struct {
	CourseID uint64
	LessonID uint64
	Account  AccountID
	Progress uint64
}

func (*LessonCompleted) EventName() string { return sys.EventLessonCompleted }

func (e *LessonCompleted) UnmarshalValue(v *fastjson.Value) (err error) {
	if e.LessonID = v.GetUint64("lesson_id"); e.LessonID == 0 {
		return errors.New("missing lesson_id")
	}

	e.CourseID = v.GetUint64("course_id")
	e.Progress = v.GetUint64("progress")
	e.Account, err = jsonAccount(v, "account")

	return err
}

func (e *LessonCompleted) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()
	o.Set("course_id", arenaUint(arena, e.CourseID))
	o.Set("lesson_id", arenaUint(arena, e.LessonID))
	o.Set("account", arenaAccount(arena, e.Account))
	o.Set("progress", arenaUint(arena, e.Progress))

	return o
}

func (e *LessonCompleted) MarshalEvent(ev *zerolog.Event) {
	ev.Uint64("course_id", e.CourseID).
		Uint64("lesson_id", e.LessonID).
		Uint64("progress", e.Progress).
		Msg("Lesson completed.")
}

type ProgressUpdated struct {
	CourseID uint64
	Account  AccountID
	Progress uint64
}

func (*ProgressUpdated) EventName() string { return sys.EventProgressUpdated }

func (e *ProgressUpdated) UnmarshalValue(v *fastjson.Value) (err error) {
	if e.CourseID = v.GetUint64("course_id"); e.CourseID == 0 {
		return errors.New("missing course_id")
	}

	e.Progress = v.GetUint64("progress")
	e.Account, err = jsonAccount(v, "account")

	return err
}

func (e *ProgressUpdated) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()
	o.Set("course_id", arenaUint(arena, e.CourseID))
	o.Set("account", arenaAccount(arena, e.Account))
	o.Set("progress", arenaUint(arena, e.Progress))

	return o
}

func (e *ProgressUpdated) MarshalEvent(ev *zerolog.Event) {
	ev.Uint64("course_id", e.CourseID).Uint64("progress", e.Progress).Msg("Progress updated.")
}

// QuizRequested is emitted by a generation transaction. The quiz itself
// appears on the read path some time later.
type QuizRequested struct {
	CourseID  uint64
	Account   AccountID
	RequestID uint64
}

func (*QuizRequested) EventName() string { return sys.EventQuizRequested }

func (e *QuizRequested) UnmarshalValue(v *fastjson.Value) (err error) {
	if e.CourseID = v.GetUint64("course_id"); e.CourseID == 0 {
		return errors.New("missing course_id")
	}

	e.RequestID = v.GetUint64("request_id")
	e.Account, err = jsonAccount(v, "account")

	return err
}

func (e *QuizRequested) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()
	o.Set("course_id", arenaUint(arena, e.CourseID))
	o.Set("account", arenaAccount(arena, e.Account))
	o.Set("request_id", arenaUint(arena, e.RequestID))

	return o
}

func (e *QuizRequested) MarshalEvent(ev *zerolog.Event) {
	ev.Uint64("course_id", e.CourseID).Uint64("request_id", e.RequestID).Msg("Quiz requested.")
}

type QuizSubmitted struct {
	QuizID   uint64
	CourseID uint64
	Account  AccountID
	Score    uint64
	Passed   bool
}

func (*QuizSubmitted) EventName() string { return sys.EventQuizSubmitted }

func (e *QuizSubmitted) UnmarshalValue(v *fastjson.Value) (err error) {
	if e.QuizID = v.GetUint64("quiz_id"); e.QuizID == 0 {
		return errors.New("missing quiz_id")
	}

	if !v.Exists("score") || !v.Exists("passed") {
		return errors.New("missing score or passed flag")
	}

	e.CourseID = v.GetUint64("course_id")
	e.Score = v.GetUint64("score")
	e.Passed = v.GetBool("passed")
	e.Account, err = jsonAccount(v, "account")

	return err
}

func (e *QuizSubmitted) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()
	o.Set("quiz_id", arenaUint(arena, e.QuizID))
	o.Set("course_id", arenaUint(arena, e.CourseID))
	o.Set("account", arenaAccount(arena, e.Account))
	o.Set("score", arenaUint(arena, e.Score))
	o.Set("passed", arenaBool(arena, e.Passed))

	return o
}

func (e *QuizSubmitted) MarshalEvent(ev *zerolog.Event) {
	ev.Uint64("quiz_id", e.QuizID).
		Uint64("course_id", e.CourseID).
		Uint64("score", e.Score).
		Bool("passed", e.Passed).
		Msg("Quiz submitted.")
}

type CertificateIssued struct {
	CertificateID uint64
	CourseID      uint64
	Recipient     AccountID
}

func (*CertificateIssued) EventName() string { return sys.EventCertificateIssued }

func (e *CertificateIssued) UnmarshalValue(v *fastjson.Value) (err error) {
	if e.CertificateID = v.GetUint64("certificate_id"); e.CertificateID == 0 {
		return errors.New("missing certificate_id")
	}

	e.CourseID = v.GetUint64("course_id")
	e.Recipient, err = jsonAccount(v, "recipient")

	return err
}

func (e *CertificateIssued) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()
	o.Set("certificate_id", arenaUint(arena, e.CertificateID))
	o.Set("course_id", arenaUint(arena, e.CourseID))
	o.Set("recipient", arenaAccount(arena, e.Recipient))

	return o
}

func (e *CertificateIssued) MarshalEvent(ev *zerolog.Event) {
	ev.Uint64("certificate_id", e.CertificateID).Uint64("course_id", e.CourseID).Msg("Certificate issued.")
}

type CertificateRevoked struct {
	CertificateID uint64
}

func (*CertificateRevoked) EventName() string { return sys.EventCertificateRevoked }

func (e *CertificateRevoked) UnmarshalValue(v *fastjson.Value) error {
	if e.CertificateID = v.GetUint64("certificate_id"); e.CertificateID == 0 {
		return errors.New("missing certificate_id")
	}

	return nil
}

func (e *CertificateRevoked) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()
	o.Set("certificate_id", arenaUint(arena, e.CertificateID))

	return o
}

func (e *CertificateRevoked) MarshalEvent(ev *zerolog.Event) {
	ev.Uint64("certificate_id", e.CertificateID).Msg("Certificate revoked.")
}

type ReviewSubmitted struct {
	ReviewID   uint64
	Instructor AccountID
	Rating     uint64
}

func (*ReviewSubmitted) EventName() string { return sys.EventReviewSubmitted }

func (e *ReviewSubmitted) UnmarshalValue(v *fastjson.Value) (err error) {
	if e.ReviewID = v.GetUint64("review_id"); e.ReviewID == 0 {
		return errors.New("missing review_id")
	}

	e.Rating = v.GetUint64("rating")
	e.Instructor, err = jsonAccount(v, "instructor")

	return err
}

func (e *ReviewSubmitted) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()
	o.Set("review_id", arenaUint(arena, e.ReviewID))
	o.Set("instructor", arenaAccount(arena, e.Instructor))
	o.Set("rating", arenaUint(arena, e.Rating))

	return o
}

func (e *ReviewSubmitted) MarshalEvent(ev *zerolog.Event) {
	ev.Uint64("review_id", e.ReviewID).Uint64("rating", e.Rating).Msg("Review submitted.")
}

type AchievementEarned struct {
	AchievementID uint64
	Account       AccountID
}

func (*AchievementEarned) EventName() string { return sys.EventAchievementEarned }

func (e *AchievementEarned) UnmarshalValue(v *fastjson.Value) (err error) {
	if e.AchievementID = v.GetUint64("achievement_id"); e.AchievementID == 0 {
		return errors.New("missing achievement_id")
	}

	e.Account, err = jsonAccount(v, "account")

	return err
}

func (e *AchievementEarned) MarshalArena(arena *fastjson.Arena) *fastjson.Value {
	o := arena.NewObject()
	o.Set("achievement_id", arenaUint(arena, e.AchievementID))
	o.Set("account", arenaAccount(arena, e.Account))

	return o
}

func (e *AchievementEarned) MarshalEvent(ev *zerolog.Event) {
	ev.Uint64("achievement_id", e.AchievementID).Msg("Achievement earned.")
}
