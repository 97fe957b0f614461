package ledger

import (
	"sort"
	"strconv"
	"time"

	"github.com/perlin-network/academy/sys"
	"github.com/pkg/errors"
)

// Achievement triggers understood by the simulated marketplace.
const (
	TriggerCoursesCompleted = "courses_completed"
	TriggerLessonsCompleted = "lessons_completed"
	TriggerCertificates     = "certificates"
)

// Weight of lessons in an enrollment's progress. Passing the course quiz
// makes up the rest.
const lessonProgressWeight = 80

type simHandler func(s *Sim, sender AccountID, r *argReader, now time.Time) ([]Event, error)

var marketTxs = map[string]simHandler{
	sys.MethodCreateCourse:      (*Sim).createCourse,
	sys.MethodUpdateCourse:      (*Sim).updateCourse,
	sys.MethodSetCoursePaused:   (*Sim).setCoursePaused,
	sys.MethodAddModule:         (*Sim).addModule,
	sys.MethodAddLesson:         (*Sim).addLesson,
	sys.MethodEnroll:            (*Sim).enroll,
	sys.MethodBatchEnroll:       (*Sim).batchEnroll,
	sys.MethodFundRewardPool:    (*Sim).fundRewardPool,
	sys.MethodCompleteLesson:    (*Sim).completeLesson,
	sys.MethodUpdateProgress:    (*Sim).updateProgress,
	sys.MethodGenerateQuiz:      (*Sim).generateQuiz,
	sys.MethodSubmitQuiz:        (*Sim).submitQuiz,
	sys.MethodClaimCertificate:  (*Sim).claimCertificate,
	sys.MethodRevokeCertificate: (*Sim).revokeCertificate,
	sys.MethodSubmitReview:      (*Sim).submitReview,
	sys.MethodClaimAchievement:  (*Sim).claimAchievement,
}

var tokenTxs = map[string]simHandler{
	sys.MethodApprove: (*Sim).approve,
}

// argReader decodes arguments positionally and keeps the first error.
type argReader struct {
	args Args
	err  error
}

func (r *argReader) keep(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

func (r *argReader) Uint(i int) uint64 {
	n, err := r.args.Uint(i)
	r.keep(err)
	return n
}

func (r *argReader) String(i int) string {
	s, err := r.args.String(i)
	r.keep(err)
	return s
}

func (r *argReader) Bool(i int) bool {
	b, err := r.args.Bool(i)
	r.keep(err)
	return b
}

func (r *argReader) Account(i int) AccountID {
	a, err := r.args.Account(i)
	r.keep(err)
	return a
}

func (r *argReader) Uints(i int) []uint64 {
	ids, err := r.args.Uints(i)
	r.keep(err)
	return ids
}

func (r *argReader) Strings(i int) []string {
	ss, err := r.args.Strings(i)
	r.keep(err)
	return ss
}

func (s *Sim) apply(st *simTx) ([]Event, error) {
	var handlers map[string]simHandler

	switch st.tx.Call.Contract {
	case s.market:
		handlers = marketTxs
	case s.token:
		handlers = tokenTxs
	default:
		return nil, rejectf("unknown contract %s", st.tx.Call.Contract)
	}

	fn, ok := handlers[st.tx.Call.Method]
	if !ok {
		return nil, errors.Wrap(ErrUnknownCall, st.tx.Call.Method)
	}

	return fn(s, st.tx.Sender, &argReader{args: st.args}, time.Now())
}

// checkAllowance rejects a spend whose amount is not covered by an already
// confirmed allowance to the marketplace.
func (s *Sim) checkAllowance(st *simTx) error {
	if st.tx.Call.Contract != s.market {
		return nil
	}

	r := &argReader{args: st.args}

	var required uint64

	switch st.tx.Call.Method {
	case sys.MethodEnroll:
		if c, ok := s.courses[r.Uint(0)]; ok {
			required = c.Price
		}
	case sys.MethodBatchEnroll:
		for _, id := range r.Uints(0) {
			if c, ok := s.courses[id]; ok {
				required += c.Price
			}
		}
	case sys.MethodFundRewardPool:
		required = r.Uint(0)
	default:
		return nil
	}

	if r.err != nil || required == 0 {
		return nil
	}

	if approved := s.allowances[st.tx.Sender][s.market]; approved < required {
		return rejectf("insufficient allowance: %d approved, %d required", approved, required)
	}

	return nil
}

// spend moves amount from sender to the marketplace on behalf of to. A zero
// to credits the reward pool.
func (s *Sim) spend(sender, to AccountID, amount uint64) error {
	if amount == 0 {
		return nil
	}

	if approved := s.allowances[sender][s.market]; approved < amount {
		return rejectf("insufficient allowance: %d approved, %d required", approved, amount)
	}

	if balance := s.balances[sender]; balance < amount {
		return rejectf("insufficient balance: %d held, %d required", balance, amount)
	}

	s.allowances[sender][s.market] -= amount
	s.balances[sender] -= amount

	if to.IsZero() {
		s.pool += amount
	} else {
		s.balances[to] += amount
	}

	return nil
}

func (s *Sim) course(id uint64) (*Course, error) {
	c, ok := s.courses[id]
	if !ok {
		return nil, rejectf("course %d does not exist", id)
	}

	return c, nil
}

func (s *Sim) ownedCourse(sender AccountID, id uint64) (*Course, error) {
	c, err := s.course(id)
	if err != nil {
		return nil, err
	}

	if c.Owner != sender {
		return nil, rejectf("course %d is not owned by %s", id, sender.Short())
	}

	return c, nil
}

func (s *Sim) enrollment(account AccountID, course uint64) (*simEnrollment, error) {
	e, ok := s.enrollments[account][course]
	if !ok {
		return nil, rejectf("%s is not enrolled in course %d", account.Short(), course)
	}

	return e, nil
}

func (s *Sim) courseLessons(c *Course) []uint64 {
	var ids []uint64

	for _, mid := range c.ModuleIDs {
		m, ok := s.modules[mid]
		if !ok || !m.Active {
			continue
		}

		for _, lid := range m.LessonIDs {
			if l, ok := s.lessons[lid]; ok && l.Active {
				ids = append(ids, lid)
			}
		}
	}

	return ids
}

func (s *Sim) completedCourses(account AccountID) []uint64 {
	var ids []uint64

	for _, id := range s.enrollOrder[account] {
		if s.enrollments[account][id].Completed {
			ids = append(ids, id)
		}
	}

	return ids
}

func (s *Sim) approve(sender AccountID, r *argReader, _ time.Time) ([]Event, error) {
	spender, amount := r.Account(0), r.Uint(1)
	if r.err != nil {
		return nil, r.err
	}

	if s.allowances[sender] == nil {
		s.allowances[sender] = make(map[AccountID]uint64)
	}

	s.allowances[sender][spender] = amount

	return []Event{&Approval{Owner: sender, Spender: spender, Amount: amount}}, nil
}

func (s *Sim) createCourse(sender AccountID, r *argReader, now time.Time) ([]Event, error) {
	c := &Course{
		Owner:         sender,
		Title:         r.String(0),
		Description:   r.String(1),
		Price:         r.Uint(2),
		Duration:      r.Uint(3),
		XPReward:      r.Uint(4),
		TokenReward:   r.Uint(5),
		Prerequisites: r.Uints(6),
		Tags:          r.Strings(7),
		Active:        true,
		CreatedAt:     now,
	}

	if r.err != nil {
		return nil, r.err
	}

	if c.Title == "" {
		return nil, rejectf("course title must not be empty")
	}

	for _, id := range c.Prerequisites {
		if _, err := s.course(id); err != nil {
			return nil, err
		}
	}

	s.seq.course++
	c.ID = s.seq.course
	s.courses[c.ID] = c
	s.courseOrder = append(s.courseOrder, c.ID)

	return []Event{&CourseCreated{CourseID: c.ID, Owner: sender}}, nil
}

func (s *Sim) updateCourse(sender AccountID, r *argReader, _ time.Time) ([]Event, error) {
	id, title, description, price := r.Uint(0), r.String(1), r.String(2), r.Uint(3)
	if r.err != nil {
		return nil, r.err
	}

	c, err := s.ownedCourse(sender, id)
	if err != nil {
		return nil, err
	}

	if title == "" {
		return nil, rejectf("course title must not be empty")
	}

	c.Title, c.Description, c.Price = title, description, price

	return []Event{&CourseUpdated{CourseID: id}}, nil
}

func (s *Sim) setCoursePaused(sender AccountID, r *argReader, _ time.Time) ([]Event, error) {
	id, paused := r.Uint(0), r.Bool(1)
	if r.err != nil {
		return nil, r.err
	}

	c, err := s.ownedCourse(sender, id)
	if err != nil {
		return nil, err
	}

	c.Paused = paused

	return []Event{&CourseStatusChanged{CourseID: id, Paused: paused}}, nil
}

func (s *Sim) addModule(sender AccountID, r *argReader, _ time.Time) ([]Event, error) {
	m := &Module{
		CourseID:    r.Uint(0),
		Title:       r.String(1),
		Description: r.String(2),
		Order:       r.Uint(3),
		Active:      true,
	}

	if r.err != nil {
		return nil, r.err
	}

	c, err := s.ownedCourse(sender, m.CourseID)
	if err != nil {
		return nil, err
	}

	if !c.Active {
		return nil, rejectf("course %d is inactive", c.ID)
	}

	s.seq.module++
	m.ID = s.seq.module
	s.modules[m.ID] = m
	c.ModuleIDs = append(c.ModuleIDs, m.ID)

	return []Event{&ModuleAdded{ModuleID: m.ID, CourseID: c.ID}}, nil
}

func (s *Sim) addLesson(sender AccountID, r *argReader, _ time.Time) ([]Event, error) {
	l := &Lesson{
		ModuleID:    r.Uint(0),
		Title:       r.String(1),
		Description: r.String(2),
		ContentType: r.String(3),
		ContentURI:  r.String(4),
		Duration:    r.Uint(5),
		Order:       r.Uint(6),
		Active:      true,
	}

	if r.err != nil {
		return nil, r.err
	}

	m, ok := s.modules[l.ModuleID]
	if !ok || !m.Active {
		return nil, rejectf("module %d does not exist", l.ModuleID)
	}

	if _, err := s.ownedCourse(sender, m.CourseID); err != nil {
		return nil, err
	}

	if _, ok := sys.ContentTypes[l.ContentType]; !ok {
		return nil, rejectf("unknown content type %q", l.ContentType)
	}

	s.seq.lesson++
	l.ID = s.seq.lesson
	s.lessons[l.ID] = l
	m.LessonIDs = append(m.LessonIDs, l.ID)

	return []Event{&LessonAdded{LessonID: l.ID, ModuleID: m.ID}}, nil
}

func (s *Sim) checkEnrollable(sender AccountID, id uint64) (*Course, error) {
	c, err := s.course(id)
	if err != nil {
		return nil, err
	}

	if !c.Open() {
		return nil, rejectf("course %d is not open for enrollment", id)
	}

	if _, ok := s.enrollments[sender][id]; ok {
		return nil, rejectf("%s is already enrolled in course %d", sender.Short(), id)
	}

	for _, pre := range c.Prerequisites {
		if e, ok := s.enrollments[sender][pre]; !ok || !e.Completed {
			return nil, rejectf("prerequisite course %d is not completed", pre)
		}
	}

	return c, nil
}

func (s *Sim) enrollIn(sender AccountID, c *Course, now time.Time) *Enrolled {
	if s.enrollments[sender] == nil {
		s.enrollments[sender] = make(map[uint64]*simEnrollment)
	}

	s.enrollments[sender][c.ID] = &simEnrollment{Enrollment: Enrollment{
		Account:    sender,
		CourseID:   c.ID,
		EnrolledAt: now,
		PricePaid:  c.Price,
	}}
	s.enrollOrder[sender] = append(s.enrollOrder[sender], c.ID)
	c.Enrollments++

	return &Enrolled{CourseID: c.ID, Account: sender, Price: c.Price}
}

func (s *Sim) enroll(sender AccountID, r *argReader, now time.Time) ([]Event, error) {
	id := r.Uint(0)
	if r.err != nil {
		return nil, r.err
	}

	c, err := s.checkEnrollable(sender, id)
	if err != nil {
		return nil, err
	}

	if err := s.spend(sender, c.Owner, c.Price); err != nil {
		return nil, err
	}

	return []Event{s.enrollIn(sender, c, now)}, nil
}

func (s *Sim) batchEnroll(sender AccountID, r *argReader, now time.Time) ([]Event, error) {
	ids := r.Uints(0)
	if r.err != nil {
		return nil, r.err
	}

	if len(ids) == 0 {
		return nil, rejectf("no courses to enroll in")
	}

	seen := make(map[uint64]struct{}, len(ids))
	courses := make([]*Course, 0, len(ids))

	var total uint64

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, rejectf("course %d listed twice", id)
		}

		seen[id] = struct{}{}

		c, err := s.checkEnrollable(sender, id)
		if err != nil {
			return nil, err
		}

		courses = append(courses, c)
		total += c.Price
	}

	if approved := s.allowances[sender][s.market]; approved < total {
		return nil, rejectf("insufficient allowance: %d approved, %d required", approved, total)
	}

	if balance := s.balances[sender]; balance < total {
		return nil, rejectf("insufficient balance: %d held, %d required", balance, total)
	}

	events := make([]Event, 0, len(courses))

	for _, c := range courses {
		if err := s.spend(sender, c.Owner, c.Price); err != nil {
			return nil, err
		}

		events = append(events, s.enrollIn(sender, c, now))
	}

	return events, nil
}

func (s *Sim) fundRewardPool(sender AccountID, r *argReader, _ time.Time) ([]Event, error) {
	amount := r.Uint(0)
	if r.err != nil {
		return nil, r.err
	}

	if amount == 0 {
		return nil, rejectf("funding amount must be positive")
	}

	if err := s.spend(sender, ZeroAccountID, amount); err != nil {
		return nil, err
	}

	return []Event{&RewardPoolFunded{Funder: sender, Amount: amount, Pool: s.pool}}, nil
}

func (s *Sim) completeLesson(sender AccountID, r *argReader, _ time.Time) ([]Event, error) {
	courseID, lessonID := r.Uint(0), r.Uint(1)
	if r.err != nil {
		return nil, r.err
	}

	c, err := s.course(courseID)
	if err != nil {
		return nil, err
	}

	e, err := s.enrollment(sender, courseID)
	if err != nil {
		return nil, err
	}

	lessons := s.courseLessons(c)

	if !containsID(lessons, lessonID) {
		return nil, rejectf("lesson %d is not part of course %d", lessonID, courseID)
	}

	if containsID(e.lessons, lessonID) {
		return nil, rejectf("lesson %d already completed", lessonID)
	}

	e.lessons = append(e.lessons, lessonID)

	if p := uint64(len(e.lessons)) * lessonProgressWeight / uint64(len(lessons)); p > e.Progress {
		e.Progress = p
	}

	return []Event{&LessonCompleted{
		CourseID: courseID,
		LessonID: lessonID,
		Account:  sender,
		Progress: e.Progress,
	}}, nil
}

func (s *Sim) updateProgress(sender AccountID, r *argReader, _ time.Time) ([]Event, error) {
	courseID, progress := r.Uint(0), r.Uint(1)
	if r.err != nil {
		return nil, r.err
	}

	e, err := s.enrollment(sender, courseID)
	if err != nil {
		return nil, err
	}

	if progress > sys.MaxProgress {
		return nil, rejectf("progress %d is out of range", progress)
	}

	if progress < e.Progress {
		return nil, rejectf("progress may not decrease from %d to %d", e.Progress, progress)
	}

	e.Progress = progress

	return []Event{&ProgressUpdated{CourseID: courseID, Account: sender, Progress: progress}}, nil
}

func (s *Sim) generateQuiz(sender AccountID, r *argReader, now time.Time) ([]Event, error) {
	courseID := r.Uint(0)
	if r.err != nil {
		return nil, r.err
	}

	c, err := s.course(courseID)
	if err != nil {
		return nil, err
	}

	e, err := s.enrollment(sender, courseID)
	if err != nil {
		return nil, err
	}

	if e.Completed {
		return nil, rejectf("course %d is already completed", courseID)
	}

	if lessons := s.courseLessons(c); len(lessons) == 0 || len(e.lessons) < len(lessons) {
		return nil, rejectf("%d of %d lessons completed", len(e.lessons), len(lessons))
	}

	for _, req := range s.requests {
		if req.account == sender && req.course == courseID {
			return nil, rejectf("a quiz for course %d is already being generated", courseID)
		}
	}

	if id := s.current[sender][courseID]; id != 0 && !s.quizzes[id].Submitted {
		return nil, rejectf("quiz %d for course %d is still open", id, courseID)
	}

	s.seq.request++
	s.requests = append(s.requests, &quizRequest{
		id:      s.seq.request,
		account: sender,
		course:  courseID,
		readyAt: now.Add(s.quizDelay),
	})

	return []Event{&QuizRequested{CourseID: courseID, Account: sender, RequestID: s.seq.request}}, nil
}

// fulfil turns due quiz requests into quizzes, each superseding the
// previous current quiz of its account and course.
func (s *Sim) fulfil(now time.Time) {
	remaining := s.requests[:0]

	for _, req := range s.requests {
		if req.readyAt.After(now) {
			remaining = append(remaining, req)
			continue
		}

		c := s.courses[req.course]

		n := s.questions
		if n <= 0 {
			n = len(s.courseLessons(c))
		}

		s.seq.quiz++
		q := &simQuiz{Quiz: Quiz{
			ID:        s.seq.quiz,
			CourseID:  req.course,
			Account:   req.account,
			CreatedAt: now,
		}}

		for i := 0; i < n; i++ {
			s.seq.question++

			item := &simQuestion{
				Question: Question{
					ID:         s.seq.question,
					Text:       c.Title + ": question " + strconv.Itoa(i+1),
					Options:    []string{"A", "B", "C", "D"},
					Difficulty: uint64(1 + i%3),
				},
				answer: uint64((int(s.seq.question) + i) % 4),
			}

			s.quizItems[item.ID] = item
			q.QuestionIDs = append(q.QuestionIDs, item.ID)
			q.key = append(q.key, item.answer)
		}

		s.quizzes[q.ID] = q

		if s.current[req.account] == nil {
			s.current[req.account] = make(map[uint64]uint64)
		}

		s.current[req.account][req.course] = q.ID
	}

	s.requests = remaining
}

func (s *Sim) submitQuiz(sender AccountID, r *argReader, _ time.Time) ([]Event, error) {
	quizID, answers := r.Uint(0), r.Uints(1)
	if r.err != nil {
		return nil, r.err
	}

	q, ok := s.quizzes[quizID]
	if !ok {
		return nil, rejectf("quiz %d does not exist", quizID)
	}

	if q.Account != sender {
		return nil, rejectf("quiz %d belongs to another account", quizID)
	}

	if q.Submitted {
		return nil, rejectf("quiz %d was already submitted", quizID)
	}

	if s.current[sender][q.CourseID] != quizID {
		return nil, rejectf("quiz %d was superseded", quizID)
	}

	if len(answers) != len(q.key) {
		return nil, rejectf("expected %d answers, got %d", len(q.key), len(answers))
	}

	var correct uint64

	for i, answer := range answers {
		if answer >= uint64(len(s.quizItems[q.QuestionIDs[i]].Options)) {
			return nil, rejectf("answer %d is out of range", i)
		}

		if answer == q.key[i] {
			correct++
		}
	}

	q.Submitted = true
	q.Score = correct * 100 / uint64(len(q.key))
	q.Passed = q.Score >= sys.PassingScore

	if q.Passed {
		e := s.enrollments[sender][q.CourseID]
		e.Completed = true
		e.Progress = sys.MaxProgress
		s.courses[q.CourseID].Completions++
	}

	return []Event{&QuizSubmitted{
		QuizID:   quizID,
		CourseID: q.CourseID,
		Account:  sender,
		Score:    q.Score,
		Passed:   q.Passed,
	}}, nil
}

func (s *Sim) claimCertificate(sender AccountID, r *argReader, now time.Time) ([]Event, error) {
	courseID := r.Uint(0)
	if r.err != nil {
		return nil, r.err
	}

	e, err := s.enrollment(sender, courseID)
	if err != nil {
		return nil, err
	}

	if !e.Completed {
		return nil, rejectf("course %d is not completed", courseID)
	}

	for _, cert := range s.certificates {
		if cert.Recipient == sender && cert.CourseID == courseID && !cert.Revoked {
			return nil, rejectf("certificate %d already issued for course %d", cert.ID, courseID)
		}
	}

	s.seq.certificate++
	cert := &Certificate{ID: s.seq.certificate, CourseID: courseID, Recipient: sender, IssuedAt: now}
	s.certificates[cert.ID] = cert

	return []Event{&CertificateIssued{CertificateID: cert.ID, CourseID: courseID, Recipient: sender}}, nil
}

func (s *Sim) revokeCertificate(sender AccountID, r *argReader, _ time.Time) ([]Event, error) {
	id := r.Uint(0)
	if r.err != nil {
		return nil, r.err
	}

	cert, ok := s.certificates[id]
	if !ok {
		return nil, rejectf("certificate %d does not exist", id)
	}

	if _, err := s.ownedCourse(sender, cert.CourseID); err != nil {
		return nil, err
	}

	if cert.Revoked {
		return nil, rejectf("certificate %d is already revoked", id)
	}

	cert.Revoked = true

	return []Event{&CertificateRevoked{CertificateID: id}}, nil
}

func (s *Sim) submitReview(sender AccountID, r *argReader, now time.Time) ([]Event, error) {
	rv := &Review{
		Reviewer:   sender,
		Instructor: r.Account(0),
		CourseID:   r.Uint(1),
		Rating:     r.Uint(2),
		Comment:    r.String(3),
		CreatedAt:  now,
	}

	if r.err != nil {
		return nil, r.err
	}

	if rv.Rating < sys.MinRating || rv.Rating > sys.MaxRating {
		return nil, rejectf("rating %d is out of range", rv.Rating)
	}

	c, err := s.course(rv.CourseID)
	if err != nil {
		return nil, err
	}

	if c.Owner != rv.Instructor {
		return nil, rejectf("course %d is not taught by %s", c.ID, rv.Instructor.Short())
	}

	if sender == rv.Instructor {
		return nil, rejectf("instructors may not review themselves")
	}

	for _, existing := range s.reviews {
		if existing.Reviewer == sender && existing.CourseID == rv.CourseID {
			return nil, rejectf("course %d was already reviewed", rv.CourseID)
		}
	}

	if e, ok := s.enrollments[sender][rv.CourseID]; ok && e.Completed {
		rv.Verified = true
	}

	s.seq.review++
	rv.ID = s.seq.review
	s.reviews[rv.ID] = rv

	return []Event{&ReviewSubmitted{ReviewID: rv.ID, Instructor: rv.Instructor, Rating: rv.Rating}}, nil
}

func (s *Sim) claimAchievement(sender AccountID, r *argReader, _ time.Time) ([]Event, error) {
	id := r.Uint(0)
	if r.err != nil {
		return nil, r.err
	}

	a, ok := s.achievements[id]
	if !ok {
		return nil, rejectf("achievement %d does not exist", id)
	}

	if s.earned[sender][id] {
		return nil, rejectf("achievement %d already earned", id)
	}

	var count uint64

	switch a.Trigger {
	case TriggerCoursesCompleted:
		count = uint64(len(s.completedCourses(sender)))
	case TriggerLessonsCompleted:
		for _, e := range s.enrollments[sender] {
			count += uint64(len(e.lessons))
		}
	case TriggerCertificates:
		for _, cert := range s.certificates {
			if cert.Recipient == sender && !cert.Revoked {
				count++
			}
		}
	default:
		return nil, rejectf("unknown achievement trigger %q", a.Trigger)
	}

	if count < a.Threshold {
		return nil, rejectf("achievement %d requires %d %s, have %d", id, a.Threshold, a.Trigger, count)
	}

	if s.earned[sender] == nil {
		s.earned[sender] = make(map[uint64]bool)
	}

	s.earned[sender][id] = true
	s.balances[sender] += a.TokenReward

	return []Event{&AchievementEarned{AchievementID: id, Account: sender}}, nil
}

func containsID(ids []uint64, id uint64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}

	return false
}

func sortedIDs(m map[uint64]bool) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}
