package ledger

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
	"golang.org/x/crypto/blake2b"
)

// Kinds of calls recorded by a Sim.
const (
	CallChainID = "chain_id"
	CallQuery   = "query"
	CallSubmit  = "submit"
	CallConfirm = "confirm"
)

// SimCall is one entry of a Sim's call log.
type SimCall struct {
	Kind   string
	Method string
	Sender AccountID
	TxID   string
	Status Status
}

type simTx struct {
	receipt Receipt
	tx      SignedTx
	args    Args
	due     time.Time
	arena   *fastjson.Arena
}

type simEnrollment struct {
	Enrollment
	lessons []uint64
}

type simQuiz struct {
	Quiz
	key []uint64
}

type simQuestion struct {
	Question
	answer uint64
}

type quizRequest struct {
	id      uint64
	account AccountID
	course  uint64
	readyAt time.Time
}

type simIDs struct {
	course, module, lesson, quiz, question, certificate, review, achievement, request uint64
}

// Sim is an in-memory marketplace and reward token ledger. Transactions are
// applied in submission order once their confirmation delay passes. A spend
// submitted before the allowance covering it is confirmed is rejected, and
// so is any transaction whose nonce is not the sender's next one.
type Sim struct {
	mu sync.Mutex

	chainID      uint64
	market       AccountID
	token        AccountID
	confirmDelay time.Duration
	quizDelay    time.Duration
	questions    int

	height   uint64
	pending  []*simTx
	txs      map[string]*simTx
	nonces   map[AccountID]uint64
	seq      simIDs
	requests []*quizRequest

	balances   map[AccountID]uint64
	allowances map[AccountID]map[AccountID]uint64
	pool       uint64

	courseOrder  []uint64
	courses      map[uint64]*Course
	modules      map[uint64]*Module
	lessons      map[uint64]*Lesson
	enrollments  map[AccountID]map[uint64]*simEnrollment
	enrollOrder  map[AccountID][]uint64
	quizzes      map[uint64]*simQuiz
	quizItems    map[uint64]*simQuestion
	current      map[AccountID]map[uint64]uint64
	certificates map[uint64]*Certificate
	achievements map[uint64]*Achievement
	earned       map[AccountID]map[uint64]bool
	reviews      map[uint64]*Review

	failures map[string]map[uint64]error
	calls    []SimCall

	listeners    map[uint64]func(*Receipt)
	nextListener uint64
}

var _ Backend = (*Sim)(nil)

type SimOption func(*Sim)

func WithSimChainID(id uint64) SimOption {
	return func(s *Sim) {
		s.chainID = id
	}
}

// WithConfirmDelay sets how long a transaction stays pending.
func WithConfirmDelay(d time.Duration) SimOption {
	return func(s *Sim) {
		s.confirmDelay = d
	}
}

// WithQuizDelay sets how long a requested quiz takes to appear.
func WithQuizDelay(d time.Duration) SimOption {
	return func(s *Sim) {
		s.quizDelay = d
	}
}

// WithQuestionsPerQuiz fixes the number of questions in generated quizzes.
// By default a quiz has one question per lesson of its course.
func WithQuestionsPerQuiz(n int) SimOption {
	return func(s *Sim) {
		s.questions = n
	}
}

func WithContracts(market, token AccountID) SimOption {
	return func(s *Sim) {
		s.market = market
		s.token = token
	}
}

func NewSim(opts ...SimOption) *Sim {
	s := &Sim{
		chainID: 1337,

		txs:    make(map[string]*simTx),
		nonces: make(map[AccountID]uint64),

		balances:   make(map[AccountID]uint64),
		allowances: make(map[AccountID]map[AccountID]uint64),

		courses:      make(map[uint64]*Course),
		modules:      make(map[uint64]*Module),
		lessons:      make(map[uint64]*Lesson),
		enrollments:  make(map[AccountID]map[uint64]*simEnrollment),
		enrollOrder:  make(map[AccountID][]uint64),
		quizzes:      make(map[uint64]*simQuiz),
		quizItems:    make(map[uint64]*simQuestion),
		current:      make(map[AccountID]map[uint64]uint64),
		certificates: make(map[uint64]*Certificate),
		achievements: make(map[uint64]*Achievement),
		earned:       make(map[AccountID]map[uint64]bool),
		reviews:      make(map[uint64]*Review),

		failures:  make(map[string]map[uint64]error),
		listeners: make(map[uint64]func(*Receipt)),
	}

	s.market[0], s.market[31] = 0xaa, 0x01
	s.token[0], s.token[31] = 0xbb, 0x02

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Sim) Market() AccountID { return s.market }
func (s *Sim) Token() AccountID  { return s.token }

// SetChainID switches the network the Sim claims to serve.
func (s *Sim) SetChainID(id uint64) {
	s.mu.Lock()
	s.chainID = id
	s.mu.Unlock()
}

// Mint credits amount reward tokens to account.
func (s *Sim) Mint(account AccountID, amount uint64) {
	s.mu.Lock()
	s.balances[account] += amount
	s.mu.Unlock()
}

// AddAchievement registers an achievement and returns its ID.
func (s *Sim) AddAchievement(a Achievement) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq.achievement++
	a.ID = s.seq.achievement
	a.Earned = false
	s.achievements[a.ID] = &a

	return a.ID
}

// FailQuery makes queries of method fail when any of their integer arguments
// equals id. An id of 0 fails every query of method.
func (s *Sim) FailQuery(method string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failures[method] == nil {
		s.failures[method] = make(map[uint64]error)
	}

	s.failures[method][id] = errors.Errorf("%s(%d): injected failure", method, id)
}

func (s *Sim) ClearFailures() {
	s.mu.Lock()
	s.failures = make(map[string]map[uint64]error)
	s.mu.Unlock()
}

// Calls returns a copy of the call log.
func (s *Sim) Calls() []SimCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]SimCall(nil), s.calls...)
}

// Submits returns the methods of every submitted transaction, in order.
func (s *Sim) Submits() []string {
	var methods []string

	for _, c := range s.Calls() {
		if c.Kind == CallSubmit {
			methods = append(methods, c.Method)
		}
	}

	return methods
}

// AnswerKey returns the correct option of each question of a quiz.
func (s *Sim) AnswerKey(quizID uint64) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quizzes[quizID]
	if !ok {
		return nil
	}

	return append([]uint64(nil), q.key...)
}

func (s *Sim) record(c SimCall) {
	s.calls = append(s.calls, c)
}

func (s *Sim) ChainID(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.record(SimCall{Kind: CallChainID})

	return s.chainID, nil
}

func (s *Sim) Height() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.height
}

func (s *Sim) Nonce(ctx context.Context, account AccountID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.nonces[account], nil
}

func (s *Sim) OnReceipt(fn func(*Receipt)) func() {
	s.mu.Lock()
	s.nextListener++
	id := s.nextListener
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Submit signs and submits call as id using the sender's next nonce.
func (s *Sim) Submit(ctx context.Context, call Call, id Identity) (TxHandle, error) {
	if err := ctx.Err(); err != nil {
		return TxHandle{}, err
	}

	sender := id.Address()

	s.mu.Lock()
	nonce := s.nonces[sender] + 1
	chainID := s.chainID
	s.mu.Unlock()

	payload, err := SigningPayload(call, nonce, chainID)
	if err != nil {
		return TxHandle{}, err
	}

	return s.SubmitSigned(ctx, SignedTx{
		Sender:    sender,
		Call:      call,
		Nonce:     nonce,
		ChainID:   chainID,
		Signature: id.Sign(payload),
	})
}

// SubmitSigned queues tx. Signatures are not verified.
func (s *Sim) SubmitSigned(ctx context.Context, tx SignedTx) (TxHandle, error) {
	if err := ctx.Err(); err != nil {
		return TxHandle{}, err
	}

	args, err := NormalizeArgs(tx.Call.Args)
	if err != nil {
		return TxHandle{}, rejectf("malformed arguments: %v", err)
	}

	s.mu.Lock()

	now := time.Now()
	done := s.sealDue(now)

	if tx.ChainID != s.chainID {
		s.mu.Unlock()
		s.notify(done)

		return TxHandle{}, rejectf("transaction for chain %d sent to chain %d", tx.ChainID, s.chainID)
	}

	if expected := s.nonces[tx.Sender] + 1; tx.Nonce != expected {
		s.mu.Unlock()
		s.notify(done)

		return TxHandle{}, rejectf("nonce out of order: expected %d, got %d", expected, tx.Nonce)
	}

	s.nonces[tx.Sender] = tx.Nonce

	st := &simTx{
		tx:    tx,
		args:  args,
		due:   now.Add(s.confirmDelay),
		arena: &fastjson.Arena{},
		receipt: Receipt{
			TxID:   txID(tx),
			Sender: tx.Sender,
			Method: tx.Call.Method,
			Status: StatusPending,
		},
	}

	s.txs[st.receipt.TxID] = st
	s.record(SimCall{Kind: CallSubmit, Method: tx.Call.Method, Sender: tx.Sender, TxID: st.receipt.TxID})

	// Spends are checked against confirmed allowances only.
	if err := s.checkAllowance(st); err != nil {
		s.finish(st, nil, err)
		done = append(done, st.receipt)
	} else {
		s.pending = append(s.pending, st)
	}

	s.mu.Unlock()
	s.notify(done)

	return TxHandle{ID: st.receipt.TxID, Sender: tx.Sender, Nonce: tx.Nonce, Submitted: now}, nil
}

func txID(tx SignedTx) string {
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], tx.Nonce)

	buf := make([]byte, 0, SizeAccountID+8+SizeSignature+len(tx.Call.Method))
	buf = append(buf, tx.Sender[:]...)
	buf = append(buf, nonce[:]...)
	buf = append(buf, tx.Signature[:]...)
	buf = append(buf, tx.Call.Method...)

	id := blake2b.Sum256(buf)

	return hex.EncodeToString(id[:])
}

// sealDue applies every pending transaction whose confirmation delay has
// passed, stopping at the first that is not yet due.
func (s *Sim) sealDue(now time.Time) []Receipt {
	var done []Receipt

	for len(s.pending) > 0 && !s.pending[0].due.After(now) {
		st := s.pending[0]
		s.pending = s.pending[1:]

		events, err := s.apply(st)
		s.finish(st, events, err)

		done = append(done, st.receipt)
	}

	return done
}

func (s *Sim) finish(st *simTx, events []Event, err error) {
	s.height++
	st.receipt.Height = s.height

	if err != nil {
		st.receipt.Status = StatusRejected
		st.receipt.Reason = err.Error()
	} else {
		st.receipt.Status = StatusConfirmed

		for _, ev := range events {
			st.receipt.Events = append(st.receipt.Events, MarshalEventArena(st.arena, ev))
		}
	}

	s.record(SimCall{
		Kind:   CallConfirm,
		Method: st.tx.Call.Method,
		Sender: st.tx.Sender,
		TxID:   st.receipt.TxID,
		Status: st.receipt.Status,
	})
}

func (s *Sim) notify(done []Receipt) {
	if len(done) == 0 {
		return
	}

	s.mu.Lock()
	listeners := make([]func(*Receipt), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for i := range done {
		for _, fn := range listeners {
			r := done[i]
			fn(&r)
		}
	}
}

func (s *Sim) Lookup(ctx context.Context, id string) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	done := s.sealDue(time.Now())

	st, ok := s.txs[id]
	var r Receipt
	if ok {
		r = st.receipt
	}
	s.mu.Unlock()

	s.notify(done)

	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "transaction %s", id)
	}

	return &r, nil
}

func (s *Sim) AwaitConfirmation(ctx context.Context, h TxHandle) (*Receipt, error) {
	for {
		s.mu.Lock()
		done := s.sealDue(time.Now())

		st, ok := s.txs[h.ID]
		var (
			r   Receipt
			due time.Time
		)
		if ok {
			r, due = st.receipt, st.due
		}
		s.mu.Unlock()

		s.notify(done)

		if !ok {
			return nil, errors.Wrapf(ErrNotFound, "transaction %s", h.ID)
		}

		if r.Status.Terminal() {
			return &r, nil
		}

		wait := time.Until(due)
		if wait < time.Millisecond {
			wait = time.Millisecond
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (s *Sim) Query(ctx context.Context, call Call) (*fastjson.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args, err := NormalizeArgs(call.Args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.fulfil(now)

	s.record(SimCall{Kind: CallQuery, Method: call.Method})

	if err := s.injected(call.Method, args); err != nil {
		return nil, err
	}

	a := &fastjson.Arena{}

	switch call.Contract {
	case s.market:
		return s.queryMarket(a, call.Method, args)
	case s.token:
		return s.queryToken(a, call.Method, args)
	}

	return nil, errors.Wrapf(ErrNotFound, "contract %s", call.Contract)
}

func (s *Sim) injected(method string, args Args) error {
	failures, ok := s.failures[method]
	if !ok {
		return nil
	}

	if err, ok := failures[0]; ok {
		return err
	}

	for _, arg := range args {
		if n, ok := arg.(uint64); ok {
			if err, ok := failures[n]; ok {
				return err
			}
		}
	}

	return nil
}
