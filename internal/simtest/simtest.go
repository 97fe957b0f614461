// Package simtest seeds an in-memory ledger for component tests.
package simtest

import (
	"context"
	"testing"

	"github.com/perlin-network/academy/ledger"
	"github.com/perlin-network/academy/sys"
	"github.com/perlin-network/academy/wallet"
	"github.com/stretchr/testify/require"
)

const ChainID = 1337

type Env struct {
	T   testing.TB
	Sim *ledger.Sim
}

func New(t testing.TB, opts ...ledger.SimOption) *Env {
	return &Env{T: t, Sim: ledger.NewSim(opts...)}
}

// Identity generates a fresh account holding balance reward tokens.
func (e *Env) Identity(balance uint64) *wallet.Keypair {
	k, err := wallet.GenerateKeypair()
	require.NoError(e.T, err)

	if balance > 0 {
		e.Sim.Mint(k.Address(), balance)
	}

	return k
}

// Facade connects id, which may be nil, to the Sim.
func (e *Env) Facade(id ledger.Identity) *ledger.Facade {
	var opts []ledger.FacadeOption
	if id != nil {
		opts = append(opts, ledger.WithIdentity(id))
	}

	return ledger.NewFacade(e.Sim, ChainID, opts...)
}

func (e *Env) Reader(f *ledger.Facade) *ledger.Reader {
	return ledger.NewReader(f, e.Sim.Market(), e.Sim.Token())
}

// Do submits a marketplace call as id and requires it to be confirmed.
func (e *Env) Do(id ledger.Identity, method string, args ...interface{}) *ledger.Receipt {
	e.T.Helper()

	return e.do(id, ledger.NewCall(e.Sim.Market(), method, args...))
}

func (e *Env) Approve(id ledger.Identity, amount uint64) {
	e.T.Helper()

	e.do(id, ledger.NewCall(e.Sim.Token(), sys.MethodApprove, e.Sim.Market(), amount))
}

func (e *Env) do(id ledger.Identity, call ledger.Call) *ledger.Receipt {
	e.T.Helper()

	ctx := context.Background()

	h, err := e.Sim.Submit(ctx, call, id)
	require.NoError(e.T, err)

	r, err := e.Sim.AwaitConfirmation(ctx, h)
	require.NoError(e.T, err)
	require.Equal(e.T, ledger.StatusConfirmed, r.Status, "%s: %s", call.Method, r.Reason)

	return r
}

type ModuleFixture struct {
	Order uint64

	// LessonOrders holds the order index of each lesson, in creation order.
	LessonOrders []uint64
}

type CourseFixture struct {
	Title         string
	Price         uint64
	Prerequisites []uint64
	Modules       []ModuleFixture
}

type Course struct {
	ID        uint64
	ModuleIDs []uint64
	LessonIDs [][]uint64
}

// AllLessons lists the lesson IDs of every module in creation order.
func (c Course) AllLessons() []uint64 {
	var ids []uint64
	for _, l := range c.LessonIDs {
		ids = append(ids, l...)
	}

	return ids
}

// Course creates a course owned by owner as described by fx.
func (e *Env) Course(owner ledger.Identity, fx CourseFixture) Course {
	e.T.Helper()

	if fx.Title == "" {
		fx.Title = "Course"
	}

	prerequisites := fx.Prerequisites
	if prerequisites == nil {
		prerequisites = []uint64{}
	}

	r := e.Do(owner, sys.MethodCreateCourse, fx.Title, "", fx.Price,
		uint64(3600), uint64(10), uint64(1), prerequisites, []string{})

	var created ledger.CourseCreated
	require.NoError(e.T, r.Expect(&created))

	c := Course{ID: created.CourseID}

	for _, m := range fx.Modules {
		r = e.Do(owner, sys.MethodAddModule, c.ID, "Module", "", m.Order)

		var module ledger.ModuleAdded
		require.NoError(e.T, r.Expect(&module))

		c.ModuleIDs = append(c.ModuleIDs, module.ModuleID)

		var lessons []uint64

		for _, order := range m.LessonOrders {
			r = e.Do(owner, sys.MethodAddLesson, module.ModuleID, "Lesson", "",
				sys.ContentVideo, "ipfs://lesson", uint64(300), order)

			var lesson ledger.LessonAdded
			require.NoError(e.T, r.Expect(&lesson))

			lessons = append(lessons, lesson.LessonID)
		}

		c.LessonIDs = append(c.LessonIDs, lessons)
	}

	return c
}

// SimpleCourse creates a course with one module of n lessons.
func (e *Env) SimpleCourse(owner ledger.Identity, price uint64, n int) Course {
	e.T.Helper()

	orders := make([]uint64, n)
	for i := range orders {
		orders[i] = uint64(i + 1)
	}

	return e.Course(owner, CourseFixture{Price: price, Modules: []ModuleFixture{{Order: 1, LessonOrders: orders}}})
}
