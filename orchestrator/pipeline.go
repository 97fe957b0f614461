package orchestrator

import (
	"context"
	"time"

	"github.com/perlin-network/academy/errs"
	"github.com/perlin-network/academy/events"
	"github.com/perlin-network/academy/ledger"
	"github.com/perlin-network/academy/log"
	"github.com/perlin-network/academy/sys"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Step names recorded on an Outcome.
const (
	StepIdentity         = "identity"
	StepNetwork          = "network"
	StepValidate         = "validate"
	StepPrice            = "price"
	StepBalance          = "balance"
	StepAllowanceRead    = "allowance.read"
	StepAllowanceGrant   = "allowance.grant"
	StepAllowanceConfirm = "allowance.confirm"
	StepAllowanceRecheck = "allowance.recheck"
	StepSubmit           = "submit"
	StepConfirm          = "confirm"
	StepDecode           = "decode"
	StepReadBack         = "readback"
	StepPublish          = "publish"
)

// Outcome is the result of a single write. Every write resolves to one,
// successful or not.
type Outcome struct {
	Success bool

	// ID is the identifier generated or addressed by the write, if any.
	ID   uint64
	TxID string

	Kind errs.Kind
	Err  error

	// Steps lists the executed steps in order.
	Steps []string

	Receipt *ledger.Receipt
	Events  []ledger.Event
}

// Step is a single named stage of a Pipeline. A step whose Skip reports
// true is not run and not recorded.
type Step struct {
	Name string
	Skip func(st *State) bool
	Run  func(ctx context.Context, st *State) error
}

// State is shared by the steps of a single pipeline run.
type State struct {
	Account ledger.AccountID

	// Amount of reward tokens the write spends.
	Amount    uint64
	Allowance uint64

	Handle  ledger.TxHandle
	Receipt *ledger.Receipt
	Events  []ledger.Event
	ID      uint64
}

// Pipeline is an ordered list of steps making up one write.
type Pipeline struct {
	Op      string
	Steps   []Step
	Targets func(st *State) []events.Target
}

func (p *Pipeline) Then(steps ...Step) *Pipeline {
	p.Steps = append(p.Steps, steps...)
	return p
}

func (o *Orchestrator) run(ctx context.Context, p *Pipeline) Outcome {
	account := o.facade.Account()

	if account.IsZero() {
		err := errs.New(errs.KindNoIdentity, p.Op, "no identity connected")
		return Outcome{Kind: errs.KindNoIdentity, Err: err, Steps: []string{StepIdentity}}
	}

	var out Outcome

	err := o.queue.Do(ctx, account.String(), func() error {
		out = o.execute(ctx, p, account)
		return nil
	})

	if err != nil {
		err = errs.Wrap(errs.KindCancelled, p.Op, err)
		return Outcome{Kind: errs.KindOf(err), Err: err}
	}

	return out
}

func (o *Orchestrator) execute(ctx context.Context, p *Pipeline, account ledger.AccountID) Outcome {
	ctx, span := o.tracer.Start(ctx, p.Op)
	defer span.End()

	span.SetAttributes(attribute.String("account", account.String()))

	start := time.Now()
	st := &State{Account: account}

	var out Outcome

	for _, step := range p.Steps {
		if step.Skip != nil && step.Skip(st) {
			continue
		}

		out.Steps = append(out.Steps, step.Name)

		stepCtx, stepSpan := o.tracer.Start(ctx, p.Op+"."+step.Name)
		err := step.Run(stepCtx, st)

		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
		}

		stepSpan.End()

		if err != nil {
			err = errs.Wrap(errs.KindRemote, p.Op+"."+step.Name, err)

			out.Kind = errs.KindOf(err)
			out.Err = err
			out.TxID = st.Handle.ID
			out.Receipt = st.Receipt

			span.SetStatus(codes.Error, err.Error())

			logger := log.TX("failed")
			logger.Warn().
				Err(err).
				Str("op", p.Op).
				Str("step", step.Name).
				Str("kind", out.Kind.String()).
				Str("tx_id", st.Handle.ID).
				Msg("Write failed.")

			return out
		}
	}

	out.Success = true
	out.ID = st.ID
	out.TxID = st.Handle.ID
	out.Receipt = st.Receipt
	out.Events = st.Events

	if o.hub != nil {
		out.Steps = append(out.Steps, StepPublish)

		m := &events.Mutation{Op: p.Op, Account: account, TxID: st.Handle.ID}
		if p.Targets != nil {
			m.Targets = p.Targets(st)
		}

		o.hub.Publish(nil, m)
	}

	logger := log.TX("confirmed")
	logger.Info().
		Str("op", p.Op).
		Str("tx_id", st.Handle.ID).
		Uint64("id", st.ID).
		Dur("took", time.Since(start)).
		Msg("Write confirmed.")

	return out
}

func (o *Orchestrator) network() Step {
	return Step{Name: StepNetwork, Run: func(ctx context.Context, _ *State) error {
		return o.facade.CheckNetwork(ctx)
	}}
}

func validate(fn func() error) Step {
	return Step{Name: StepValidate, Run: func(context.Context, *State) error {
		return fn()
	}}
}

func noSpend(st *State) bool {
	return st.Amount == 0
}

// spend returns the steps that make sure the marketplace may move
// st.Amount reward tokens on behalf of the account before the spend
// itself is submitted.
func (o *Orchestrator) spend(op string) []Step {
	return []Step{
		{Name: StepBalance, Skip: noSpend, Run: func(ctx context.Context, st *State) error {
			balance, err := o.reader.Balance(ctx, st.Account)
			if err != nil {
				return err
			}

			if balance < st.Amount {
				return errs.Errorf(errs.KindInsufficientBalance, op,
					"need %d, have %d", st.Amount, balance)
			}

			return nil
		}},
		{Name: StepAllowanceRead, Skip: noSpend, Run: func(ctx context.Context, st *State) error {
			allowance, err := o.reader.Allowance(ctx, st.Account, o.reader.Market)
			st.Allowance = allowance

			return err
		}},
		{Name: StepAllowanceGrant, Skip: o.allowanceCovers, Run: func(ctx context.Context, st *State) error {
			h, err := o.facade.Submit(ctx, o.reader.Token, sys.MethodApprove, o.reader.Market, st.Amount)
			st.Handle = h

			return err
		}},
		{Name: StepAllowanceConfirm, Skip: o.allowanceCovers, Run: func(ctx context.Context, st *State) error {
			r, err := o.facade.Await(ctx, st.Handle)
			if err != nil {
				return err
			}

			var approval ledger.Approval
			return r.Expect(&approval)
		}},
		{Name: StepAllowanceRecheck, Skip: o.allowanceCovers, Run: func(ctx context.Context, st *State) error {
			allowance, err := o.reader.Allowance(ctx, st.Account, o.reader.Market)
			if err != nil {
				return err
			}

			st.Allowance = allowance

			if allowance < st.Amount {
				return errs.Errorf(errs.KindInsufficientAllowance, op,
					"need %d, approved %d", st.Amount, allowance)
			}

			return nil
		}},
	}
}

// allowanceCovers reports whether no grant is needed. Once a grant was
// submitted the remaining grant steps still run.
func (o *Orchestrator) allowanceCovers(st *State) bool {
	return st.Amount == 0 || (st.Allowance >= st.Amount && st.Handle.ID == "")
}

// submit sends a marketplace call and waits for it to be confirmed.
func (o *Orchestrator) submit(method string, args func(st *State) []interface{}) []Step {
	return []Step{
		{Name: StepSubmit, Run: func(ctx context.Context, st *State) error {
			h, err := o.facade.Submit(ctx, o.reader.Market, method, args(st)...)
			st.Handle = h

			return err
		}},
		{Name: StepConfirm, Run: func(ctx context.Context, st *State) error {
			r, err := o.facade.Await(ctx, st.Handle)
			st.Receipt = r

			return err
		}},
	}
}

// expect decodes the event the confirmed call must have emitted, and
// extracts the generated identifier from it.
func expect(newEvent func() ledger.Event, id func(ev ledger.Event) uint64) Step {
	return Step{Name: StepDecode, Run: func(_ context.Context, st *State) error {
		ev := newEvent()

		if err := st.Receipt.Expect(ev); err != nil {
			return err
		}

		st.Events = append(st.Events, ev)

		if id != nil {
			st.ID = id(ev)
		}

		return nil
	}}
}

func args(values ...interface{}) func(*State) []interface{} {
	return func(*State) []interface{} {
		return values
	}
}
