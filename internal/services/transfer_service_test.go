package services

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/transferflow/internal/apperr"
	"github.com/baharkarakas/transferflow/internal/auth"
	"github.com/baharkarakas/transferflow/internal/logger"
	"github.com/baharkarakas/transferflow/internal/models"
	"github.com/baharkarakas/transferflow/internal/notify"
	"github.com/baharkarakas/transferflow/internal/ratelimit"
	"github.com/baharkarakas/transferflow/internal/repository/memory"
	"github.com/baharkarakas/transferflow/internal/sanitize"
)

var (
	alice  = auth.Identity{ID: "alice", Role: auth.RoleUser}
	bob    = auth.Identity{ID: "bob", Role: auth.RoleUser}
	admin1 = auth.Identity{ID: "admin-1", Role: auth.RoleAdmin}
	admin2 = auth.Identity{ID: "admin-2", Role: auth.RoleAdmin}
)

type captured struct {
	typ     notify.EventType
	ownerID string
	event   notify.Event
}

// recordingEmitter builds the same events the dispatcher would, synchronously.
type recordingEmitter struct {
	mu     sync.Mutex
	events []captured
}

func (e *recordingEmitter) EmitCreated(ownerID string, t models.Transfer) {
	e.add(notify.EventCreated, ownerID, t)
}

func (e *recordingEmitter) EmitTransition(ownerID string, t models.Transfer) {
	e.add(notify.EventUpdate, ownerID, t)
}

func (e *recordingEmitter) add(typ notify.EventType, ownerID string, t models.Transfer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, captured{typ, ownerID, notify.NewEvent(typ, t, time.Now())})
}

func (e *recordingEmitter) all() []captured {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]captured(nil), e.events...)
}

type fixture struct {
	svc      *TransferService
	store    *memory.Transfers
	balances *memory.Balances
	audit    *memory.AuditLogs
	emitter  *recordingEmitter
}

func newFixture(t *testing.T, limiter ratelimit.Limiter) fixture {
	t.Helper()
	f := fixture{
		store:    memory.NewTransfers(),
		balances: memory.NewBalances(),
		audit:    memory.NewAuditLogs(),
		emitter:  &recordingEmitter{},
	}
	f.balances.Set(alice.ID, decimal.NewFromInt(10000), "USD")
	f.balances.Set(bob.ID, decimal.NewFromInt(10000), "USD")
	f.svc = NewTransferService(TransferDeps{
		Transfers: f.store,
		Balances:  f.balances,
		AuditLogs: f.audit,
		Limiter:   limiter,
		Emitter:   f.emitter,
		Log:       logger.Discard(),
	})
	return f
}

func validInput(caller auth.Identity, amount string) CreateTransferInput {
	return CreateTransferInput{
		Caller:   caller,
		ClientIP: "203.0.113.9",
		Amount:   decimal.RequireFromString(amount),
		Currency: "usd",
		Recipient: models.Recipient{
			Name:          "Jane Roe",
			AccountNumber: "gb29 nwbk 6016 1331 9268 19",
			BankCode:      "NWBKGB2L",
		},
		Description: "rent",
	}
}

func mustCreate(t *testing.T, f fixture, caller auth.Identity, amount string) sanitize.WireTransfer {
	t.Helper()
	tr, err := f.svc.Create(context.Background(), validInput(caller, amount))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return tr
}

func TestCreateReturnsPendingSanitizedRecord(t *testing.T) {
	f := newFixture(t, nil)
	tr := mustCreate(t, f, alice, "500.00")

	if tr.Status != "PENDING" || tr.Amount != 500 || tr.Currency != "USD" || tr.OwnerID != "alice" {
		t.Fatalf("unexpected record %+v", tr)
	}
	if tr.Recipient.AccountNumber != "GB29NWBK60161331926819" {
		t.Fatalf("account number not normalized: %q", tr.Recipient.AccountNumber)
	}
	if tr.Metadata == nil || tr.CreatedAt != tr.UpdatedAt {
		t.Fatalf("fresh record shape: %+v", tr)
	}
	ev := f.emitter.all()
	if len(ev) != 1 || ev[0].typ != notify.EventCreated || ev[0].ownerID != "alice" {
		t.Fatalf("events=%+v", ev)
	}
	if logs := f.audit.All(); len(logs) != 1 || logs[0].Action != "created" {
		t.Fatalf("audit=%+v", logs)
	}
}

func TestCreateRejectsBadInputWithoutPersisting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	bad := []func(*CreateTransferInput){
		func(in *CreateTransferInput) { in.Amount = decimal.NewFromInt(-5) },
		func(in *CreateTransferInput) { in.Amount = decimal.Zero },
		func(in *CreateTransferInput) { in.Amount = decimal.RequireFromString("1.005") },
		func(in *CreateTransferInput) { in.Currency = "dollars" },
		func(in *CreateTransferInput) { in.Recipient.Name = "J" },
		func(in *CreateTransferInput) { in.Recipient.AccountNumber = "12" },
		func(in *CreateTransferInput) { in.Recipient.BankCode = "" },
	}
	for i, mutate := range bad {
		in := validInput(alice, "10.00")
		mutate(&in)
		_, err := f.svc.Create(ctx, in)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}

	rows, total, _ := f.store.List(ctx, repoAll())
	if total != 0 || len(rows) != 0 || len(f.emitter.all()) != 0 {
		t.Fatal("invalid input must not create a record or an event")
	}
}

func TestCreateChecksBalance(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Create(context.Background(), validInput(alice, "10000.01"))
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	stranger := auth.Identity{ID: "nobody", Role: auth.RoleUser}
	if _, err := f.svc.Create(context.Background(), validInput(stranger, "1.00")); !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("a user without a balance row has zero funds, got %v", err)
	}
}

func TestCreateRateLimit(t *testing.T) {
	f := newFixture(t, ratelimit.NewWindow(5, time.Minute))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := f.svc.Create(ctx, validInput(alice, "1.00")); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	_, err := f.svc.Create(ctx, validInput(alice, "1.00"))
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindRateLimited || ae.RetryAfter <= 0 {
		t.Fatalf("sixth creation: %v", err)
	}

	rows, total, _ := f.store.List(ctx, repoAll())
	if total != 5 || len(rows) != 5 {
		t.Fatalf("throttled call must not persist, total=%d", total)
	}

	f.balances.Set(admin1.ID, decimal.NewFromInt(100), "USD")
	for i := 0; i < 7; i++ {
		if _, err := f.svc.Create(ctx, validInput(admin1, "1.00")); err != nil {
			t.Fatalf("admin create %d throttled: %v", i, err)
		}
	}

	other := validInput(alice, "1.00")
	other.ClientIP = "198.51.100.1"
	if _, err := f.svc.Create(ctx, other); !errors.Is(err, apperr.ErrRateLimited) {
		t.Fatalf("a new client ip must not reset the identity's bucket: %v", err)
	}
	if _, err := f.svc.Create(ctx, validInput(bob, "1.00")); err != nil {
		t.Fatalf("other identities keep their own bucket: %v", err)
	}
}

func TestConcurrentApprovalsHaveOneWinner(t *testing.T) {
	f := newFixture(t, nil)
	tr := mustCreate(t, f, alice, "500.00")

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i, a := range []auth.Identity{admin1, admin2} {
		wg.Add(1)
		go func(i int, a auth.Identity) {
			defer wg.Done()
			_, results[i] = f.svc.Approve(context.Background(), tr.ID, a, "")
		}(i, a)
	}
	wg.Wait()

	ok, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrAlreadyProcessed):
			conflicts++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Fatalf("ok=%d conflicts=%d", ok, conflicts)
	}

	got, _ := f.svc.Get(context.Background(), alice, tr.ID)
	if got.Status != "PROCESSING" {
		t.Fatalf("status=%s", got.Status)
	}
	updates := 0
	for _, ev := range f.emitter.all() {
		if ev.typ == notify.EventUpdate {
			updates++
		}
	}
	if updates != 1 {
		t.Fatalf("the losing approval must not notify, updates=%d", updates)
	}
}

func TestApproveRejectRace(t *testing.T) {
	for round := 0; round < 25; round++ {
		f := newFixture(t, nil)
		tr := mustCreate(t, f, alice, "20.00")

		var approveErr, rejectErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, approveErr = f.svc.Approve(context.Background(), tr.ID, admin1, "looks fine")
		}()
		go func() {
			defer wg.Done()
			_, rejectErr = f.svc.Reject(context.Background(), tr.ID, admin2, "suspicious")
		}()
		wg.Wait()

		if (approveErr == nil) == (rejectErr == nil) {
			t.Fatalf("round %d: exactly one must win: approve=%v reject=%v", round, approveErr, rejectErr)
		}
		got, _ := f.svc.Get(context.Background(), admin1, tr.ID)
		if approveErr == nil && (got.Status != "PROCESSING" || got.Metadata["rejection_reason"] != nil) {
			t.Fatalf("round %d: approve won but record is %+v", round, got)
		}
		if rejectErr == nil && (got.Status != "REJECTED" || got.Metadata["approved_by"] != nil) {
			t.Fatalf("round %d: reject won but record is %+v", round, got)
		}
	}
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t, nil)
	tr := mustCreate(t, f, alice, "20.00")

	if _, err := f.svc.Reject(context.Background(), tr.ID, admin1, "   "); !errors.Is(err, apperr.ErrMissingReason) {
		t.Fatalf("expected missing reason, got %v", err)
	}
	got, _ := f.svc.Get(context.Background(), alice, tr.ID)
	if got.Status != "PENDING" || got.UpdatedAt != tr.UpdatedAt {
		t.Fatal("a refused rejection must not touch the record")
	}

	rejected, err := f.svc.Reject(context.Background(), tr.ID, admin1, "wrong IBAN")
	if err != nil {
		t.Fatal(err)
	}
	if rejected.Metadata["rejected_by"] != "admin-1" || rejected.Metadata["rejection_reason"] != "wrong IBAN" {
		t.Fatalf("metadata=%v", rejected.Metadata)
	}
	if _, err := f.svc.Approve(context.Background(), tr.ID, admin2, ""); !errors.Is(err, apperr.ErrAlreadyProcessed) {
		t.Fatalf("terminal record approved: %v", err)
	}
}

func TestTransitionUnknownID(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.Approve(context.Background(), "missing", admin1, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.Reject(context.Background(), "", admin1, "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTransitionEnforcesEdgeTable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	tr := mustCreate(t, f, alice, "10.00")

	illegal := []struct{ from, to models.TransferStatus }{
		{models.TransferPending, models.TransferCompleted},
		{models.TransferRejected, models.TransferProcessing},
		{models.TransferCompleted, models.TransferPending},
	}
	for _, e := range illegal {
		_, err := f.svc.transition(ctx, tr.ID, e.from, e.to, map[string]any{"x": 1}, "test")
		var ae *apperr.Error
		if !errors.As(err, &ae) || ae.Kind != apperr.KindInternal {
			t.Fatalf("%s -> %s: expected internal error, got %v", e.from, e.to, err)
		}
	}

	got, _ := f.store.GetByID(ctx, tr.ID)
	if got.Status != models.TransferPending || got.Metadata["x"] != nil {
		t.Fatalf("illegal edge reached storage: %+v", got)
	}
	if len(f.emitter.all()) != 1 {
		t.Fatal("illegal edge must not emit")
	}
}

func TestSettleLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	tr := mustCreate(t, f, alice, "20.00")

	if _, err := f.svc.Settle(ctx, tr.ID, SystemActor, models.TransferCompleted, ""); !errors.Is(err, apperr.ErrAlreadyProcessed) {
		t.Fatalf("PENDING cannot settle: %v", err)
	}
	if _, err := f.svc.Approve(ctx, tr.ID, admin1, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Settle(ctx, tr.ID, SystemActor, models.TransferRejected, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("REJECTED is not a settlement outcome: %v", err)
	}
	done, err := f.svc.Settle(ctx, tr.ID, SystemActor, models.TransferFailed, "beneficiary bank unreachable")
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != "FAILED" || done.Metadata["failure_reason"] != "beneficiary bank unreachable" || done.Metadata["approved_by"] != "admin-1" {
		t.Fatalf("settled=%+v", done)
	}
}

func TestGetIsScopedToOwner(t *testing.T) {
	f := newFixture(t, nil)
	tr := mustCreate(t, f, alice, "20.00")

	if _, err := f.svc.Get(context.Background(), bob, tr.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("bob must not see alice's transfer: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), admin1, tr.ID); err != nil {
		t.Fatalf("admin lookup: %v", err)
	}
}

func TestMissedPushIsRecoveredByPolling(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	tr := mustCreate(t, f, alice, "500.00")

	// The client saw the creation, then went offline while the admin approved.
	if _, err := f.svc.Approve(ctx, tr.ID, admin1, ""); err != nil {
		t.Fatal(err)
	}

	since, _ := time.Parse(sanitize.TimeLayout, tr.UpdatedAt)
	res, err := f.svc.Updates(ctx, alice, since, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Transfers) != 1 || res.Transfers[0].ID != tr.ID || res.Transfers[0].Status != "PROCESSING" {
		t.Fatalf("poll result %+v", res)
	}
	if res.NextSince != res.Transfers[0].UpdatedAt || res.HasMore {
		t.Fatalf("cursor=%s has_more=%v", res.NextSince, res.HasMore)
	}

	next, _ := time.Parse(sanitize.TimeLayout, res.NextSince)
	again, _ := f.svc.Updates(ctx, alice, next, 0)
	if len(again.Transfers) != 0 || again.NextSince != res.NextSince {
		t.Fatalf("no new changes expected, got %+v", again)
	}
}

func TestPollingPagesThroughEveryChange(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	want := map[string]bool{}
	for i := 0; i < 7; i++ {
		want[mustCreate(t, f, alice, "1.00").ID] = true
	}
	mustCreate(t, f, bob, "1.00")

	seen := map[string]bool{}
	var since time.Time
	for page := 0; ; page++ {
		if page > 10 {
			t.Fatal("cursor is not advancing")
		}
		res, err := f.svc.Updates(ctx, alice, since, 3)
		if err != nil {
			t.Fatal(err)
		}
		for _, tr := range res.Transfers {
			if tr.OwnerID != "alice" {
				t.Fatalf("leaked %s's transfer", tr.OwnerID)
			}
			seen[tr.ID] = true
		}
		since, _ = time.Parse(sanitize.TimeLayout, res.NextSince)
		if !res.HasMore {
			break
		}
	}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("saw %d of %d transfers", len(seen), len(want))
	}
}

func TestAdminPollsThePendingSet(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := mustCreate(t, f, alice, "1.00")
	b := mustCreate(t, f, bob, "1.00")
	if _, err := f.svc.Approve(ctx, a.ID, admin1, ""); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.Updates(ctx, admin1, time.Time{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Transfers) != 1 || res.Transfers[0].ID != b.ID {
		t.Fatalf("admin sees the pending queue only: %+v", res.Transfers)
	}
}

func TestUpdatedAtIsStrictlyMonotonic(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	tr := mustCreate(t, f, alice, "1.00")
	approved, _ := f.svc.Approve(ctx, tr.ID, admin1, "")
	settled, _ := f.svc.Settle(ctx, tr.ID, SystemActor, models.TransferCompleted, "")

	stamps := []string{tr.UpdatedAt, approved.UpdatedAt, settled.UpdatedAt}
	for i := 1; i < len(stamps); i++ {
		prev, _ := time.Parse(sanitize.TimeLayout, stamps[i-1])
		cur, _ := time.Parse(sanitize.TimeLayout, stamps[i])
		if !cur.After(prev) {
			t.Fatalf("updated_at did not advance: %v", stamps)
		}
	}
}

func TestPushAndPollPayloadsMatch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	tr := mustCreate(t, f, alice, "75.25")
	approved, err := f.svc.Approve(ctx, tr.ID, admin1, "ok")
	if err != nil {
		t.Fatal(err)
	}

	events := f.emitter.all()
	pushed := events[len(events)-1].event.Transfer

	since, _ := time.Parse(sanitize.TimeLayout, tr.UpdatedAt)
	res, _ := f.svc.Updates(ctx, alice, since, 0)
	polled := res.Transfers[0]

	if !reflect.DeepEqual(pushed, polled) || !reflect.DeepEqual(polled, approved) {
		t.Fatalf("surfaces diverge:\npush=%+v\npoll=%+v\nhttp=%+v", pushed, polled, approved)
	}
	if !reflect.DeepEqual(sanitize.Wire(pushed), pushed) {
		t.Fatal("pushed payload is not in canonical form")
	}
}
