package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	autoscalingdomain "github.com/hostlify/hostlify/internal/autoscaling/domain"
	billingdomain "github.com/hostlify/hostlify/internal/billing/domain"
	"github.com/hostlify/hostlify/internal/clock"
	gatewaydomain "github.com/hostlify/hostlify/internal/gateway/domain"
	hostingdomain "github.com/hostlify/hostlify/internal/hosting/domain"
	meteringdomain "github.com/hostlify/hostlify/internal/metering/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// The fakes below embed their interface so only the methods the scheduler
// calls need bodies; anything else panics loudly.

type fakeHostingRepo struct {
	hostingdomain.Repository
	activeIDs []snowflake.ID
}

func (f *fakeHostingRepo) ListServiceIDsByStatus(_ context.Context, _ *gorm.DB, status hostingdomain.ServiceStatus, limit int) ([]snowflake.ID, error) {
	if status != hostingdomain.StatusActive {
		return nil, nil
	}
	if len(f.activeIDs) > limit {
		return f.activeIDs[:limit], nil
	}
	return f.activeIDs, nil
}

type fakeMeter struct {
	sampled []snowflake.ID
	fail    error
}

func (f *fakeMeter) Sample(_ context.Context, serviceID snowflake.ID) (*meteringdomain.UsageSnapshot, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.sampled = append(f.sampled, serviceID)
	return &meteringdomain.UsageSnapshot{ServiceID: serviceID}, nil
}

func (f *fakeMeter) Latest(context.Context, snowflake.ID) (meteringdomain.UsageSnapshot, error) {
	return meteringdomain.UsageSnapshot{}, nil
}

type fakeMeteringRepo struct {
	meteringdomain.Repository
	cutoff  time.Time
	deleted int64
}

func (f *fakeMeteringRepo) DeleteOlderThan(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, nil
}

type fakeEngine struct {
	evaluated  []snowflake.ID
	inFlight   map[snowflake.ID]bool
	reconciled int
	fail       error
}

func (f *fakeEngine) Evaluate(_ context.Context, serviceID snowflake.ID) (*autoscalingdomain.Decision, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	if f.inFlight[serviceID] {
		return nil, autoscalingdomain.ErrEvaluationInFlight
	}
	f.evaluated = append(f.evaluated, serviceID)
	return &autoscalingdomain.Decision{ServiceID: serviceID, Action: autoscalingdomain.ActionNone}, nil
}

func (f *fakeEngine) ListLogs(context.Context, autoscalingdomain.ListLogsRequest) (autoscalingdomain.ListLogsResponse, error) {
	return autoscalingdomain.ListLogsResponse{}, nil
}

func (f *fakeEngine) Reconcile(context.Context) (int, error) {
	return f.reconciled, nil
}

type fakeBilling struct {
	renewed  int
	expired  int
	renewErr error
}

func (f *fakeBilling) Purchase(context.Context, billingdomain.PurchaseRequest) (*billingdomain.PurchaseResponse, error) {
	panic("not used by scheduler")
}

func (f *fakeBilling) Renew(context.Context, billingdomain.RenewRequest) (*billingdomain.RenewResponse, error) {
	panic("not used by scheduler")
}

func (f *fakeBilling) TopUp(context.Context, billingdomain.TopUpRequest) (*billingdomain.TopUpResponse, error) {
	panic("not used by scheduler")
}

func (f *fakeBilling) RenewDueServices(context.Context, int) (int, error) {
	if f.renewErr != nil {
		return 0, f.renewErr
	}
	return f.renewed, nil
}

func (f *fakeBilling) ExpireServices(context.Context, int) (int, error) {
	return f.expired, nil
}

type fakeGateway struct {
	pending   []gatewaydomain.PaymentSession
	confirmed []snowflake.ID
	unsettled map[snowflake.ID]bool
}

func (f *fakeGateway) CreateSession(context.Context, gatewaydomain.CreateSessionRequest) (*gatewaydomain.PaymentSession, error) {
	panic("not used by scheduler")
}

func (f *fakeGateway) GetSession(context.Context, snowflake.ID) (*gatewaydomain.PaymentSession, error) {
	panic("not used by scheduler")
}

func (f *fakeGateway) HandleCallback(context.Context, string, string, []byte, http.Header) error {
	panic("not used by scheduler")
}

func (f *fakeGateway) Confirm(_ context.Context, sessionID snowflake.ID) error {
	if f.unsettled[sessionID] {
		return gatewaydomain.ErrPaymentNotSettled
	}
	f.confirmed = append(f.confirmed, sessionID)
	return nil
}

func (f *fakeGateway) ListPending(context.Context, int) ([]gatewaydomain.PaymentSession, error) {
	return f.pending, nil
}

type fixture struct {
	sched   *Scheduler
	clock   *clock.FakeClock
	hosting *fakeHostingRepo
	meter   *fakeMeter
	samples *fakeMeteringRepo
	engine  *fakeEngine
	billing *fakeBilling
	gateway *fakeGateway
}

func setupScheduler(t *testing.T, cfg Config) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	f := &fixture{
		clock:   clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		hosting: &fakeHostingRepo{},
		meter:   &fakeMeter{},
		samples: &fakeMeteringRepo{deleted: 7},
		engine:  &fakeEngine{},
		billing: &fakeBilling{},
		gateway: &fakeGateway{},
	}
	sched, err := New(Params{
		DB: db, Log: zap.NewNop(), Clock: f.clock, Config: cfg,
		HostingRepo: f.hosting, MeteringRepo: f.samples, Meter: f.meter,
		Engine: f.engine, Billing: f.billing, Gateway: f.gateway,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	f.sched = sched
	return f
}

func TestRunOnceDrivesAllJobs(t *testing.T) {
	f := setupScheduler(t, Config{})
	node, _ := snowflake.NewNode(1)
	first, second := node.Generate(), node.Generate()
	f.hosting.activeIDs = []snowflake.ID{first, second}
	f.billing.renewed = 2
	f.billing.expired = 1
	session := gatewaydomain.PaymentSession{ID: node.Generate()}
	f.gateway.pending = []gatewaydomain.PaymentSession{session}

	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if len(f.meter.sampled) != 2 {
		t.Fatalf("sampled = %v", f.meter.sampled)
	}
	if len(f.engine.evaluated) != 2 {
		t.Fatalf("evaluated = %v", f.engine.evaluated)
	}
	if len(f.gateway.confirmed) != 1 || f.gateway.confirmed[0] != session.ID {
		t.Fatalf("confirmed = %v", f.gateway.confirmed)
	}

	wantCutoff := f.clock.Now().Add(-DefaultConfig().SampleRetention)
	if !f.samples.cutoff.Equal(wantCutoff) {
		t.Fatalf("cutoff = %s, want %s", f.samples.cutoff, wantCutoff)
	}
}

func TestEvaluationInFlightIsTolerated(t *testing.T) {
	f := setupScheduler(t, Config{})
	node, _ := snowflake.NewNode(1)
	busy, free := node.Generate(), node.Generate()
	f.hosting.activeIDs = []snowflake.ID{busy, free}
	f.engine.inFlight = map[snowflake.ID]bool{busy: true}

	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(f.engine.evaluated) != 1 || f.engine.evaluated[0] != free {
		t.Fatalf("evaluated = %v", f.engine.evaluated)
	}
}

func TestUnsettledPaymentIsNotAnError(t *testing.T) {
	f := setupScheduler(t, Config{})
	node, _ := snowflake.NewNode(1)
	session := gatewaydomain.PaymentSession{ID: node.Generate()}
	f.gateway.pending = []gatewaydomain.PaymentSession{session}
	f.gateway.unsettled = map[snowflake.ID]bool{session.ID: true}

	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(f.gateway.confirmed) != 0 {
		t.Fatalf("confirmed = %v", f.gateway.confirmed)
	}
}

func TestEnabledJobsFilter(t *testing.T) {
	f := setupScheduler(t, Config{EnabledJobs: []string{"sample_usage"}})
	node, _ := snowflake.NewNode(1)
	f.hosting.activeIDs = []snowflake.ID{node.Generate()}
	f.gateway.pending = []gatewaydomain.PaymentSession{{ID: node.Generate()}}

	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(f.meter.sampled) != 1 {
		t.Fatalf("sampled = %v", f.meter.sampled)
	}
	if len(f.engine.evaluated) != 0 || len(f.gateway.confirmed) != 0 {
		t.Fatal("disabled jobs must not run")
	}
}

func TestJobErrorSurfaces(t *testing.T) {
	f := setupScheduler(t, Config{})
	f.billing.renewErr = fmt.Errorf("wallet backend down")

	err := f.sched.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected renew failure to surface")
	}
}
