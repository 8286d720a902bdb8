package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PatternPulse/internal/breaker"
	models "PatternPulse/internal/domain/models"
	"PatternPulse/internal/eventbus"
	"PatternPulse/internal/rescache"
	"PatternPulse/internal/subscribers"
	"PatternPulse/internal/workqueue"
	"PatternPulse/pkg/cache"
	xhttp "PatternPulse/pkg/http"

	"github.com/labstack/echo/v4"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testDeps struct {
	handler  *OpsHandler
	breakers *breaker.Registry
	queue    *workqueue.Queue
	manager  *workqueue.Manager
	rescache *rescache.Cache
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()

	rc := rescache.New(rescache.WithTTL(time.Minute), rescache.WithCleanupInterval(time.Hour))
	t.Cleanup(rc.Close)
	bus := eventbus.NewBus()
	reg := breaker.NewRegistry()
	q := workqueue.NewQueue(workqueue.WithMaxSize(16))
	mgr := workqueue.NewManager()

	h := NewOpsHandler(nil, reg, rc, bus, q, mgr)
	return &testDeps{handler: h, breakers: reg, queue: q, manager: mgr, rescache: rc}
}

func doJSON(t *testing.T, fn echo.HandlerFunc, method, target, body string, params ...string) envelope {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for i := 0; i+1 < len(params); i += 2 {
		c.SetParamNames(params[i])
		c.SetParamValues(params[i+1])
	}

	if err := fn(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK && rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected http code %d", rec.Code)
	}

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
	}
	return env
}

func TestListBreakersReportsOpenCircuit(t *testing.T) {
	d := newTestDeps(t)

	b := d.breakers.Get("AAPL")
	for i := 0; i < breaker.DefaultThreshold; i++ {
		b.RecordFailure()
	}

	env := doJSON(t, d.handler.ListBreakers, http.MethodGet, "/api/breakers", "")
	if env.Status != http.StatusOK {
		t.Fatalf("unexpected status %d", env.Status)
	}

	var list struct {
		Rows  []breaker.Snapshot `json:"rows"`
		Total int64              `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if list.Total != 1 || len(list.Rows) != 1 {
		t.Fatalf("expected one breaker, got %d", list.Total)
	}
	if list.Rows[0].State != breaker.StateOpen {
		t.Fatalf("expected OPEN, got %s", list.Rows[0].State)
	}
}

func TestResetBreakerClosesCircuit(t *testing.T) {
	d := newTestDeps(t)

	b := d.breakers.Get("TSLA")
	for i := 0; i < breaker.DefaultThreshold; i++ {
		b.RecordFailure()
	}

	env := doJSON(t, d.handler.ResetBreaker, http.MethodPost, "/api/breakers/TSLA/reset", "", "symbol", "TSLA")
	if env.Status != http.StatusOK {
		t.Fatalf("unexpected status %d", env.Status)
	}
	if b.State() != breaker.StateClosed {
		t.Fatalf("expected CLOSED after reset, got %s", b.State())
	}
}

func TestGetBreakerUnknownSymbol(t *testing.T) {
	d := newTestDeps(t)

	env := doJSON(t, d.handler.GetBreaker, http.MethodGet, "/api/breakers/GOOG", "", "symbol", "GOOG")
	if env.Status != http.StatusNotFound {
		t.Fatalf("expected 404 envelope, got %d", env.Status)
	}
}

func TestSetPriorityUpdatesManager(t *testing.T) {
	d := newTestDeps(t)

	env := doJSON(t, d.handler.SetPriority, http.MethodPut, "/api/priority",
		`{"symbol":"NVDA","priority":"high"}`)
	if env.Status != http.StatusOK {
		t.Fatalf("unexpected status %d", env.Status)
	}
	if got := d.manager.PriorityFor("NVDA"); got != workqueue.PriorityHigh {
		t.Fatalf("expected HIGH, got %s", got)
	}
}

func TestSetPriorityRejectsMissingSymbol(t *testing.T) {
	d := newTestDeps(t)

	env := doJSON(t, d.handler.SetPriority, http.MethodPut, "/api/priority",
		`{"priority":"high"}`)
	if env.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 envelope, got %d", env.Status)
	}
}

func TestSetPriorityRejectsUnknownLevel(t *testing.T) {
	d := newTestDeps(t)

	env := doJSON(t, d.handler.SetPriority, http.MethodPut, "/api/priority",
		`{"symbol":"NVDA","priority":"urgent"}`)
	if env.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 envelope, got %d", env.Status)
	}
}

func TestQueueStatsReportsDepth(t *testing.T) {
	d := newTestDeps(t)

	if err := d.queue.Put("AAPL", nil, workqueue.PriorityMedium); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := d.queue.Put("MSFT", nil, workqueue.PriorityHigh); err != nil {
		t.Fatalf("put: %v", err)
	}

	env := doJSON(t, d.handler.QueueStats, http.MethodGet, "/api/queue/stats", "")
	var stats struct {
		Depth int `json:"depth"`
	}
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Depth != 2 {
		t.Fatalf("expected depth 2, got %d", stats.Depth)
	}
}

func TestCacheStatsCountsHits(t *testing.T) {
	d := newTestDeps(t)

	key := rescache.Key{Namespace: rescache.NSVolume, Symbol: "AAPL", Timeframe: "15m"}
	d.rescache.Set(key, 42)
	if _, ok := d.rescache.Get(key); !ok {
		t.Fatalf("expected hit")
	}

	env := doJSON(t, d.handler.CacheStats, http.MethodGet, "/api/cache/stats", "")
	var stats rescache.Stats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Hits != 1 || stats.Size != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestLatestSignalServedFromCache(t *testing.T) {
	d := newTestDeps(t)

	svc := cache.NewMemoryCache()
	t.Cleanup(func() { svc.Close() })
	d.handler.SetCache(svc)

	sig := &models.PatternSignal{
		ID:     "sig-1",
		Symbol: "NVDA",
		Entry:  101,
	}
	if err := svc.Set(context.Background(), subscribers.LatestSignalKey("NVDA"), sig, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}

	env := doJSON(t, d.handler.LatestSignal, http.MethodGet, "/api/signals/latest?symbol=NVDA", "")
	if env.Status != http.StatusOK {
		t.Fatalf("unexpected status %d", env.Status)
	}
	var got models.PatternSignal
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode signal: %v", err)
	}
	if got.ID != "sig-1" || got.Symbol != "NVDA" {
		t.Fatalf("unexpected signal %+v", got)
	}
}

func TestLatestSignalRequiresSymbol(t *testing.T) {
	d := newTestDeps(t)

	env := doJSON(t, d.handler.LatestSignal, http.MethodGet, "/api/signals/latest", "")
	if env.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 envelope, got %d", env.Status)
	}
}

func TestHealthWithoutStore(t *testing.T) {
	d := newTestDeps(t)

	env := doJSON(t, d.handler.Health, http.MethodGet, "/health", "")
	if env.Status != http.StatusOK {
		t.Fatalf("unexpected status %d", env.Status)
	}
}

type fakeSignalStore struct {
	sigs     []*models.PatternSignal
	queryErr error
}

func (f *fakeSignalStore) Init(context.Context) error                         { return nil }
func (f *fakeSignalStore) Store(context.Context, *models.PatternSignal) error { return nil }
func (f *fakeSignalStore) StoreBatch(context.Context, []*models.PatternSignal) error {
	return nil
}
func (f *fakeSignalStore) Query(context.Context, string, time.Time, time.Time, int) ([]*models.PatternSignal, error) {
	return f.sigs, f.queryErr
}
func (f *fakeSignalStore) Health(context.Context) error { return nil }
func (f *fakeSignalStore) Close() error                 { return nil }

func TestListSignalsStoreFailure(t *testing.T) {
	d := newTestDeps(t)
	d.handler.SetSignalStore(&fakeSignalStore{queryErr: errors.New("connection refused")})

	env := doJSON(t, d.handler.ListSignals, http.MethodGet, "/api/signals?symbol=AAPL", "")
	if env.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 envelope, got %d", env.Status)
	}
	var appErrs []*xhttp.AppError
	if err := json.Unmarshal(env.Data, &appErrs); err != nil {
		t.Fatalf("decode errors: %v", err)
	}
	if len(appErrs) != 1 || appErrs[0].Code != "ERR_INTERNAL" {
		t.Fatalf("unexpected error payload %+v", appErrs)
	}
}

// jsonCache round-trips values through JSON the way the redis-backed
// Service does, so cached structs come back as decoded copies rather
// than the stored pointers.
type jsonCache struct {
	data map[string][]byte
}

func newJSONCache() *jsonCache { return &jsonCache{data: make(map[string][]byte)} }

func (j *jsonCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	j.data[key] = b
	return nil
}

func (j *jsonCache) Get(_ context.Context, key string, dest interface{}) error {
	b, ok := j.data[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (j *jsonCache) Delete(_ context.Context, keys ...string) error { return nil }
func (j *jsonCache) Exists(_ context.Context, keys ...string) (bool, error) {
	return false, nil
}
func (j *jsonCache) Increment(_ context.Context, _ string) (int64, error) { return 0, nil }
func (j *jsonCache) Expire(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return false, nil
}
func (j *jsonCache) Close() error { return nil }

func TestLatestSignalFromSerializingCache(t *testing.T) {
	d := newTestDeps(t)

	svc := newJSONCache()
	d.handler.SetCache(svc)

	sig := &models.PatternSignal{
		ID:     "sig-2",
		Symbol: "MSFT",
		Entry:  310,
	}
	if err := svc.Set(context.Background(), subscribers.LatestSignalKey("MSFT"), sig, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}

	env := doJSON(t, d.handler.LatestSignal, http.MethodGet, "/api/signals/latest?symbol=MSFT", "")
	if env.Status != http.StatusOK {
		t.Fatalf("unexpected status %d", env.Status)
	}
	var got models.PatternSignal
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode signal: %v", err)
	}
	if got.ID != "sig-2" || got.Entry != 310 {
		t.Fatalf("unexpected signal %+v", got)
	}
}
