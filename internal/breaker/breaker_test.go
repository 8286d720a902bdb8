package breaker

import (
	"testing"
	"time"
)

func testRegistry(opts ...RegistryOption) *Registry {
	base := []RegistryOption{
		WithBackoff([]time.Duration{20 * time.Millisecond, 40 * time.Millisecond}),
	}
	return NewRegistry(append(base, opts...)...)
}

func TestOpensAfterThreshold(t *testing.T) {
	b := testRegistry().Get("AAPL")

	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Fatalf("expected CLOSED before threshold")
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected OPEN after %d failures", DefaultThreshold)
	}
	if b.CanExecute() {
		t.Fatalf("OPEN circuit must refuse immediately")
	}
}

func TestHalfOpenAdmitsExactlyOnce(t *testing.T) {
	b := testRegistry().Get("AAPL")
	for i := 0; i < DefaultThreshold; i++ {
		b.RecordFailure()
	}

	time.Sleep(25 * time.Millisecond)
	if !b.CanExecute() {
		t.Fatalf("expected trial admission after backoff elapsed")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN during trial")
	}
	if b.CanExecute() {
		t.Fatalf("only one trial may be admitted")
	}
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	b := testRegistry().Get("AAPL")
	for i := 0; i < DefaultThreshold; i++ {
		b.RecordFailure()
	}
	time.Sleep(25 * time.Millisecond)
	if !b.CanExecute() {
		t.Fatalf("expected trial admission")
	}

	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("expected CLOSED after trial success")
	}
	snap := b.Snapshot()
	if snap.ConsecutiveFailures != 0 {
		t.Fatalf("expected consecutive count zeroed")
	}
	if snap.RetryAttempt != 0 {
		t.Fatalf("expected retry attempt reset")
	}
}

func TestHalfOpenFailureReopensWithLongerDelay(t *testing.T) {
	b := testRegistry().Get("AAPL")
	for i := 0; i < DefaultThreshold; i++ {
		b.RecordFailure()
	}
	time.Sleep(25 * time.Millisecond)
	if !b.CanExecute() {
		t.Fatalf("expected first trial")
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected OPEN after trial failure")
	}

	// second backoff entry (40ms) now applies
	time.Sleep(25 * time.Millisecond)
	if b.CanExecute() {
		t.Fatalf("second probe must honor the longer delay")
	}
	time.Sleep(25 * time.Millisecond)
	if !b.CanExecute() {
		t.Fatalf("expected second trial after full delay")
	}
}

func TestBackoffClampsAtLastEntry(t *testing.T) {
	b := testRegistry().Get("AAPL")
	for i := 0; i < DefaultThreshold; i++ {
		b.RecordFailure()
	}

	// exhaust the two-entry schedule several times over
	for i := 0; i < 4; i++ {
		time.Sleep(50 * time.Millisecond)
		if !b.CanExecute() {
			t.Fatalf("probe %d: expected admission after clamped delay", i)
		}
		b.RecordFailure()
	}
	if b.Snapshot().RetryAttempt != 4 {
		t.Fatalf("expected retry attempt to keep counting")
	}
}

func TestResetForcesClosed(t *testing.T) {
	r := testRegistry()
	b := r.Get("AAPL")
	for i := 0; i < DefaultThreshold; i++ {
		b.RecordFailure()
	}

	if !r.Reset("AAPL") {
		t.Fatalf("expected reset of known symbol")
	}
	if b.State() != StateClosed {
		t.Fatalf("expected CLOSED after reset")
	}
	if !b.CanExecute() {
		t.Fatalf("expected admission after reset")
	}
	if r.Reset("UNKNOWN") {
		t.Fatalf("reset of unknown symbol must return false")
	}
}

func TestNotifyFiresOncePerTransition(t *testing.T) {
	transitions := make(chan State, 8)
	r := testRegistry(WithNotify(func(symbol string, from, to State) {
		transitions <- to
	}))
	b := r.Get("AAPL")

	for i := 0; i < DefaultThreshold; i++ {
		b.RecordFailure()
	}
	select {
	case to := <-transitions:
		if to != StateOpen {
			t.Fatalf("expected OPEN notification, got %s", to)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a transition notification")
	}

	// further failures while OPEN must not re-notify
	b.RecordFailure()
	select {
	case to := <-transitions:
		t.Fatalf("unexpected extra notification %s", to)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBreakersAreIndependent(t *testing.T) {
	r := testRegistry()
	bad := r.Get("BAD")
	good := r.Get("GOOD")

	for i := 0; i < DefaultThreshold; i++ {
		bad.RecordFailure()
	}
	if !good.CanExecute() {
		t.Fatalf("an open circuit must not throttle other symbols")
	}
	if len(r.Snapshots()) != 2 {
		t.Fatalf("expected 2 breakers in registry")
	}
}
