package driver_test

import (
	"context"
	"sync"
	"testing"

	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/driver"
	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/scenario"
	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/store"
)

// fakeTransport records every outbound call for assertion, matching the
// end-to-end walkthrough in spec §8.
type fakeTransport struct {
	mu  sync.Mutex
	log []string
}

func (f *fakeTransport) Send(_ context.Context, userKey, text string) error {
	f.record("send:" + userKey + ":" + text)
	return nil
}

func (f *fakeTransport) AskText(_ context.Context, userKey, prompt string) error {
	f.record("ask_text:" + userKey + ":" + prompt)
	return nil
}

func (f *fakeTransport) AskChoice(_ context.Context, userKey, prompt string, options []driver.ChoiceOption) error {
	f.record("ask_choice:" + userKey + ":" + prompt)
	return nil
}

func (f *fakeTransport) record(entry string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, entry)
}

func (f *fakeTransport) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.log))
	copy(out, f.log)
	return out
}

const ageGateDoc = `{
	"BotName": "age-gate",
	"Start": "11111111-1111-1111-1111-111111111111",
	"Final": "77777777-7777-7777-7777-777777777777",
	"GlobalVariables": [],
	"Blocks": [
		{"Block_id": "11111111-1111-1111-1111-111111111111", "Type": "start", "Connections": {"In": [], "Out": ["22222222-2222-2222-2222-222222222222"]}},
		{"Block_id": "22222222-2222-2222-2222-222222222222", "Type": "sendMessage", "Connections": {"In": ["11111111-1111-1111-1111-111111111111"], "Out": ["33333333-3333-3333-3333-333333333333"]},
		 "Params": {"message": "Hello ${first_name}"}},
		{"Block_id": "33333333-3333-3333-3333-333333333333", "Type": "getMessage", "Connections": {"In": ["22222222-2222-2222-2222-222222222222"], "Out": ["44444444-4444-4444-4444-444444444444"]},
		 "Params": {"message": "Age?", "var": "age", "type": "number"}},
		{"Block_id": "44444444-4444-4444-4444-444444444444", "Type": "condition", "Connections": {"In": ["33333333-3333-3333-3333-333333333333"], "Out": ["55555555-5555-5555-5555-555555555555", "66666666-6666-6666-6666-666666666666"]},
		 "Params": {"condition": "age >= 18"}},
		{"Block_id": "55555555-5555-5555-5555-555555555555", "Type": "sendMessage", "Connections": {"In": ["44444444-4444-4444-4444-444444444444"], "Out": ["77777777-7777-7777-7777-777777777777"]},
		 "Params": {"message": "Adult"}},
		{"Block_id": "66666666-6666-6666-6666-666666666666", "Type": "sendMessage", "Connections": {"In": ["44444444-4444-4444-4444-444444444444"], "Out": ["77777777-7777-7777-7777-777777777777"]},
		 "Params": {"message": "Minor"}},
		{"Block_id": "77777777-7777-7777-7777-777777777777", "Type": "final", "Connections": {"In": ["55555555-5555-5555-5555-555555555555", "66666666-6666-6666-6666-666666666666"], "Out": []}}
	]
}`

func newTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	t.Setenv("SCENARIO_DATA_DIR", t.TempDir())
	return store.NewMemoryStore()
}

func newAgeGateDriver(t *testing.T) (*driver.Driver, *fakeTransport) {
	t.Helper()
	sc, err := scenario.Validate([]byte(ageGateDoc))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	st := newTestStore(t)
	tr := &fakeTransport{}
	return driver.New(sc, st, tr), tr
}

func TestDriver_EndToEnd_Adult(t *testing.T) {
	d, tr := newAgeGateDriver(t)
	ctx := context.Background()

	if err := d.Start(ctx, "u1", map[string]any{"first_name": "Ada"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	calls := tr.calls()
	if len(calls) != 2 || calls[0] != "send:u1:Hello Ada" || calls[1] != "ask_text:u1:Age?" {
		t.Fatalf("unexpected calls after Start: %v", calls)
	}

	active, exists, err := d.Status(ctx, "u1")
	if err != nil || !exists || !active {
		t.Fatalf("Status() = (%v, %v, %v), want (true, true, nil)", active, exists, err)
	}

	if err := d.Resume(ctx, "u1", "30"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	calls = tr.calls()
	last := calls[len(calls)-2:]
	if last[0] != "send:u1:Adult" {
		t.Errorf("calls = %v, want Adult send before final summary", calls)
	}
	active, exists, err = d.Status(ctx, "u1")
	if err != nil || !exists || active {
		t.Fatalf("Status() after final = (%v, %v, %v), want (false, true, nil)", active, exists, err)
	}
}

func TestDriver_EndToEnd_MinorBranch(t *testing.T) {
	d, tr := newAgeGateDriver(t)
	ctx := context.Background()

	if err := d.Start(ctx, "u2", map[string]any{"first_name": "Lee"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := d.Resume(ctx, "u2", "17"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	calls := tr.calls()
	foundMinor := false
	for _, c := range calls {
		if c == "send:u2:Minor" {
			foundMinor = true
		}
	}
	if !foundMinor {
		t.Errorf("calls = %v, want a Minor send", calls)
	}
}

func TestDriver_CoercionError_StaysAtStep1(t *testing.T) {
	d, tr := newAgeGateDriver(t)
	ctx := context.Background()

	if err := d.Start(ctx, "u3", map[string]any{"first_name": "Sam"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := d.Resume(ctx, "u3", "seventeen"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	active, exists, err := d.Status(ctx, "u3")
	if err != nil || !exists || !active {
		t.Fatalf("Status() = (%v, %v, %v), want (true, true, nil) — coercion failure must not terminate", active, exists, err)
	}

	calls := tr.calls()
	if calls[len(calls)-1] == "" {
		t.Fatal("expected an error hint to be sent")
	}

	if err := d.Resume(ctx, "u3", "17"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	found := false
	for _, c := range tr.calls() {
		if c == "send:u3:Minor" {
			found = true
		}
	}
	if !found {
		t.Errorf("retry with valid input did not reach Minor branch")
	}
}

func TestDriver_StartTwice_ResetsSession(t *testing.T) {
	d, _ := newAgeGateDriver(t)
	ctx := context.Background()

	if err := d.Start(ctx, "u4", map[string]any{"first_name": "A"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := d.Resume(ctx, "u4", "30"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	active, _, _ := d.Status(ctx, "u4")
	if active {
		t.Fatal("expected session to be inactive after reaching final")
	}

	if err := d.Start(ctx, "u4", map[string]any{"first_name": "B"}); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	active, exists, err := d.Status(ctx, "u4")
	if err != nil || !exists || !active {
		t.Fatalf("Status() after second Start = (%v, %v, %v), want (true, true, nil)", active, exists, err)
	}
}

func TestDriver_ResumeOnInactiveSession_SendsRestartHint(t *testing.T) {
	d, tr := newAgeGateDriver(t)
	ctx := context.Background()

	if err := d.Start(ctx, "u5", map[string]any{"first_name": "A"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := d.Resume(ctx, "u5", "30"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	if err := d.Resume(ctx, "u5", "anything"); err != nil {
		t.Fatalf("Resume() on inactive session error = %v", err)
	}
	calls := tr.calls()
	last := calls[len(calls)-1]
	if last == "" || last[:5] != "send:" {
		t.Errorf("expected a restart-hint send, got %v", calls)
	}
}

func TestDriver_ResumeOnAbsentSession_TreatedAsStart(t *testing.T) {
	d, tr := newAgeGateDriver(t)
	ctx := context.Background()

	if err := d.Resume(ctx, "brand-new", "ignored input"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	active, exists, err := d.Status(ctx, "brand-new")
	if err != nil || !exists || !active {
		t.Fatalf("Status() = (%v, %v, %v), want (true, true, nil)", active, exists, err)
	}
	calls := tr.calls()
	if len(calls) == 0 {
		t.Fatal("expected Start side effects on a resume with no prior session")
	}
}

const choiceDoc = `{
	"BotName": "choice-bot",
	"Start": "aaaaaaaa-0000-0000-0000-000000000001",
	"Final": "aaaaaaaa-0000-0000-0000-000000000005",
	"GlobalVariables": [],
	"Blocks": [
		{"Block_id": "aaaaaaaa-0000-0000-0000-000000000001", "Type": "start", "Connections": {"In": [], "Out": ["aaaaaaaa-0000-0000-0000-000000000002"]}},
		{"Block_id": "aaaaaaaa-0000-0000-0000-000000000002", "Type": "choice", "Connections": {"In": ["aaaaaaaa-0000-0000-0000-000000000001"], "Out": ["aaaaaaaa-0000-0000-0000-000000000003", "aaaaaaaa-0000-0000-0000-000000000004"]},
		 "Params": {"prompt": "Yes or no?", "var": "answer", "options": [{"id": "a", "label": "Yes", "value": true}, {"id": "b", "label": "No", "value": false}]}},
		{"Block_id": "aaaaaaaa-0000-0000-0000-000000000003", "Type": "final", "Connections": {"In": ["aaaaaaaa-0000-0000-0000-000000000002"], "Out": []}},
		{"Block_id": "aaaaaaaa-0000-0000-0000-000000000004", "Type": "final", "Connections": {"In": ["aaaaaaaa-0000-0000-0000-000000000002"], "Out": []}}
	]
}`

func TestDriver_Choice_StaleOptionThenValid(t *testing.T) {
	sc, err := scenario.Validate([]byte(choiceDoc))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	st := newTestStore(t)
	tr := &fakeTransport{}
	d := driver.New(sc, st, tr)
	ctx := context.Background()

	if err := d.Start(ctx, "u6", nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := d.Resume(ctx, "u6", "unknown"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	active, _, _ := d.Status(ctx, "u6")
	if !active {
		t.Fatal("stale choice must not terminate the session")
	}

	if err := d.Resume(ctx, "u6", "a"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	active, exists, err := d.Status(ctx, "u6")
	if err != nil || !exists || active {
		t.Fatalf("Status() after valid choice = (%v, %v, %v), want (false, true, nil)", active, exists, err)
	}
}

func TestDriver_ConcurrentResumes_SerializePerUser(t *testing.T) {
	d, tr := newAgeGateDriver(t)
	ctx := context.Background()

	if err := d.Start(ctx, "u7", map[string]any{"first_name": "A"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = d.Resume(ctx, "u7", "30")
		}(i)
	}
	wg.Wait()

	// Whichever resume "wins" first reaching final, subsequent ones must
	// observe a terminated session and only emit a restart hint — never a
	// second walk through the graph.
	active, exists, err := d.Status(ctx, "u7")
	if err != nil || !exists {
		t.Fatalf("Status() = (%v, %v, %v)", active, exists, err)
	}
	adultSends := 0
	for _, c := range tr.calls() {
		if c == "send:u7:Adult" {
			adultSends++
		}
	}
	if adultSends != 1 {
		t.Errorf("Adult sent %d times, want exactly 1 (a single walk through the graph)", adultSends)
	}
}
