package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"duebot/internal/bindings"
	"duebot/internal/deadline"
	"duebot/internal/transport"
	"duebot/pkg/logx"
)

var cycleNow = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

// fakeSender records sends and fails for recipients listed in failFor.
type fakeSender struct {
	platform transport.Platform
	readyErr error
	failFor  map[string]bool
	delay    time.Duration

	mu    sync.Mutex
	sends []string
	texts map[string]string
}

func newFakeSender(p transport.Platform) *fakeSender {
	return &fakeSender{platform: p, failFor: map[string]bool{}, texts: map[string]string{}}
}

func (f *fakeSender) Platform() transport.Platform    { return f.platform }
func (f *fakeSender) Ready() error                    { return f.readyErr }
func (f *fakeSender) Check(ctx context.Context) error { return f.readyErr }

func (f *fakeSender) SendToRecipient(ctx context.Context, id, text string) transport.Outcome {
	return f.record(ctx, id, text, false)
}

func (f *fakeSender) SendToGroup(ctx context.Context, id, text string) transport.Outcome {
	return f.record(ctx, id, text, true)
}

func (f *fakeSender) record(ctx context.Context, id, text string, group bool) transport.Outcome {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return transport.Failed(f.platform, id, group, ctx.Err())
		}
	}
	f.mu.Lock()
	f.sends = append(f.sends, id)
	f.texts[id] = text
	f.mu.Unlock()
	if f.failFor[id] {
		return transport.Failed(f.platform, id, group, errors.New("boom"))
	}
	return transport.Delivered(f.platform, id, group)
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sends...)
}

func testItems() []deadline.Item {
	return []deadline.Item{
		{ID: "t1", Kind: deadline.KindTask, Title: "Alpha", DueDate: cycleNow, AssigneeID: "u1", Progress: 40},
		{ID: "t2", Kind: deadline.KindTask, Title: "Beta", DueDate: cycleNow.AddDate(0, 0, 1), AssigneeID: "u2", Progress: 10},
		{ID: "t3", Kind: deadline.KindTask, Title: "Gamma", DueDate: cycleNow.AddDate(0, 0, -1), AssigneeID: "u3", Progress: 0},
	}
}

func testBindings(p transport.Platform) []bindings.Binding {
	return []bindings.Binding{
		{UserID: "u1", Platform: p, ExternalID: "100", Active: true},
		{UserID: "u2", Platform: p, ExternalID: "200", Active: true},
		{UserID: "u3", Platform: p, ExternalID: "300", Active: true},
	}
}

func utcOf(string) string { return "UTC" }

func TestCycleCountsSuccessesAndFailures(t *testing.T) {
	t.Parallel()
	f := newFakeSender(transport.PlatformTelegram)
	f.failFor["200"] = true

	d := New([]transport.Sender{f}, Options{}, logx.Nop())
	rep := d.Cycle(context.Background(), testItems(), testBindings(transport.PlatformTelegram), nil, utcOf, cycleNow)

	pr := rep.Platforms[transport.PlatformTelegram]
	if pr == nil {
		t.Fatal("missing platform report")
	}
	if pr.Attempted != 3 || pr.Succeeded != 2 || len(pr.Failures) != 1 {
		t.Fatalf("report = %+v", pr)
	}
	if pr.Failures[0].RecipientID != "200" {
		t.Fatalf("unexpected failure: %+v", pr.Failures[0])
	}
	// The failure did not block the other recipients.
	got := f.sent()
	if len(got) != 3 {
		t.Fatalf("expected 3 sends, got %v", got)
	}
}

func TestCyclePersonalDigestScopedToAssignee(t *testing.T) {
	t.Parallel()
	f := newFakeSender(transport.PlatformTelegram)
	d := New([]transport.Sender{f}, Options{}, logx.Nop())
	d.Cycle(context.Background(), testItems(), testBindings(transport.PlatformTelegram), nil, utcOf, cycleNow)

	f.mu.Lock()
	defer f.mu.Unlock()
	if !strings.Contains(f.texts["100"], "Alpha") || strings.Contains(f.texts["100"], "Beta") {
		t.Fatalf("u1 digest must contain only u1 items:\n%s", f.texts["100"])
	}
}

func TestCycleGroupGetsAggregateDigest(t *testing.T) {
	t.Parallel()
	f := newFakeSender(transport.PlatformTelegram)
	d := New([]transport.Sender{f}, Options{}, logx.Nop())
	groups := []GroupTarget{{Platform: transport.PlatformTelegram, TargetID: "-900", Timezone: "UTC"}}

	rep := d.Cycle(context.Background(), testItems(), testBindings(transport.PlatformTelegram), groups, utcOf, cycleNow)

	pr := rep.Platforms[transport.PlatformTelegram]
	if pr.Attempted != 4 {
		t.Fatalf("expected 3 personal + 1 group sends, got %d", pr.Attempted)
	}
	f.mu.Lock()
	text := f.texts["-900"]
	f.mu.Unlock()
	for _, want := range []string{"Alpha", "Beta", "Gamma"} {
		if !strings.Contains(text, want) {
			t.Fatalf("group digest missing %q:\n%s", want, text)
		}
	}
}

func TestCycleUnconfiguredPlatformReportedOnce(t *testing.T) {
	t.Parallel()
	f := newFakeSender(transport.PlatformLine)
	f.readyErr = transport.ErrNotConfigured

	d := New([]transport.Sender{f}, Options{}, logx.Nop())
	rep := d.Cycle(context.Background(), testItems(), testBindings(transport.PlatformLine), nil, utcOf, cycleNow)

	pr := rep.Platforms[transport.PlatformLine]
	if pr.Attempted != 1 || len(pr.Failures) != 1 {
		t.Fatalf("config error must be reported exactly once: %+v", pr)
	}
	if len(f.sent()) != 0 {
		t.Fatal("no sends may be attempted without credentials")
	}
}

func TestCycleSlowSenderOnlyStallsItsOwnSlot(t *testing.T) {
	t.Parallel()
	f := newFakeSender(transport.PlatformTelegram)
	f.delay = 50 * time.Millisecond

	d := New([]transport.Sender{f}, Options{PerSendTimeout: 10 * time.Millisecond}, logx.Nop())
	rep := d.Cycle(context.Background(), testItems(), testBindings(transport.PlatformTelegram), nil, utcOf, cycleNow)

	pr := rep.Platforms[transport.PlatformTelegram]
	if pr.Attempted != 3 || len(pr.Failures) != 3 {
		t.Fatalf("timed-out sends must be captured as failures: %+v", pr)
	}
}

func TestCycleNoItemsSkipsGroupSend(t *testing.T) {
	t.Parallel()
	f := newFakeSender(transport.PlatformTelegram)
	d := New([]transport.Sender{f}, Options{}, logx.Nop())
	groups := []GroupTarget{{Platform: transport.PlatformTelegram, TargetID: "-900"}}

	rep := d.Cycle(context.Background(), nil, testBindings(transport.PlatformTelegram), groups, utcOf, cycleNow)
	if rep.Attempted() != 0 {
		t.Fatalf("nothing due means nothing sent, got %d attempts", rep.Attempted())
	}
}
