package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"duebot/pkg/logx"
)

func openTestFile(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "store.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver must error")
	}
}

func TestFileTryMarkSent(t *testing.T) {
	t.Parallel()
	st := openTestFile(t)
	ctx := context.Background()

	ok, err := st.TryMarkSent(ctx, "global", "2025-06-02")
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v; want true", ok, err)
	}
	ok, err = st.TryMarkSent(ctx, "global", "2025-06-02")
	if err != nil || ok {
		t.Fatalf("repeat claim = %v, %v; want false", ok, err)
	}
	// A new date re-opens the scope.
	ok, err = st.TryMarkSent(ctx, "global", "2025-06-03")
	if err != nil || !ok {
		t.Fatalf("next-day claim = %v, %v; want true", ok, err)
	}
	// Scopes are independent.
	ok, err = st.TryMarkSent(ctx, "telegram", "2025-06-03")
	if err != nil || !ok {
		t.Fatalf("other-scope claim = %v, %v; want true", ok, err)
	}

	date, found, err := st.LastSent(ctx, "global")
	if err != nil || !found || date != "2025-06-03" {
		t.Fatalf("LastSent = %q, %v, %v", date, found, err)
	}
}

func TestFileTryMarkSentSingleWinner(t *testing.T) {
	t.Parallel()
	st := openTestFile(t)
	ctx := context.Background()

	const callers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := st.TryMarkSent(ctx, "global", "2025-06-02")
			if err != nil {
				t.Errorf("TryMarkSent: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
}

func TestFileSettingsRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	want := Settings{
		Enabled:              true,
		CheckIntervalMinutes: 30,
		NotificationHour:     9,
		Timezone:             "Asia/Taipei",
	}
	if err := st.SaveSettings(ctx, "global", want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if _, err := st.TryMarkSent(ctx, "global", "2025-06-02"); err != nil {
		t.Fatalf("TryMarkSent: %v", err)
	}
	st.Close()

	// Reopen: both settings and marks survive the restart.
	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	got, found, err := st.LoadSettings(ctx, "global")
	if err != nil || !found {
		t.Fatalf("LoadSettings = %v, %v", found, err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
	if ok, _ := st.TryMarkSent(ctx, "global", "2025-06-02"); ok {
		t.Fatal("dedup mark must survive reopen")
	}
}

func TestFileLoadSettingsMissingScope(t *testing.T) {
	t.Parallel()
	st := openTestFile(t)
	if _, found, err := st.LoadSettings(context.Background(), "nope"); err != nil || found {
		t.Fatalf("missing scope: found=%v err=%v", found, err)
	}
}

func TestFileMalformedStartsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open over malformed file: %v", err)
	}
	defer st.Close()

	if _, found, _ := st.LoadSettings(context.Background(), "global"); found {
		t.Fatal("malformed store must start empty")
	}
	if ok, err := st.TryMarkSent(context.Background(), "global", "2025-06-02"); err != nil || !ok {
		t.Fatalf("claim on fresh store = %v, %v; want true", ok, err)
	}
}
