package scheduler

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// recorder collects system names in execution order
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) system(name string) SystemFunc {
	return func() error {
		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.mu.Unlock()
		return nil
	}
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func TestPoolsRunInOrder(t *testing.T) {
	s := New()
	rec := &recorder{}
	s.AddSystem("late", rec.system("late"), InPool(90), ExecuteInMainThread())
	s.AddSystem("default", rec.system("default"), ExecuteInMainThread())
	s.AddSystem("early", rec.system("early"), InPool(5), ExecuteInMainThread())
	s.AddSystem("early2", rec.system("early2"), InPool(5), ExecuteInMainThread())

	if err := s.RunFrame(); err != nil {
		t.Fatalf("RunFrame() error = %v", err)
	}
	want := []string{"early", "early2", "default", "late"}
	if got := rec.list(); !slices.Equal(got, want) {
		t.Errorf("execution order = %v, want %v", got, want)
	}
}

func TestParallelPoolRunsEverySystem(t *testing.T) {
	s := New(WithParallelism(4))
	var count atomic.Int32
	for range 32 {
		s.AddSystem("inc", func() error {
			count.Add(1)
			return nil
		})
	}
	if err := s.RunFrame(); err != nil {
		t.Fatal(err)
	}
	if n := count.Load(); n != 32 {
		t.Errorf("%d systems ran, want 32", n)
	}
}

func TestPauseGating(t *testing.T) {
	tests := []struct {
		name   string
		paused bool
		want   []string
	}{
		{"Unpaused runs everything", false, []string{"always", "normal"}},
		{"Paused runs only ignore-pause systems", true, []string{"always"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(WithPaused(tt.paused))
			rec := &recorder{}
			s.AddSystem("always", rec.system("always"), IgnorePause(), ExecuteInMainThread())
			s.AddSystem("normal", rec.system("normal"), ExecuteInMainThread())
			if err := s.RunFrame(); err != nil {
				t.Fatal(err)
			}
			if got := rec.list(); !slices.Equal(got, tt.want) {
				t.Errorf("ran %v, want %v", got, tt.want)
			}
		})
	}
}

// TestPauseEdges checks that each unpause fires the unpaused startup systems
// once and each pause fires their disposes once
func TestPauseEdges(t *testing.T) {
	s := New(WithPaused(true))
	var starts, disposes, alwaysStarts, alwaysDisposes int
	s.AddStartupSystem("level", func() (Dispose, error) {
		starts++
		return func() error {
			disposes++
			return nil
		}, nil
	}, ExecuteInMainThread())
	s.AddStartupSystem("assets", func() (Dispose, error) {
		alwaysStarts++
		return func() error {
			alwaysDisposes++
			return nil
		}, nil
	}, IgnorePause(), ExecuteInMainThread())

	steps := []struct {
		name         string
		action       func() error
		wantStarts   int
		wantDisposes int
	}{
		{"RunStart while paused", s.RunStart, 0, 0},
		{"Unpause", func() error { return s.SetPaused(false) }, 1, 0},
		{"Unpause again is not an edge", func() error { return s.SetPaused(false) }, 1, 0},
		{"Pause", func() error { return s.SetPaused(true) }, 1, 1},
		{"Pause again is not an edge", func() error { return s.SetPaused(true) }, 1, 1},
		{"Unpause after pause", func() error { return s.SetPaused(false) }, 2, 1},
		{"RunEnd disposes", s.RunEnd, 2, 2},
		{"RunEnd twice", s.RunEnd, 2, 2},
	}
	for _, step := range steps {
		if err := step.action(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if starts != step.wantStarts || disposes != step.wantDisposes {
			t.Errorf("%s: starts=%d disposes=%d, want %d/%d",
				step.name, starts, disposes, step.wantStarts, step.wantDisposes)
		}
	}
	if alwaysStarts != 1 || alwaysDisposes != 1 {
		t.Errorf("ignore-pause startup ran %d times, disposed %d times, want once each", alwaysStarts, alwaysDisposes)
	}
}

func TestRunStartUnpaused(t *testing.T) {
	s := New()
	starts := 0
	s.AddStartupSystem("level", func() (Dispose, error) {
		starts++
		return nil, nil
	})
	if err := s.SetPaused(true); err != nil {
		t.Fatal(err)
	}
	if starts != 0 {
		t.Errorf("pause edge before RunStart ran startup systems")
	}
	s.SetPaused(false)
	if err := s.RunStart(); err != nil {
		t.Fatal(err)
	}
	s.RunStart()
	if starts != 1 {
		t.Errorf("startup ran %d times, want 1", starts)
	}
}

// TestPauseDuringStartupIsDeferred checks that a pause requested by a startup
// system takes effect once its batch ends
func TestPauseDuringStartupIsDeferred(t *testing.T) {
	s := New()
	var starts, disposes int
	s.AddStartupSystem("level", func() (Dispose, error) {
		starts++
		return func() error {
			disposes++
			return nil
		}, nil
	}, ExecuteInMainThread())
	s.AddStartupSystem("menu", func() (Dispose, error) {
		if err := s.SetPaused(true); err != nil {
			return nil, err
		}
		if s.IsPaused() {
			t.Errorf("pause applied in the middle of the startup batch")
		}
		return nil, nil
	}, IgnorePause(), ExecuteInMainThread())

	if err := s.RunStart(); err != nil {
		t.Fatal(err)
	}
	if !s.IsPaused() {
		t.Fatalf("pause requested during RunStart not applied")
	}
	if starts != 0 {
		t.Errorf("unpaused startup ran %d times while paused", starts)
	}
	if err := s.SetPaused(false); err != nil {
		t.Fatal(err)
	}
	if starts != 1 || disposes != 0 {
		t.Errorf("after unpause starts=%d disposes=%d, want 1/0", starts, disposes)
	}
}

func TestPauseFromUnpausedStartupDisposesBatch(t *testing.T) {
	s := New(WithPaused(true))
	var starts, disposes int
	s.AddStartupSystem("cutscene", func() (Dispose, error) {
		starts++
		if err := s.SetPaused(true); err != nil {
			return nil, err
		}
		return func() error {
			disposes++
			return nil
		}, nil
	}, ExecuteInMainThread())

	if err := s.RunStart(); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPaused(false); err != nil {
		t.Fatal(err)
	}
	if !s.IsPaused() {
		t.Errorf("pause requested by an unpaused startup system not applied")
	}
	if starts != 1 || disposes != 1 {
		t.Errorf("starts=%d disposes=%d, want 1/1", starts, disposes)
	}
	if err := s.RunEnd(); err != nil {
		t.Fatal(err)
	}
	if disposes != 1 {
		t.Errorf("RunEnd disposed the batch again")
	}
}

func TestPauseDuringFrameIsDeferred(t *testing.T) {
	s := New()
	rec := &recorder{}
	s.AddSystem("pauser", func() error {
		if err := s.SetPaused(true); err != nil {
			return err
		}
		if s.IsPaused() {
			t.Errorf("pause applied in the middle of a frame")
		}
		return nil
	}, InPool(1), ExecuteInMainThread())
	s.AddSystem("later", rec.system("later"), InPool(2))

	if err := s.RunFrame(); err != nil {
		t.Fatal(err)
	}
	if !s.IsPaused() {
		t.Fatalf("pause not applied after the frame")
	}
	if got := rec.list(); len(got) != 1 {
		t.Errorf("later pool ran %d times in the pausing frame, want 1", len(got))
	}

	s.RunFrame()
	if got := rec.list(); len(got) != 1 {
		t.Errorf("paused frame ran the later pool")
	}
}

func TestFailureAbortsFrame(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		system  SystemFunc
		wantErr func(error) bool
	}{
		{
			name:    "Error",
			system:  func() error { return boom },
			wantErr: func(err error) bool { return errors.Is(err, boom) },
		},
		{
			name:    "Panic",
			system:  func() error { panic("kaboom") },
			wantErr: func(err error) bool { return strings.Contains(err.Error(), "kaboom") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			rec := &recorder{}
			s.AddSystem("failing", tt.system, InPool(1))
			s.AddSystem("next", rec.system("next"), InPool(2))

			err := s.RunFrame()
			if err == nil || !tt.wantErr(err) {
				t.Fatalf("RunFrame() error = %v", err)
			}
			if got := rec.list(); len(got) != 0 {
				t.Errorf("pool after the failure ran: %v", got)
			}
		})
	}
}

func TestMainThreadFailureSkipsRemaining(t *testing.T) {
	s := New()
	rec := &recorder{}
	s.AddSystem("first", func() error { return errors.New("stop") }, ExecuteInMainThread())
	s.AddSystem("second", rec.system("second"), ExecuteInMainThread())
	if err := s.RunFrame(); err == nil {
		t.Fatalf("RunFrame() succeeded")
	}
	if got := rec.list(); len(got) != 0 {
		t.Errorf("main-thread system ran after a failure: %v", got)
	}
}

func TestDisabledPool(t *testing.T) {
	s := New()
	rec := &recorder{}
	s.AddSystem("optional", rec.system("optional"), InPool(3))
	s.DisablePool(3)

	s.RunFrame()
	if got := rec.list(); len(got) != 0 {
		t.Errorf("disabled pool ran in a frame: %v", got)
	}
	if err := s.RunPool(3); err != nil {
		t.Fatal(err)
	}
	s.EnablePool(3)
	s.RunFrame()
	if got := rec.list(); len(got) != 2 {
		t.Errorf("pool ran %d times, want 2", len(got))
	}
	if err := s.RunPool(99); err != nil {
		t.Errorf("RunPool on an unknown pool error = %v", err)
	}
}

func TestUnloadOrigin(t *testing.T) {
	s := New()
	rec := &recorder{}
	disposed := 0
	s.AddSystem("hud", rec.system("hud"), FromOrigin("hud"), ExecuteInMainThread())
	s.AddSystem("core", rec.system("core"), ExecuteInMainThread())
	s.AddStartupSystem("hud-setup", func() (Dispose, error) {
		return func() error {
			disposed++
			return nil
		}, nil
	}, FromOrigin("hud"))

	if err := s.RunStart(); err != nil {
		t.Fatal(err)
	}
	if err := s.UnloadOrigin("hud"); err != nil {
		t.Fatal(err)
	}
	if disposed != 1 {
		t.Errorf("origin disposes ran %d times, want 1", disposed)
	}
	s.RunFrame()
	if got := rec.list(); !slices.Equal(got, []string{"core"}) {
		t.Errorf("ran %v after unload, want [core]", got)
	}

	// an unpause no longer restarts the unloaded startup system
	s.SetPaused(true)
	s.SetPaused(false)
	s.RunEnd()
	if disposed != 1 {
		t.Errorf("unloaded startup system came back: disposed=%d", disposed)
	}
}
