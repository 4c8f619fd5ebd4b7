package runner

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/amkillam/transparent/internal/command"
)

func TestStrategyString(t *testing.T) {
	tests := []struct {
		strategy Strategy
		want     string
	}{
		{Auto, "auto"},
		{Native, "native"},
		{Delegated, "delegated"},
		{Strategy(42), "Strategy(42)"},
	}
	for _, tt := range tests {
		if got := tt.strategy.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestNewResolvesAuto(t *testing.T) {
	r, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	want := Delegated
	if runtime.GOOS == "windows" {
		want = Native
	}
	if r.Strategy() != want || DetectStrategy() != want {
		t.Fatalf("Strategy() = %s, want %s", r.Strategy(), want)
	}
}

func TestNewUnsupportedStrategy(t *testing.T) {
	other := Native
	if DetectStrategy() == Native {
		other = Delegated
	}
	if _, err := New(Config{Strategy: other}); !errors.Is(err, ErrUnsupportedStrategy) {
		t.Fatalf("expected ErrUnsupportedStrategy, got %v", err)
	}
}

func TestStartValidatesCommand(t *testing.T) {
	r, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := r.SpawnAndWait(context.Background(), command.New("")); !errors.Is(err, command.ErrEmptyProgram) {
		t.Fatalf("expected ErrEmptyProgram, got %v", err)
	}
	if _, err := r.SpawnNonBlocking(context.Background(), command.New(" ")); !errors.Is(err, command.ErrEmptyProgram) {
		t.Fatalf("expected ErrEmptyProgram, got %v", err)
	}
}

func TestStartCancelledContext(t *testing.T) {
	r, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Start(ctx, command.New("prog")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
