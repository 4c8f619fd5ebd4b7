package main

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/amkillam/transparent/internal/command"
)

func resetFlags(t *testing.T) {
	t.Helper()
	detach, dir, wrapper, profilePath = false, "", "", ""
	setEnv, unsetEnv = nil, nil
	t.Cleanup(func() {
		detach, dir, wrapper, profilePath = false, "", "", ""
		setEnv, unsetEnv = nil, nil
	})
}

func TestBuildCommandFromArgs(t *testing.T) {
	resetFlags(t)
	setEnv = []string{"X=1", "EMPTY="}
	unsetEnv = []string{"Y"}
	dir = "/work"

	cmd, blocking, err := buildCommand([]string{"prog", "a", "b"})
	if err != nil {
		t.Fatalf("buildCommand failed: %v", err)
	}
	if !blocking {
		t.Error("expected blocking mode by default")
	}
	if cmd.Program != "prog" || !slices.Equal(cmd.Args, []string{"a", "b"}) || cmd.Dir != "/work" {
		t.Fatalf("unexpected command: %+v", cmd)
	}

	got := cmd.Environ([]string{"Y=2"})
	want := []string{"X=1", "EMPTY="}
	if !slices.Equal(got, want) {
		t.Fatalf("Environ() = %v, want %v", got, want)
	}
}

func TestBuildCommandProfile(t *testing.T) {
	resetFlags(t)
	path := filepath.Join(t.TempDir(), "run.yaml")
	data := "program: app\nargs: [one]\ndetach: true\nwrapper: /opt/wrap\nenv:\n  A: \"1\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	profilePath = path

	cmd, blocking, err := buildCommand(nil)
	if err != nil {
		t.Fatalf("buildCommand failed: %v", err)
	}
	if blocking {
		t.Error("profile requested detach")
	}
	if cmd.Program != "app" || !slices.Equal(cmd.Args, []string{"one"}) {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if wrapper != "/opt/wrap" {
		t.Errorf("wrapper = %q, want /opt/wrap", wrapper)
	}

	// Positional arguments replace the profile's program
	cmd, _, err = buildCommand([]string{"other"})
	if err != nil {
		t.Fatalf("buildCommand failed: %v", err)
	}
	if cmd.Program != "other" || len(cmd.Args) != 0 {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestBuildCommandErrors(t *testing.T) {
	resetFlags(t)
	if _, _, err := buildCommand(nil); !errors.Is(err, command.ErrEmptyProgram) {
		t.Fatalf("expected ErrEmptyProgram, got %v", err)
	}

	setEnv = []string{"NOEQUALS"}
	if _, _, err := buildCommand([]string{"prog"}); err == nil {
		t.Fatal("expected error for malformed --env")
	}
}
