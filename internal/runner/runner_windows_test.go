package runner

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/amkillam/transparent/internal/command"
	"github.com/amkillam/transparent/internal/process"
)

const helperEnv = "TRANSPARENT_RUNNER_HELPER"

func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "exit7":
		os.Exit(7)
	case "sleep":
		time.Sleep(time.Minute)
		os.Exit(3)
	}
	os.Exit(m.Run())
}

func helperCommand(mode string) *command.Command {
	return command.New(os.Args[0]).Set(helperEnv, mode)
}

func TestSpawnAndWaitExitCode(t *testing.T) {
	r, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	code, err := r.SpawnAndWait(context.Background(), helperCommand("exit7"))
	if err != nil {
		t.Fatalf("SpawnAndWait failed: %v", err)
	}
	if code != 7 {
		t.Fatalf("exit code = %d, want 7", code)
	}
}

func TestSpawnAndWaitCancel(t *testing.T) {
	r, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	child, err := r.Start(context.Background(), helperCommand("sleep"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pid := child.PID()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	code, err := child.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	running, err := process.IsRunning(pid)
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if running {
		t.Fatalf("process %d still running after cancellation", pid)
	}
}

func TestKill(t *testing.T) {
	r, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	child, err := r.Start(context.Background(), helperCommand("sleep"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := child.Kill(); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	if err := child.Kill(); err == nil {
		t.Fatal("second Kill should fail")
	}
	if _, err := child.Wait(context.Background()); err == nil {
		t.Fatal("Wait after Kill should fail")
	}
}

func TestSpawnNonBlocking(t *testing.T) {
	r, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	pid, err := r.SpawnNonBlocking(context.Background(), helperCommand("exit7"))
	if err != nil {
		t.Fatalf("SpawnNonBlocking failed: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("pid = %d", pid)
	}

	deadline := time.Now().Add(20 * time.Second)
	for {
		running, err := process.IsRunning(pid)
		if err != nil {
			t.Fatalf("IsRunning failed: %v", err)
		}
		if !running {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("process %d still running", pid)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestKillDuringWait(t *testing.T) {
	r, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	child, err := r.Start(context.Background(), helperCommand("sleep"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pid := child.PID()

	type result struct {
		code int
		err  error
	}
	waited := make(chan result, 1)
	go func() {
		code, err := child.Wait(context.Background())
		waited <- result{code, err}
	}()

	time.Sleep(200 * time.Millisecond)
	if err := child.Kill(); err != nil {
		t.Fatalf("Kill during Wait failed: %v", err)
	}

	select {
	case res := <-waited:
		if res.err != nil {
			t.Fatalf("Wait failed: %v", res.err)
		}
		if res.code != 0 {
			t.Fatalf("exit code = %d, want 0", res.code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after Kill")
	}

	running, err := process.IsRunning(pid)
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if running {
		t.Fatalf("process %d still running after Kill", pid)
	}
}
