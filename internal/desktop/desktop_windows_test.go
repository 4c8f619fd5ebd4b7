package desktop

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/sys/windows"

	"github.com/amkillam/transparent/pkg/headless"
)

func TestCreateAndClose(t *testing.T) {
	d, err := Create(nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if !strings.HasPrefix(d.Name(), headless.DesktopNamePrefix) {
		t.Errorf("Name() = %q, want prefix %q", d.Name(), headless.DesktopNamePrefix)
	}

	si, err := d.StartupInfo()
	if err != nil {
		t.Fatalf("StartupInfo failed: %v", err)
	}
	if got := windows.UTF16PtrToString(si.Desktop); got != d.Name() {
		t.Errorf("startup desktop = %q, want %q", got, d.Name())
	}
	if si.Flags&windows.STARTF_USESTDHANDLES == 0 {
		t.Error("expected STARTF_USESTDHANDLES")
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := d.Close(); !errors.Is(err, ErrClosed) {
		t.Fatalf("second Close: expected ErrClosed, got %v", err)
	}
	if _, err := d.StartupInfo(); !errors.Is(err, ErrClosed) {
		t.Fatalf("StartupInfo after Close: expected ErrClosed, got %v", err)
	}
}

func TestCreateUniqueNames(t *testing.T) {
	a, err := Create(nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer func() {
		_ = a.Close()
	}()

	b, err := Create(nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer func() {
		_ = b.Close()
	}()

	if a.Name() == b.Name() {
		t.Fatalf("desktops share a name: %s", a.Name())
	}
}
