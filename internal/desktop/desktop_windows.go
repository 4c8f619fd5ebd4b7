package desktop

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/amkillam/transparent/pkg/headless"
)

// ErrClosed is returned when a desktop is used after Close
var ErrClosed = errors.New("desktop already closed")

// Desktop is an isolated desktop owned by the launcher.
// It must outlive every process started on it.
type Desktop struct {
	mu     sync.Mutex
	handle HDESK
	name   string
	wide   []uint16 // NUL-terminated name referenced by startup info
	logger *zap.Logger
}

// Create allocates a fresh desktop with a unique name. The desktop only
// grants the right to create windows on it.
func Create(logger *zap.Logger) (*Desktop, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	name := headless.DesktopNamePrefix + uuid.NewString()
	wide, err := windows.UTF16FromString(name)
	if err != nil {
		return nil, fmt.Errorf("invalid desktop name %q: %w", name, err)
	}

	handle, err := createDesktop(&wide[0], 0, DesktopCreateWindow, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateDesktopW failed for %s: %w", name, err)
	}

	logger.Debug("Created isolated desktop", zap.String("desktop", name))

	return &Desktop{
		handle: handle,
		name:   name,
		wide:   wide,
		logger: logger,
	}, nil
}

// Name returns the desktop name
func (d *Desktop) Name() string {
	return d.name
}

// StartupInfo returns the process creation configuration that binds a new
// process to this desktop. Standard streams are passed through from the
// launcher's own stdin, stdout and stderr.
func (d *Desktop) StartupInfo() (*windows.StartupInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == 0 {
		return nil, ErrClosed
	}

	return &windows.StartupInfo{
		Cb:        uint32(unsafe.Sizeof(windows.StartupInfo{})),
		Desktop:   &d.wide[0],
		Flags:     windows.STARTF_USESTDHANDLES,
		StdInput:  windows.Stdin,
		StdOutput: windows.Stdout,
		StdErr:    windows.Stderr,
	}, nil
}

// Close releases the desktop handle. Closing twice returns ErrClosed.
func (d *Desktop) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == 0 {
		return ErrClosed
	}

	if err := closeDesktop(d.handle); err != nil {
		return fmt.Errorf("CloseDesktop failed for %s: %w", d.name, err)
	}
	d.handle = 0

	d.logger.Debug("Closed isolated desktop", zap.String("desktop", d.name))
	return nil
}
