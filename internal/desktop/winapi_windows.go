package desktop

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	// DesktopCreateWindow allows windows to be created on the desktop and nothing else
	DesktopCreateWindow = 0x0002
)

var (
	user32             = windows.NewLazySystemDLL("user32.dll")
	procCreateDesktopW = user32.NewProc("CreateDesktopW")
	procCloseDesktop   = user32.NewProc("CloseDesktop")
)

// HDESK is a handle to a desktop object
type HDESK windows.Handle

// createDesktop creates a new desktop on the window station of the calling process
func createDesktop(
	name *uint16,
	flags uint32,
	desiredAccess uint32,
	securityAttributes *windows.SecurityAttributes,
) (desk HDESK, err error) {
	r0, _, e1 := syscall.SyscallN(
		procCreateDesktopW.Addr(),
		uintptr(unsafe.Pointer(name)),
		0, // device, must be NULL
		0, // devmode, must be NULL
		uintptr(flags),
		uintptr(desiredAccess),
		uintptr(unsafe.Pointer(securityAttributes)),
	)
	desk = HDESK(r0)
	if desk == 0 {
		err = lastError(e1)
	}
	return
}

// closeDesktop closes an open desktop handle
func closeDesktop(desk HDESK) (err error) {
	r0, _, e1 := syscall.SyscallN(
		procCloseDesktop.Addr(),
		uintptr(desk),
	)
	if r0 == 0 {
		err = lastError(e1)
	}
	return
}

func lastError(e syscall.Errno) error {
	if e != 0 {
		return e
	}
	return syscall.EINVAL
}
