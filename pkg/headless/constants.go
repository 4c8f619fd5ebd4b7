package headless

const (
	// WrapperName is the headless display wrapper looked up on PATH
	WrapperName = "xvfb-run"

	// WrapperAutoServerNumFlag makes the wrapper pick a free display number
	WrapperAutoServerNumFlag = "--auto-servernum"

	// DesktopNamePrefix prefixes every isolated desktop created on Windows.
	// The full name is DesktopNamePrefix followed by a random UUID.
	DesktopNamePrefix = "transparent/"

	// ForcedExitCode is reported when a process had to be terminated
	// because its wait was cancelled
	ForcedExitCode = 0
)
