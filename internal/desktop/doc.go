// Package desktop creates isolated, non-interactive Windows desktops that
// launched processes can be bound to so their windows never appear on the
// operator's desktop.
package desktop
