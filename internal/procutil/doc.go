// Package procutil starts helper processes in their own process group so
// stopping one also stops anything it forked.
package procutil
