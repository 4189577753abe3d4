//go:build windows

package lockfile

import (
	"syscall"
)

// isProcessRunning reports whether pid is alive by opening a query handle
// to it.
func isProcessRunning(pid int) (bool, string) {
	handle, err := syscall.OpenProcess(syscall.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return false, "process not found"
	}
	syscall.CloseHandle(handle)
	return true, ""
}
