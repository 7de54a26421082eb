//go:build !linux

package affinity

// Pin is a no-op where thread affinity is not available; the role still
// runs on a locked OS thread.
func Pin(cpu int) error {
	return nil
}

// Pinned is not supported on this platform.
func Pinned() ([]int, error) {
	return nil, nil
}
