//go:build !linux

package memory

// Attach is only implemented for Linux targets.
func Attach(name string) (Process, error) {
	return nil, ErrUnsupportedPlatform
}
