//go:build windows

package screen

// There is no stock screenshot command on Windows; use the native backend.
func newCommandBackend(string) (backend, error) {
	return nil, ErrUnsupported
}
