//go:build !darwin

package permissions

// EnsureMicrophone is a no-op on platforms without a permission broker.
func EnsureMicrophone() error {
	return nil
}
