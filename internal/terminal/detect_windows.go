//go:build windows

package terminal

// Windows detection relies on environment markers alone; there is no cheap
// parent-chain walk without a toolhelp snapshot.
func walkParents(map[string]string) string {
	return AppNone
}
