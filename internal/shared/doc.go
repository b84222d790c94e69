// Package shared holds helpers used by more than one package. The testutil
// subpackage provides a capturing slog handler and a scriptable fake of the
// licensing authority for tests.
package shared
