package license

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/user"
	"runtime"
	"strings"
)

// MachineID returns a stable identifier for this installation derived from
// hostname, platform, architecture and the current user. It is sent to the
// authority as an informational header and seeds the record integrity key.
func MachineID() string {
	hostname, _ := os.Hostname()
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	parts := []string{hostname, runtime.GOOS, runtime.GOARCH, username}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}
