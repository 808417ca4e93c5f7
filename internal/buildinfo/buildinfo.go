// Package buildinfo exposes version details stamped in at build time via
// -ldflags "-X .../buildinfo.Version=... -X .../buildinfo.Commit=...".
package buildinfo

import "runtime"

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    return map[string]string{
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
        "go":      runtime.Version(),
    }
}
