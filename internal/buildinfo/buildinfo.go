// Package buildinfo carries version metadata stamped at link time.
package buildinfo

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info returns the stamped build metadata.
func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
}
