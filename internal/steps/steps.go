// Package steps defines the remote command set a host pipeline executes.
// Commands are plain shell strings so they can be inspected in tests and
// logged verbatim.
package steps

// CommandSet builds the remote commands for one OS family. All paths are
// remote paths on the target host.
type CommandSet interface {
	// DetectInstalled checks for an existing install under installDir.
	// The command prints "exists" when the directory is present.
	DetectInstalled(installDir string) string

	// AvailableMemoryMB prints the available memory in MB.
	AvailableMemoryMB() string

	// FreeDiskMB prints the free disk space in MB on the filesystem
	// holding dir.
	FreeDiskMB(dir string) string

	// LoadAverage prints the system load. Diagnostic only.
	LoadAverage() string

	// PackagePresent checks whether the staged package already exists.
	// The command prints "present" when the file is there.
	PackagePresent(pkgPath string) string

	// Download fetches url into pkgPath.
	Download(url, pkgPath string) string

	// Install unpacks or installs the package into installDir.
	// Returns an error for unsupported package formats.
	Install(pkgPath, installDir string) (string, error)

	// Configure returns the ordered commands that accept the license,
	// point the forwarder at the deployment server, and add the
	// receiving indexer.
	Configure(installDir, deploymentServer, receivingIndexer string) []string

	// EnableBootStart returns the ordered commands that enable
	// autostart and start the service.
	EnableBootStart(installDir string) []string

	// Cleanup removes the staged package.
	Cleanup(pkgPath string) string
}

// ForFamily returns the CommandSet for the given OS family, or nil when
// the family is not supported.
func ForFamily(family string) CommandSet {
	switch family {
	case "linux":
		return Linux{}
	default:
		return nil
	}
}
