package steps

import (
	"fmt"
	"path"
	"strings"
)

// Linux is the command set for Linux targets.
type Linux struct{}

func (Linux) DetectInstalled(installDir string) string {
	return fmt.Sprintf("test -d %s && echo 'exists'", installDir)
}

func (Linux) AvailableMemoryMB() string {
	return "free -m | grep Mem | awk '{print $7}'"
}

func (Linux) FreeDiskMB(dir string) string {
	return fmt.Sprintf("df -m %s | tail -1 | awk '{print $4}'", dir)
}

func (Linux) LoadAverage() string {
	return "uptime"
}

func (Linux) PackagePresent(pkgPath string) string {
	return fmt.Sprintf("test -f %s && echo 'present'", pkgPath)
}

func (Linux) Download(url, pkgPath string) string {
	dir := path.Dir(pkgPath)
	name := path.Base(pkgPath)
	return fmt.Sprintf("cd %s && wget -q -O %s '%s' || curl -s -o %s '%s'",
		dir, name, url, name, url)
}

func (Linux) Install(pkgPath, installDir string) (string, error) {
	parent := path.Dir(installDir)
	switch {
	case strings.HasSuffix(pkgPath, ".tgz"), strings.HasSuffix(pkgPath, ".tar.gz"):
		return fmt.Sprintf("cd %s && tar xzf %s", parent, pkgPath), nil
	case strings.HasSuffix(pkgPath, ".rpm"):
		return fmt.Sprintf("rpm -ivh %s", pkgPath), nil
	case strings.HasSuffix(pkgPath, ".deb"):
		return fmt.Sprintf("dpkg -i %s", pkgPath), nil
	default:
		return "", fmt.Errorf("unsupported package format: %s", path.Base(pkgPath))
	}
}

func (Linux) Configure(installDir, deploymentServer, receivingIndexer string) []string {
	bin := path.Join(installDir, "bin", "splunk")
	return []string{
		fmt.Sprintf("%s start --accept-license --answer-yes --no-prompt", bin),
		fmt.Sprintf("%s stop", bin),
		fmt.Sprintf("%s set deploy-poll %s -auth admin:changeme", bin, deploymentServer),
		fmt.Sprintf("%s add forward-server %s -auth admin:changeme", bin, receivingIndexer),
	}
}

func (Linux) EnableBootStart(installDir string) []string {
	bin := path.Join(installDir, "bin", "splunk")
	return []string{
		fmt.Sprintf("%s enable boot-start", bin),
		fmt.Sprintf("%s start", bin),
	}
}

func (Linux) Cleanup(pkgPath string) string {
	return fmt.Sprintf("rm -f %s", pkgPath)
}
