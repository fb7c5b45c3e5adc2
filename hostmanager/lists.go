package hostmanager

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// HostSet is a simple membership set of normalized host addresses,
// backing both the blacklist and whitelist files (spec §6).
type HostSet map[string]bool

// LoadHostFile parses a one-host-per-line file, skipping blank lines and
// `#`-prefixed comments and stripping each host's trailing slash. A
// missing path is not an error: blacklist/whitelist files are optional.
func LoadHostFile(path string) (HostSet, error) {
	set := make(HostSet)
	if path == "" {
		return set, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, errors.Wrapf(err, "open host file %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set[normalizeHost(line)] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan host file %s", path)
	}
	return set, nil
}

// Contains reports whether host (already normalized or not) is a member.
func (s HostSet) Contains(host string) bool {
	return s[normalizeHost(host)]
}
