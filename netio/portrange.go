package netio

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// PortRange is a parsed "host:port" or "host:minport-maxport" address
// spec, used to fan a single configured endpoint out into one link per
// port — useful when bonding several paths to the same peer across a
// contiguous port block rather than listing each addr:port individually.
type PortRange struct {
	Host    string
	MinPort int
	MaxPort int
}

var portRangeMatcher = regexp.MustCompile(`(.*):([0-9]{1,5})-?([0-9]{1,5})?`)

// ParsePortRange parses addr as "host:port" or "host:minport-maxport".
func ParsePortRange(addr string) (PortRange, error) {
	matches := portRangeMatcher.FindStringSubmatch(addr)
	if len(matches) < 3 {
		return PortRange{}, errors.Errorf("netio: malformed address %q", addr)
	}

	minPort, err := strconv.Atoi(matches[2])
	if err != nil {
		return PortRange{}, errors.Wrap(err, "netio: parse port")
	}
	maxPort := minPort
	if matches[3] != "" {
		maxPort, err = strconv.Atoi(matches[3])
		if err != nil {
			return PortRange{}, errors.Wrap(err, "netio: parse port range max")
		}
	}
	if minPort == 0 || maxPort == 0 || minPort > maxPort || maxPort > 65535 {
		return PortRange{}, errors.Errorf("netio: invalid port range %d-%d", minPort, maxPort)
	}
	return PortRange{Host: matches[1], MinPort: minPort, MaxPort: maxPort}, nil
}

// Addrs expands the range into one "host:port" string per port.
func (p PortRange) Addrs() []string {
	out := make([]string, 0, p.MaxPort-p.MinPort+1)
	for port := p.MinPort; port <= p.MaxPort; port++ {
		out = append(out, fmt.Sprintf("%s:%d", p.Host, port))
	}
	return out
}
