package host

import (
	"fmt"
	"runtime"
	"strings"

	gohost "github.com/shirou/gopsutil/v4/host"
	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/vesaa/pagepulse/internal/models"
)

// Connection types reported when no browser supplies one.
const (
	ConnectionWifi     = "wifi"
	ConnectionEthernet = "ethernet"
	ConnectionCellular = "cellular"
	ConnectionUnknown  = "unknown"
)

// DetectEnvironment builds an environment for hosts that are not a browser
// (trace replay, build directories). The user agent names the agent and the
// platform; the connection type is guessed from the active interfaces.
func DetectEnvironment(agent, url string) models.Environment {
	return models.Environment{
		URL:            url,
		UserAgent:      fmt.Sprintf("%s (%s; %s)", agent, detailedOS(), runtime.GOARCH),
		ConnectionType: connectionType(),
	}
}

// detailedOS returns a descriptive OS version string, or runtime.GOOS as fallback.
func detailedOS() string {
	info, err := gohost.Info()
	if err == nil && info.Platform != "" {
		if info.PlatformVersion != "" {
			return fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
		}
		return info.Platform
	}
	return runtime.GOOS
}

// connectionType picks the first up, non-loopback interface and classifies
// it by name.
func connectionType() string {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return ConnectionUnknown
	}
	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		if len(iface.Addrs) == 0 {
			continue
		}
		if kind := classifyInterface(iface.Name); kind != ConnectionUnknown {
			return kind
		}
	}
	return ConnectionUnknown
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// classifyInterface maps common interface naming schemes to a connection type.
func classifyInterface(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.HasPrefix(n, "wl"), strings.HasPrefix(n, "wi-fi"), strings.HasPrefix(n, "wifi"):
		return ConnectionWifi
	case strings.HasPrefix(n, "wwan"), strings.HasPrefix(n, "rmnet"), strings.HasPrefix(n, "pdp_ip"):
		return ConnectionCellular
	case strings.HasPrefix(n, "eth"), strings.HasPrefix(n, "en"), strings.HasPrefix(n, "ethernet"):
		return ConnectionEthernet
	default:
		return ConnectionUnknown
	}
}
