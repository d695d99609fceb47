package remediation

import (
	"fmt"

	"github.com/btnalit/routeros-aiops/internal/models"
)

// playbook maps an identified cause to concrete corrective steps. Steps
// marked auto are safe to run unattended; anything touching routing,
// firewall, or credentials stays manual.
func playbook(causeID string, event *models.UnifiedEvent) (string, []Step) {
	iface := event.Metadata["interface"]

	switch causeID {
	case "interface-instability":
		if iface == "" {
			return "Investigate interface instability", nil
		}
		return fmt.Sprintf("Reset flapping interface %s", iface), []Step{
			{
				ID:          "disable-interface",
				Description: fmt.Sprintf("Disable %s to stop the flap", iface),
				Command:     fmt.Sprintf("/interface set [find default-name=%s] disabled=yes", iface),
				Auto:        true,
				Risk:        "medium",
				Rollback:    fmt.Sprintf("/interface set [find default-name=%s] disabled=no", iface),
			},
			{
				ID:          "enable-interface",
				Description: fmt.Sprintf("Re-enable %s", iface),
				Command:     fmt.Sprintf("/interface set [find default-name=%s] disabled=no", iface),
				Auto:        true,
				Risk:        "medium",
			},
			{
				ID:          "check-cabling",
				Description: "Inspect physical link and SFP seating if the flap returns",
				Command:     fmt.Sprintf("/interface monitor-traffic %s once", iface),
				Auto:        false,
				Risk:        "low",
			},
		}

	case "cpu-overload":
		return "Identify and relieve CPU pressure", []Step{
			{
				ID:          "profile-cpu",
				Description: "Capture per-process CPU usage",
				Command:     "/tool profile duration=10",
				Auto:        true,
				Risk:        "low",
			},
			{
				ID:          "review-firewall",
				Description: "Review firewall rule counters for hot rules",
				Command:     "/ip firewall filter print stats",
				Auto:        false,
				Risk:        "low",
			},
		}

	case "memory-exhaustion":
		return "Relieve memory pressure", []Step{
			{
				ID:          "flush-dns-cache",
				Description: "Flush the DNS cache",
				Command:     "/ip dns cache flush",
				Auto:        true,
				Risk:        "low",
			},
			{
				ID:          "flush-connections",
				Description: "Clear stale connection-tracking entries",
				Command:     "/ip firewall connection remove [find timeout<10s]",
				Auto:        false,
				Risk:        "medium",
			},
		}

	case "disk-pressure":
		return "Free storage space", []Step{
			{
				ID:          "trim-logs",
				Description: "Remove rotated log files",
				Command:     "/file remove [find name~\"log\\\\.\"]",
				Auto:        false,
				Risk:        "medium",
			},
		}

	case "credential-attack":
		return "Harden access against credential attack", []Step{
			{
				ID:          "list-attackers",
				Description: "List source addresses failing authentication",
				Command:     "/log print where message~\"login failure\"",
				Auto:        true,
				Risk:        "low",
			},
			{
				ID:          "restrict-services",
				Description: "Restrict management services to trusted networks",
				Command:     "/ip service set [find name~\"ssh|www|api\"] address=192.168.88.0/24",
				Auto:        false,
				Risk:        "high",
				Rollback:    "/ip service set [find name~\"ssh|www|api\"] address=0.0.0.0/0",
			},
		}

	case "dhcp-failure":
		return "Restart DHCP service", []Step{
			{
				ID:          "bounce-dhcp-server",
				Description: "Disable and re-enable the DHCP server",
				Command:     "/ip dhcp-server set [find] disabled=yes; /ip dhcp-server set [find] disabled=no",
				Auto:        true,
				Risk:        "medium",
			},
		}

	case "dns-failure":
		return "Recover DNS resolution", []Step{
			{
				ID:          "flush-dns-cache",
				Description: "Flush the DNS cache",
				Command:     "/ip dns cache flush",
				Auto:        true,
				Risk:        "low",
			},
			{
				ID:          "verify-upstreams",
				Description: "Verify upstream resolvers respond",
				Command:     "/resolve 8.8.8.8",
				Auto:        false,
				Risk:        "low",
			},
		}

	case "routing-instability":
		return "Investigate routing instability", []Step{
			{
				ID:          "dump-routes",
				Description: "Capture the active routing table",
				Command:     "/ip route print where active",
				Auto:        true,
				Risk:        "low",
			},
			{
				ID:          "review-peers",
				Description: "Review BGP/OSPF peer state before touching routes",
				Command:     "/routing bgp peer print status",
				Auto:        false,
				Risk:        "medium",
			},
		}

	case "tunnel-failure":
		return "Re-establish VPN tunnel", []Step{
			{
				ID:          "bounce-ipsec",
				Description: "Flush IPsec SAs to force renegotiation",
				Command:     "/ip ipsec active-peers kill-connections",
				Auto:        true,
				Risk:        "medium",
			},
		}
	}

	return "Manual investigation required", nil
}
