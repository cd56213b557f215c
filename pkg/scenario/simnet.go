package scenario

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/computerscienceiscool/llm-troubleshooter/pkg/shell"
)

var (
	hostAddr   = netip.MustParseAddr("192.168.1.20")
	hostLAN    = netip.MustParsePrefix("192.168.1.0/24")
	loopbackV4 = netip.MustParsePrefix("127.0.0.0/8")
)

// ip implements the route, addr and link objects of iproute2.
func (h *SimHost) ip(ns string, args []string) shell.Outcome {
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		args = args[1:]
	}
	if len(args) == 0 {
		return fail(255, "Usage: ip [ OPTIONS ] OBJECT { COMMAND | help }")
	}
	obj, rest := args[0], args[1:]
	switch {
	case strings.HasPrefix("route", obj):
		return h.ipRoute(ns, rest)
	case strings.HasPrefix("address", obj):
		return ok(h.ipAddr(ns))
	case strings.HasPrefix("link", obj):
		return ok(h.ipLink(ns))
	}
	return fail(255, "Object \"%s\" is unknown, try \"ip help\".", obj)
}

func (h *SimHost) ipRoute(ns string, args []string) shell.Outcome {
	verb := "show"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}
	switch verb {
	case "show", "list", "ls":
		lines := h.routeLines(ns)
		if len(args) > 0 && (args[0] == "default" || args[0] == "0.0.0.0/0") {
			var only []string
			for _, ln := range lines {
				if strings.HasPrefix(ln, "default ") {
					only = append(only, ln)
				}
			}
			lines = only
		}
		if len(lines) == 0 {
			return ok("")
		}
		return ok(strings.Join(lines, "\n") + "\n")
	case "add", "replace", "change", "del", "delete":
	default:
		return fail(255, "Command \"%s\" is unknown, try \"ip route help\".", verb)
	}

	if len(args) == 0 || (args[0] != "default" && args[0] != "0.0.0.0/0") {
		return fail(2, "RTNETLINK answers: Operation not supported")
	}
	var via string
	for i := 1; i+1 < len(args); i++ {
		if args[i] == "via" {
			via = args[i+1]
		}
	}
	current := h.defaultVia(ns)

	if verb == "del" || verb == "delete" {
		if current == "" {
			return fail(2, "RTNETLINK answers: No such process")
		}
		h.setDefaultVia(ns, "")
		return ok("")
	}
	if verb == "add" && current != "" {
		return fail(2, "RTNETLINK answers: File exists")
	}
	gw, err := netip.ParseAddr(via)
	if err != nil {
		return fail(1, "Error: inet address is expected rather than \"%s\".", via)
	}
	if _, ok := h.linkFor(ns, gw); !ok {
		return fail(2, "Error: Nexthop has invalid gateway.")
	}
	h.setDefaultVia(ns, gw.String())
	return ok("")
}

func (h *SimHost) defaultVia(ns string) string {
	if ns == hostNS {
		return h.hostVia
	}
	return h.containers[ns].defaultVia
}

func (h *SimHost) setDefaultVia(ns, via string) {
	if ns == hostNS {
		h.hostVia = via
		return
	}
	h.containers[ns].defaultVia = via
}

// link is a directly connected subnet as seen from a namespace.
type link struct {
	dev    string
	prefix netip.Prefix
	src    netip.Addr
	net    *network
}

func (h *SimHost) links(ns string) []link {
	if ns == hostNS {
		out := []link{{dev: "eth0", prefix: hostLAN, src: hostAddr}}
		for _, n := range h.sortedNetworks() {
			out = append(out, link{dev: n.bridge, prefix: n.subnet, src: n.gateway, net: n})
		}
		return out
	}
	c := h.containers[ns]
	out := make([]link, 0, len(c.networks))
	for i, name := range c.networks {
		n := h.networks[name]
		out = append(out, link{dev: fmt.Sprintf("eth%d", i), prefix: n.subnet, src: n.addrs[c.name], net: n})
	}
	return out
}

func (h *SimHost) linkFor(ns string, addr netip.Addr) (link, bool) {
	for _, l := range h.links(ns) {
		if l.prefix.Contains(addr) {
			return l, true
		}
	}
	return link{}, false
}

func (h *SimHost) routeLines(ns string) []string {
	var lines []string
	if via := h.defaultVia(ns); via != "" {
		gw := netip.MustParseAddr(via)
		l, _ := h.linkFor(ns, gw)
		if ns == hostNS {
			lines = append(lines, fmt.Sprintf("default via %s dev %s proto dhcp metric 100", via, l.dev))
		} else {
			lines = append(lines, fmt.Sprintf("default via %s dev %s", via, l.dev))
		}
	}
	for _, l := range h.links(ns) {
		lines = append(lines, fmt.Sprintf("%s dev %s proto kernel scope link src %s", l.prefix, l.dev, l.src))
	}
	return lines
}

func (h *SimHost) ipAddr(ns string) string {
	var b strings.Builder
	b.WriteString("1: lo: <LOOPBACK,UP,LOWER_UP> mtu 65536 qdisc noqueue state UNKNOWN\n    inet 127.0.0.1/8 scope host lo\n")
	for i, l := range h.links(ns) {
		fmt.Fprintf(&b, "%d: %s: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc noqueue state UP\n", i+2, l.dev)
		fmt.Fprintf(&b, "    inet %s/%d brd %s scope global %s\n", l.src, l.prefix.Bits(), broadcast(l.prefix), l.dev)
	}
	return b.String()
}

func (h *SimHost) ipLink(ns string) string {
	var b strings.Builder
	b.WriteString("1: lo: <LOOPBACK,UP,LOWER_UP> mtu 65536 qdisc noqueue state UNKNOWN mode DEFAULT\n")
	for i, l := range h.links(ns) {
		fmt.Fprintf(&b, "%d: %s: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc noqueue state UP mode DEFAULT\n", i+2, l.dev)
	}
	return b.String()
}

func broadcast(p netip.Prefix) netip.Addr {
	b := p.Masked().Addr().As4()
	host := uint32(1)<<(32-p.Bits()) - 1
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]) | host
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// resolve maps a ping/curl target to an address. Container names resolve
// only from containers sharing a user-defined network, like Docker's
// embedded DNS.
func (h *SimHost) resolve(ns, target string) (netip.Addr, bool) {
	if a, err := netip.ParseAddr(target); err == nil {
		return a, true
	}
	if target == "localhost" {
		return netip.MustParseAddr("127.0.0.1"), true
	}
	if peer, found := h.containers[target]; found {
		if ns == hostNS {
			return netip.Addr{}, false
		}
		self := h.containers[ns]
		for _, name := range self.networks {
			n := h.networks[name]
			if name != "bridge" && n.members[peer.name] {
				return n.addrs[peer.name], true
			}
		}
		return netip.Addr{}, false
	}
	if strings.Contains(target, ".") {
		return netip.MustParseAddr(externalAddr), true
	}
	return netip.Addr{}, false
}

// reachable reports whether addr answers from ns. unroutable is set when
// the kernel would refuse to send at all.
func (h *SimHost) reachable(ns string, addr netip.Addr) (answered, unroutable bool) {
	if loopbackV4.Contains(addr) {
		return true, false
	}
	if l, ok := h.linkFor(ns, addr); ok {
		if l.net == nil || addr == l.net.gateway || addr == l.src {
			return true, false
		}
		for name, a := range l.net.addrs {
			if a == addr && l.net.members[name] && h.containers[name].running {
				return true, false
			}
		}
		return false, false
	}

	via := h.defaultVia(ns)
	if via == "" {
		return false, true
	}
	if ns == hostNS {
		for _, n := range h.networks {
			if n.subnet.Contains(addr) {
				return false, false
			}
		}
		return true, false
	}

	gw := netip.MustParseAddr(via)
	l, _ := h.linkFor(ns, gw)
	if l.net == nil || (addr.Is4() && h.isDockerAddr(addr)) {
		return false, false
	}
	if h.sysctls["net.ipv4.ip_forward"] != "1" {
		return false, false
	}
	if h.tables["filter"].policies["FORWARD"] == "DROP" && !h.hasRule("filter", "FORWARD", "-j ACCEPT") {
		return false, false
	}
	return h.masquerades(l.net.subnet), false
}

func (h *SimHost) isDockerAddr(addr netip.Addr) bool {
	for _, n := range h.networks {
		if n.subnet.Contains(addr) {
			return true
		}
	}
	return false
}

func (h *SimHost) masquerades(subnet netip.Prefix) bool {
	for _, rule := range h.tables["nat"].chains["POSTROUTING"] {
		if strings.Contains(rule, "-s "+subnet.String()) && strings.Contains(rule, "-j MASQUERADE") {
			return true
		}
	}
	return false
}

func (h *SimHost) hasRule(table, chain, fragment string) bool {
	for _, rule := range h.tables[table].chains[chain] {
		if strings.Contains(rule, fragment) {
			return true
		}
	}
	return false
}

func (h *SimHost) ping(ns string, args []string) shell.Outcome {
	count := 4
	var target string
	for i := 0; i < len(args); i++ {
		switch a := args[i]; a {
		case "-c":
			if i+1 < len(args) {
				if n, err := strconv.Atoi(args[i+1]); err == nil && n > 0 {
					count = n
				}
				i++
			}
		case "-W", "-w", "-i", "-s", "-I":
			i++
		default:
			if strings.HasPrefix(a, "-c") {
				if n, err := strconv.Atoi(a[2:]); err == nil && n > 0 {
					count = n
				}
				continue
			}
			if !strings.HasPrefix(a, "-") {
				target = a
			}
		}
	}
	if target == "" {
		return fail(2, "ping: usage error: Destination address required")
	}

	addr, found := h.resolve(ns, target)
	if !found {
		return fail(2, "ping: %s: Name or service not known", target)
	}
	answered, unroutable := h.reachable(ns, addr)
	if unroutable {
		return fail(2, "ping: connect: Network is unreachable")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PING %s (%s) 56(84) bytes of data.\n", target, addr)
	received := 0
	if answered {
		received = count
		for seq := 1; seq <= count; seq++ {
			fmt.Fprintf(&b, "64 bytes from %s: icmp_seq=%d ttl=63 time=0.%03d ms\n", addr, seq, 40+seq)
		}
	}
	loss := 100 - received*100/count
	fmt.Fprintf(&b, "\n--- %s ping statistics ---\n%d packets transmitted, %d received, %d%% packet loss, time %dms\n",
		target, count, received, loss, (count-1)*1000)
	if !answered {
		return shell.Outcome{ExitCode: 1, Stdout: b.String()}
	}
	b.WriteString("rtt min/avg/max/mdev = 0.041/0.045/0.049/0.003 ms\n")
	return ok(b.String())
}
