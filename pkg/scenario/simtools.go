package scenario

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"

	"github.com/computerscienceiscool/llm-troubleshooter/pkg/shell"
)

const badRule = "iptables: Bad rule (does a matching rule exist in that chain?)."

func (h *SimHost) iptables(args []string) shell.Outcome {
	var (
		table  = "filter"
		action string
		chain  string
		rule   []string
		num    int
		target string
	)

parse:
	for i := 0; i < len(args); i++ {
		a := args[i]
		optional := func() string {
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
				return args[i]
			}
			return ""
		}
		switch a {
		case "-t", "--table":
			table = optional()
		case "-S", "--list-rules", "-L", "--list", "-F", "--flush":
			action = a[:2]
			if strings.HasPrefix(a, "--") {
				action = map[string]string{"--list-rules": "-S", "--list": "-L", "--flush": "-F"}[a]
			}
			chain = optional()
		case "-A", "--append", "-I", "--insert", "-D", "--delete", "-C", "--check":
			action = a
			if strings.HasPrefix(a, "--") {
				action = map[string]string{"--append": "-A", "--insert": "-I", "--delete": "-D", "--check": "-C"}[a]
			}
			chain = optional()
			rest := args[i+1:]
			if action == "-I" && len(rest) > 0 {
				if n, err := strconv.Atoi(rest[0]); err == nil {
					num, rest = n, rest[1:]
				}
			}
			rule = rest
			break parse
		case "-P", "--policy":
			action = "-P"
			chain = optional()
			target = optional()
		case "-N", "--new-chain":
			action = "-N"
			chain = optional()
		case "-n", "-v", "-w", "--line-numbers", "--numeric", "--verbose":
		default:
			return fail(2, "iptables v1.8.7 (legacy): unknown option \"%s\"", a)
		}
	}

	t, found := h.tables[table]
	if !found {
		return fail(3, "iptables v1.8.7 (legacy): can't initialize iptables table `%s': Table does not exist (do you need to insmod?)", table)
	}
	if action == "" {
		return fail(2, "iptables v1.8.7 (legacy): no command specified")
	}
	if action == "-N" {
		if _, exists := t.chains[chain]; exists {
			return fail(1, "iptables: Chain already exists.")
		}
		t.chains[chain] = nil
		t.order = append(t.order, chain)
		return ok("")
	}
	if chain != "" {
		if _, exists := t.chains[chain]; !exists {
			return fail(1, "iptables: No chain/target/match by that name.")
		}
	}
	ruleText := strings.Join(rule, " ")

	switch action {
	case "-S":
		return ok(t.listRules(chain))
	case "-L":
		return ok(t.list(chain))
	case "-F":
		for _, c := range t.order {
			if chain == "" || c == chain {
				t.chains[c] = nil
			}
		}
		return ok("")
	case "-P":
		if _, builtin := t.policies[chain]; !builtin || (target != "ACCEPT" && target != "DROP") {
			return fail(1, "iptables: Bad policy name. Run `dmesg' for more information.")
		}
		t.policies[chain] = target
		return ok("")
	}

	if chain == "" || (ruleText == "" && action != "-D") {
		return fail(2, "iptables v1.8.7 (legacy): option \"%s\" requires an argument", action)
	}
	rules := t.chains[chain]
	switch action {
	case "-A":
		t.chains[chain] = append(rules, ruleText)
	case "-I":
		pos := num - 1
		if pos < 0 {
			pos = 0
		}
		if pos > len(rules) {
			return fail(1, "iptables: Index of insertion too big.")
		}
		updated := append([]string{}, rules[:pos]...)
		updated = append(updated, ruleText)
		t.chains[chain] = append(updated, rules[pos:]...)
	case "-D":
		idx := -1
		if n, err := strconv.Atoi(ruleText); err == nil {
			idx = n - 1
			if idx < 0 || idx >= len(rules) {
				return fail(1, "iptables: Index of deletion too big.")
			}
		} else {
			idx = indexOf(rules, ruleText)
		}
		if idx < 0 {
			return fail(1, badRule)
		}
		t.chains[chain] = append(append([]string{}, rules[:idx]...), rules[idx+1:]...)
	case "-C":
		if indexOf(rules, ruleText) < 0 {
			return fail(1, badRule)
		}
	}
	return ok("")
}

func indexOf(rules []string, ruleText string) int {
	for i, r := range rules {
		if r == ruleText {
			return i
		}
	}
	return -1
}

func (t *iptable) listRules(only string) string {
	var b strings.Builder
	for _, c := range t.order {
		if only != "" && c != only {
			continue
		}
		if p, builtin := t.policies[c]; builtin {
			fmt.Fprintf(&b, "-P %s %s\n", c, p)
		} else {
			fmt.Fprintf(&b, "-N %s\n", c)
		}
	}
	for _, c := range t.order {
		if only != "" && c != only {
			continue
		}
		for _, r := range t.chains[c] {
			fmt.Fprintf(&b, "-A %s %s\n", c, r)
		}
	}
	return b.String()
}

func (t *iptable) list(only string) string {
	var b strings.Builder
	for i, c := range t.order {
		if only != "" && c != only {
			continue
		}
		if i > 0 && only == "" {
			b.WriteString("\n")
		}
		if p, builtin := t.policies[c]; builtin {
			fmt.Fprintf(&b, "Chain %s (policy %s)\n", c, p)
		} else {
			fmt.Fprintf(&b, "Chain %s (0 references)\n", c)
		}
		b.WriteString("target     prot opt source               destination\n")
		for _, r := range t.chains[c] {
			f := ruleFields(r)
			fmt.Fprintf(&b, "%-10s %-4s --  %-20s %-20s %s\n", f["-j"], f["-p"], f["-s"], f["-d"], r)
		}
	}
	return b.String()
}

// ruleFields pulls the common match options out of a rule.
func ruleFields(ruleText string) map[string]string {
	f := map[string]string{"-p": "all", "-s": "0.0.0.0/0", "-d": "0.0.0.0/0"}
	words := strings.Fields(ruleText)
	for i := 0; i+1 < len(words); i++ {
		switch words[i] {
		case "-j", "-p", "-s", "-d", "--dport":
			f[words[i]] = words[i+1]
		}
	}
	return f
}

// inputVerdict evaluates the filter INPUT chain for a TCP port.
func (h *SimHost) inputVerdict(port int) string {
	t := h.tables["filter"]
	for _, r := range t.chains["INPUT"] {
		f := ruleFields(r)
		dport, hasPort := f["--dport"]
		if hasPort && dport != strconv.Itoa(port) {
			continue
		}
		if !hasPort && (f["-p"] != "all" || f["-s"] != "0.0.0.0/0") {
			continue
		}
		if f["-j"] != "" {
			return f["-j"]
		}
	}
	return t.policies["INPUT"]
}

func (h *SimHost) sysctl(args []string) shell.Outcome {
	var (
		valueOnly, quiet, all bool
		items                 []string
	)
	for _, a := range args {
		switch a {
		case "-w", "--write":
		case "-n", "--values":
			valueOnly = true
		case "-q", "--quiet":
			quiet = true
		case "-a", "--all":
			all = true
		default:
			items = append(items, a)
		}
	}
	if all {
		for k := range h.sysctls {
			items = append(items, k)
		}
		sort.Strings(items)
	}
	if len(items) == 0 {
		return fail(255, "sysctl: no variables specified")
	}

	var b strings.Builder
	for _, item := range items {
		key, value, set := strings.Cut(item, "=")
		key = strings.TrimSpace(strings.ReplaceAll(key, "/", "."))
		current, known := h.sysctls[key]
		if !known {
			return shell.Outcome{
				ExitCode: 255,
				Stdout:   b.String(),
				Stderr:   fmt.Sprintf("sysctl: cannot stat /proc/sys/%s: No such file or directory\n", strings.ReplaceAll(key, ".", "/")),
			}
		}
		if set {
			current = strings.TrimSpace(value)
			h.sysctls[key] = current
		}
		switch {
		case quiet && set:
		case valueOnly:
			b.WriteString(current + "\n")
		default:
			fmt.Fprintf(&b, "%s = %s\n", key, current)
		}
	}
	return ok(b.String())
}

func (h *SimHost) docker(args []string) shell.Outcome {
	if len(args) == 0 {
		return fail(1, "Usage:  docker [OPTIONS] COMMAND")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "ps":
		return ok(h.dockerPS(contains(rest, "-a") || contains(rest, "--all")))
	case "network":
		return h.dockerNetwork(rest)
	case "exec":
		return h.dockerExec(rest)
	case "inspect":
		return h.dockerInspect(rest)
	case "start", "stop", "restart":
		var b strings.Builder
		for _, name := range rest {
			c, found := h.containers[name]
			if !found {
				return fail(1, "Error response from daemon: No such container: %s", name)
			}
			c.running = sub != "stop"
			b.WriteString(name + "\n")
		}
		return ok(b.String())
	case "port":
		if len(rest) == 0 {
			return fail(1, "\"docker port\" requires at least 1 argument.")
		}
		c, found := h.containers[rest[0]]
		if !found {
			return fail(1, "Error: No such container: %s", rest[0])
		}
		var b strings.Builder
		for _, hp := range sortedPorts(c.published) {
			fmt.Fprintf(&b, "%d/tcp -> 0.0.0.0:%d\n", c.published[hp], hp)
		}
		return ok(b.String())
	}
	return fail(1, "docker: '%s' is not a docker command.\nSee 'docker --help'", sub)
}

func (h *SimHost) dockerPS(all bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-14s %-13s %-20s %-24s %s\n", "CONTAINER ID", "IMAGE", "STATUS", "PORTS", "NAMES")
	for _, c := range h.sortedContainers() {
		if !c.running && !all {
			continue
		}
		status := "Up 2 hours"
		if !c.running {
			status = "Exited (0) 1 minute ago"
		}
		var ports []string
		for _, hp := range sortedPorts(c.published) {
			ports = append(ports, fmt.Sprintf("0.0.0.0:%d->%d/tcp", hp, c.published[hp]))
		}
		fmt.Fprintf(&b, "%-14s %-13s %-20s %-24s %s\n", c.id, c.image, status, strings.Join(ports, ","), c.name)
	}
	return b.String()
}

func (h *SimHost) dockerNetwork(args []string) shell.Outcome {
	if len(args) == 0 {
		return fail(1, "Usage:  docker network COMMAND")
	}
	switch args[0] {
	case "ls", "list":
		var b strings.Builder
		fmt.Fprintf(&b, "%-14s %-9s %-9s %s\n", "NETWORK ID", "NAME", "DRIVER", "SCOPE")
		for _, n := range h.sortedNetworks() {
			fmt.Fprintf(&b, "%-14s %-9s %-9s %s\n", n.id, n.name, "bridge", "local")
		}
		return ok(b.String())
	case "inspect":
		var out []interface{}
		for _, name := range args[1:] {
			if strings.HasPrefix(name, "-") {
				continue
			}
			n, found := h.networks[name]
			if !found {
				return fail(1, "Error response from daemon: network %s not found", name)
			}
			out = append(out, h.networkJSON(n))
		}
		data, _ := json.MarshalIndent(out, "", "    ")
		return ok(string(data) + "\n")
	case "connect", "disconnect":
		if len(args) < 3 {
			return fail(1, "\"docker network %s\" requires exactly 2 arguments.", args[0])
		}
		n, found := h.networks[args[1]]
		if !found {
			return fail(1, "Error response from daemon: network %s not found", args[1])
		}
		c, found := h.containers[args[2]]
		if !found {
			return fail(1, "Error response from daemon: No such container: %s", args[2])
		}
		if args[0] == "connect" {
			return h.connect(n, c)
		}
		return h.disconnect(n, c)
	}
	return fail(1, "docker: 'network %s' is not a docker command.", args[0])
}

func (h *SimHost) connect(n *network, c *container) shell.Outcome {
	if n.members[c.name] {
		return fail(1, "Error response from daemon: endpoint with name %s already exists in network %s", c.name, n.name)
	}
	h.attach(c, n)
	if c.defaultVia == "" {
		c.defaultVia = n.gateway.String()
	}
	return ok("")
}

func (h *SimHost) disconnect(n *network, c *container) shell.Outcome {
	if !n.members[c.name] {
		return fail(1, "Error response from daemon: container %s is not connected to network %s", c.id, n.name)
	}
	delete(n.members, c.name)
	kept := c.networks[:0]
	for _, name := range c.networks {
		if name != n.name {
			kept = append(kept, name)
		}
	}
	c.networks = kept
	if via, err := netip.ParseAddr(c.defaultVia); err == nil && n.subnet.Contains(via) {
		c.defaultVia = ""
	}
	return ok("")
}

func (h *SimHost) networkJSON(n *network) map[string]interface{} {
	members := make(map[string]interface{})
	for name := range n.members {
		c := h.containers[name]
		members[c.id] = map[string]string{
			"Name":        c.name,
			"IPv4Address": fmt.Sprintf("%s/%d", n.addrs[name], n.subnet.Bits()),
		}
	}
	return map[string]interface{}{
		"Name":   n.name,
		"Id":     n.id,
		"Driver": "bridge",
		"Scope":  "local",
		"IPAM": map[string]interface{}{
			"Config": []map[string]string{{"Subnet": n.subnet.String(), "Gateway": n.gateway.String()}},
		},
		"Containers": members,
		"Options":    map[string]string{"com.docker.network.bridge.name": n.bridge},
	}
}

func (h *SimHost) dockerInspect(args []string) shell.Outcome {
	var out []interface{}
	for _, name := range args {
		if strings.HasPrefix(name, "-") {
			continue
		}
		c, found := h.containers[name]
		if !found {
			return fail(1, "Error: No such object: %s", name)
		}
		nets := make(map[string]interface{})
		for _, nn := range c.networks {
			n := h.networks[nn]
			nets[nn] = map[string]string{"IPAddress": n.addrs[c.name].String(), "Gateway": n.gateway.String()}
		}
		out = append(out, map[string]interface{}{
			"Id":              c.id,
			"Name":            "/" + c.name,
			"Config":          map[string]string{"Image": c.image},
			"State":           map[string]interface{}{"Running": c.running},
			"NetworkSettings": map[string]interface{}{"Networks": nets},
		})
	}
	if len(out) == 0 {
		return fail(1, "\"docker inspect\" requires at least 1 argument.")
	}
	data, _ := json.MarshalIndent(out, "", "    ")
	return ok(string(data) + "\n")
}

func (h *SimHost) dockerExec(args []string) shell.Outcome {
	i := 0
	for ; i < len(args) && strings.HasPrefix(args[i], "-"); i++ {
		switch args[i] {
		case "-u", "--user", "-e", "--env", "-w", "--workdir":
			i++
		}
	}
	if i >= len(args)-1 {
		return fail(1, "\"docker exec\" requires at least 2 arguments.")
	}
	name, cmd := args[i], args[i+1:]
	c, found := h.containers[name]
	if !found {
		return fail(1, "Error response from daemon: No such container: %s", name)
	}
	if !c.running {
		return fail(1, "Error response from daemon: container %s is not running", c.id)
	}
	return h.exec(name, cmd)
}

func (h *SimHost) curl(args []string) shell.Outcome {
	var (
		url, writeOut   string
		head, bodyToNul bool
	)
	for i := 0; i < len(args); i++ {
		switch a := args[i]; a {
		case "-I", "--head":
			head = true
		case "-o", "--output":
			if i+1 < len(args) {
				bodyToNul = true
				i++
			}
		case "-w", "--write-out":
			if i+1 < len(args) {
				writeOut = args[i+1]
				i++
			}
		case "-m", "--max-time", "--connect-timeout", "-H", "--header", "-X":
			i++
		default:
			if !strings.HasPrefix(a, "-") {
				url = a
			} else if strings.Contains(a, "I") && !strings.HasPrefix(a, "--") {
				head = true
			}
		}
	}
	if url == "" {
		return fail(2, "curl: no URL specified!")
	}

	hostPort := strings.TrimPrefix(strings.TrimPrefix(url, "http://"), "https://")
	if i := strings.IndexByte(hostPort, '/'); i >= 0 {
		hostPort = hostPort[:i]
	}
	host, portStr, hasPort := strings.Cut(hostPort, ":")
	port := 80
	if hasPort {
		if n, err := strconv.Atoi(portStr); err == nil {
			port = n
		}
	}

	addr, found := h.resolve(hostNS, host)
	if !found {
		return fail(6, "curl: (6) Could not resolve host: %s", host)
	}
	refused := fail(7, "curl: (7) Failed to connect to %s port %d after 0 ms: Couldn't connect to server", host, port)

	switch {
	case addr.String() == externalAddr:
		if h.hostVia == "" {
			return fail(7, "curl: (7) Failed to connect to %s port %d after 0 ms: Network is unreachable", host, port)
		}
	case loopbackV4.Contains(addr) || addr == hostAddr || addr.IsUnspecified():
		var backend *container
		for _, c := range h.containers {
			if _, published := c.published[port]; published && c.running {
				backend = c
			}
		}
		if backend == nil {
			return refused
		}
		switch h.inputVerdict(port) {
		case "DROP":
			return fail(28, "curl: (28) Failed to connect to %s port %d after 5001 ms: Timeout was reached", host, port)
		case "REJECT":
			return refused
		}
	default:
		if answered, _ := h.reachable(hostNS, addr); !answered || port != 80 {
			return refused
		}
	}

	var b strings.Builder
	switch {
	case bodyToNul:
	case head:
		b.WriteString("HTTP/1.1 200 OK\nServer: nginx/1.25.3\nContent-Type: text/html\nContent-Length: 615\n\n")
	default:
		b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<title>Welcome to nginx!</title>\n</head>\n</html>\n")
	}
	if writeOut != "" {
		b.WriteString(strings.NewReplacer("%{http_code}", "200", `\n`, "\n").Replace(writeOut))
	}
	return ok(b.String())
}

func (h *SimHost) ss() shell.Outcome {
	var b strings.Builder
	b.WriteString("State  Recv-Q Send-Q Local Address:Port Peer Address:Port Process\n")
	b.WriteString("LISTEN 0      128          0.0.0.0:22        0.0.0.0:*     users:((\"sshd\",pid=812,fd=3))\n")
	pid := 2301
	for _, c := range h.sortedContainers() {
		if !c.running {
			continue
		}
		for _, hp := range sortedPorts(c.published) {
			fmt.Fprintf(&b, "LISTEN 0      4096         0.0.0.0:%-5d     0.0.0.0:*     users:((\"docker-proxy\",pid=%d,fd=4))\n", hp, pid)
			pid++
		}
	}
	return ok(b.String())
}

func sortedPorts(m map[int]int) []int {
	out := make([]int, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
