package scenario

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/shell"
)

var (
	errUnterminatedQuote = cerr.New("unexpected EOF while looking for matching quote")
	errSyntax            = cerr.New("syntax error near unexpected token")
)

const hostNS = ""

// externalAddr is what any name outside the simulated host resolves to.
const externalAddr = "142.250.74.46"

type network struct {
	name    string
	id      string
	subnet  netip.Prefix
	gateway netip.Addr
	bridge  string
	// addrs holds every address ever handed out so reconnects are stable.
	addrs   map[string]netip.Addr
	members map[string]bool
	next    netip.Addr
}

type container struct {
	name       string
	id         string
	image      string
	running    bool
	networks   []string // attachment order; eth0, eth1, ...
	defaultVia string
	published  map[int]int // host port -> container port
}

type iptable struct {
	chains   map[string][]string
	policies map[string]string
	order    []string
}

// SimHost is an in-memory Linux host running Docker. It understands the
// handful of commands the networking scenarios use (ip, iptables, sysctl,
// docker, ping, curl, ss, grep and a few builtins) and answers everything
// else with "command not found".
type SimHost struct {
	mu         sync.Mutex
	sysctls    map[string]string
	tables     map[string]*iptable
	networks   map[string]*network
	containers map[string]*container
	hostVia    string
	history    []string
}

// NewSimHost returns a healthy host: containers web and db, the default
// bridge plus a user-defined network appnet, IP forwarding on and NAT in
// place.
func NewSimHost() *SimHost {
	h := &SimHost{
		sysctls: map[string]string{
			"net.ipv4.ip_forward":              "1",
			"net.ipv4.conf.all.rp_filter":      "2",
			"net.ipv4.conf.default.forwarding": "1",
		},
		tables: map[string]*iptable{
			"filter": newTable([]string{"INPUT", "FORWARD", "OUTPUT"}),
			"nat":    newTable([]string{"PREROUTING", "INPUT", "OUTPUT", "POSTROUTING"}),
		},
		networks:   make(map[string]*network),
		containers: make(map[string]*container),
		hostVia:    "192.168.1.1",
	}
	h.addNetwork("bridge", "9f1c2a7b3d4e", "172.17.0.0/16", "docker0")
	h.addNetwork("appnet", "4b8e0d5c6a71", "172.18.0.0/16", "br-4b8e0d5c6a71")

	h.tables["nat"].chains["POSTROUTING"] = []string{
		"-s 172.17.0.0/16 ! -o docker0 -j MASQUERADE",
		"-s 172.18.0.0/16 ! -o br-4b8e0d5c6a71 -j MASQUERADE",
	}

	web := h.addContainer("web", "3c9d2e1f0a8b", "nginx:1.25", "bridge", "appnet")
	web.published[8080] = 80
	h.addContainer("db", "7a6b5c4d3e2f", "postgres:16", "appnet")
	return h
}

func newTable(chains []string) *iptable {
	t := &iptable{chains: make(map[string][]string), policies: make(map[string]string)}
	for _, c := range chains {
		t.chains[c] = nil
		t.policies[c] = "ACCEPT"
		t.order = append(t.order, c)
	}
	return t
}

func (h *SimHost) addNetwork(name, id, subnet, bridge string) {
	prefix := netip.MustParsePrefix(subnet)
	gw := prefix.Addr().Next()
	h.networks[name] = &network{
		name:    name,
		id:      id,
		subnet:  prefix,
		gateway: gw,
		bridge:  bridge,
		addrs:   make(map[string]netip.Addr),
		members: make(map[string]bool),
		next:    gw.Next(),
	}
}

func (h *SimHost) addContainer(name, id, image string, networks ...string) *container {
	c := &container{name: name, id: id, image: image, running: true, published: make(map[int]int)}
	h.containers[name] = c
	for _, n := range networks {
		h.attach(c, h.networks[n])
	}
	if len(c.networks) > 0 {
		c.defaultVia = h.networks[c.networks[0]].gateway.String()
	}
	return c
}

func (h *SimHost) attach(c *container, n *network) {
	if _, ok := n.addrs[c.name]; !ok {
		n.addrs[c.name] = n.next
		n.next = n.next.Next()
	}
	n.members[c.name] = true
	c.networks = append(c.networks, n.name)
}

// Name implements shell.Backend.
func (h *SimHost) Name() string {
	return "simhost"
}

// History returns every command line the host has run.
func (h *SimHost) History() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.history...)
}

// Run implements shell.Backend. The simulation is instantaneous, so the
// timeout never fires.
func (h *SimHost) Run(ctx context.Context, command string, timeout time.Duration) shell.Outcome {
	start := time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, command)

	out := h.runLine(hostNS, command)
	out.StartedAt = start
	out.Duration = time.Since(start)
	return out
}

func (h *SimHost) runLine(ns, line string) shell.Outcome {
	if strings.Contains(line, "<<") {
		return shell.Outcome{ExitCode: 2, Stderr: "sh: here-documents are not supported on this host\n"}
	}
	pipelines, err := parseLine(line)
	if err != nil {
		return shell.Outcome{ExitCode: 2, Stderr: fmt.Sprintf("sh: %v\n", err)}
	}

	var (
		stdout, stderr strings.Builder
		code           int
	)
	prevOp := ""
	for _, p := range pipelines {
		if (prevOp == "&&" && code != 0) || (prevOp == "||" && code == 0) {
			prevOp = p.next
			continue
		}
		res := h.runPipeline(ns, p)
		stdout.WriteString(res.Stdout)
		stderr.WriteString(res.Stderr)
		code = res.ExitCode
		prevOp = p.next
	}
	return shell.Outcome{ExitCode: code, Stdout: stdout.String(), Stderr: stderr.String()}
}

func (h *SimHost) runPipeline(ns string, p pipeline) shell.Outcome {
	var (
		input  string
		errOut strings.Builder
		res    shell.Outcome
	)
	for i, stage := range p.stages {
		args, rd := stripRedirects(stage)
		if len(args) == 0 {
			res = shell.Outcome{}
			continue
		}
		if i == 0 {
			res = h.exec(ns, args)
		} else {
			res = filter(args, input)
		}
		if rd.merge {
			res.Stdout += res.Stderr
			res.Stderr = ""
		}
		if rd.dropStdout {
			res.Stdout = ""
		}
		if rd.dropStderr {
			res.Stderr = ""
		}
		errOut.WriteString(res.Stderr)
		input = res.Stdout
	}
	res.Stdout = input
	res.Stderr = errOut.String()
	return res
}

func (h *SimHost) exec(ns string, args []string) shell.Outcome {
	prog := args[0]
	if i := strings.LastIndexByte(prog, '/'); i >= 0 {
		prog = prog[i+1:]
	}
	if prog == "sudo" && ns == hostNS && len(args) > 1 {
		return h.exec(ns, args[1:])
	}

	switch prog {
	case "sh", "bash":
		if len(args) >= 3 && args[1] == "-c" {
			return h.runLine(ns, args[2])
		}
		return fail(2, "%s: interactive shells are not available", prog)
	case "cat":
		return h.cat(ns, args[1:])
	case "true", ":":
		return shell.Outcome{}
	case "false":
		return shell.Outcome{ExitCode: 1}
	case "echo":
		return ok(strings.Join(args[1:], " ") + "\n")
	case "hostname":
		if ns == hostNS {
			return ok("sim-host\n")
		}
		return ok(h.containers[ns].id + "\n")
	case "ip":
		return h.ip(ns, args[1:])
	case "ping":
		return h.ping(ns, args[1:])
	}

	if ns == hostNS {
		switch prog {
		case "iptables":
			return h.iptables(args[1:])
		case "sysctl":
			return h.sysctl(args[1:])
		case "docker":
			return h.docker(args[1:])
		case "curl":
			return h.curl(args[1:])
		case "ss":
			return h.ss()
		}
		return shell.Outcome{ExitCode: shell.ExitNotFound, Stderr: fmt.Sprintf("sh: 1: %s: not found\n", args[0])}
	}
	return shell.Outcome{
		ExitCode: shell.ExitNotFound,
		Stderr:   fmt.Sprintf("OCI runtime exec failed: exec failed: unable to start container process: exec: %q: executable file not found in $PATH: unknown\n", args[0]),
	}
}

func (h *SimHost) cat(ns string, files []string) shell.Outcome {
	var b strings.Builder
	for _, f := range files {
		switch {
		case f == "/etc/resolv.conf" && ns == hostNS:
			b.WriteString("nameserver 192.168.1.1\n")
		case f == "/etc/resolv.conf":
			b.WriteString("nameserver 127.0.0.11\noptions ndots:0\n")
		case strings.HasPrefix(f, "/proc/sys/") && ns == hostNS:
			v, known := h.sysctls[strings.ReplaceAll(strings.TrimPrefix(f, "/proc/sys/"), "/", ".")]
			if !known {
				return shell.Outcome{ExitCode: 1, Stdout: b.String(), Stderr: fmt.Sprintf("cat: %s: No such file or directory\n", f)}
			}
			b.WriteString(v + "\n")
		default:
			return shell.Outcome{ExitCode: 1, Stdout: b.String(), Stderr: fmt.Sprintf("cat: %s: No such file or directory\n", f)}
		}
	}
	return ok(b.String())
}

func ok(stdout string) shell.Outcome {
	return shell.Outcome{Stdout: stdout}
}

func fail(code int, format string, args ...interface{}) shell.Outcome {
	return shell.Outcome{ExitCode: code, Stderr: fmt.Sprintf(format, args...) + "\n"}
}

// filter implements the text tools usable after a pipe.
func filter(args []string, input string) shell.Outcome {
	lines := strings.SplitAfter(input, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	switch args[0] {
	case "cat":
		return ok(input)
	case "grep":
		var (
			quiet, fold, invert bool
			pattern             string
		)
		for _, a := range args[1:] {
			if strings.HasPrefix(a, "-") && pattern == "" && len(a) > 1 {
				quiet = quiet || strings.Contains(a, "q")
				fold = fold || strings.Contains(a, "i")
				invert = invert || strings.Contains(a, "v")
				continue
			}
			if pattern == "" {
				pattern = a
			}
		}
		var b strings.Builder
		matched := false
		for _, ln := range lines {
			hay, needle := ln, pattern
			if fold {
				hay, needle = strings.ToLower(hay), strings.ToLower(needle)
			}
			if strings.Contains(hay, needle) != invert {
				matched = true
				b.WriteString(ln)
			}
		}
		if !matched {
			return shell.Outcome{ExitCode: 1}
		}
		if quiet {
			return shell.Outcome{}
		}
		return ok(b.String())
	case "head", "tail":
		n := 10
		for _, a := range args[1:] {
			var v int
			if _, err := fmt.Sscanf(strings.TrimPrefix(a, "-n"), "%d", &v); err == nil {
				if v < 0 {
					v = -v
				}
				n = v
			}
		}
		if n > len(lines) {
			n = len(lines)
		}
		if args[0] == "head" {
			return ok(strings.Join(lines[:n], ""))
		}
		return ok(strings.Join(lines[len(lines)-n:], ""))
	case "wc":
		return ok(fmt.Sprintf("%d\n", len(lines)))
	}
	return fail(shell.ExitNotFound, "sh: 1: %s: not found", args[0])
}

func (h *SimHost) sortedContainers() []*container {
	out := make([]*container, 0, len(h.containers))
	for _, c := range h.containers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (h *SimHost) sortedNetworks() []*network {
	out := make([]*network, 0, len(h.networks))
	for _, n := range h.networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
