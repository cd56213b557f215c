package diagnostics

import (
	"sort"
	"strings"

	cerr "github.com/cockroachdb/errors"
	apperrors "github.com/computerscienceiscool/llm-troubleshooter/internal/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/shell"
)

// Section groups related inspection commands.
type Section string

const (
	SectionSystem     Section = "system"
	SectionPackages   Section = "packages"
	SectionNetwork    Section = "network"
	SectionServices   Section = "services"
	SectionContainers Section = "containers"
)

// AllSections lists every section in collection order.
var AllSections = []Section{
	SectionSystem,
	SectionPackages,
	SectionNetwork,
	SectionServices,
	SectionContainers,
}

func (s Section) order() int {
	for i, known := range AllSections {
		if known == s {
			return i
		}
	}
	return len(AllSections)
}

// SectionNames returns the section names in collection order.
func SectionNames() []string {
	names := make([]string, len(AllSections))
	for i, s := range AllSections {
		names[i] = string(s)
	}
	return names
}

// ParseSections validates names and returns them in collection order
// without duplicates. No names means every section.
func ParseSections(names []string) ([]Section, error) {
	if len(names) == 0 {
		return append([]Section(nil), AllSections...), nil
	}
	seen := make(map[Section]bool)
	var out []Section
	for _, raw := range names {
		name := Section(strings.ToLower(strings.TrimSpace(raw)))
		if name == "" {
			continue
		}
		if name.order() == len(AllSections) {
			return nil, cerr.Mark(
				cerr.Newf("unknown section %q (valid: %s)", raw, strings.Join(SectionNames(), ", ")),
				apperrors.ErrInvalidSection)
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return append([]Section(nil), AllSections...), nil
	}
	sortSections(out)
	return out, nil
}

func sortSections(s []Section) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].order() < s[j].order() })
}

// Probe is one read-only inspection command.
type Probe struct {
	Command     string
	Description string
	Program     string // executable resolved before running; defaults to the first word
}

func (p Probe) program() string {
	if p.Program != "" {
		return p.Program
	}
	fields := strings.Fields(p.Command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Catalog maps each section to its command battery.
type Catalog struct {
	batteries map[Section][]Probe
}

// NewCatalog builds a catalog from explicit batteries.
func NewCatalog(batteries map[Section][]Probe) Catalog {
	copied := make(map[Section][]Probe, len(batteries))
	for s, probes := range batteries {
		copied[s] = append([]Probe(nil), probes...)
	}
	return Catalog{batteries: copied}
}

// Probes returns the battery for a section.
func (c Catalog) Probes(s Section) []Probe {
	return append([]Probe(nil), c.batteries[s]...)
}

// BuildCatalog returns the standard batteries. Services and containers
// depend on which tools r finds where commands run; a nil resolver gets the
// SysV services fallback and no container probes.
func BuildCatalog(r shell.Resolver) Catalog {
	return NewCatalog(map[Section][]Probe{
		SectionSystem:     systemProbes(),
		SectionPackages:   packageProbes(),
		SectionNetwork:    networkProbes(),
		SectionServices:   serviceProbes(r),
		SectionContainers: containerProbes(r),
	})
}

func systemProbes() []Probe {
	return []Probe{
		{Command: "uname -a", Description: "Kernel and architecture"},
		{Command: "cat /etc/os-release", Description: "Distribution release info"},
		{Command: "uptime", Description: "System uptime/load"},
		{Command: "date", Description: "Current time"},
		{Command: "who -a", Description: "Logged-in users"},
		{Command: "id", Description: "Current user identity"},
		{Command: "df -h", Description: "Disk usage"},
		{Command: "free -h", Description: "Memory usage"},
		{Command: "ps aux --sort=-%cpu | head -n 20", Description: "Top processes by CPU"},
		{Command: "ps aux --sort=-%mem | head -n 20", Description: "Top processes by memory"},
		{Command: "journalctl -p err -n 200 --no-pager", Description: "Last 200 error-level journal entries"},
		{Command: "dmesg | tail -n 200", Description: "Kernel ring buffer tail"},
	}
}

func packageProbes() []Probe {
	return []Probe{
		{Command: "which apt", Description: "Apt availability"},
		{Command: "apt-cache policy", Description: "Apt policy"},
		{Command: "apt-get -s upgrade", Description: "Apt upgrade simulation"},
		{Command: "which yum", Description: "Yum availability"},
		{Command: "yum check-update", Description: "Yum updates"},
		{Command: "which dnf", Description: "Dnf availability"},
		{Command: "dnf check-update", Description: "Dnf updates"},
		{Command: "which pacman", Description: "Pacman availability"},
		{Command: "pacman -Qu", Description: "Pacman pending upgrades"},
		{Command: "which apk", Description: "APK availability"},
		{Command: "apk version", Description: "APK version info"},
	}
}

func networkProbes() []Probe {
	return []Probe{
		{Command: "ip address", Description: "Network interfaces"},
		{Command: "ip route", Description: "Routing table"},
		{Command: "ss -tulpn", Description: "Listening sockets"},
		{Command: "resolvectl status", Description: "Resolver configuration"},
		{Command: "cat /etc/resolv.conf", Description: "Resolver fallback"},
		{Command: "ping -c 4 8.8.8.8", Description: "Ping external DNS (8.8.8.8)"},
		{Command: "ping -c 4 1.1.1.1", Description: "Ping external DNS (1.1.1.1)"},
		{Command: "ping -c 4 localhost", Description: "Ping localhost"},
		{Command: "traceroute -m 15 -w 2 8.8.8.8", Description: "Traceroute to 8.8.8.8"},
		{Command: "systemd-resolve --statistics", Description: "systemd-resolved stats"},
	}
}

func serviceProbes(r shell.Resolver) []Probe {
	if hasSystemd(r) {
		return []Probe{
			{Command: "systemctl status --no-pager", Description: "Systemd overall status"},
			{Command: "systemctl list-units --type=service --state=failed --no-pager", Description: "Failed services"},
			{Command: "systemctl list-timers --no-pager", Description: "Active timers"},
			{Command: "systemctl list-sockets --no-pager", Description: "Listening sockets via systemd"},
			{Command: "loginctl list-sessions --no-pager", Description: "Active sessions"},
		}
	}
	return []Probe{
		{Command: "service --status-all", Description: "SysV service status"},
	}
}

func containerProbes(r shell.Resolver) []Probe {
	if r == nil {
		return nil
	}
	var probes []Probe
	if _, ok := r.LookPath("docker"); ok {
		probes = append(probes,
			Probe{Command: "docker info", Description: "Docker daemon info"},
			Probe{Command: "docker ps -a", Description: "Docker containers"},
			Probe{Command: "docker images", Description: "Docker images"},
			Probe{Command: "docker network ls", Description: "Docker networks"},
			Probe{Command: "docker volume ls", Description: "Docker volumes"},
		)
	}
	if _, ok := r.LookPath("podman"); ok {
		probes = append(probes,
			Probe{Command: "podman info", Description: "Podman info"},
			Probe{Command: "podman ps -a", Description: "Podman containers"},
		)
	}
	if _, ok := r.LookPath("kubectl"); ok {
		probes = append(probes,
			Probe{Command: "kubectl config get-contexts", Description: "Kubectl contexts"},
			Probe{Command: "kubectl get nodes -o wide", Description: "Kubernetes nodes"},
			Probe{Command: "kubectl get pods --all-namespaces", Description: "Kubernetes pods"},
		)
	}
	return probes
}

func hasSystemd(r shell.Resolver) bool {
	if r == nil {
		return false
	}
	if _, ok := r.LookPath("systemctl"); !ok {
		return false
	}
	return r.IsDir("/run/systemd/system")
}
