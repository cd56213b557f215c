package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "ip route", "ip route"},
		{"double quoted", `"systemctl status nginx"`, "systemctl status nginx"},
		{"single quoted", `'df -h'`, "df -h"},
		{"mismatched quotes kept", `"echo hi'`, `"echo hi'`},
		{"literal escapes", `printf 'a\tb'\necho done`, "printf 'a\tb'\necho done"},
		{"trailing whitespace", "echo a   \necho b\t", "echo a\necho b"},
		{"heredoc gets newline", "cat > /tmp/x <<'EOF'\nhello\nEOF  ", "cat > /tmp/x <<'EOF'\nhello\nEOF\n"},
		{"heredoc newline not doubled", "cat <<EOF\nx\nEOF\n", "cat <<EOF\nx\nEOF\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCommand(tt.input))
		})
	}
}

func TestHasPlaceholder(t *testing.T) {
	assert.True(t, HasPlaceholder("docker exec <container> ip route"))
	assert.True(t, HasPlaceholder("ping -c1 <gateway-ip>"))
	assert.False(t, HasPlaceholder("docker exec web ip route"))
	assert.False(t, HasPlaceholder("cat > /etc/x.conf <<'EOF'\n<VirtualHost>\nEOF\n"))
	assert.False(t, HasPlaceholder("echo a < input.txt"))
}

func TestIsRisky(t *testing.T) {
	risky := []string{
		"rm -rf /",
		"mkfs.ext4 /dev/sdb1",
		"dd if=/dev/zero of=/dev/sda",
		"chmod 777 /etc",
		"chown -R nobody /var",
		"fdisk -l",
		"sudo systemctl restart nginx",
		"  sudo ls",
		"sudo",
		"iptables -F",
		"ufw --force reset",
		":> /etc/hosts",
	}
	for _, cmd := range risky {
		assert.True(t, IsRisky(cmd), cmd)
	}

	safe := []string{
		"rm -rf /tmp/build",
		"ls -la /",
		"ip route show",
		"chmod 644 ./file",
		"sudoku --solve puzzle.txt",
		"sudoedit-foo /tmp/x",
		"cat /etc/sudoers.d/README",
	}
	for _, cmd := range safe {
		assert.False(t, IsRisky(cmd), cmd)
	}
}
