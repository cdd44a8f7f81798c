package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsDangerousChars(t *testing.T) {
	bad := []string{
		"1.2.3.4; rm -rf /",
		"1.2.3.4|cat",
		"a&b",
		"`whoami`",
		"$(id)",
		"a<b",
		"a>b",
		"line\nbreak",
		"cr\rhere",
		"tab\there",
		"nul\x00byte",
	}
	for _, s := range bad {
		assert.True(t, ContainsDangerousChars(s), "expected dangerous: %q", s)
	}

	good := []string{"1.2.3.4", "10.0.0.0/8", "2001:db8::1", "example.com"}
	for _, s := range good {
		assert.False(t, ContainsDangerousChars(s), "expected clean: %q", s)
	}
}

func TestIsValidIPOrCIDR(t *testing.T) {
	valid := []string{
		"1.2.3.4",
		"255.255.255.255",
		"10.0.0.0/8",
		"192.168.1.0/24",
		"1.2.3.4/32",
		"2001:db8::1",
		"2001:db8::/64",
		"::1/128",
	}
	for _, s := range valid {
		assert.True(t, IsValidIPOrCIDR(s), "expected valid: %q", s)
	}

	invalid := []string{
		"",
		"not-an-ip",
		"1.2.3.4.5",
		"300.1.1.1",
		"10.0.0.0/33",
		"2001:db8::/129",
		"1.2.3.4/",
		"/24",
	}
	for _, s := range invalid {
		assert.False(t, IsValidIPOrCIDR(s), "expected invalid: %q", s)
	}
}

func TestIsValidPort(t *testing.T) {
	assert.True(t, IsValidPort(1))
	assert.True(t, IsValidPort(25565))
	assert.True(t, IsValidPort(65535))
	assert.False(t, IsValidPort(0))
	assert.False(t, IsValidPort(-1))
	assert.False(t, IsValidPort(65536))
}

func TestIsValidPriority(t *testing.T) {
	assert.True(t, IsValidPriority(0))
	assert.True(t, IsValidPriority(10000))
	assert.False(t, IsValidPriority(-1))
	assert.False(t, IsValidPriority(10001))
}

func TestIsValidDomain(t *testing.T) {
	valid := []string{"example.com", "play.my-server.net", "a.b.c.d.example.org"}
	for _, s := range valid {
		assert.True(t, IsValidDomain(s), "expected valid: %q", s)
	}

	tooLong := "a"
	for len(tooLong) < 254 {
		tooLong += ".a"
	}
	invalid := []string{
		"",
		"nodot",
		"-bad.example.com",
		"bad-.example.com",
		"bad..example.com",
		"under_score.example.com",
		tooLong,
	}
	for _, s := range invalid {
		assert.False(t, IsValidDomain(s), "expected invalid: %q", s)
	}
}

func TestIsInternalIP(t *testing.T) {
	assert.True(t, IsInternalIP("127.0.0.1"))
	assert.True(t, IsInternalIP("0.0.0.0"))
	assert.True(t, IsInternalIP("localhost"))
	assert.True(t, IsInternalIP("::1"))
	assert.False(t, IsInternalIP("203.0.113.10"))
}
