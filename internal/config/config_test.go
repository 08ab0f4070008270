package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBasic(t *testing.T) {
	c := Parse([]byte("data_path = ./Data\n# a comment\nirc_client_close_timeout_sec=10\n"))
	assert.Equal(t, "./Data", c.Get("data_path", ""))
	assert.Equal(t, 10, GetAs(c, "irc_client_close_timeout_sec", 5))
	assert.False(t, c.Exists("missing_key"))
}

func TestParseStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("log_path = ./Data/Log\n")...)
	c := Parse(data)
	assert.Equal(t, "./Data/Log", c.Get("log_path", ""))
}

func TestParseLastWriteWins(t *testing.T) {
	c := Parse([]byte("key = first\nkey = second\n"))
	assert.Equal(t, "second", c.Get("key", ""))
}

func TestGetAsFallsBackOnMissingOrBadValue(t *testing.T) {
	c := Parse([]byte("count = not-a-number\n"))
	assert.Equal(t, 20, GetAs(c, "count", 20))
	assert.Equal(t, 20, GetAs(c, "absent", 20))
}

func TestCommentAndBlankLinesIgnored(t *testing.T) {
	c := Parse([]byte("\n#comment\nkey=value\n"))
	assert.Equal(t, "value", c.Get("key", ""))
	assert.False(t, c.Exists("#comment"))
}
