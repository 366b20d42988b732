package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/funcionariopro/migrations"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args []string
		want command
	}{
		{nil, command{name: "up"}},
		{[]string{"up"}, command{name: "up"}},
		{[]string{"version"}, command{name: "version"}},
		{[]string{"force", "1"}, command{name: "force", version: 1}},
	}
	for _, tt := range tests {
		got, err := parseCommand(tt.args)
		require.NoError(t, err, tt.args)
		assert.Equal(t, tt.want, got)
	}

	for _, args := range [][]string{{"force"}, {"force", "x"}, {"force", "-1"}, {"down"}} {
		_, err := parseCommand(args)
		assert.Error(t, err, args)
	}
}

func TestRunRequiresDatabaseURL(t *testing.T) {
	err := run(command{name: "up"}, "  ", logging.NewWithWriter(io.Discard, "error"))
	assert.ErrorIs(t, err, errDatabaseURLRequired)
}

func TestEmbeddedMigrations(t *testing.T) {
	up, err := migrations.FS.ReadFile("000001_published_agents.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS published_agents")

	down, err := migrations.FS.ReadFile("000001_published_agents.down.sql")
	require.NoError(t, err)
	assert.Contains(t, string(down), "published_agents")
}
