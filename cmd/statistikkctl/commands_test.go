package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/Guizzs26/go-saksstatistikk/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		store:  db.NewMemoryStore(),
	}
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseWindow(t *testing.T) {
	oslo, err := time.LoadLocation("Europe/Oslo")
	require.NoError(t, err)

	from, to, err := parseWindow("2026-10-12", "2026-10-16", oslo)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, oslo), from)
	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, oslo), to, "the last day is inclusive")

	_, _, err = parseWindow("2026-10-16", "2026-10-12", time.UTC)
	assert.Error(t, err)
	_, _, err = parseWindow("16.10.2026", "2026-10-12", time.UTC)
	assert.Error(t, err)
}

func TestTallCommand(t *testing.T) {
	out, err := run(t, "tall", "--dager", "3")
	require.NoError(t, err)

	var r tallRapport
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Len(t, r.Daglig.Opened, 3)
	assert.Len(t, r.Daglig.Closed, 3)
	assert.Len(t, r.PerDag, 3)
	assert.Len(t, r.Apne, 13)
	assert.Len(t, r.Avsluttet, 13)
}

func TestTallCommand_RejectsEmptyWindow(t *testing.T) {
	_, err := run(t, "tall", "--dager", "0")
	assert.Error(t, err)
}

func TestKvitteringerCommand_EmptyList(t *testing.T) {
	out, err := run(t, "kvitteringer", "--fra", "2026-10-12", "--til", "2026-10-16")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestReplayCommand(t *testing.T) {
	out, err := run(t, "replay", "--fra", "2026-10-12", "--til", "2026-10-12")
	require.NoError(t, err)
	assert.JSONEq(t, `{"kvitteringer": 0, "jobber": 0}`, out)

	_, err = run(t, "replay", "--fra", "2026-10-12")
	assert.Error(t, err, "til is required")
}

func TestMigrateCommand_NeedsMigrator(t *testing.T) {
	_, err := run(t, "migrate")
	assert.Error(t, err)
}
