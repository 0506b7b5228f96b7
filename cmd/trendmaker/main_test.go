package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendmaker/internal/pkg/middleware"
	"trendmaker/internal/render"
)

func TestRun_Token(t *testing.T) {
	t.Setenv("TRENDMAKER_AUTH_SECRET", "s3cret")
	var stdout, stderr bytes.Buffer

	code := run([]string{"-token", "1h"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	claims, err := middleware.ValidateToken("s3cret", strings.TrimSpace(stdout.String()))
	require.NoError(t, err)
	assert.Equal(t, "trendmaker-ui", claims.Subject)
}

func TestRun_TokenWithoutSecret(t *testing.T) {
	t.Setenv("TRENDMAKER_AUTH_SECRET", "")
	var stdout, stderr bytes.Buffer

	assert.Equal(t, exitUsage, run([]string{"-token", "1h"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "auth_secret")
}

func TestRun_BadConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{"-config", filepath.Join(t.TempDir(), "missing.toml")}, &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "config file not found")
}

func TestRun_BadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitUsage, run([]string{"-nope"}, &stdout, &stderr))
}

func TestStatusPrinter_SkipsRepeats(t *testing.T) {
	var lines []string
	p := statusPrinter(func(s string) { lines = append(lines, s) })

	for _, s := range []string{"Sending render request...", "Status: processing", "Status: processing", "", "Render completed"} {
		p.Observe(render.Snapshot{Status: s})
	}

	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[1], "Status: processing"))
	assert.True(t, strings.HasSuffix(lines[2], "Render completed"))
}

func TestTerminalWatcher_KeepsFirst(t *testing.T) {
	done := make(chan render.Notification, 1)
	w := terminalWatcher(done)

	w.Notify(context.Background(), render.Notification{Kind: render.NoticeCompleted})
	w.Notify(context.Background(), render.Notification{Kind: render.NoticeFailed})

	select {
	case n := <-done:
		assert.Equal(t, render.NoticeCompleted, n.Kind)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}
