//go:build !windows

package integration

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/installer-updater/internal/config"
	"github.com/oshokin/installer-updater/internal/service/updater"
)

// writeScript creates an executable shell script padded with comments to at least size bytes.
func writeScript(t *testing.T, path, body string, size int) []byte {
	t.Helper()

	var buf bytes.Buffer

	buf.WriteString("#!/bin/sh\n")
	buf.WriteString(body)
	buf.WriteString("\n")

	for buf.Len() < size {
		buf.WriteString("# padding to look like a real artifact\n")
	}

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o755))

	return buf.Bytes()
}

// startHealthServer serves the gRPC health service as a stand-in for the relaunched artifact.
func startHealthServer(t *testing.T) string {
	t.Helper()

	lc := net.ListenConfig{}

	lis, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, health.NewServer())

	go func() {
		_ = srv.Serve(lis)
	}()

	t.Cleanup(srv.Stop)

	return lis.Addr().String()
}

// TestUpdater_Run_SwapsAndStarts installs a script over an older one and checks the new one runs in the target directory.
func TestUpdater_Run_SwapsAndStarts(t *testing.T) {
	t.Parallel()

	stagingDir := t.TempDir()
	appDir := t.TempDir()

	newArtifact := filepath.Join(stagingDir, "app-2.0.0.sh")
	target := filepath.Join(appDir, "app.sh")

	newData := writeScript(t, newArtifact, "echo 2.0.0 > started.txt", int(config.DefaultMinArtifactSize))
	writeScript(t, target, "echo 1.0.0 > started.txt", int(config.DefaultMinArtifactSize))

	opts := updater.OptionsFromConfig(config.Default(), newArtifact, target, "2.0.0")
	opts.QuiescenceWait = 0
	opts.SettleDelay = 50 * time.Millisecond

	require.NoError(t, updater.Run(context.Background(), opts))

	installed, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, newData, installed)

	_, err = os.Stat(updater.BackupPath(target))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(newArtifact)
	require.ErrorIs(t, err, os.ErrNotExist)

	started := filepath.Join(appDir, "started.txt")
	require.Eventually(t, func() bool {
		data, readErr := os.ReadFile(started)
		return readErr == nil && strings.TrimSpace(string(data)) == "2.0.0"
	}, 5*time.Second, 20*time.Millisecond)
}

// TestUpdater_Run_RestoresOnBrokenArtifact rolls back when the new artifact cannot be executed.
func TestUpdater_Run_RestoresOnBrokenArtifact(t *testing.T) {
	t.Parallel()

	appDir := t.TempDir()
	newArtifact := filepath.Join(appDir, "app.new")
	target := filepath.Join(appDir, "app.sh")

	// No execute bit: the relaunch fails.
	require.NoError(t, os.WriteFile(newArtifact, bytes.Repeat([]byte{'x'}, 200_000), 0o644))
	oldData := writeScript(t, target, "echo 1.0.0 > started.txt", int(config.DefaultMinArtifactSize))

	opts := updater.OptionsFromConfig(config.Default(), newArtifact, target, "2.0.0")
	opts.QuiescenceWait = 0
	opts.SettleDelay = 0

	err := updater.Run(context.Background(), opts)
	require.Error(t, err)
	require.NotErrorIs(t, err, updater.ErrRollbackFailed)

	stage, ok := updater.StageOf(err)
	require.True(t, ok)
	require.Equal(t, updater.StageRelaunch, stage)

	restored, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, oldData, restored)

	_, err = os.Stat(updater.BackupPath(target))
	require.ErrorIs(t, err, os.ErrNotExist)

	// The original version is started again.
	started := filepath.Join(appDir, "started.txt")
	require.Eventually(t, func() bool {
		data, readErr := os.ReadFile(started)
		return readErr == nil && strings.TrimSpace(string(data)) == "1.0.0"
	}, 5*time.Second, 20*time.Millisecond)
}

// TestUpdater_Run_WaitsForReadiness probes the health service instead of sleeping.
func TestUpdater_Run_WaitsForReadiness(t *testing.T) {
	t.Parallel()

	appDir := t.TempDir()
	newArtifact := filepath.Join(appDir, "app.new")
	target := filepath.Join(appDir, "app.sh")

	writeScript(t, newArtifact, "exit 0", int(config.DefaultMinArtifactSize))

	opts := updater.OptionsFromConfig(config.Default(), newArtifact, target, "2.0.0")
	opts.QuiescenceWait = 0
	opts.SettleDelay = time.Hour
	opts.ReadinessAddress = startHealthServer(t)
	opts.ReadinessTimeout = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()

	require.NoError(t, updater.Run(ctx, opts))
	require.Less(t, time.Since(start), 10*time.Second)
}
