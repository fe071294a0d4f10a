package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studybuddy/internal/config"
	"studybuddy/internal/store"
)

func TestClearHistoryTargetsWorkspaceDatabase(t *testing.T) {
	ws := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Storage.Enabled = true
	require.NoError(t, config.Save(ws, cfg))

	dbPath := filepath.Join(ws, cfg.Storage.DatabasePath)
	seed, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, seed.SaveMessage(store.Record{ID: "a", Sender: "user", Text: "keep?", CreatedAt: time.Now()}))
	require.NoError(t, seed.Close())

	// Run from an unrelated directory, targeting the workspace by flag.
	t.Chdir(t.TempDir())
	prevWorkspace, prevLogger := workspace, logger
	workspace, logger = ws, zap.NewNop()
	t.Cleanup(func() { workspace, logger = prevWorkspace, prevLogger })

	require.NoError(t, clearHistoryCmd.RunE(clearHistoryCmd, nil))

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()
	recs, err := s.LoadMessages()
	require.NoError(t, err)
	assert.Empty(t, recs, "workspace database should be cleared")

	_, err = os.Stat(".studybuddy")
	assert.True(t, os.IsNotExist(err), "no stray database under the working directory")
}
