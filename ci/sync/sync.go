package sync

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/replisync/ci/util"
	"github.com/sidkik/replisync/pkg/config"
)

func Test(t *testing.T, helper *util.TestHelper) {
	t.Run("Once", func(t *testing.T) {
		testOnce(t, helper)
	})
	t.Run("ConfigFile", func(t *testing.T) {
		testConfigFile(t, helper)
	})
	t.Run("Watch", func(t *testing.T) {
		testWatch(t, helper)
	})
	t.Run("MissingSource", func(t *testing.T) {
		testMissingSource(t, helper)
	})
}

// testOnce applies a series of changes to the source, and checks that a
// single pass makes the replica match after each one.
func testOnce(t *testing.T, helper *util.TestHelper) {
	refFile := randomFile("dir/test-file")

	steps := []struct {
		name    string
		changes []fsOp
	}{
		{
			name: "InitialCopy",
			changes: []fsOp{
				createFile(refFile),
				createFile(randomFile("top-level")),
				createFile(randomFile("dir/nested/deep")),
				createDir("empty"),
			},
		},
		{
			name: "ChangeContents",
			changes: []fsOp{createFile(refFile.WithContents("changed contents").
				WithModTime(refFile.modTime.Add(time.Minute)))},
		},
		{
			name:    "RemoveFile",
			changes: []fsOp{remove(refFile.path)},
		},
		{
			name:    "RemoveDirectory",
			changes: []fsOp{remove("dir")},
		},
		{
			name:    "ReplaceDirectoryWithFile",
			changes: []fsOp{remove("empty"), createFile(randomFile("empty"))},
		},
	}

	for _, useHash := range []bool{false, true} {
		useHash := useHash
		name := "Timestamp"
		if useHash {
			name = "Hash"
		}

		t.Run(name, func(t *testing.T) {
			fs, err := newMockFs()
			require.NoError(t, err)
			defer fs.cleanup()

			for _, step := range steps {
				for _, change := range step.changes {
					require.NoError(t, change(fs), step.name)
				}

				args := []string{"sync", "--once", "--log", fs.logFile, "~/source", fs.replica}
				if useHash {
					args = append(args, "--use-hash")
				}
				out, err := helper.Run(context.Background(), args...)
				require.NoError(t, err, "%s: %s", step.name, out)

				assertTreesEqual(t, fs, step.name)
			}

			logContents, err := ioutil.ReadFile(fs.logFile)
			require.NoError(t, err)
			assert.Contains(t, string(logContents), "Created directory")
			assert.Contains(t, string(logContents), "Removed directory")
		})
	}
}

func testConfigFile(t *testing.T, helper *util.TestHelper) {
	fs, err := newMockFs()
	require.NoError(t, err)
	defer fs.cleanup()

	require.NoError(t, createFile(randomFile("file"))(fs))

	cfgPath, err := fs.writeSyncConfig(config.SyncConfig{
		Version: config.SupportedSyncConfigVersion,
		Source:  "~/source",
		Replica: "replica",
		LogFile: "sync_log.txt",
		UseHash: true,
	})
	require.NoError(t, err)

	out, err := helper.Run(context.Background(), "sync", "--once", "--config", cfgPath)
	require.NoError(t, err, string(out))

	// Relative paths in the config are relative to the config file.
	assertTreesEqual(t, fs, "config file")
	assert.FileExists(t, filepath.Join(fs.root, "sync_log.txt"))
}

func testWatch(t *testing.T, helper *util.TestHelper) {
	fs, err := newMockFs()
	require.NoError(t, err)
	defer fs.cleanup()

	require.NoError(t, createFile(randomFile("file"))(fs))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// The interval is long enough that only the watcher can trigger the
	// second pass.
	syncCtx, stopSync := context.WithCancel(ctx)
	stdout, syncErr, err := helper.Start(syncCtx, "sync", "--watch", "--interval", "3600",
		"--log", fs.logFile, fs.source, fs.replica)
	require.NoError(t, err)

	require.NoError(t, util.WaitForOutput(ctx, stdout, "Synchronization completed"))
	assertTreesEqual(t, fs, "initial pass")

	require.NoError(t, createFile(randomFile("new-dir/new-file"))(fs))
	synced := util.TestWithRetry(ctx, nil, func() bool {
		return treesEqual(fs)
	})
	assert.True(t, synced, "change should be synced without waiting for the interval")

	stopSync()
	assert.NoError(t, <-syncErr)
	require.NoError(t, util.WaitForOutput(ctx, stdout, "Synchronization stopped by user."))
}

func testMissingSource(t *testing.T, helper *util.TestHelper) {
	fs, err := newMockFs()
	require.NoError(t, err)
	defer fs.cleanup()

	missing := filepath.Join(fs.root, "missing")
	out, err := helper.Run(context.Background(), "sync", "--once", "--log", fs.logFile,
		missing, fs.replica)
	assert.Error(t, err)
	assert.Contains(t, string(out), "does not exist")
	assert.NoDirExists(t, fs.replica)
}

func assertTreesEqual(t *testing.T, fs mockFs, msg string) {
	source, err := readTree(fs.source)
	require.NoError(t, err, msg)

	replica, err := readTree(fs.replica)
	require.NoError(t, err, msg)

	assert.Equal(t, source, replica, msg)
}

func treesEqual(fs mockFs) bool {
	source, err := readTree(fs.source)
	if err != nil {
		return false
	}

	replica, err := readTree(fs.replica)
	if err != nil {
		return false
	}
	return assert.ObjectsAreEqual(source, replica)
}
