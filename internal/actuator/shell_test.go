// internal/actuator/shell_test.go
package actuator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestShellFileOperations(t *testing.T) {
	t.Parallel()

	sh := NewShell(time.Second, zap.NewNop())
	dir := t.TempDir()

	t.Run("create and delete", func(t *testing.T) {
		t.Parallel()
		target := filepath.Join(dir, "newdir")
		_, err := sh.FileOperation(context.Background(), "create_dir", target)
		require.NoError(t, err)
		require.DirExists(t, target)

		_, err = sh.FileOperation(context.Background(), "delete", target)
		require.NoError(t, err)
		assert.NoDirExists(t, target)
	})

	t.Run("copy and move", func(t *testing.T) {
		t.Parallel()
		src := filepath.Join(dir, "src.txt")
		require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

		copied := filepath.Join(dir, "copy.txt")
		_, err := sh.FileOperation(context.Background(), "copy", src+" -> "+copied)
		require.NoError(t, err)
		data, err := os.ReadFile(copied)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))

		moved := filepath.Join(dir, "moved.txt")
		_, err = sh.FileOperation(context.Background(), "move", copied+" -> "+moved)
		require.NoError(t, err)
		assert.NoFileExists(t, copied)
		assert.FileExists(t, moved)
	})

	t.Run("bad pair is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := sh.FileOperation(context.Background(), "move", "/only/one/path")
		assert.Error(t, err)
	})

	t.Run("unknown operation is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := sh.FileOperation(context.Background(), "transmogrify", "/tmp/x")
		assert.Error(t, err)
	})
}

func TestShellCommand(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell syntax differs on windows")
	}

	sh := NewShell(5*time.Second, zap.NewNop())

	out, err := sh.Command(context.Background(), "echo kestrel")
	require.NoError(t, err)
	assert.Contains(t, out, "kestrel")

	_, err = sh.Command(context.Background(), "exit 3")
	assert.Error(t, err)
}
