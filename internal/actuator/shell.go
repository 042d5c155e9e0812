// internal/actuator/shell.go
package actuator

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Shell performs the machine-level actions that have no surface analog:
// filesystem operations and shell commands. Everything here runs only
// after the safety pipeline has approved it.
type Shell struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewShell builds the executor. timeout bounds each command.
func NewShell(timeout time.Duration, logger *zap.Logger) *Shell {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Shell{timeout: timeout, logger: logger.Named("actuator.shell")}
}

// FileOperation applies one filesystem operation. The path pair for move
// and copy is "src -> dst" in the Path field.
func (s *Shell) FileOperation(ctx context.Context, operation, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch strings.ToLower(operation) {
	case "delete", "remove":
		if err := os.RemoveAll(path); err != nil {
			return "", fmt.Errorf("delete %q: %w", path, err)
		}
		return "deleted " + path, nil

	case "create_dir", "mkdir":
		if err := os.MkdirAll(path, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %q: %w", path, err)
		}
		return "created " + path, nil

	case "move", "copy":
		src, dst, ok := splitPathPair(path)
		if !ok {
			return "", fmt.Errorf("%s needs %q, got %q", operation, "src -> dst", path)
		}
		if strings.EqualFold(operation, "move") {
			if err := os.Rename(src, dst); err != nil {
				return "", fmt.Errorf("move %q: %w", path, err)
			}
			return fmt.Sprintf("moved %s to %s", src, dst), nil
		}
		if err := copyFile(src, dst); err != nil {
			return "", fmt.Errorf("copy %q: %w", path, err)
		}
		return fmt.Sprintf("copied %s to %s", src, dst), nil

	default:
		return "", fmt.Errorf("unsupported file operation %q", operation)
	}
}

// Command runs a shell command and returns its combined output.
func (s *Shell) Command(ctx context.Context, command string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(cmdCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(cmdCtx, "sh", "-c", command)
	}

	start := time.Now()
	out, err := cmd.CombinedOutput()
	s.logger.Info("Shell command finished",
		zap.String("command", command),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("ok", err == nil))
	if err != nil {
		return string(out), fmt.Errorf("command failed: %w (output: %s)", err, truncate(string(out), 500))
	}
	return string(out), nil
}

func splitPathPair(path string) (src, dst string, ok bool) {
	parts := strings.SplitN(path, "->", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	src = strings.TrimSpace(parts[0])
	dst = strings.TrimSpace(parts[1])
	return src, dst, src != "" && dst != ""
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
