package executor_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/musubi-dev/musubi/pkg/domain/model"
	"github.com/musubi-dev/musubi/pkg/domain/types"
	"github.com/musubi-dev/musubi/pkg/service/executor"
)

func strPtr(s string) *string { return &s }

func fileAction(t types.ActionType, path string, content *string) *model.Action {
	return &model.Action{
		ID:        model.NewActionID(),
		Type:      t,
		Status:    types.ActionStatusApproved,
		Timestamp: time.Now(),
		Details:   &model.FileDetails{Path: path, Content: content},
	}
}

func commandAction(cmd, dir string, env map[string]string) *model.Action {
	return &model.Action{
		ID:        model.NewActionID(),
		Type:      types.ActionTypeCommandRun,
		Status:    types.ActionStatusApproved,
		Timestamp: time.Now(),
		Details: &model.CommandDetails{
			Command:          cmd,
			WorkingDirectory: dir,
			Environment:      env,
		},
	}
}

func TestExecuteFileOperations(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	exec := executor.New()

	t.Run("create writes content and parent directories", func(t *testing.T) {
		path := filepath.Join(dir, "nested", "deeper", "a.txt")
		result, err := exec.Execute(ctx, fileAction(types.ActionTypeFileCreate, path, strPtr("hi")))
		gt.NoError(t, err).Required()
		gt.Value(t, result).Equal("File created: " + path)

		data, err := os.ReadFile(path)
		gt.NoError(t, err).Required()
		gt.Value(t, string(data)).Equal("hi")
	})

	t.Run("empty content creates an empty file", func(t *testing.T) {
		path := filepath.Join(dir, "empty.txt")
		_, err := exec.Execute(ctx, fileAction(types.ActionTypeFileCreate, path, strPtr("")))
		gt.NoError(t, err).Required()

		info, err := os.Stat(path)
		gt.NoError(t, err).Required()
		gt.Value(t, info.Size()).Equal(int64(0))
	})

	t.Run("edit overwrites existing content", func(t *testing.T) {
		path := filepath.Join(dir, "edit.txt")
		gt.NoError(t, os.WriteFile(path, []byte("old content that is longer"), 0o644)).Required()

		result, err := exec.Execute(ctx, fileAction(types.ActionTypeFileEdit, path, strPtr("new")))
		gt.NoError(t, err).Required()
		gt.Value(t, result).Equal("File updated: " + path)

		data, err := os.ReadFile(path)
		gt.NoError(t, err).Required()
		gt.Value(t, string(data)).Equal("new")
	})

	t.Run("delete removes the file", func(t *testing.T) {
		path := filepath.Join(dir, "delete.txt")
		gt.NoError(t, os.WriteFile(path, []byte("x"), 0o644)).Required()

		result, err := exec.Execute(ctx, fileAction(types.ActionTypeFileDelete, path, nil))
		gt.NoError(t, err).Required()
		gt.Value(t, result).Equal("File deleted: " + path)
		gt.Bool(t, exec.FileExists(path)).False()
	})

	t.Run("delete of a missing file fails", func(t *testing.T) {
		path := filepath.Join(dir, "missing.txt")
		_, err := exec.Execute(ctx, fileAction(types.ActionTypeFileDelete, path, nil))
		gt.Error(t, err).Is(executor.ErrFileNotFound)
	})

	t.Run("create without content is rejected before touching disk", func(t *testing.T) {
		path := filepath.Join(dir, "nocontent.txt")
		_, err := exec.Execute(ctx, fileAction(types.ActionTypeFileCreate, path, nil))
		gt.Error(t, err).Is(model.ErrMissingRequired)
		gt.Bool(t, exec.FileExists(path)).False()
	})
}

func TestExecuteCodeGeneration(t *testing.T) {
	exec := executor.New()
	action := &model.Action{
		ID:      model.NewActionID(),
		Type:    types.ActionTypeCodeGeneration,
		Status:  types.ActionStatusApproved,
		Details: &model.CodeGenerationDetails{Prompt: "hello world in go"},
	}

	result, err := exec.Execute(context.Background(), action)
	gt.NoError(t, err).Required()
	gt.Value(t, result).Equal("Code generated successfully")
}

func TestExecuteCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("stdout becomes the result", func(t *testing.T) {
		exec := executor.New()
		result, err := exec.Execute(ctx, commandAction("echo hello", "", nil))
		gt.NoError(t, err).Required()
		gt.Value(t, result).Equal("hello\n")
	})

	t.Run("empty stdout yields the default message", func(t *testing.T) {
		exec := executor.New()
		result, err := exec.Execute(ctx, commandAction("true", "", nil))
		gt.NoError(t, err).Required()
		gt.Value(t, result).Equal("Command executed successfully")
	})

	t.Run("stderr alone is not a failure", func(t *testing.T) {
		exec := executor.New()
		result, err := exec.Execute(ctx, commandAction("echo warn >&2", "", nil))
		gt.NoError(t, err).Required()
		gt.Value(t, result).Equal("Command executed successfully")
	})

	t.Run("non-zero exit fails", func(t *testing.T) {
		exec := executor.New()
		_, err := exec.Execute(ctx, commandAction("exit 3", "", nil))
		gt.Value(t, err).NotNil()
	})

	t.Run("syntax error is reported as invalid command", func(t *testing.T) {
		exec := executor.New()
		_, err := exec.Execute(ctx, commandAction("echo 'unterminated", "", nil))
		gt.Error(t, err).Is(executor.ErrInvalidCommand)
	})

	t.Run("working directory is honoured", func(t *testing.T) {
		dir := t.TempDir()
		gt.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), []byte("found"), 0o644)).Required()

		exec := executor.New()
		result, err := exec.Execute(ctx, commandAction("cat marker", dir, nil))
		gt.NoError(t, err).Required()
		gt.Value(t, result).Equal("found")
	})

	t.Run("action environment overrides executor environment", func(t *testing.T) {
		exec := executor.New(executor.WithEnvironment(map[string]string{
			"MUSUBI_A": "from-executor",
			"MUSUBI_B": "kept",
		}))
		result, err := exec.Execute(ctx, commandAction(`echo "$MUSUBI_A $MUSUBI_B"`, "", map[string]string{
			"MUSUBI_A": "from-action",
		}))
		gt.NoError(t, err).Required()
		gt.Value(t, strings.TrimSpace(result)).Equal("from-action kept")
	})

	t.Run("timeout stops a long command", func(t *testing.T) {
		exec := executor.New(executor.WithCommandTimeout(100 * time.Millisecond))
		start := time.Now()
		_, err := exec.Execute(ctx, commandAction("while true; do :; done", "", nil))
		gt.Error(t, err).Is(executor.ErrCommandTimeout)
		gt.B(t, time.Since(start) < 10*time.Second).True()
	})
}

func TestWorkspaceRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	exec := executor.New(executor.WithWorkspaceRoot(root))

	t.Run("relative path is resolved under root", func(t *testing.T) {
		_, err := exec.Execute(ctx, fileAction(types.ActionTypeFileCreate, "sub/in.txt", strPtr("ok")))
		gt.NoError(t, err).Required()

		data, err := os.ReadFile(filepath.Join(root, "sub", "in.txt"))
		gt.NoError(t, err).Required()
		gt.Value(t, string(data)).Equal("ok")
	})

	t.Run("absolute path outside root is refused", func(t *testing.T) {
		outside := filepath.Join(t.TempDir(), "escape.txt")
		_, err := exec.Execute(ctx, fileAction(types.ActionTypeFileCreate, outside, strPtr("x")))
		gt.Error(t, err).Is(executor.ErrPathOutsideRoot)
		_, statErr := os.Stat(outside)
		gt.Bool(t, os.IsNotExist(statErr)).True()
	})

	t.Run("dot-dot traversal is refused", func(t *testing.T) {
		_, err := exec.Execute(ctx, fileAction(types.ActionTypeFileCreate, "../escape.txt", strPtr("x")))
		gt.Error(t, err).Is(executor.ErrPathOutsideRoot)
	})

	t.Run("command working directory is confined", func(t *testing.T) {
		_, err := exec.Execute(ctx, commandAction("true", "/", nil))
		gt.Error(t, err).Is(executor.ErrPathOutsideRoot)
	})

	t.Run("command runs in root by default", func(t *testing.T) {
		gt.NoError(t, os.WriteFile(filepath.Join(root, "here"), []byte("root"), 0o644)).Required()
		result, err := exec.Execute(ctx, commandAction("cat here", "", nil))
		gt.NoError(t, err).Required()
		gt.Value(t, result).Equal("root")
	})

	t.Run("ReadFile and FileExists respect root", func(t *testing.T) {
		content, err := exec.ReadFile("sub/in.txt")
		gt.NoError(t, err).Required()
		gt.Value(t, content).Equal("ok")
		gt.Bool(t, exec.FileExists("sub/in.txt")).True()
		gt.Bool(t, exec.FileExists("sub")).False()

		_, err = exec.ReadFile("../etc/passwd")
		gt.Error(t, err).Is(executor.ErrPathOutsideRoot)

		_, err = exec.ReadFile("nope.txt")
		gt.Error(t, err).Is(executor.ErrFileNotFound)
	})
}

func TestMaxConcurrent(t *testing.T) {
	root := t.TempDir()
	exec := executor.New(executor.WithMaxConcurrent(1), executor.WithWorkspaceRoot(root))

	// Each command appends to a shared file while holding a marker; with a
	// single slot the marker is never seen by another command.
	var wg sync.WaitGroup
	var failures atomic.Int32
	for range 4 {
		wg.Go(func() {
			cmd := `if [ -e busy ]; then exit 9; fi; touch busy; sleep 0.05; rm busy`
			if _, err := exec.Execute(context.Background(), commandAction(cmd, "", nil)); err != nil {
				failures.Add(1)
			}
		})
	}
	wg.Wait()
	gt.Value(t, failures.Load()).Equal(int32(0))
}

func TestExecuteCancelledWhileWaiting(t *testing.T) {
	exec := executor.New(executor.WithMaxConcurrent(1), executor.WithCommandTimeout(time.Second))

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		close(started)
		_, _ = exec.Execute(context.Background(), commandAction("sleep 0.3", "", nil))
	}()
	<-started
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := exec.Execute(ctx, commandAction("true", "", nil))
	gt.Value(t, err).NotNil()
	<-done
}
