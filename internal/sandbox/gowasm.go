package sandbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/livetemplate/tinkerblog/internal/cache"
)

// compiledTTL is how long a compiled snippet stays cached after its last build.
const compiledTTL = time.Hour

// GoEvaluator compiles Go snippets to WASI and runs them with wazero.
//
// A snippet must be a complete main package. Its standard output becomes the
// preview text; a non-zero exit status or a build failure becomes the error.
// Modules run without filesystem, environment or network access.
type GoEvaluator struct {
	GoBinary string
	Timeout  time.Duration

	compiled *cache.MemoryCache[[]byte]
	logger   *zap.Logger
}

// NewGoEvaluator creates a GoEvaluator. Call Close to release its cache.
func NewGoEvaluator(goBinary string, timeout time.Duration, logger *zap.Logger) *GoEvaluator {
	if goBinary == "" {
		goBinary = "go"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoEvaluator{
		GoBinary: goBinary,
		Timeout:  timeout,
		compiled: cache.NewMemoryCache[[]byte](),
		logger:   logger,
	}
}

// Close stops the compiled module cache.
func (e *GoEvaluator) Close() {
	e.compiled.Stop()
}

// Available reports whether the Go toolchain can be found.
func (e *GoEvaluator) Available() bool {
	_, err := exec.LookPath(e.GoBinary)
	return err == nil
}

// Evaluate builds and runs p.Code. NoInline has no effect: Go snippets are
// always whole programs.
func (e *GoEvaluator) Evaluate(ctx context.Context, p Program) Result {
	ctx, span := startSpan(ctx, "sandbox.GoEvaluator.Evaluate", p)
	start := time.Now()
	res := e.evaluate(ctx, p)
	res.Duration = time.Since(start)
	endSpan(span, res)
	return res
}

func (e *GoEvaluator) evaluate(ctx context.Context, p Program) Result {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	wasmBytes, err := e.compile(ctx, p.Code)
	if err != nil {
		return Result{Err: contextErr(err)}
	}

	stdout, err := e.run(ctx, wasmBytes)
	if err != nil {
		return Result{Output: stdout, Err: contextErr(err)}
	}
	if stdout == "" {
		return Result{Err: ErrNoRender}
	}
	return Result{Output: stdout}
}

func (e *GoEvaluator) compile(ctx context.Context, code string) ([]byte, error) {
	sum := sha256.Sum256([]byte(code))
	key := hex.EncodeToString(sum[:])
	if wasm, found, _ := e.compiled.Get(key); found {
		return wasm, nil
	}

	dir, err := os.MkdirTemp("", "tinkerblog-go-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create build dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module snippet\n\ngo 1.21\n"), 0644); err != nil {
		return nil, fmt.Errorf("failed to write go.mod: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte(code), 0644); err != nil {
		return nil, fmt.Errorf("failed to write main.go: %w", err)
	}

	out := filepath.Join(dir, "main.wasm")
	cmd := exec.CommandContext(ctx, e.GoBinary, "build", "-o", out, ".")
	cmd.Dir = dir
	cmd.Env = buildEnv(os.Environ())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, errors.New(cleanBuildOutput(msg, dir))
	}

	wasm, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read compiled module: %w", err)
	}
	e.compiled.Set(key, wasm, compiledTTL)
	e.logger.Debug("compiled go snippet", zap.String("hash", key[:12]), zap.Int("bytes", len(wasm)))
	return wasm, nil
}

// buildEnv targets wasip1 and keeps snippets to the standard library: modules
// are never resolved and the proxy is off, so a build never goes online.
func buildEnv(base []string) []string {
	return append(base,
		"GOOS=wasip1",
		"GOARCH=wasm",
		"CGO_ENABLED=0",
		"GOFLAGS=-mod=readonly",
		"GOPROXY=off",
		"GOTOOLCHAIN=local",
	)
}

// run instantiates the module in a fresh runtime. The runtime is closed when
// ctx is done, which aborts a module stuck in a loop.
func (e *GoEvaluator) run(ctx context.Context, wasmBytes []byte) (string, error) {
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	defer r.Close(context.Background())

	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		return "", fmt.Errorf("failed to compile WASM module: %w", err)
	}

	var stdout, stderr bytes.Buffer
	moduleConfig := wazero.NewModuleConfig().
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithArgs("snippet")

	mod, err := r.InstantiateModule(ctx, compiled, moduleConfig)
	if mod != nil {
		defer mod.Close(context.Background())
	}
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() == 0 {
				return stdout.String(), nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stdout.String(), ctxErr
			}
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = fmt.Sprintf("exit status %d", exitErr.ExitCode())
			}
			return stdout.String(), errors.New(msg)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stdout.String(), ctxErr
		}
		return stdout.String(), fmt.Errorf("failed to run WASM module: %w", err)
	}
	return stdout.String(), nil
}

// cleanBuildOutput drops the temp dir from compiler messages so they point at
// main.go instead of a random path.
func cleanBuildOutput(msg, dir string) string {
	msg = strings.ReplaceAll(msg, dir+string(filepath.Separator), "")
	lines := strings.Split(msg, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(line, "# ") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
