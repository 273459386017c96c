// Package runner is the code execution service behind the compile
// gateway. Local runs programs on this host; Queue and Worker spread runs
// over several hosts through redis.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/Anshjain123/Code-N-Collab/protocol"
)

var ErrUnsupportedLanguage = errors.New("runner: unsupported language")

// Executor runs one compile request. Failures are reported inside the
// response, never as a Go error, so that every request gets an answer.
type Executor interface {
	Execute(ctx context.Context, req protocol.CompileRequest) protocol.CompileResponse
}

// Language tells Local how to build and run a source file. In Build and
// Run, "{file}" expands to the source path and "{dir}" to the work
// directory.
type Language struct {
	File  string
	Build []string
	Run   []string
}

// Languages is the default toolchain table.
var Languages = map[string]Language{
	"c": {
		File:  "main.c",
		Build: []string{"gcc", "-O2", "-o", "{dir}/main", "{file}"},
		Run:   []string{"{dir}/main"},
	},
	"cpp": {
		File:  "main.cpp",
		Build: []string{"g++", "-O2", "-std=c++17", "-o", "{dir}/main", "{file}"},
		Run:   []string{"{dir}/main"},
	},
	"python": {
		File: "main.py",
		Run:  []string{"python3", "{file}"},
	},
	"javascript": {
		File: "main.js",
		Run:  []string{"node", "{file}"},
	},
	"java": {
		File:  "Main.java",
		Build: []string{"javac", "{file}"},
		Run:   []string{"java", "-cp", "{dir}", "Main"},
	},
	"go": {
		File: "main.go",
		Run:  []string{"go", "run", "{file}"},
	},
}

const (
	DefaultTimeout   = 10 * time.Second
	DefaultMaxOutput = 64 * 1024
)

// Local builds and runs programs in a scratch directory on this host.
type Local struct {
	Languages map[string]Language
	// Timeout bounds build and run together.
	Timeout time.Duration
	// MaxOutput caps the bytes returned from a run.
	MaxOutput int
	// TempDir is where scratch directories go; empty means os.TempDir.
	TempDir string
}

func NewLocal() *Local {
	return &Local{
		Languages: Languages,
		Timeout:   DefaultTimeout,
		MaxOutput: DefaultMaxOutput,
	}
}

func (l *Local) Execute(ctx context.Context, req protocol.CompileRequest) protocol.CompileResponse {
	out, err := l.run(ctx, req)
	if err != nil {
		glog.V(1).Infof("[runner]%s run failed: %v", req.Language, err)
		return protocol.CompileResponse{Error: err.Error()}
	}
	return protocol.OutputResponse(out)
}

func (l *Local) run(ctx context.Context, req protocol.CompileRequest) (string, error) {
	lang, ok := l.Languages[req.Language]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, req.Language)
	}
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	dir, err := os.MkdirTemp(l.TempDir, "run-")
	if err != nil {
		return "", fmt.Errorf("runner: scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, lang.File)
	if err := os.WriteFile(file, []byte(req.Code), 0o600); err != nil {
		return "", fmt.Errorf("runner: write source: %w", err)
	}

	if len(lang.Build) > 0 {
		out, err := l.exec(ctx, dir, expand(lang.Build, dir, file), "")
		if err != nil {
			if ctx.Err() != nil {
				return "", errors.New("time limit exceeded")
			}
			return "", fmt.Errorf("compilation failed:\n%s", out)
		}
	}

	out, err := l.exec(ctx, dir, expand(lang.Run, dir, file), req.Input)
	if ctx.Err() != nil {
		return "", errors.New("time limit exceeded")
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "", fmt.Errorf("runner: start: %w", err)
	}
	// A non-zero exit still produced output the user wants to see.
	return out, nil
}

func (l *Local) exec(ctx context.Context, dir string, argv []string, stdin string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(stdin)
	var buf limitedBuffer
	buf.max = l.MaxOutput
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}

func expand(argv []string, dir, file string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		a = strings.ReplaceAll(a, "{file}", file)
		out[i] = strings.ReplaceAll(a, "{dir}", dir)
	}
	return out
}

// limitedBuffer keeps the first max bytes written and discards the rest.
type limitedBuffer struct {
	bytes.Buffer
	max       int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.max > 0 {
		room := b.max - b.Len()
		if room <= 0 {
			b.truncated = true
			return len(p), nil
		}
		if len(p) > room {
			b.truncated = true
			b.Buffer.Write(p[:room])
			return len(p), nil
		}
	}
	return b.Buffer.Write(p)
}

func (b *limitedBuffer) String() string {
	if b.truncated {
		return b.Buffer.String() + "\n[output truncated]"
	}
	return b.Buffer.String()
}
