package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/creack/pty"
)

// InvokeRequest is a single request/response LLM CLI invocation: used by
// the merge resolver's tier 3 (ai-resolve) and tier 4 (reimagine) steps
// (spec.md §4.5), which need raw file content back rather than a running
// terminal session.
type InvokeRequest struct {
	Command string
	Args    []string
	Dir     string
	Prompt  string
	Env     []string
}

// InvokeResult is the captured output of one CLI invocation.
type InvokeResult struct {
	Output string
}

// CLI is the contract for invoking the LLM CLI as an opaque subprocess
// (spec.md §1 Non-goals: "it does not model the LLM protocol").
type CLI interface {
	Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error)
}

// PTYInvoker runs the configured LLM CLI through a pseudo-terminal,
// generalizing the teacher's invokeAgent (internal/engine/engine.go): a
// pty for stdout/stderr so the CLI sees a terminal and line-buffers, a
// plain stdin pipe for the prompt so EOF is detected correctly.
type PTYInvoker struct{}

// NewPTYInvoker returns a PTYInvoker.
func NewPTYInvoker() *PTYInvoker { return &PTYInvoker{} }

func (PTYInvoker) Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	cmd := exec.CommandContext(ctx, req.Command, req.Args...)
	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}

	ptmx, pts, err := pty.Open()
	if err != nil {
		return InvokeResult{}, fmt.Errorf("opening pty: %w", err)
	}
	defer ptmx.Close()

	cmd.Stdin = strings.NewReader(req.Prompt)
	cmd.Stdout = pts
	cmd.Stderr = pts

	if err := cmd.Start(); err != nil {
		pts.Close()
		return InvokeResult{}, fmt.Errorf("starting LLM CLI: %w", err)
	}
	pts.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, ptmx); err != nil {
		var pathErr *os.PathError
		if !(errors.As(err, &pathErr) && pathErr.Err == syscall.EIO) {
			return InvokeResult{}, fmt.Errorf("reading LLM CLI output: %w", err)
		}
	}

	if err := cmd.Wait(); err != nil {
		return InvokeResult{Output: buf.String()}, fmt.Errorf("LLM CLI exited: %w", err)
	}
	return InvokeResult{Output: buf.String()}, nil
}
