package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ExecContext executes a VCS command with timeout and context support.
// This is a common utility for git and jj implementations.
//
//	output, err := ExecContext(ctx, 10*time.Second, repoRoot, "git", "rev-parse", "HEAD")
func ExecContext(ctx context.Context, timeout time.Duration, workDir string, name string, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), ErrTimeout)
		}
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%s %s failed: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%s %s failed: %w", name, strings.Join(args, " "), err)
	}
	return stdout.Bytes(), nil
}

// ParseLines splits command output into non-empty, trimmed lines.
func ParseLines(output []byte) []string {
	if len(output) == 0 {
		return nil
	}
	lines := strings.Split(string(output), "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}
	return result
}

// MergePaths joins path lists into one sorted, de-duplicated, slash-separated
// list.
func MergePaths(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, p := range list {
			p = filepath.ToSlash(strings.TrimSpace(p))
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// FieldSeparator separates fields in formatted log output.
const FieldSeparator = "\x1f"

// ParseChangeLine parses "revision<sep>author<sep>email<sep>RFC3339 time<sep>subject".
func ParseChangeLine(line, sep string) (*ChangeInfo, error) {
	parts := strings.SplitN(strings.TrimRight(line, "\n"), sep, 5)
	if len(parts) != 5 {
		return nil, fmt.Errorf("unexpected log line: %q", line)
	}
	when, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[3]))
	if err != nil {
		return nil, fmt.Errorf("bad timestamp %q: %w", parts[3], err)
	}
	return &ChangeInfo{
		Revision: strings.TrimSpace(parts[0]),
		Author:   parts[1],
		Email:    parts[2],
		When:     when,
		Message:  strings.TrimSpace(parts[4]),
	}, nil
}

// RelativeTo rewrites repository-relative paths as paths relative to dir,
// dropping those outside it. dir must be inside repoRoot.
func RelativeTo(paths []string, repoRoot, dir string) []string {
	if filepath.Clean(repoRoot) == filepath.Clean(dir) {
		return paths
	}
	var out []string
	for _, p := range paths {
		rel, err := filepath.Rel(dir, filepath.Join(repoRoot, filepath.FromSlash(p)))
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}
