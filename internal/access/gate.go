package access

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/uberwacher/internal/domain/motion"
	"github.com/oshokin/uberwacher/internal/logger"
)

// Gate decides whether an identity may invoke commands.
// The zero value and a Gate built from an empty list allow everyone.
type Gate struct {
	// allowed holds the permitted identities; empty means unrestricted.
	allowed map[motion.Identity]struct{}
}

// NewGate builds a gate from a list of identities.
func NewGate(allowList []string) *Gate {
	allowed := make(map[motion.Identity]struct{}, len(allowList))

	for _, identity := range allowList {
		identity = strings.TrimSpace(identity)
		if identity == "" {
			continue
		}

		allowed[motion.Identity(identity)] = struct{}{}
	}

	return &Gate{allowed: allowed}
}

// Allowed reports whether identity may invoke a command.
// Denials are written to the audit log.
func (g *Gate) Allowed(ctx context.Context, identity motion.Identity) bool {
	if !g.Restricted() {
		return true
	}

	if _, ok := g.allowed[identity]; ok {
		return true
	}

	logger.WarnKV(ctx, "Unauthorized access denied", "identity", identity)

	return false
}

// Restricted reports whether the gate has a non-empty allow-list.
func (g *Gate) Restricted() bool {
	return g != nil && len(g.allowed) > 0
}

// Size returns the number of allowed identities.
func (g *Gate) Size() int {
	if g == nil {
		return 0
	}

	return len(g.allowed)
}

// ParseAllowList interprets value as a path to a newline-delimited file when
// such a file exists, and as a comma-separated list otherwise.
// An empty value yields nil, meaning unrestricted.
func ParseAllowList(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	path := filepath.Clean(value)

	info, err := os.Stat(path)

	switch {
	case err == nil && !info.IsDir():
		return readAllowListFile(path)
	case err == nil, errors.Is(err, os.ErrNotExist):
		return splitAllowList(value), nil
	default:
		return nil, fmt.Errorf("stat allow-list %s: %w", path, err)
	}
}

// readAllowListFile reads one identity per line, dropping blank lines.
func readAllowListFile(path string) ([]string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read allow-list file: %w", err)
	}

	var (
		result  []string
		scanner = bufio.NewScanner(bytes.NewReader(contents))
	)

	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			result = append(result, line)
		}
	}

	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan allow-list file: %w", err)
	}

	return result, nil
}

// splitAllowList splits an inline comma-separated list.
func splitAllowList(value string) []string {
	var result []string

	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}

	return result
}
