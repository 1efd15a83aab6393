package subscribers

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/oshokin/uberwacher/internal/domain/motion"
)

// Repository defines persistence operations for the subscriber list.
// Append does not deduplicate; callers check Contains first.
type Repository interface {
	Reload(ctx context.Context) ([]motion.Recipient, error)
	Contains(ctx context.Context, recipient motion.Recipient) (bool, error)
	Append(ctx context.Context, recipient motion.Recipient) error
}

// FileRepository persists recipients to a text file, one id per line.
type FileRepository struct {
	// path is the filesystem location of the subscriber file.
	path string
	// mu serializes appends issued by this process.
	mu sync.Mutex
}

// DefaultFilePermissions is the mode used when the subscriber file is created.
const DefaultFilePermissions = 0o600

// NewFileRepository creates a repository reading and appending at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the location of the backing file.
func (r *FileRepository) Path() string {
	return r.path
}

// Reload reads every recipient from disk. A missing file is an empty list.
func (r *FileRepository) Reload(_ context.Context) ([]motion.Recipient, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read subscriber file: %w: %w", motion.ErrStoreUnavailable, err)
	}

	var (
		result  []motion.Recipient
		scanner = bufio.NewScanner(bytes.NewReader(contents))
		lineNo  int
	)

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		recipient, err := motion.ParseRecipient(line)
		if err != nil {
			return nil, fmt.Errorf("subscriber file line %d: %w: %w", lineNo, motion.ErrStoreUnavailable, err)
		}

		result = append(result, recipient)
	}

	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan subscriber file: %w: %w", motion.ErrStoreUnavailable, err)
	}

	return result, nil
}

// Contains reloads the file and reports whether recipient is present.
func (r *FileRepository) Contains(ctx context.Context, recipient motion.Recipient) (bool, error) {
	recipients, err := r.Reload(ctx)
	if err != nil {
		return false, err
	}

	return slices.Contains(recipients, recipient), nil
}

// Append writes recipient as a new line at the end of the file.
// Each call opens, writes one whole line and closes the file.
func (r *FileRepository) Append(_ context.Context, recipient motion.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("open subscriber file: %w: %w", motion.ErrStoreUnavailable, err)
	}

	line := recipient.String() + lineSeparator()

	// A hand-edited file may lack the final newline.
	terminated, err := endsWithNewline(file)
	if err != nil {
		_ = file.Close()

		return fmt.Errorf("inspect subscriber file: %w: %w", motion.ErrStoreUnavailable, err)
	}

	if !terminated {
		line = lineSeparator() + line
	}

	if _, err = file.WriteString(line); err != nil {
		_ = file.Close()

		return fmt.Errorf("append subscriber: %w: %w", motion.ErrStoreUnavailable, err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("close subscriber file: %w: %w", motion.ErrStoreUnavailable, err)
	}

	return nil
}

// endsWithNewline reports whether file is empty or its last byte is '\n'.
func endsWithNewline(file *os.File) (bool, error) {
	info, err := file.Stat()
	if err != nil {
		return false, err
	}

	if info.Size() == 0 {
		return true, nil
	}

	last := make([]byte, 1)
	if _, err = file.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}

	return last[0] == '\n', nil
}

// lineSeparator returns the platform line separator.
func lineSeparator() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}

	return "\n"
}
