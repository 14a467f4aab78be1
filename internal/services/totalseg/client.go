package totalseg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"regeval/internal/logging"
	"regeval/internal/organ"
	"regeval/internal/services"
)

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger routes tool output to the provided logger at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "totalsegmentator")
	}
}

// WithExtraArgs appends arguments to every invocation, e.g. "--fast".
func WithExtraArgs(args ...string) Option {
	return func(c *Client) {
		c.extra = append(c.extra, args...)
	}
}

// Client wraps the TotalSegmentator CLI.
type Client struct {
	binary string
	extra  []string
	exec   services.Executor
	logger *slog.Logger
}

// New constructs a TotalSegmentator client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("totalsegmentator binary required")
	}
	client := &Client{
		binary: binary,
		exec:   services.CommandExecutor{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Segment runs the model on input restricted to rois and returns the
// produced mask per structure. Every requested structure must be produced.
func (c *Client) Segment(ctx context.Context, input, outputDir string, rois organ.Set) (map[organ.ID]string, error) {
	if len(rois) == 0 {
		return nil, services.Wrap(services.ErrValidation, "totalsegmentator", "segment", "empty structure list", nil)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("totalsegmentator: ensure output dir: %w", err)
	}

	args := []string{"-i", input, "-o", outputDir, "--roi_subset"}
	args = append(args, rois.Names()...)
	args = append(args, c.extra...)

	logger := logging.WithContext(ctx, c.logger)
	logger.Debug("running totalsegmentator", logging.String("args", strings.Join(args, " ")))
	if err := c.exec.Run(ctx, c.binary, args, func(line string) {
		logger.Debug("totalsegmentator output", logging.String("line", line))
	}); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "totalsegmentator", "segment", input, err)
	}

	masks := make(map[organ.ID]string, len(rois))
	for _, id := range rois {
		path := MaskPath(outputDir, id)
		if _, err := os.Stat(path); err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "totalsegmentator", "segment",
				fmt.Sprintf("missing output for %s", id.Name), err)
		}
		masks[id] = path
	}
	return masks, nil
}

// MaskPath is the file the model writes for a structure.
func MaskPath(outputDir string, id organ.ID) string {
	return filepath.Join(outputDir, id.Name+".nii.gz")
}
