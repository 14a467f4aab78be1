package plastimatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"regeval/internal/logging"
	"regeval/internal/services"
)

// OutputKind selects what a warp writes.
type OutputKind string

const (
	OutputImage    OutputKind = "output-img"
	OutputPointset OutputKind = "output-pointset"
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
		c.logger = logging.NewComponentLogger(logger, "plastimatch")
	}
}

// Client wraps plastimatch CLI interactions.
type Client struct {
	binary string
	exec   services.Executor
	logger *slog.Logger
}

// New constructs a plastimatch client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("plastimatch binary required")
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

// Adjust applies a piecewise-linear intensity curve to a volume.
func (c *Client) Adjust(ctx context.Context, input, curve, output string) error {
	_, err := c.run(ctx, "adjust", output, "adjust", "--input", input, "--pw-linear", curve, "--output", output)
	return err
}

// Convert rewrites a volume or structure set between formats. Kinds are the
// flag names without dashes, e.g. "input", "input-ss-img", "output-cxt".
func (c *Client) Convert(ctx context.Context, inputKind, input, outputKind, output string) error {
	_, err := c.run(ctx, "convert", output, "convert", "--"+inputKind, input, "--"+outputKind, output)
	return err
}

// DistanceMap computes the absolute distance map of a mask.
func (c *Client) DistanceMap(ctx context.Context, input, output string) error {
	_, err := c.run(ctx, "dmap", output, "dmap", "--input", input, "--absolute-distance", "--output", output)
	return err
}

// Register runs a registration command file.
func (c *Client) Register(ctx context.Context, paramsPath string) error {
	_, err := c.run(ctx, "register", "", paramsPath)
	return err
}

// Warp applies a displacement field to a volume or point set.
func (c *Client) Warp(ctx context.Context, input string, kind OutputKind, output, field string) error {
	_, err := c.run(ctx, "warp", output, "warp", "--input", input, "--"+string(kind), output, "--xf", field)
	return err
}

// Dice compares a reference mask to a warped mask.
func (c *Client) Dice(ctx context.Context, reference, warped string) (Overlap, error) {
	lines, err := c.run(ctx, "dice", "", "dice", "--all", reference, warped)
	if err != nil {
		return Overlap{}, err
	}
	overlap, err := ParseOverlap(lines)
	if err != nil {
		return Overlap{}, services.Wrap(services.ErrExternalTool, "plastimatch", "dice", "parse output", err)
	}
	return overlap, nil
}

func (c *Client) run(ctx context.Context, operation, output string, args ...string) ([]string, error) {
	if output != "" {
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			return nil, fmt.Errorf("plastimatch %s: ensure output dir: %w", operation, err)
		}
	}
	logger := logging.WithContext(ctx, c.logger)
	logger.Debug("running plastimatch",
		logging.String("operation", operation),
		logging.String("args", strings.Join(args, " ")),
	)
	var lines []string
	err := c.exec.Run(ctx, c.binary, args, func(line string) {
		lines = append(lines, line)
		logger.Debug("plastimatch output", logging.String("line", line))
	})
	if err != nil {
		return lines, services.Wrap(services.ErrExternalTool, "plastimatch", operation, strings.Join(args, " "), err)
	}
	return lines, nil
}
