// Package media cuts short teaser clips that fit the platform's upload limits.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/unclebandit/autoposter/internal/logging"
)

// Preparer turns a source locator into a local clip path.
type Preparer interface {
	Prepare(ctx context.Context, source, outputName string) (string, error)
}

// Runner executes a command. It exists so tests can stand in for ffmpeg.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

type FFmpegPreparer struct {
	Binary    string
	OutputDir string
	Run       Runner
	Logger    logging.Logger
}

func NewFFmpegPreparer(binary, outputDir string, logger logging.Logger) *FFmpegPreparer {
	if binary == "" {
		binary = "ffmpeg"
	}
	if outputDir == "" {
		outputDir = "tmp"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &FFmpegPreparer{
		Binary:    binary,
		OutputDir: outputDir,
		Run:       execRunner,
		Logger:    logger.WithField("component", "media"),
	}
}

// ClipArgs are the ffmpeg arguments for a 15 second 720p H.264/AAC teaser starting 15 seconds in.
func ClipArgs(source, target string) []string {
	return []string{
		"-y",
		"-ss", "15",
		"-i", source,
		"-t", "15",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-pix_fmt", "yuv420p",
		"-preset", "fast",
		"-b:v", "2000k",
		"-maxrate", "2500k",
		"-bufsize", "5000k",
		"-vf", "scale=-2:720",
		target,
	}
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Prepare writes outputName into OutputDir. Local sources must exist; http(s) sources are passed through.
func (p *FFmpegPreparer) Prepare(ctx context.Context, source, outputName string) (string, error) {
	if source == "" {
		return "", fmt.Errorf("media: empty source")
	}
	if !isRemote(source) {
		if _, err := os.Stat(source); err != nil {
			return "", fmt.Errorf("media: source file not found: %s: %w", source, err)
		}
	}

	outDir, err := filepath.Abs(p.OutputDir)
	if err != nil {
		return "", fmt.Errorf("media: resolve output dir: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("media: create output dir: %w", err)
	}
	target := filepath.Join(outDir, filepath.Base(outputName))

	log := p.Logger.WithFields(logging.Fields{"source": source, "target": target})
	log.Info("Starting clip extraction")

	stderr, err := p.Run(ctx, p.Binary, ClipArgs(source, target)...)
	if err != nil {
		log.WithError(err).WithField("stderr", tail(stderr, 512)).Error("Clip extraction failed")
		return "", fmt.Errorf("media: ffmpeg: %w", err)
	}
	log.Info("Clip extraction completed")
	return target, nil
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.TrimSpace(string(b))
}

var _ Preparer = (*FFmpegPreparer)(nil)
