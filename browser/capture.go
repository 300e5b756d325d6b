package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Capture writes a diagnostic screenshot named <checkpoint>_<unix>.png into
// CaptureDir. It is a no-op when CaptureDir is empty. Failures are logged,
// never returned: captures are not part of extraction.
func (s *Session) Capture(ctx context.Context, checkpoint string) string {
	if s.cfg.CaptureDir == "" {
		return ""
	}
	data, err := s.page.Screenshot(ctx)
	if err != nil {
		s.log.Warn("browser: capture failed", "checkpoint", checkpoint, "error", err)
		return ""
	}
	if err := os.MkdirAll(s.cfg.CaptureDir, 0o755); err != nil {
		s.log.Warn("browser: capture dir", "dir", s.cfg.CaptureDir, "error", err)
		return ""
	}
	path := filepath.Join(s.cfg.CaptureDir, fmt.Sprintf("%s_%d.png", checkpoint, s.cfg.Now().Unix()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.log.Warn("browser: capture write", "path", path, "error", err)
		return ""
	}
	s.log.Debug("browser: captured", "checkpoint", checkpoint, "path", path)
	return path
}
