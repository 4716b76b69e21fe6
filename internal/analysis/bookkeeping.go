package analysis

import (
	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/storage"
)

// Cleanup removes cache files and directories after a run. Failures are
// logged and dropped; they never affect the outcome of the run.
func Cleanup(log *zap.Logger, paths ...string) {
	if err := storage.DeleteIfExists(paths...); err != nil && log != nil {
		log.Warn("cleanup failed", zap.Strings("paths", paths), zap.Error(err))
	}
}

// RelocateResults moves the artifacts matching pattern into the folders
// chosen by folder. Failures are logged; the moved paths are returned.
func RelocateResults(log *zap.Logger, pattern string, folder func(string) string) []string {
	moved, err := storage.Relocate(pattern, folder)
	if err != nil && log != nil {
		log.Warn("relocating results failed", zap.String("pattern", pattern), zap.Error(err))
	}
	return moved
}
