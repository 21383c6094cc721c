package worker

import (
	"path/filepath"
	"strings"
)

const (
	tempMarker    = ".chromascale-tmp"
	skippedSuffix = "(already_high_res)"
)

// TempPath returns the hidden sibling that receives in-place transform output.
// It keeps the original extension so the upscaler picks the same encoder.
func TempPath(original string) string {
	dir, name := filepath.Split(original)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return filepath.Join(dir, "."+stem+tempMarker+ext)
}

// SkippedPath returns where an oversized original is moved in output-directory mode.
func SkippedPath(outputDir, original string) string {
	name := filepath.Base(original)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return filepath.Join(outputDir, stem+skippedSuffix+ext)
}

// OutputPath returns the destination of a processed file in output-directory mode.
func OutputPath(outputDir, original string) string {
	return filepath.Join(outputDir, filepath.Base(original))
}

// ExceedsThreshold reports whether either dimension is larger than threshold.
// A dimension equal to the threshold is still processed.
func ExceedsThreshold(width, height, threshold int) bool {
	return width > threshold || height > threshold
}
