package core

import (
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Getwd tries to find the project root, i.e. the closest directory holding the go.mod file.
// go-test changes the working directory to the test package being run during tests,
// so the current directory alone cannot be used to locate config files.
// Falls back to the current directory when no go.mod is found (e.g. deployed binaries).
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}

// Round rounds `f` half away from zero to `places` decimals.
func Round(f float64, places int) float64 {
	if places < 0 {
		return f
	}
	pow := math.Pow(10, float64(places))
	return math.Round(f*pow) / pow
}

// Clamp restricts `f` to [min, max]. NaN is clamped to `min`.
func Clamp(f, min, max float64) float64 {
	if math.IsNaN(f) {
		return min
	}
	return math.Max(min, math.Min(max, f))
}

// IsFinite reports whether `f` is neither NaN nor an infinity.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
