package engine

import (
	"os"
	"path/filepath"
	"runtime"
)

// vecLibraryName computes the platform-specific file name of the
// loadable sqlite-vec library.
func vecLibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "vec0.dylib"
	case "windows":
		return "vec0.dll"
	default:
		return "vec0.so"
	}
}

// vecCandidatePaths returns the prioritized list of locations to try
// for the loadable extension: an explicit override directory, next to
// the executable, a lib/ directory beside it, then the working
// directory. Missing entries are skipped silently.
func vecCandidatePaths(overrideDir string) []string {
	lib := vecLibraryName()
	var dirs []string
	if overrideDir != "" {
		dirs = append(dirs, overrideDir)
	}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		dirs = append(dirs, exeDir, filepath.Join(exeDir, "lib"))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd, filepath.Join(wd, "lib"))
	}

	var out []string
	for _, d := range dirs {
		p := filepath.Join(d, lib)
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	// Also let the engine resolve the bare name through its own search
	// path as a last resort.
	out = append(out, "vec0")
	return out
}
