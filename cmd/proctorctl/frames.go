package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// collectFrames expands directories into their image files, sorted by name.
// Files named explicitly are kept whatever their extension.
func collectFrames(args []string) ([]string, error) {
	var frames []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			frames = append(frames, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var inDir []string
		for _, e := range entries {
			if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			inDir = append(inDir, filepath.Join(arg, e.Name()))
		}
		sort.Strings(inDir)
		frames = append(frames, inDir...)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames found in %s", strings.Join(args, ", "))
	}
	return frames, nil
}
