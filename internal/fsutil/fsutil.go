package fsutil

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RunFiles lists the on-disk inputs of a single simulation run.
type RunFiles struct {
	Folder   string
	Dir      string
	Flat     string
	Residual string
	Fidelity string
	PSF      string
	SkyModel string   // optional, may not exist
	Catalogs []string // candidate source catalogs in lookup order
}

// ListRunFolders returns the sorted names of directories under root that start with prefix.
func ListRunFolders(root, prefix string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// RunLayout resolves the file names a run folder is expected to hold.
func RunLayout(root, folder, fitsDir string, catalogs []string) RunFiles {
	dir := filepath.Join(root, folder)
	images := filepath.Join(dir, fitsDir)
	rf := RunFiles{
		Folder:   folder,
		Dir:      dir,
		Flat:     filepath.Join(images, folder+".image.flat.fits"),
		Residual: filepath.Join(images, folder+".residual.fits"),
		Fidelity: filepath.Join(images, folder+".fidelity.fits"),
		PSF:      filepath.Join(images, folder+".psf.fits"),
		SkyModel: filepath.Join(images, folder+".skymodel.fits"),
	}
	for _, name := range catalogs {
		rf.Catalogs = append(rf.Catalogs, filepath.Join(dir, name))
	}
	return rf
}

// FirstExisting returns the first path that exists.
func FirstExisting(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// IsRunFolder reports whether path names a direct child of root carrying prefix.
func IsRunFolder(root, path, prefix string) bool {
	if filepath.Clean(filepath.Dir(path)) != filepath.Clean(root) {
		return false
	}
	return strings.HasPrefix(filepath.Base(path), prefix)
}
