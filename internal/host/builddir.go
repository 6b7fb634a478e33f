package host

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vesaa/pagepulse/internal/models"
)

// BuildDir is a Document over a build-output directory: every .js file is a
// script element and its on-disk size stands in for the transfer size.
// It lets the bundle analyzer run without a live page.
type BuildDir struct {
	root    string
	scripts []ScriptElement
	timings map[string]ResourceEntry
}

// OpenBuildDir walks root and indexes its JavaScript files. Script sources
// are root-relative URL paths ("/static/js/main.1a2b3c4d.js").
func OpenBuildDir(root string) (*BuildDir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("opening build dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening build dir: %s is not a directory", root)
	}

	b := &BuildDir{root: root, timings: make(map[string]ResourceEntry)}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".js") {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		src := path.Join("/", filepath.ToSlash(rel))
		b.scripts = append(b.scripts, ScriptElement{Src: src})
		b.timings[src] = ResourceEntry{Name: src, InitiatorType: "script", TransferSize: fi.Size()}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking build dir: %w", err)
	}
	sort.Slice(b.scripts, func(i, j int) bool { return b.scripts[i].Src < b.scripts[j].Src })
	return b, nil
}

// Environment implements Host.
func (b *BuildDir) Environment() models.Environment {
	return models.Environment{URL: "file://" + filepath.ToSlash(b.root)}
}

// Scripts implements Document.
func (b *BuildDir) Scripts() []ScriptElement {
	return append([]ScriptElement(nil), b.scripts...)
}

// ResourceTiming implements Document.
func (b *BuildDir) ResourceTiming(url string) (ResourceEntry, bool) {
	e, ok := b.timings[url]
	return e, ok
}
