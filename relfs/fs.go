// Package relfs pins down the on-disk layout of the output root. One
// directory per release, holding the metadata text file, the cover image,
// and one video per track. Folder contents are the only handoff between the
// generate and publish pipelines.
package relfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/crateclip/errutil"
	"github.com/xeptore/crateclip/txt"
)

const (
	CoverFileName = "cover.jpg"
	LedgerName    = "published.yaml"
	videoExt      = ".mp4"
)

func SanitizeFileName(name string) string {
	const bad = `<>:"/\|?*`
	out := strings.Map(func(r rune) rune {
		if strings.ContainsRune(bad, r) {
			return '_'
		}
		return r
	}, name)
	return strings.TrimSpace(out)
}

type OutputDir string

func From(d string) OutputDir {
	return OutputDir(d)
}

func (dir OutputDir) path() string {
	return string(dir)
}

func (dir OutputDir) LedgerPath() string {
	return filepath.Join(dir.path(), LedgerName)
}

func (dir OutputDir) Release(title string) ReleaseDir {
	dirPath := filepath.Join(dir.path(), SanitizeFileName(title))
	return ReleaseDir{
		Path:      dirPath,
		TxtPath:   filepath.Join(dirPath, txt.FileName),
		CoverPath: filepath.Join(dirPath, CoverFileName),
	}
}

type ReleaseDir struct {
	Path      string
	TxtPath   string
	CoverPath string
}

func (d ReleaseDir) Create() error {
	if err := os.MkdirAll(d.Path, 0o0755); nil != err {
		flawP := flaw.P{"path": d.Path, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to create release directory: %v", err)).Append(flawP)
	}
	return nil
}

// TrackStem is the extension-less base name shared by a track's temporary
// audio file and its final video.
func (d ReleaseDir) TrackStem(position, title string) string {
	base := title
	if position != "" {
		base = position + " " + title
	}
	return filepath.Join(d.Path, SanitizeFileName(base))
}

func (d ReleaseDir) TrackVideoPath(position, title string) string {
	return d.TrackStem(position, title) + videoExt
}

func (d ReleaseDir) TrackAudioPath(position, title string) string {
	return d.TrackStem(position, title) + ".mp3"
}

func (d ReleaseDir) HasCover() bool {
	info, err := os.Stat(d.CoverPath)
	return nil == err && !info.IsDir()
}

func (d ReleaseDir) HasVideo(position, title string) bool {
	info, err := os.Stat(d.TrackVideoPath(position, title))
	return nil == err && !info.IsDir()
}

// Folder is a scanned release directory, as the publish pipeline sees it.
type Folder struct {
	Name    string
	Path    string
	TxtPath string
	Videos  []string
}

func (f Folder) Ready() bool {
	return f.TxtPath != "" && len(f.Videos) > 0
}

// List scans the output root and splits release folders into ready and
// incomplete sets. Ready means the metadata text file plus at least one
// video; a folder with videos but no text file stays incomplete.
func List(root string) (ready, incomplete []Folder, err error) {
	entries, err := os.ReadDir(root)
	if nil != err {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, os.ErrNotExist
		}
		flawP := flaw.P{"root": root, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, nil, flaw.From(fmt.Errorf("failed to read output root: %v", err)).Append(flawP)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		folder, err := scan(filepath.Join(root, entry.Name()), entry.Name())
		if nil != err {
			return nil, nil, err
		}
		if folder.Ready() {
			ready = append(ready, *folder)
		} else {
			incomplete = append(incomplete, *folder)
		}
	}
	return ready, incomplete, nil
}

func scan(dirPath, name string) (*Folder, error) {
	entries, err := os.ReadDir(dirPath)
	if nil != err {
		flawP := flaw.P{"path": dirPath, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to read release directory: %v", err)).Append(flawP)
	}

	folder := Folder{Name: name, Path: dirPath, TxtPath: "", Videos: nil}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch {
		case entry.Name() == txt.FileName:
			folder.TxtPath = filepath.Join(dirPath, entry.Name())
		case strings.EqualFold(filepath.Ext(entry.Name()), videoExt):
			folder.Videos = append(folder.Videos, filepath.Join(dirPath, entry.Name()))
		}
	}
	slices.Sort(folder.Videos)
	return &folder, nil
}
