package torrentinfo

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// pathSet tracks case-folded paths. For files it remembers whether the
// holder is a pad file and its size, since identical pad files may share
// a name.
type pathSet struct {
	fold  cases.Caser
	dirs  map[string]struct{}
	files map[string]padKey
}

type padKey struct {
	pad  bool
	size int64
}

func newPathSet(files []FileRecord) *pathSet {
	s := &pathSet{
		fold:  cases.Fold(),
		dirs:  make(map[string]struct{}),
		files: make(map[string]padKey, len(files)),
	}
	for _, f := range files {
		for n := 1; n < len(f.Path); n++ {
			s.dirs[s.key(f.Path[:n])] = struct{}{}
		}
	}
	return s
}

func (s *pathSet) key(segments []string) string {
	return s.fold.String(strings.Join(segments, "/"))
}

func (s *pathSet) collides(key string, f *FileRecord) bool {
	if _, ok := s.dirs[key]; ok {
		return true
	}
	prev, ok := s.files[key]
	if !ok {
		return false
	}
	return !(prev.pad && f.IsPad() && prev.size == f.Size)
}

// resolveDuplicates renames files whose sanitized path collides, ignoring
// case, with an earlier file or with a directory of any file. The first
// occurrence keeps its name; later ones get ".N" inserted before the
// extension. Paths are rewritten in place and the count of renamed files is
// returned.
func resolveDuplicates(files []FileRecord) int {
	set := newPathSet(files)
	renamed := 0
	for i := range files {
		f := &files[i]
		if len(f.Path) == 0 {
			continue
		}
		k := set.key(f.Path)
		if set.collides(k, f) {
			last := len(f.Path) - 1
			base, ext := splitExtension(f.Path[last])
			for n := 1; ; n++ {
				f.Path[last] = base + "." + strconv.Itoa(n) + ext
				k = set.key(f.Path)
				if !set.collides(k, f) {
					break
				}
			}
			renamed++
		}
		set.files[k] = padKey{pad: f.IsPad(), size: f.Size}
	}
	return renamed
}

// splitExtension splits "name.ext" into "name" and ".ext". A leading dot
// does not start an extension.
func splitExtension(name string) (string, string) {
	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		return name[:dot], name[dot:]
	}
	return name, ""
}
