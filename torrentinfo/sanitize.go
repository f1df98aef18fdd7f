package torrentinfo

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Convention selects which filesystem rules path elements must satisfy.
type Convention uint8

const (
	// Posix only forbids separators and control characters.
	Posix Convention = iota
	// Windows additionally forbids : * ? " < > |, trailing dots and
	// spaces, and reserved device names.
	Windows
)

// DefaultConvention is the convention of the running platform.
func DefaultConvention() Convention {
	if runtime.GOOS == "windows" {
		return Windows
	}
	return Posix
}

// ParseConvention accepts "posix", "windows", or "auto"/"" for the
// platform default.
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return DefaultConvention(), nil
	case "posix":
		return Posix, nil
	case "windows":
		return Windows, nil
	default:
		return Posix, fmt.Errorf("unknown path convention %q", s)
	}
}

func (c Convention) String() string {
	if c == Windows {
		return "windows"
	}
	return "posix"
}

// Outcome tells the caller what a sanitized segment contributes to a path.
type Outcome uint8

const (
	// Appended means the sanitized element belongs in the path.
	Appended Outcome = iota
	// Skipped means the segment contributes nothing, like "" or ".".
	Skipped
	// Parent means the segment was "..".
	Parent
)

const (
	placeholder       = '_'
	maxElementChars   = 240
	maxExtensionChars = 10
)

var reservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "clock$": true, "nul": true,
	"com0": true, "com1": true, "com2": true, "com3": true, "com4": true,
	"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
	"lpt0": true, "lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
	"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// Sanitizer turns untrusted path segments into safe path elements.
// The zero value applies Posix rules.
type Sanitizer struct {
	Convention Convention
}

// Element sanitizes a single raw segment. It never fails: invalid input
// is replaced with '_' and the Outcome says whether the result should be
// appended, ignored, or treated as a reference to the parent directory.
func (s Sanitizer) Element(segment string) (string, Outcome) {
	if segment == "" {
		return string(placeholder), Appended
	}

	var b strings.Builder
	b.Grow(len(segment))
	lastReplaced := -1
	for i := 0; i < len(segment); {
		r, size := decodeUnit(segment[i:])
		unit := segment[i : i+size]
		i += size

		if r >= 0 && filteredRune(r) {
			continue
		}
		if r < 0 || !s.validRune(r) {
			lastReplaced = b.Len()
			b.WriteByte(placeholder)
			continue
		}
		b.WriteString(unit)
	}

	elem := truncateElement(b.String())
	switch elem {
	case "":
		return "", Skipped
	case ".":
		return "", Skipped
	case "..":
		return "", Parent
	}

	if s.Convention == Windows {
		elem = strings.TrimRight(elem, ". ")
		if elem == "" {
			return "", Skipped
		}
		if isReservedName(elem, lastReplaced) {
			return string(placeholder), Appended
		}
	}
	return elem, Appended
}

// AppendElement appends the sanitized form of segment to a path joined
// with the platform separator. Dot segments contribute nothing; use Join
// for parent-directory semantics.
func (s Sanitizer) AppendElement(path, segment string) string {
	elem, outcome := s.Element(segment)
	if outcome != Appended {
		return path
	}
	if path == "" {
		return elem
	}
	return path + string(filepath.Separator) + elem
}

// Join sanitizes a list of raw segments. A ".." removes the previous
// element, but never climbs above the first element.
func (s Sanitizer) Join(segments []string) []string {
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		elem, outcome := s.Element(seg)
		switch outcome {
		case Appended:
			out = append(out, elem)
		case Parent:
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		case Skipped:
		}
	}
	return out
}

func (s Sanitizer) validRune(r rune) bool {
	if r < 0x20 {
		return false
	}
	if s.Convention == Windows && r < utf8.RuneSelf {
		return !strings.ContainsRune(`:*?"<>|`, r)
	}
	return true
}

// filteredRune reports characters that are dropped without a trace:
// separators, and direction overrides that can disguise a file name.
func filteredRune(r rune) bool {
	if r == '/' || r == '\\' {
		return true
	}
	return unicode.Is(unicode.Bidi_Control, r)
}

// isReservedName matches a device name, optionally followed by a single
// character that was replaced with the placeholder.
func isReservedName(elem string, lastReplaced int) bool {
	if reservedNames[strings.ToLower(elem)] {
		return true
	}
	if lastReplaced == len(elem)-1 && lastReplaced > 0 {
		return reservedNames[strings.ToLower(elem[:lastReplaced])]
	}
	return false
}

// truncateElement cuts an element longer than maxElementChars characters
// down to maxElementChars characters of base name. A short extension is
// appended after the cut.
func truncateElement(elem string) string {
	if utf8.RuneCountInString(elem) <= maxElementChars {
		return elem
	}
	base, ext := elem, ""
	if dot := strings.LastIndexByte(elem, '.'); dot > 0 {
		if utf8.RuneCountInString(elem[dot:]) <= maxExtensionChars {
			base, ext = elem[:dot], elem[dot:]
		}
	}
	count := 0
	for i := range base {
		if count == maxElementChars {
			base = base[:i]
			break
		}
		count++
	}
	return base + ext
}

// decodeUnit decodes one UTF-8 unit from the front of s. It returns -1
// for an invalid unit, along with the number of bytes the unit spans:
// a truncated sequence spans the rest of s, an over-long (5 or 6 byte)
// lead spans its announced length. Overlong encodings are accepted except
// for '.', which could otherwise smuggle in a ".." element.
func decodeUnit(s string) (rune, int) {
	c := s[0]
	if c < 0x80 {
		return rune(c), 1
	}
	var n int
	switch {
	case c < 0xC0:
		return -1, 1
	case c < 0xE0:
		n = 2
	case c < 0xF0:
		n = 3
	case c < 0xF8:
		n = 4
	case c < 0xFC:
		n = 5
	case c < 0xFE:
		n = 6
	default:
		return -1, 1
	}
	if n > len(s) {
		return -1, len(s)
	}
	if n > 4 {
		return -1, n
	}
	r := rune(c & (0x7F >> n))
	for k := 1; k < n; k++ {
		cc := s[k]
		if cc&0xC0 != 0x80 {
			return -1, n
		}
		r = r<<6 | rune(cc&0x3F)
	}
	if r > unicode.MaxRune || r == '.' {
		return -1, n
	}
	return r, n
}
