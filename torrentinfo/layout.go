package torrentinfo

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
)

// FileFlags are the per-file attributes carried in the "attr" key.
type FileFlags uint8

const (
	FlagPadFile FileFlags = 1 << iota
	FlagHidden
	FlagExecutable
	FlagSymlink
)

var flagLetters = []struct {
	flag   FileFlags
	letter byte
}{
	{FlagPadFile, 'p'},
	{FlagHidden, 'h'},
	{FlagExecutable, 'x'},
	{FlagSymlink, 'l'},
}

// parseAttr reads an "attr" string. Unknown letters are ignored.
func parseAttr(attr string) FileFlags {
	var flags FileFlags
	for i := 0; i < len(attr); i++ {
		for _, fl := range flagLetters {
			if attr[i] == fl.letter {
				flags |= fl.flag
			}
		}
	}
	return flags
}

// String returns the flags in "attr" notation, e.g. "px".
func (f FileFlags) String() string {
	var b strings.Builder
	for _, fl := range flagLetters {
		if f&fl.flag != 0 {
			b.WriteByte(fl.letter)
		}
	}
	return b.String()
}

// FileRecord describes one entry of the file list.
type FileRecord struct {
	Path          []string
	Size          int64
	Flags         FileFlags
	SymlinkTarget []string
	Hash          metainfo.Hash // zero when absent
	Mtime         time.Time     // zero when absent
}

func (r FileRecord) clone() FileRecord {
	r.Path = append([]string(nil), r.Path...)
	if r.SymlinkTarget != nil {
		r.SymlinkTarget = append([]string(nil), r.SymlinkTarget...)
	}
	return r
}

// IsPad reports the pad file flag.
func (r FileRecord) IsPad() bool { return r.Flags&FlagPadFile != 0 }

// IsSymlink reports the symlink flag.
func (r FileRecord) IsSymlink() bool { return r.Flags&FlagSymlink != 0 }

// HasHash reports whether the record carries a per-file SHA-1.
func (r FileRecord) HasHash() bool { return r.Hash != metainfo.Hash{} }

// PeerRequest addresses a byte range relative to a piece.
type PeerRequest struct {
	Piece  int
	Start  int64
	Length int64
}

// FileSlice addresses a byte range relative to a file.
type FileSlice struct {
	File   int
	Offset int64
	Size   int64
}

// LayoutBuilder collects file records in declaration order.
type LayoutBuilder struct {
	files []FileRecord
	total int64
}

// AddFile appends a record. Symlinks never occupy bytes.
func (b *LayoutBuilder) AddFile(rec FileRecord) error {
	if rec.IsSymlink() {
		rec.Size = 0
	}
	if rec.Size < 0 {
		return fmt.Errorf("file %d has negative size %d", len(b.files), rec.Size)
	}
	if rec.Size > math.MaxInt64-b.total {
		return fmt.Errorf("total size overflows at file %d", len(b.files))
	}
	b.total += rec.Size
	b.files = append(b.files, rec.clone())
	return nil
}

// TotalSize is the sum of the sizes added so far.
func (b *LayoutBuilder) TotalSize() int64 { return b.total }

// Freeze produces the immutable layout.
func (b *LayoutBuilder) Freeze(pieceLength int64) (*FileLayout, error) {
	if pieceLength <= 0 {
		return nil, fmt.Errorf("piece length must be positive, got %d", pieceLength)
	}
	l := &FileLayout{
		files:       make([]FileRecord, len(b.files)),
		offsets:     make([]int64, len(b.files)),
		totalSize:   b.total,
		pieceLength: pieceLength,
	}
	var off int64
	for i, f := range b.files {
		l.files[i] = f.clone()
		l.offsets[i] = off
		off += f.Size
	}
	return l, nil
}

// FileLayout is the immutable, ordered file list of a torrent with the
// piece arithmetic over it. Safe for concurrent use.
type FileLayout struct {
	files       []FileRecord
	offsets     []int64
	totalSize   int64
	pieceLength int64
}

// NumFiles is the number of records, zero-size files included.
func (l *FileLayout) NumFiles() int { return len(l.files) }

// TotalSize is the sum of all file sizes.
func (l *FileLayout) TotalSize() int64 { return l.totalSize }

// PieceLength is the nominal piece size.
func (l *FileLayout) PieceLength() int64 { return l.pieceLength }

// File returns a copy of record i.
func (l *FileLayout) File(i int) FileRecord { return l.files[i].clone() }

// Files returns a copy of every record.
func (l *FileLayout) Files() []FileRecord {
	out := make([]FileRecord, len(l.files))
	for i, f := range l.files {
		out[i] = f.clone()
	}
	return out
}

// FilePath joins the sanitized path of file i with the platform separator.
func (l *FileLayout) FilePath(i int) string {
	return strings.Join(l.files[i].Path, string(filepath.Separator))
}

// FileSegments returns a copy of the path elements of file i.
func (l *FileLayout) FileSegments(i int) []string {
	return append([]string(nil), l.files[i].Path...)
}

// FileSize is the size of file i in bytes.
func (l *FileLayout) FileSize(i int) int64 { return l.files[i].Size }

// FileFlags returns the attributes of file i.
func (l *FileLayout) FileFlags(i int) FileFlags { return l.files[i].Flags }

// FileHash returns the per-file SHA-1, zero when absent.
func (l *FileLayout) FileHash(i int) metainfo.Hash { return l.files[i].Hash }

// FileMtime returns the modification time, zero when absent.
func (l *FileLayout) FileMtime(i int) time.Time { return l.files[i].Mtime }

// FileOffset is the position of file i in the concatenated content.
func (l *FileLayout) FileOffset(i int) int64 { return l.offsets[i] }

// SymlinkTarget returns the joined link target, or "" for regular files.
func (l *FileLayout) SymlinkTarget(i int) string {
	return strings.Join(l.files[i].SymlinkTarget, string(filepath.Separator))
}

// NumPieces is ceil(total size / piece length).
func (l *FileLayout) NumPieces() int {
	return int((l.totalSize + l.pieceLength - 1) / l.pieceLength)
}

// PieceSize is the piece length for every piece but the last.
func (l *FileLayout) PieceSize(piece int) int64 {
	if piece < 0 || piece >= l.NumPieces() {
		return 0
	}
	if piece == l.NumPieces()-1 {
		return l.totalSize - int64(piece)*l.pieceLength
	}
	return l.pieceLength
}

// MapFile translates an offset inside file i into a piece address. The
// returned length is size clipped to the end of the file.
func (l *FileLayout) MapFile(file int, offset, size int64) (PeerRequest, error) {
	if file < 0 || file >= len(l.files) {
		return PeerRequest{}, fmt.Errorf("file index %d: %w", file, ErrOutOfRange)
	}
	fsize := l.files[file].Size
	if offset < 0 || offset > fsize {
		return PeerRequest{}, fmt.Errorf("offset %d in file %d of size %d: %w", offset, file, fsize, ErrOutOfRange)
	}
	abs := l.offsets[file] + offset
	length := size
	if remaining := fsize - offset; length > remaining {
		length = remaining
	}
	if length < 0 {
		length = 0
	}
	return PeerRequest{
		Piece:  int(abs / l.pieceLength),
		Start:  abs % l.pieceLength,
		Length: length,
	}, nil
}

// MapBlock translates a byte range inside a piece into the file slices it
// covers, in file order. Zero-size files are never returned. The range is
// clipped to the end of the content.
func (l *FileLayout) MapBlock(piece int, offset, size int64) ([]FileSlice, error) {
	if piece < 0 || piece >= l.NumPieces() {
		return nil, fmt.Errorf("piece %d: %w", piece, ErrOutOfRange)
	}
	if offset < 0 || size < 0 || offset >= l.PieceSize(piece) {
		return nil, fmt.Errorf("offset %d in piece %d: %w", offset, piece, ErrOutOfRange)
	}
	abs := int64(piece)*l.pieceLength + offset
	if size > l.totalSize-abs {
		size = l.totalSize - abs
	}

	// first file whose end lies beyond abs
	first := sort.Search(len(l.files), func(i int) bool {
		return l.offsets[i]+l.files[i].Size > abs
	})

	var slices []FileSlice
	for i := first; i < len(l.files) && size > 0; i++ {
		fsize := l.files[i].Size
		if fsize == 0 {
			continue
		}
		inFile := abs - l.offsets[i]
		n := fsize - inFile
		if n > size {
			n = size
		}
		slices = append(slices, FileSlice{File: i, Offset: inFile, Size: n})
		abs += n
		size -= n
	}
	return slices, nil
}

// FileRange returns the first and last piece touched by file i. A zero-size
// file reports the piece its offset falls in for both.
func (l *FileLayout) FileRange(i int) (first, last int) {
	start := l.offsets[i]
	end := start
	if l.files[i].Size > 0 {
		end = start + l.files[i].Size - 1
	}
	return int(start / l.pieceLength), int(end / l.pieceLength)
}
