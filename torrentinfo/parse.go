package torrentinfo

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/anacrolix/torrent/metainfo"
)

const (
	// HashSize is the length of one SHA-1 piece hash.
	HashSize = 20
	// DefaultMaxPieces bounds the piece count accepted by Parse.
	DefaultMaxPieces = 0x200000

	maxPieceLength = 1 << 30
	padDir         = ".pad"
)

type options struct {
	maxPieces int
	sanitizer Sanitizer
}

// Option configures Parse and Load.
type Option func(*options)

// WithMaxPieces overrides DefaultMaxPieces. Values below 1 are ignored.
func WithMaxPieces(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPieces = n
		}
	}
}

// WithConvention selects the path convention used to sanitize names.
func WithConvention(c Convention) Option {
	return func(o *options) {
		o.sanitizer = Sanitizer{Convention: c}
	}
}

func newOptions(opts []Option) options {
	o := options{
		maxPieces: DefaultMaxPieces,
		sanitizer: Sanitizer{Convention: DefaultConvention()},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Load reads and parses a .torrent file.
func Load(path string, opts ...Option) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: IoFailure, Msg: path, Err: err}
	}
	return Parse(data, opts...)
}

// Parse validates a bencoded torrent. The input is copied, so the caller may
// reuse data afterwards. On failure the returned error is always a *Error.
func Parse(data []byte, opts ...Option) (*Metadata, error) {
	o := newOptions(opts)
	buf := append([]byte(nil), data...)

	if len(buf) == 0 {
		return nil, newError(MalformedTree, "empty input")
	}
	root, err := Decode(buf)
	if err != nil {
		return nil, &Error{Kind: MalformedTree, Err: err}
	}
	if root.Kind() != KindDict {
		return nil, newError(NotADictionary, "top level is a %s", root.Kind())
	}

	info, ok := root.Get("info")
	if !ok || info.Kind() != KindDict {
		return nil, newError(MissingInfoDictionary, "")
	}
	infoBytes, err := rawInfo(buf)
	if err != nil {
		return nil, &Error{Kind: MissingInfoDictionary, Err: err}
	}

	p := &parser{
		opts: o,
		root: root,
		info: info,
		m: &Metadata{
			info:     infoBytes,
			infoHash: metainfo.HashBytes(infoBytes),
		},
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.m, nil
}

type parser struct {
	opts options
	root Node
	info Node
	m    *Metadata
}

func (p *parser) warn(format string, args ...interface{}) {
	p.m.warnings = append(p.m.warnings, fmt.Sprintf(format, args...))
}

func (p *parser) parse() error {
	pieceLength, ok := p.info.dictInt("piece length")
	if !ok || pieceLength <= 0 || pieceLength > maxPieceLength {
		return newError(MissingPieceLength, "")
	}
	p.m.pieceLength = pieceLength

	pieces, ok := p.info.dictString("pieces")
	if !ok {
		return newError(MissingPieces, "")
	}
	if len(pieces)%HashSize != 0 {
		return newError(MisalignedHashes, "%d bytes", len(pieces))
	}
	numHashes := len(pieces) / HashSize
	if numHashes > p.opts.maxPieces {
		return newError(TooManyPieces, "%d pieces, limit is %d", numHashes, p.opts.maxPieces)
	}
	p.m.hashes = pieces

	files, multi, err := p.fileEntries()
	if err != nil {
		return err
	}
	p.m.multiFile = multi

	var size int64
	if !multi {
		if size, ok = p.info.dictInt("length"); !ok || size < 0 {
			return newError(InvalidLength, "")
		}
	}

	if err := p.parseName(); err != nil {
		return err
	}

	var records []FileRecord
	if multi {
		records, err = p.multiFileRecords(files)
	} else {
		records, err = p.singleFileRecord(size)
	}
	if err != nil {
		return err
	}
	if n := resolveDuplicates(records); n > 0 {
		p.warn("renamed %d colliding file paths", n)
	}

	var lb LayoutBuilder
	for i, rec := range records {
		if err := lb.AddFile(rec); err != nil {
			return &Error{Kind: InvalidLength, Msg: "file " + strconv.Itoa(i), Err: err}
		}
	}
	if lb.TotalSize() == 0 {
		return newError(InvalidLength, "total size is zero")
	}
	layout, err := lb.Freeze(pieceLength)
	if err != nil {
		return &Error{Kind: MissingPieceLength, Err: err}
	}
	if layout.NumPieces() != numHashes {
		return newError(InvalidHashes, "%d hashes for %d pieces", numHashes, layout.NumPieces())
	}
	p.m.layout = layout

	p.parseOptional()
	return nil
}

// fileEntries decides between single and multi-file mode.
func (p *parser) fileEntries() ([]Node, bool, error) {
	v, ok := p.info.Get("files")
	if !ok {
		return nil, false, nil
	}
	files, ok := v.List()
	if !ok {
		return nil, false, newError(InvalidPathList, "'files' is a %s", v.Kind())
	}
	if len(files) == 0 {
		return nil, false, newError(NoFiles, "")
	}
	return files, true, nil
}

func (p *parser) parseName() error {
	raw, ok := p.info.preferredString("name.utf-8", "name")
	if !ok {
		return newError(MissingName, "")
	}
	name, outcome := p.opts.sanitizer.Element(raw)
	if outcome != Appended || raw == "" {
		name = p.m.infoHash.HexString()
		p.warn("name %q is unusable, using the info hash", raw)
	}
	p.m.name = name
	return nil
}

func (p *parser) singleFileRecord(size int64) ([]FileRecord, error) {
	rec := FileRecord{Path: []string{p.m.name}, Size: size}
	if err := p.fileExtras(p.info, &rec); err != nil {
		return nil, err
	}
	return []FileRecord{rec}, nil
}

func (p *parser) multiFileRecords(entries []Node) ([]FileRecord, error) {
	records := make([]FileRecord, 0, len(entries))
	var total int64
	for i, entry := range entries {
		if entry.Kind() != KindDict {
			return nil, newError(InvalidPathList, "file %d is a %s", i, entry.Kind())
		}
		size, ok := entry.dictInt("length")
		if !ok || size < 0 {
			return nil, newError(InvalidLength, "file %d", i)
		}

		rec := FileRecord{Size: size}
		if err := p.fileExtras(entry, &rec); err != nil {
			return nil, err
		}
		if rec.IsSymlink() {
			rec.Size = 0
		}
		if rec.Size > math.MaxInt64-total {
			return nil, newError(InvalidLength, "total size overflows at file %d", i)
		}
		total += rec.Size

		segments, err := p.filePath(i, entry)
		if err != nil {
			return nil, err
		}
		switch {
		case len(segments) > 0:
			rec.Path = append([]string{p.m.name}, segments...)
		case rec.IsPad():
			// path-less pad files live outside the torrent root
			rec.Path = padPath(rec.Size)
		default:
			rec.Path = []string{p.m.name, string(placeholder)}
		}
		records = append(records, rec)
	}
	return records, nil
}

func padPath(size int64) []string {
	return []string{padDir, strconv.FormatInt(size, 10)}
}

func (p *parser) filePath(i int, entry Node) ([]string, error) {
	list, ok := entry.dictList("path.utf-8")
	if !ok {
		list, ok = entry.dictList("path")
	}
	if !ok {
		return nil, newError(InvalidPathList, "file %d", i)
	}
	raw, err := stringList(list)
	if err != nil {
		return nil, newError(InvalidName, "file %d: %v", i, err)
	}
	return p.opts.sanitizer.Join(raw), nil
}

// fileExtras reads attr, sha1, mtime and symlink path from a file entry.
func (p *parser) fileExtras(entry Node, rec *FileRecord) error {
	if attr, ok := entry.dictString("attr"); ok {
		rec.Flags = parseAttr(attr)
	}
	if sum, ok := entry.dictString("sha1"); ok {
		if len(sum) == HashSize {
			copy(rec.Hash[:], sum)
		} else {
			p.warn("ignoring %d byte sha1", len(sum))
		}
	}
	if mtime, ok := entry.dictInt("mtime"); ok && mtime > 0 {
		rec.Mtime = time.Unix(mtime, 0).UTC()
	}
	if !rec.IsSymlink() {
		return nil
	}
	list, ok := entry.dictList("symlink path")
	if !ok {
		return newError(InvalidSymlink, "missing target")
	}
	raw, err := stringList(list)
	if err != nil {
		return newError(InvalidSymlink, "%v", err)
	}
	rec.SymlinkTarget = p.opts.sanitizer.Join(raw)
	rec.Size = 0
	return nil
}

func stringList(list []Node) ([]string, error) {
	out := make([]string, 0, len(list))
	for i, n := range list {
		s, ok := n.Str()
		if !ok {
			return nil, fmt.Errorf("element %d is a %s", i, n.Kind())
		}
		out = append(out, s)
	}
	return out, nil
}
