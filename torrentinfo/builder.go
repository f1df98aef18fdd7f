package torrentinfo

import (
	"fmt"
	"time"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
)

type encodedFile struct {
	Attr        string   `bencode:"attr,omitempty"`
	Length      int64    `bencode:"length"`
	Mtime       int64    `bencode:"mtime,omitempty"`
	Path        []string `bencode:"path"`
	SHA1        string   `bencode:"sha1,omitempty"`
	SymlinkPath []string `bencode:"symlink path,omitempty"`
}

type encodedInfo struct {
	Attr        string        `bencode:"attr,omitempty"`
	Collections []string      `bencode:"collections,omitempty"`
	Files       []encodedFile `bencode:"files,omitempty"`
	Length      int64         `bencode:"length,omitempty"`
	Mtime       int64         `bencode:"mtime,omitempty"`
	Name        string        `bencode:"name"`
	PieceLength int64         `bencode:"piece length"`
	Pieces      string        `bencode:"pieces"`
	Private     int           `bencode:"private,omitempty"`
	SHA1        string        `bencode:"sha1,omitempty"`
	Similar     []string      `bencode:"similar,omitempty"`
}

type encodedTorrent struct {
	Announce     string        `bencode:"announce,omitempty"`
	AnnounceList [][]string    `bencode:"announce-list,omitempty"`
	Comment      string        `bencode:"comment,omitempty"`
	CreatedBy    string        `bencode:"created by,omitempty"`
	CreationDate int64         `bencode:"creation date,omitempty"`
	HTTPSeeds    []string      `bencode:"httpseeds,omitempty"`
	Info         bencode.Bytes `bencode:"info"`
	URLList      []string      `bencode:"url-list,omitempty"`
}

// Builder assembles a torrent programmatically. File paths given to
// AddFile are relative to the torrent root. Build re-parses the encoded
// result, so a Builder can never produce a Metadata that Parse would reject.
type Builder struct {
	name         string
	pieceLength  int64
	hashes       []byte
	files        []FileRecord
	multiFile    bool
	tiers        [][]string
	webSeeds     []WebSeed
	comment      string
	createdBy    string
	creationDate time.Time
	private      bool
	collections  []string
	similar      []metainfo.Hash
}

// NewBuilder starts an empty torrent.
func NewBuilder(name string, pieceLength int64) *Builder {
	return &Builder{name: name, pieceLength: pieceLength}
}

// BuilderFrom starts from a copy of m. Changes to the builder never affect m.
func BuilderFrom(m *Metadata) *Builder {
	b := &Builder{
		name:         m.name,
		pieceLength:  m.pieceLength,
		hashes:       m.PieceHashes(),
		multiFile:    m.multiFile,
		tiers:        m.Tiers(),
		webSeeds:     m.WebSeeds(),
		comment:      m.comment,
		createdBy:    m.createdBy,
		creationDate: m.creationDate,
		private:      m.private,
		collections:  m.Collections(),
		similar:      m.Similar(),
	}
	for _, f := range m.layout.Files() {
		switch {
		case f.IsPad() && isPadPath(f.Path, f.Size):
			f.Path = nil
		case m.multiFile && len(f.Path) > 1:
			f.Path = f.Path[1:]
		}
		b.files = append(b.files, f)
	}
	return b
}

// isPadPath reports the location Parse gives a pad file without a path.
func isPadPath(path []string, size int64) bool {
	want := padPath(size)
	return len(path) == len(want) && path[0] == want[0] && path[1] == want[1]
}

// AddFile appends a file. Its path is relative to the torrent root.
func (b *Builder) AddFile(rec FileRecord) *Builder {
	b.files = append(b.files, rec.clone())
	return b
}

// SetMultiFile forces the files layout even for a single file.
func (b *Builder) SetMultiFile(multi bool) *Builder {
	b.multiFile = multi
	return b
}

// SetName replaces the torrent name.
func (b *Builder) SetName(name string) *Builder {
	b.name = name
	return b
}

// SetPieceLength replaces the piece length.
func (b *Builder) SetPieceLength(n int64) *Builder {
	b.pieceLength = n
	return b
}

// SetPieceHashes sets the concatenated 20-byte piece hashes.
func (b *Builder) SetPieceHashes(hashes []byte) *Builder {
	b.hashes = append([]byte(nil), hashes...)
	return b
}

// AddTracker adds url to the given tier, creating tiers as needed.
func (b *Builder) AddTracker(url string, tier int) *Builder {
	if tier < 0 {
		tier = 0
	}
	for len(b.tiers) <= tier {
		b.tiers = append(b.tiers, nil)
	}
	b.tiers[tier] = append(b.tiers[tier], url)
	return b
}

// AddURLSeed appends a BEP 19 url-list entry.
func (b *Builder) AddURLSeed(url string) *Builder {
	b.webSeeds = append(b.webSeeds, WebSeed{URL: url, Kind: URLSeed})
	return b
}

// AddHTTPSeed appends a BEP 17 httpseeds entry.
func (b *Builder) AddHTTPSeed(url string) *Builder {
	b.webSeeds = append(b.webSeeds, WebSeed{URL: url, Kind: HTTPSeed})
	return b
}

// AddCollection appends a collection name.
func (b *Builder) AddCollection(c string) *Builder {
	b.collections = append(b.collections, c)
	return b
}

// AddSimilar appends the info hash of a related torrent.
func (b *Builder) AddSimilar(h metainfo.Hash) *Builder {
	b.similar = append(b.similar, h)
	return b
}

// SetComment sets the comment field.
func (b *Builder) SetComment(c string) *Builder {
	b.comment = c
	return b
}

// SetCreatedBy sets the created by field.
func (b *Builder) SetCreatedBy(s string) *Builder {
	b.createdBy = s
	return b
}

// SetCreationDate sets the creation date, in whole seconds.
func (b *Builder) SetCreationDate(t time.Time) *Builder {
	b.creationDate = t
	return b
}

// SetPrivate sets the private flag.
func (b *Builder) SetPrivate(private bool) *Builder {
	b.private = private
	return b
}

func (b *Builder) isMultiFile() bool {
	return b.multiFile || len(b.files) != 1 || len(b.files[0].Path) > 1
}

func encodeFile(f FileRecord) encodedFile {
	ef := encodedFile{
		Attr:        f.Flags.String(),
		Length:      f.Size,
		Path:        append([]string{}, f.Path...),
		SymlinkPath: f.SymlinkTarget,
	}
	if f.HasHash() {
		ef.SHA1 = string(f.Hash[:])
	}
	if !f.Mtime.IsZero() {
		ef.Mtime = f.Mtime.Unix()
	}
	return ef
}

// Encode serializes the torrent without validating it.
func (b *Builder) Encode() ([]byte, error) {
	info := encodedInfo{
		Name:        b.name,
		PieceLength: b.pieceLength,
		Pieces:      string(b.hashes),
		Collections: b.collections,
	}
	if b.private {
		info.Private = 1
	}
	for _, h := range b.similar {
		info.Similar = append(info.Similar, string(h[:]))
	}

	switch {
	case len(b.files) == 0:
		return nil, newError(NoFiles, "builder has no files")
	case b.isMultiFile():
		for _, f := range b.files {
			info.Files = append(info.Files, encodeFile(f))
		}
	default:
		f := encodeFile(b.files[0])
		info.Length = f.Length
		info.Attr = f.Attr
		info.SHA1 = f.SHA1
		info.Mtime = f.Mtime
	}

	infoBytes, err := bencode.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encoding info: %w", err)
	}

	t := encodedTorrent{
		Info:      infoBytes,
		Comment:   b.comment,
		CreatedBy: b.createdBy,
	}
	if !b.creationDate.IsZero() {
		t.CreationDate = b.creationDate.Unix()
	}
	for _, tier := range b.tiers {
		if len(tier) == 0 {
			continue
		}
		if t.Announce == "" {
			t.Announce = tier[0]
		}
		t.AnnounceList = append(t.AnnounceList, tier)
	}
	for _, ws := range b.webSeeds {
		if ws.Kind == HTTPSeed {
			t.HTTPSeeds = append(t.HTTPSeeds, ws.URL)
		} else {
			t.URLList = append(t.URLList, ws.URL)
		}
	}

	data, err := bencode.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encoding torrent: %w", err)
	}
	return data, nil
}

// Build encodes the torrent and parses the result.
func (b *Builder) Build(opts ...Option) (*Metadata, error) {
	data, err := b.Encode()
	if err != nil {
		return nil, err
	}
	return Parse(data, opts...)
}
