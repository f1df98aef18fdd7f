package torrentinfo

import (
	"time"

	"github.com/anacrolix/torrent/metainfo"
)

// Web seed kinds.
const (
	URLSeed  = "url-seed"
	HTTPSeed = "http-seed"
)

// AnnounceEntry is one tracker URL with its tier.
type AnnounceEntry struct {
	URL  string
	Tier int
}

// WebSeed is an HTTP source for the content.
type WebSeed struct {
	URL  string
	Kind string
}

// Metadata is a validated torrent. It is never modified after Parse returns
// it; accessors hand out copies, so a Metadata can be shared freely between
// goroutines.
type Metadata struct {
	name         string
	pieceLength  int64
	hashes       string
	layout       *FileLayout
	multiFile    bool
	trackers     []AnnounceEntry
	webSeeds     []WebSeed
	creationDate time.Time
	comment      string
	createdBy    string
	private      bool
	collections  []string
	similar      []metainfo.Hash
	info         []byte
	infoHash     metainfo.Hash
	warnings     []string
}

// Clone returns a logically independent copy. Immutable buffers are shared.
func (m *Metadata) Clone() *Metadata {
	c := *m
	return &c
}

// Name is the sanitized torrent name.
func (m *Metadata) Name() string { return m.name }

// PieceLength is the nominal size of every piece but the last.
func (m *Metadata) PieceLength() int64 { return m.pieceLength }

// NumPieces is the number of piece hashes.
func (m *Metadata) NumPieces() int { return len(m.hashes) / HashSize }

// TotalSize is the sum of all file sizes.
func (m *Metadata) TotalSize() int64 { return m.layout.TotalSize() }

// Layout returns the shared, immutable file layout.
func (m *Metadata) Layout() *FileLayout { return m.layout }

// NumFiles is the number of file records, pad files included.
func (m *Metadata) NumFiles() int { return m.layout.NumFiles() }

// IsMultiFile reports whether the info dictionary used a "files" list.
func (m *Metadata) IsMultiFile() bool { return m.multiFile }

// InfoHash is the SHA-1 of the original info dictionary bytes.
func (m *Metadata) InfoHash() metainfo.Hash { return m.infoHash }

// Comment is the free-form "comment" field, or "".
func (m *Metadata) Comment() string { return m.comment }

// CreatedBy names the program that made the torrent, or "".
func (m *Metadata) CreatedBy() string { return m.createdBy }

// Private reports the private flag of the info dictionary.
func (m *Metadata) Private() bool { return m.private }

// CreationDate reports the creation time, if the torrent carries one.
func (m *Metadata) CreationDate() (time.Time, bool) {
	return m.creationDate, !m.creationDate.IsZero()
}

// PieceHash returns the expected SHA-1 of piece i.
func (m *Metadata) PieceHash(i int) metainfo.Hash {
	var h metainfo.Hash
	copy(h[:], m.hashes[i*HashSize:(i+1)*HashSize])
	return h
}

// PieceHashes returns the concatenated piece hashes.
func (m *Metadata) PieceHashes() []byte {
	return []byte(m.hashes)
}

// InfoBytes returns a copy of the exact bencoded info dictionary.
func (m *Metadata) InfoBytes() []byte {
	return append([]byte(nil), m.info...)
}

// Trackers returns the announce URLs in tier order.
func (m *Metadata) Trackers() []AnnounceEntry {
	return append([]AnnounceEntry(nil), m.trackers...)
}

// Tiers groups tracker URLs by tier.
func (m *Metadata) Tiers() [][]string {
	var tiers [][]string
	for _, t := range m.trackers {
		for len(tiers) <= t.Tier {
			tiers = append(tiers, nil)
		}
		tiers[t.Tier] = append(tiers[t.Tier], t.URL)
	}
	return tiers
}

// WebSeeds returns the url-seed and http-seed entries.
func (m *Metadata) WebSeeds() []WebSeed {
	return append([]WebSeed(nil), m.webSeeds...)
}

// Collections returns the collection names the torrent belongs to.
func (m *Metadata) Collections() []string {
	return append([]string(nil), m.collections...)
}

// Similar returns the info hashes of related torrents.
func (m *Metadata) Similar() []metainfo.Hash {
	return append([]metainfo.Hash(nil), m.similar...)
}

// Warnings lists conditions Parse recovered from, such as skipped tracker
// entries or renamed files.
func (m *Metadata) Warnings() []string {
	return append([]string(nil), m.warnings...)
}

// Magnet returns a magnet URI naming the info hash, display name and
// trackers.
func (m *Metadata) Magnet() string {
	mag := metainfo.Magnet{
		InfoHash:    m.infoHash,
		DisplayName: m.name,
	}
	for _, t := range m.trackers {
		mag.Trackers = append(mag.Trackers, t.URL)
	}
	return mag.String()
}
