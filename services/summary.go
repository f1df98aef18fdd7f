package services

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"torrent-catalog/torrentinfo"
)

// Summary is the serializable view of a validated torrent.
type Summary struct {
	InfoHash     string          `json:"info_hash" cbor:"info_hash"`
	Name         string          `json:"name" cbor:"name"`
	Magnet       string          `json:"magnet" cbor:"magnet"`
	TotalSize    int64           `json:"total_size" cbor:"total_size"`
	PieceLength  int64           `json:"piece_length" cbor:"piece_length"`
	PieceCount   int             `json:"piece_count" cbor:"piece_count"`
	MultiFile    bool            `json:"multi_file" cbor:"multi_file"`
	Private      bool            `json:"private" cbor:"private"`
	Comment      string          `json:"comment,omitempty" cbor:"comment,omitempty"`
	CreatedBy    string          `json:"created_by,omitempty" cbor:"created_by,omitempty"`
	CreationDate int64           `json:"creation_date,omitempty" cbor:"creation_date,omitempty"`
	Files        []FileSummary   `json:"files" cbor:"files"`
	Trackers     [][]string      `json:"trackers,omitempty" cbor:"trackers,omitempty"`
	WebSeeds     []WebSeedRecord `json:"web_seeds,omitempty" cbor:"web_seeds,omitempty"`
	Collections  []string        `json:"collections,omitempty" cbor:"collections,omitempty"`
	Warnings     []string        `json:"warnings,omitempty" cbor:"warnings,omitempty"`
}

type FileSummary struct {
	Path          string `json:"path" cbor:"path"`
	Size          int64  `json:"size" cbor:"size"`
	Offset        int64  `json:"offset" cbor:"offset"`
	Flags         string `json:"flags,omitempty" cbor:"flags,omitempty"`
	FirstPiece    int    `json:"first_piece" cbor:"first_piece"`
	LastPiece     int    `json:"last_piece" cbor:"last_piece"`
	SymlinkTarget string `json:"symlink_target,omitempty" cbor:"symlink_target,omitempty"`
}

type WebSeedRecord struct {
	URL  string `json:"url" cbor:"url"`
	Kind string `json:"kind" cbor:"kind"`
}

// cborMode uses core deterministic encoding, so equal summaries always
// produce identical bytes.
var cborMode cbor.EncMode

func init() {
	var err error
	cborMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("services: CBOR encoder initialization failed: " + err.Error())
	}
}

func NewSummary(m *torrentinfo.Metadata) *Summary {
	layout := m.Layout()
	s := &Summary{
		InfoHash:    m.InfoHash().HexString(),
		Name:        m.Name(),
		Magnet:      m.Magnet(),
		TotalSize:   m.TotalSize(),
		PieceLength: m.PieceLength(),
		PieceCount:  m.NumPieces(),
		MultiFile:   m.IsMultiFile(),
		Private:     m.Private(),
		Comment:     m.Comment(),
		CreatedBy:   m.CreatedBy(),
		Files:       make([]FileSummary, 0, layout.NumFiles()),
		Trackers:    m.Tiers(),
		Collections: m.Collections(),
		Warnings:    m.Warnings(),
	}
	if t, ok := m.CreationDate(); ok {
		s.CreationDate = t.Unix()
	}
	for i := 0; i < layout.NumFiles(); i++ {
		first, last := layout.FileRange(i)
		s.Files = append(s.Files, FileSummary{
			Path:          strings.Join(layout.FileSegments(i), "/"),
			Size:          layout.FileSize(i),
			Offset:        layout.FileOffset(i),
			Flags:         layout.FileFlags(i).String(),
			FirstPiece:    first,
			LastPiece:     last,
			SymlinkTarget: strings.Join(layout.File(i).SymlinkTarget, "/"),
		})
	}
	for _, ws := range m.WebSeeds() {
		s.WebSeeds = append(s.WebSeeds, WebSeedRecord{URL: ws.URL, Kind: ws.Kind})
	}
	return s
}

// MarshalCBOR encodes the summary deterministically.
func (s *Summary) MarshalCBOR() ([]byte, error) {
	type plain Summary
	return cborMode.Marshal((*plain)(s))
}

// Write renders the summary in one of the formats text, json or cbor.
func (s *Summary) Write(w io.Writer, format string) error {
	switch format {
	case "", "text":
		return s.writeText(w)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "cbor":
		data, err := s.MarshalCBOR()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func (s *Summary) writeText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "name:         %s\n", s.Name)
	fmt.Fprintf(&b, "info hash:    %s\n", s.InfoHash)
	fmt.Fprintf(&b, "total size:   %s (%d bytes)\n", FormatFileSize(s.TotalSize), s.TotalSize)
	fmt.Fprintf(&b, "pieces:       %d x %s\n", s.PieceCount, FormatFileSize(s.PieceLength))
	if s.Private {
		b.WriteString("private:      yes\n")
	}
	if s.CreationDate > 0 {
		fmt.Fprintf(&b, "created:      %s\n", time.Unix(s.CreationDate, 0).UTC().Format(time.RFC3339))
	}
	if s.CreatedBy != "" {
		fmt.Fprintf(&b, "created by:   %s\n", s.CreatedBy)
	}
	if s.Comment != "" {
		fmt.Fprintf(&b, "comment:      %s\n", s.Comment)
	}
	for i, tier := range s.Trackers {
		fmt.Fprintf(&b, "tier %d:       %s\n", i, strings.Join(tier, " "))
	}
	for _, ws := range s.WebSeeds {
		fmt.Fprintf(&b, "%-13s %s\n", ws.Kind+":", ws.URL)
	}
	fmt.Fprintf(&b, "files (%d):\n", len(s.Files))
	for _, f := range s.Files {
		flags := ""
		if f.Flags != "" {
			flags = " [" + f.Flags + "]"
		}
		fmt.Fprintf(&b, "  %10s  %s%s\n", FormatFileSize(f.Size), f.Path, flags)
	}
	for _, warning := range s.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", warning)
	}
	b.WriteString("magnet:       " + s.Magnet + "\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// FormatFileSize renders a byte count with a binary unit.
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
