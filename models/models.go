package models

import (
	"time"
)

// Torrent is one validated .torrent in the catalog.
type Torrent struct {
	ID           string     `json:"id" gorm:"primaryKey;size:64"` // hex info hash
	Name         string     `json:"name" gorm:"size:512;index"`
	MagnetURI    string     `json:"magnet_uri" gorm:"type:text;not null"`
	TotalSize    int64      `json:"total_size" gorm:"default:0"`
	PieceLength  int64      `json:"piece_length" gorm:"default:0"`
	PieceCount   int        `json:"piece_count" gorm:"default:0"`
	FileCount    int        `json:"file_count" gorm:"default:0"`
	MultiFile    bool       `json:"multi_file" gorm:"default:false"`
	Private      bool       `json:"private" gorm:"default:false"`
	Comment      string     `json:"comment,omitempty" gorm:"type:text"`
	CreatedBy    string     `json:"created_by,omitempty" gorm:"size:256"`
	CreationDate *time.Time `json:"creation_date,omitempty"`
	Warnings     int        `json:"warnings" gorm:"default:0"`
	Raw          []byte     `json:"-" gorm:"not null"`
	RawSize      int        `json:"raw_size" gorm:"default:0"`
	Compression  string     `json:"compression" gorm:"size:16;default:'none'"`
	Digest       string     `json:"digest" gorm:"size:64;index"` // blake3 of the uncompressed upload
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	LastAccessed time.Time  `json:"last_accessed" gorm:"autoCreateTime;index"`
	AccessCount  int64      `json:"access_count" gorm:"default:0"`
}

// File is one entry of a torrent's validated file layout.
type File struct {
	ID            int       `json:"id" gorm:"primaryKey;autoIncrement"`
	TorrentID     string    `json:"torrent_id" gorm:"size:64;not null;index"`
	FileIndex     int       `json:"file_index" gorm:"default:0"`
	FilePath      string    `json:"file_path" gorm:"type:text;not null"`
	FileName      string    `json:"file_name" gorm:"size:512;not null"`
	FileSize      int64     `json:"file_size" gorm:"default:0"`
	Offset        int64     `json:"offset" gorm:"default:0"`
	Flags         string    `json:"flags,omitempty" gorm:"size:8"`
	FirstPiece    int       `json:"first_piece" gorm:"default:0"`
	LastPiece     int       `json:"last_piece" gorm:"default:0"`
	SymlinkTarget string    `json:"symlink_target,omitempty" gorm:"type:text"`
	MimeType      string    `json:"mime_type" gorm:"size:128"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

type Tracker struct {
	ID        int    `json:"id" gorm:"primaryKey;autoIncrement"`
	TorrentID string `json:"torrent_id" gorm:"size:64;not null;index"`
	Tier      int    `json:"tier" gorm:"default:0"`
	URL       string `json:"url" gorm:"type:text;not null"`
}

type WebSeed struct {
	ID        int    `json:"id" gorm:"primaryKey;autoIncrement"`
	TorrentID string `json:"torrent_id" gorm:"size:64;not null;index"`
	URL       string `json:"url" gorm:"type:text;not null"`
	Kind      string `json:"kind" gorm:"size:16;not null"`
}

type Stats struct {
	TotalTorrents  int64 `json:"total_torrents"`
	TotalFiles     int64 `json:"total_files"`
	TotalBytes     int64 `json:"total_bytes"`
	StoredBytes    int64 `json:"stored_bytes"`
	CachedTorrents int   `json:"cached_torrents"`
}
