package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"gorm.io/gorm"

	"torrent-catalog/config"
	"torrent-catalog/models"
	"torrent-catalog/torrentinfo"
)

var (
	ErrNotFound      = errors.New("torrent not found")
	ErrInvalidID     = errors.New("invalid info hash")
	ErrCorruptRecord = errors.New("stored torrent is corrupt")
)

// CatalogService validates uploaded torrents, stores them and answers
// layout queries. Parsed metadata is kept in a bounded in-memory cache.
type CatalogService struct {
	cfg         *config.Config
	db          *gorm.DB
	log         *slog.Logger
	opts        []torrentinfo.Option
	compression CompressionTag

	mutex sync.RWMutex
	cache map[string]*torrentinfo.Metadata
	order []string
}

// PieceMapping lists the file slices a piece covers.
type PieceMapping struct {
	Piece  int           `json:"piece"`
	Hash   string        `json:"hash"`
	Size   int64         `json:"size"`
	Slices []SliceRecord `json:"slices"`
}

type SliceRecord struct {
	File   int    `json:"file"`
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
}

// FileMapping is the piece address of a byte range inside a file.
type FileMapping struct {
	File   int    `json:"file"`
	Path   string `json:"path"`
	Piece  int    `json:"piece"`
	Start  int64  `json:"start"`
	Length int64  `json:"length"`
}

// SyncResult counts the file rows touched by Reindex.
type SyncResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

func NewCatalogService(cfg *config.Config, db *gorm.DB, logger *slog.Logger) (*CatalogService, error) {
	tag, err := ParseCompressionTag(cfg.Catalog.Compression)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{
		cfg:         cfg,
		db:          db,
		log:         logger,
		opts:        cfg.Catalog.ParseOptions(),
		compression: tag,
		cache:       make(map[string]*torrentinfo.Metadata),
	}, nil
}

// Start imports any .torrent files waiting in the data directory and warms
// the cache with the most recently used records.
func (s *CatalogService) Start(ctx context.Context) error {
	if s.cfg.Catalog.DataDir != "" {
		n, err := s.ImportDir(ctx, s.cfg.Catalog.DataDir)
		if err != nil {
			s.log.Warn("import from data directory failed", "dir", s.cfg.Catalog.DataDir, "error", err)
		} else if n > 0 {
			s.log.Info("imported torrents from data directory", "count", n)
		}
	}

	if err := s.restoreCache(ctx); err != nil {
		s.log.Warn("failed to warm metadata cache", "error", err)
	}

	s.log.Info("catalog service started", "compression", s.compression.String())
	return nil
}

func (s *CatalogService) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.cache = make(map[string]*torrentinfo.Metadata)
	s.order = nil
	s.log.Info("catalog service stopped")
}

// Ingest validates data and stores it. When a torrent with the same info
// hash exists, the stored record is returned and created is false.
func (s *CatalogService) Ingest(ctx context.Context, data []byte) (*models.Torrent, bool, error) {
	m, err := torrentinfo.Parse(data, s.opts...)
	if err != nil {
		return nil, false, err
	}
	return s.store(ctx, m, data)
}

// IngestFile loads and stores the torrent at path.
func (s *CatalogService) IngestFile(ctx context.Context, path string) (*models.Torrent, bool, error) {
	m, err := torrentinfo.Load(path, s.opts...)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, &torrentinfo.Error{Kind: torrentinfo.IoFailure, Err: err}
	}
	return s.store(ctx, m, data)
}

// ImportDir ingests every *.torrent file directly inside dir. Files that
// fail validation are logged and skipped. It returns the number of newly
// created records.
func (s *CatalogService) ImportDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	created := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".torrent") {
			continue
		}
		file := filepath.Join(dir, entry.Name())
		rec, isNew, err := s.IngestFile(ctx, file)
		if err != nil {
			s.log.Warn("skipping torrent file", "file", file, "error", err)
			continue
		}
		if isNew {
			created++
			s.log.Debug("imported torrent", "file", file, "id", rec.ID)
		}
	}
	return created, nil
}

func (s *CatalogService) store(ctx context.Context, m *torrentinfo.Metadata, data []byte) (*models.Torrent, bool, error) {
	id := m.InfoHash().HexString()

	existing, err := s.lookup(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		s.remember(id, m)
		return existing, false, nil
	}
	return s.insert(ctx, m, data)
}

// lookup returns the stored record for id, or nil if there is none.
func (s *CatalogService) lookup(ctx context.Context, id string) (*models.Torrent, error) {
	var rec models.Torrent
	err := s.db.WithContext(ctx).Omit("raw").Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up torrent %s: %w", id, err)
	}
	return &rec, nil
}

// insert writes a new torrent with its rows. Losing an insert race to a
// concurrent upload of the same torrent returns the winner's record.
func (s *CatalogService) insert(ctx context.Context, m *torrentinfo.Metadata, data []byte) (*models.Torrent, bool, error) {
	id := m.InfoHash().HexString()

	packed, tag, err := packRaw(data, s.compression)
	if err != nil {
		return nil, false, fmt.Errorf("failed to compress torrent %s: %w", id, err)
	}

	rec := torrentRow(m)
	rec.Raw = packed
	rec.RawSize = len(data)
	rec.Compression = tag.String()
	rec.Digest = digest(data)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		if files := fileRows(id, m.Layout()); len(files) > 0 {
			if err := tx.Create(&files).Error; err != nil {
				return err
			}
		}
		if trackers := trackerRows(id, m); len(trackers) > 0 {
			if err := tx.Create(&trackers).Error; err != nil {
				return err
			}
		}
		if seeds := webSeedRows(id, m); len(seeds) > 0 {
			if err := tx.Create(&seeds).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if existing, lookupErr := s.lookup(ctx, id); lookupErr == nil && existing != nil {
			s.remember(id, m)
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to store torrent %s: %w", id, err)
	}

	s.remember(id, m)
	s.log.Info("torrent stored",
		"id", id,
		"name", m.Name(),
		"files", m.NumFiles(),
		"size", m.TotalSize(),
		"compression", rec.Compression,
		"warnings", len(m.Warnings()))
	return rec, true, nil
}

// Get returns the stored record without its raw bytes.
func (s *CatalogService) Get(ctx context.Context, id string) (*models.Torrent, error) {
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}

	var rec models.Torrent
	if err := s.db.WithContext(ctx).Omit("raw").Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, notFound(id, err)
	}

	go s.updateAccessStats(id)
	return &rec, nil
}

// List returns one page of records ordered by name, plus the total count.
func (s *CatalogService) List(ctx context.Context, offset, limit int) ([]models.Torrent, int64, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	db := s.db.WithContext(ctx).Model(&models.Torrent{})
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count torrents: %w", err)
	}

	var torrents []models.Torrent
	err := s.db.WithContext(ctx).Omit("raw").
		Order("name ASC, id ASC").
		Offset(offset).Limit(limit).
		Find(&torrents).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list torrents: %w", err)
	}
	return torrents, total, nil
}

// Files returns the stored file rows of a torrent in layout order.
func (s *CatalogService) Files(ctx context.Context, id string) ([]models.File, error) {
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}

	var files []models.File
	if err := s.db.WithContext(ctx).Where("torrent_id = ?", id).Order("file_index ASC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("failed to get files of %s: %w", id, err)
	}
	return files, nil
}

// Trackers returns the stored announce URLs grouped by tier.
func (s *CatalogService) Trackers(ctx context.Context, id string) ([][]string, error) {
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}

	var trackers []models.Tracker
	if err := s.db.WithContext(ctx).Where("torrent_id = ?", id).Order("tier ASC, id ASC").Find(&trackers).Error; err != nil {
		return nil, fmt.Errorf("failed to get trackers of %s: %w", id, err)
	}
	return groupTiers(trackers), nil
}

// Metadata returns the parsed torrent, from the cache or by re-parsing the
// stored bytes after checking their digest.
func (s *CatalogService) Metadata(ctx context.Context, id string) (*torrentinfo.Metadata, error) {
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}

	s.mutex.RLock()
	m, ok := s.cache[id]
	s.mutex.RUnlock()
	if ok {
		return m, nil
	}

	data, err := s.Raw(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err = torrentinfo.Parse(data, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, id, err)
	}

	s.remember(id, m)
	return m, nil
}

// Raw returns the bytes exactly as they were uploaded.
func (s *CatalogService) Raw(ctx context.Context, id string) ([]byte, error) {
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}

	var rec models.Torrent
	err = s.db.WithContext(ctx).
		Select("id", "raw", "raw_size", "compression", "digest").
		Where("id = ?", id).First(&rec).Error
	if err != nil {
		return nil, notFound(id, err)
	}

	tag, err := ParseCompressionTag(rec.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, id, err)
	}
	data, err := unpackRaw(rec.Raw, tag, rec.RawSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, id, err)
	}
	if sum := digest(data); sum != rec.Digest {
		return nil, fmt.Errorf("%w: %s: digest %s does not match %s", ErrCorruptRecord, id, sum, rec.Digest)
	}
	return data, nil
}

func (s *CatalogService) Summary(ctx context.Context, id string) (*Summary, error) {
	m, err := s.Metadata(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewSummary(m), nil
}

// Remove deletes a torrent and every row that belongs to it.
func (s *CatalogService) Remove(ctx context.Context, id string) error {
	id, err := normalizeID(id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.Torrent{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		for _, model := range []interface{}{&models.File{}, &models.Tracker{}, &models.WebSeed{}} {
			if err := tx.Where("torrent_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to remove torrent %s: %w", id, err)
	}

	s.forget(id)
	s.log.Info("torrent removed", "id", id)
	return nil
}

// Reindex re-parses the stored bytes with the current options and brings
// the file rows in line with the result.
func (s *CatalogService) Reindex(ctx context.Context, id string) (*SyncResult, error) {
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}

	data, err := s.Raw(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := torrentinfo.Parse(data, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, id, err)
	}

	result := &SyncResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.File
		if err := tx.Where("torrent_id = ?", id).Find(&existing).Error; err != nil {
			return err
		}
		// pad files of equal size may share a path
		existingByPath := make(map[string][]models.File, len(existing))
		for _, f := range existing {
			existingByPath[f.FilePath] = append(existingByPath[f.FilePath], f)
		}

		var toCreate []models.File
		for _, f := range fileRows(id, m.Layout()) {
			candidates := existingByPath[f.FilePath]
			if len(candidates) == 0 {
				toCreate = append(toCreate, f)
				continue
			}
			old := candidates[0]
			if len(candidates) == 1 {
				delete(existingByPath, f.FilePath)
			} else {
				existingByPath[f.FilePath] = candidates[1:]
			}
			if sameFileRow(old, f) {
				continue
			}
			f.ID = old.ID
			f.CreatedAt = old.CreatedAt
			if err := tx.Save(&f).Error; err != nil {
				return err
			}
			result.Updated++
		}

		if len(toCreate) > 0 {
			if err := tx.Create(&toCreate).Error; err != nil {
				return err
			}
			result.Created = len(toCreate)
		}

		if len(existingByPath) > 0 {
			var stale []int
			for _, files := range existingByPath {
				for _, f := range files {
					stale = append(stale, f.ID)
				}
			}
			if err := tx.Where("id IN ?", stale).Delete(&models.File{}).Error; err != nil {
				return err
			}
			result.Deleted = len(stale)
		}

		return tx.Model(&models.Torrent{}).Where("id = ?", id).Updates(map[string]interface{}{
			"name":       m.Name(),
			"file_count": m.NumFiles(),
			"warnings":   len(m.Warnings()),
			"updated_at": time.Now(),
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reindex torrent %s: %w", id, err)
	}

	s.remember(id, m)
	s.log.Info("torrent reindexed", "id", id,
		"created", result.Created, "updated", result.Updated, "deleted", result.Deleted)
	return result, nil
}

// MapFile translates a byte range of one file into a piece address.
func (s *CatalogService) MapFile(ctx context.Context, id string, index int, offset, length int64) (*FileMapping, error) {
	m, err := s.Metadata(ctx, id)
	if err != nil {
		return nil, err
	}
	layout := m.Layout()
	req, err := layout.MapFile(index, offset, length)
	if err != nil {
		return nil, err
	}
	return &FileMapping{
		File:   index,
		Path:   strings.Join(layout.FileSegments(index), "/"),
		Piece:  req.Piece,
		Start:  req.Start,
		Length: req.Length,
	}, nil
}

// MapPiece lists the file slices covered by a whole piece.
func (s *CatalogService) MapPiece(ctx context.Context, id string, piece int) (*PieceMapping, error) {
	m, err := s.Metadata(ctx, id)
	if err != nil {
		return nil, err
	}
	layout := m.Layout()
	size := layout.PieceSize(piece)
	slices, err := layout.MapBlock(piece, 0, size)
	if err != nil {
		return nil, err
	}

	mapping := &PieceMapping{
		Piece:  piece,
		Hash:   m.PieceHash(piece).HexString(),
		Size:   size,
		Slices: make([]SliceRecord, 0, len(slices)),
	}
	for _, sl := range slices {
		mapping.Slices = append(mapping.Slices, SliceRecord{
			File:   sl.File,
			Path:   strings.Join(layout.FileSegments(sl.File), "/"),
			Offset: sl.Offset,
			Size:   sl.Size,
		})
	}
	return mapping, nil
}

// Export re-encodes the validated torrent. Names and paths are written in
// their sanitized form.
func (s *CatalogService) Export(ctx context.Context, id string) ([]byte, error) {
	m, err := s.Metadata(ctx, id)
	if err != nil {
		return nil, err
	}
	return torrentinfo.BuilderFrom(m).Encode()
}

func (s *CatalogService) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{}
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.Torrent{}).Count(&stats.TotalTorrents).Error; err != nil {
		return nil, fmt.Errorf("failed to count torrents: %w", err)
	}
	if err := db.Model(&models.File{}).Count(&stats.TotalFiles).Error; err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}

	var sums struct {
		TotalBytes  int64
		StoredBytes int64
	}
	err := db.Model(&models.Torrent{}).
		Select("COALESCE(SUM(total_size), 0) AS total_bytes, COALESCE(SUM(raw_size), 0) AS stored_bytes").
		Scan(&sums).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum sizes: %w", err)
	}
	stats.TotalBytes = sums.TotalBytes
	stats.StoredBytes = sums.StoredBytes
	stats.CachedTorrents = s.CachedCount()
	return stats, nil
}

func (s *CatalogService) CachedCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.cache)
}

func (s *CatalogService) DB() *gorm.DB {
	return s.db
}

func (s *CatalogService) exists(ctx context.Context, id string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Torrent{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up torrent %s: %w", id, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *CatalogService) remember(id string, m *torrentinfo.Metadata) {
	limit := s.cfg.Catalog.CacheSize
	if limit <= 0 {
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.cache[id]; !ok {
		s.order = append(s.order, id)
	}
	s.cache[id] = m
	for len(s.order) > limit {
		delete(s.cache, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *CatalogService) forget(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.cache[id]; !ok {
		return
	}
	delete(s.cache, id)
	for i, cached := range s.order {
		if cached == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *CatalogService) restoreCache(ctx context.Context) error {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Torrent{}).
		Order("last_accessed DESC").
		Limit(s.cfg.Catalog.CacheSize).
		Pluck("id", &ids).Error
	if err != nil {
		return err
	}

	restored := 0
	for _, id := range ids {
		if _, err := s.Metadata(ctx, id); err != nil {
			s.log.Warn("failed to restore torrent", "id", id, "error", err)
			continue
		}
		restored++
	}

	s.log.Debug("metadata cache restored", "count", restored)
	return nil
}

func (s *CatalogService) updateAccessStats(id string) {
	err := s.db.Model(&models.Torrent{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"access_count":  gorm.Expr("access_count + 1"),
			"last_accessed": time.Now(),
		}).Error
	if err != nil {
		s.log.Debug("failed to update access stats", "id", id, "error", err)
	}
}

// normalizeID accepts a 40 character hex info hash in either case.
func normalizeID(id string) (string, error) {
	var h metainfo.Hash
	if err := h.FromHexString(id); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return h.HexString(), nil
}

func notFound(id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fmt.Errorf("failed to get torrent %s: %w", id, err)
}

func torrentRow(m *torrentinfo.Metadata) *models.Torrent {
	now := time.Now()
	rec := &models.Torrent{
		ID:           m.InfoHash().HexString(),
		Name:         m.Name(),
		MagnetURI:    m.Magnet(),
		TotalSize:    m.TotalSize(),
		PieceLength:  m.PieceLength(),
		PieceCount:   m.NumPieces(),
		FileCount:    m.NumFiles(),
		MultiFile:    m.IsMultiFile(),
		Private:      m.Private(),
		Comment:      m.Comment(),
		CreatedBy:    m.CreatedBy(),
		Warnings:     len(m.Warnings()),
		LastAccessed: now,
	}
	if t, ok := m.CreationDate(); ok {
		rec.CreationDate = &t
	}
	return rec
}

func fileRows(id string, layout *torrentinfo.FileLayout) []models.File {
	files := make([]models.File, 0, layout.NumFiles())
	for i := 0; i < layout.NumFiles(); i++ {
		segments := layout.FileSegments(i)
		filePath := strings.Join(segments, "/")
		first, last := layout.FileRange(i)
		files = append(files, models.File{
			TorrentID:     id,
			FileIndex:     i,
			FilePath:      filePath,
			FileName:      segments[len(segments)-1],
			FileSize:      layout.FileSize(i),
			Offset:        layout.FileOffset(i),
			Flags:         layout.FileFlags(i).String(),
			FirstPiece:    first,
			LastPiece:     last,
			SymlinkTarget: strings.Join(layout.File(i).SymlinkTarget, "/"),
			MimeType:      getMimeType(filePath),
		})
	}
	return files
}

func sameFileRow(a, b models.File) bool {
	return a.FileIndex == b.FileIndex &&
		a.FileName == b.FileName &&
		a.FileSize == b.FileSize &&
		a.Offset == b.Offset &&
		a.Flags == b.Flags &&
		a.FirstPiece == b.FirstPiece &&
		a.LastPiece == b.LastPiece &&
		a.SymlinkTarget == b.SymlinkTarget &&
		a.MimeType == b.MimeType
}

func trackerRows(id string, m *torrentinfo.Metadata) []models.Tracker {
	entries := m.Trackers()
	rows := make([]models.Tracker, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, models.Tracker{TorrentID: id, Tier: e.Tier, URL: e.URL})
	}
	return rows
}

func webSeedRows(id string, m *torrentinfo.Metadata) []models.WebSeed {
	seeds := m.WebSeeds()
	rows := make([]models.WebSeed, 0, len(seeds))
	for _, ws := range seeds {
		rows = append(rows, models.WebSeed{TorrentID: id, URL: ws.URL, Kind: ws.Kind})
	}
	return rows
}

var mimeTypes = map[string]string{
	".mp4":     "video/mp4",
	".mkv":     "video/x-matroska",
	".avi":     "video/x-msvideo",
	".mov":     "video/quicktime",
	".webm":    "video/webm",
	".flac":    "audio/flac",
	".mp3":     "audio/mpeg",
	".jpg":     "image/jpeg",
	".png":     "image/png",
	".srt":     "text/plain",
	".ass":     "text/plain",
	".nfo":     "text/plain",
	".iso":     "application/x-iso9660-image",
	".torrent": "application/x-bittorrent",
}

func getMimeType(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if t, ok := mimeTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// groupTiers groups tracker rows by tier, keeping row order inside a tier.
func groupTiers(trackers []models.Tracker) [][]string {
	sort.SliceStable(trackers, func(i, j int) bool { return trackers[i].Tier < trackers[j].Tier })
	tiers := [][]string{}
	for i, t := range trackers {
		if i == 0 || t.Tier != trackers[i-1].Tier {
			tiers = append(tiers, nil)
		}
		tiers[len(tiers)-1] = append(tiers[len(tiers)-1], t.URL)
	}
	return tiers
}
