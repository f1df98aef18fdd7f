package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"torrent-catalog/config"
	"torrent-catalog/database"
	"torrent-catalog/models"
	"torrent-catalog/torrentinfo"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("server:\n  env: test\n"))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Dir = dir
	cfg.Catalog.DataDir = filepath.Join(dir, "torrents")
	return cfg
}

func openDB(t *testing.T, cfg *config.Config) *gorm.DB {
	t.Helper()
	db, err := database.InitDB(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	return db
}

func newService(t *testing.T, cfg *config.Config, db *gorm.DB) *CatalogService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := NewCatalogService(cfg, db, logger)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func newTestService(t *testing.T) *CatalogService {
	cfg := testConfig(t)
	return newService(t, cfg, openDB(t, cfg))
}

// sampleTorrent is a three-file torrent: 20000 + 1000 + 384 bytes in
// pieces of 16384.
func sampleTorrent(t *testing.T, name string) []byte {
	t.Helper()
	data, err := torrentinfo.NewBuilder(name, 16384).
		AddFile(torrentinfo.FileRecord{Path: []string{"video.mkv"}, Size: 20000}).
		AddFile(torrentinfo.FileRecord{Path: []string{"subs", "en.srt"}, Size: 1000}).
		AddFile(torrentinfo.FileRecord{Path: []string{"README.txt"}, Size: 384}).
		SetPieceHashes(bytes.Repeat([]byte{0xab}, 2*torrentinfo.HashSize)).
		AddTracker("http://tracker.example/announce", 0).
		AddTracker("udp://backup.example:6969/announce", 1).
		AddURLSeed("http://seed.example/files/").
		SetComment("sample").
		Encode()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// bulkyTorrent has many similarly named files, so it compresses well.
func bulkyTorrent(t *testing.T) []byte {
	t.Helper()
	b := torrentinfo.NewBuilder("season", 1<<20)
	for i := 0; i < 64; i++ {
		b.AddFile(torrentinfo.FileRecord{
			Path: []string{"episodes", fmt.Sprintf("episode-%02d.mkv", i)},
			Size: 1 << 20,
		})
	}
	data, err := b.SetPieceHashes(bytes.Repeat([]byte{0x11}, 64*torrentinfo.HashSize)).Encode()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func ingest(t *testing.T, svc *CatalogService, data []byte) *models.Torrent {
	t.Helper()
	rec, created, err := svc.Ingest(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatalf("torrent %s already existed", rec.ID)
	}
	return rec
}

func TestIngestStoresRows(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	rec := ingest(t, svc, sampleTorrent(t, "show"))
	if len(rec.ID) != 40 || rec.Name != "show" || rec.TotalSize != 21384 || rec.PieceCount != 2 || rec.FileCount != 3 {
		t.Errorf("record = %+v", rec)
	}
	if !rec.MultiFile || rec.Comment != "sample" || rec.Digest == "" {
		t.Errorf("record = %+v", rec)
	}

	files, err := svc.Files(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		path        string
		offset      int64
		first, last int
		mime        string
	}{
		{"show/video.mkv", 0, 0, 1, "video/x-matroska"},
		{"show/subs/en.srt", 20000, 1, 1, "text/plain"},
		{"show/README.txt", 21000, 1, 1, "text/plain; charset=utf-8"},
	}
	if len(files) != len(want) {
		t.Fatalf("got %d files, want %d", len(files), len(want))
	}
	for i, w := range want {
		f := files[i]
		if f.FilePath != w.path || f.Offset != w.offset || f.FirstPiece != w.first || f.LastPiece != w.last || f.FileIndex != i {
			t.Errorf("file %d = %+v", i, f)
		}
		if i < 2 && f.MimeType != w.mime {
			t.Errorf("file %d mime = %q, want %q", i, f.MimeType, w.mime)
		}
	}
	if files[1].FileName != "en.srt" {
		t.Errorf("file name = %q", files[1].FileName)
	}

	tiers, err := svc.Trackers(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tiers) != 2 || tiers[0][0] != "http://tracker.example/announce" || tiers[1][0] != "udp://backup.example:6969/announce" {
		t.Errorf("tiers = %q", tiers)
	}

	var seeds []models.WebSeed
	svc.DB().Where("torrent_id = ?", rec.ID).Find(&seeds)
	if len(seeds) != 1 || seeds[0].Kind != torrentinfo.URLSeed {
		t.Errorf("web seeds = %+v", seeds)
	}
}

func TestIngestDuplicate(t *testing.T) {
	svc := newTestService(t)
	data := sampleTorrent(t, "show")

	first := ingest(t, svc, data)
	again, created, err := svc.Ingest(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	if created || again.ID != first.ID {
		t.Errorf("created = %v, id = %s, want existing %s", created, again.ID, first.ID)
	}

	var count int64
	svc.DB().Model(&models.File{}).Count(&count)
	if count != 3 {
		t.Errorf("file rows = %d, want 3", count)
	}
}

func TestIngestRejectsInvalid(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name string
		data []byte
		kind torrentinfo.ErrorKind
	}{
		{"garbage", []byte("not bencode"), torrentinfo.MalformedTree},
		{"list", []byte("li1ee"), torrentinfo.NotADictionary},
		{"no info", []byte("d8:announce3:urle"), torrentinfo.MissingInfoDictionary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Ingest(context.Background(), tt.data)
			if got := torrentinfo.KindOf(err); got != tt.kind {
				t.Errorf("kind = %v, want %v (err %v)", got, tt.kind, err)
			}
		})
	}

	var count int64
	svc.DB().Model(&models.Torrent{}).Count(&count)
	if count != 0 {
		t.Errorf("stored %d torrents", count)
	}
}

func TestInvalidID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Get(ctx, "not-a-hash"); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Get: err = %v", err)
	}
	missing := "0123456789abcdef0123456789abcdef01234567"
	if _, err := svc.Get(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: err = %v", err)
	}
	if _, err := svc.Files(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Files: err = %v", err)
	}
	if _, err := svc.Metadata(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Metadata: err = %v", err)
	}
}

func TestGetAcceptsUpperCaseID(t *testing.T) {
	svc := newTestService(t)
	rec := ingest(t, svc, sampleTorrent(t, "show"))

	got, err := svc.Get(context.Background(), string(bytes.ToUpper([]byte(rec.ID))))
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != rec.ID {
		t.Errorf("id = %s, want %s", got.ID, rec.ID)
	}
}

func TestMetadataReload(t *testing.T) {
	cfg := testConfig(t)
	db := openDB(t, cfg)
	ctx := context.Background()

	rec := ingest(t, newService(t, cfg, db), sampleTorrent(t, "show"))

	fresh := newService(t, cfg, db)
	if fresh.CachedCount() != 0 {
		t.Fatal("new service should start with an empty cache")
	}
	m, err := fresh.Metadata(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if m.InfoHash().HexString() != rec.ID || m.NumFiles() != 3 {
		t.Errorf("reloaded %s with %d files", m.InfoHash().HexString(), m.NumFiles())
	}
	if fresh.CachedCount() != 1 {
		t.Errorf("cached = %d, want 1", fresh.CachedCount())
	}
}

func TestMetadataDetectsCorruption(t *testing.T) {
	cfg := testConfig(t)
	db := openDB(t, cfg)
	ctx := context.Background()

	rec := ingest(t, newService(t, cfg, db), sampleTorrent(t, "show"))
	if err := db.Model(&models.Torrent{}).Where("id = ?", rec.ID).Update("digest", digest([]byte("other"))).Error; err != nil {
		t.Fatal(err)
	}

	_, err := newService(t, cfg, db).Metadata(ctx, rec.ID)
	if !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("err = %v, want ErrCorruptRecord", err)
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	data := bulkyTorrent(t)

	for _, tag := range []string{"none", "lz4", "zstd"} {
		t.Run(tag, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Catalog.Compression = tag
			db := openDB(t, cfg)
			rec := ingest(t, newService(t, cfg, db), data)

			if rec.Compression != tag {
				t.Errorf("compression = %q, want %q", rec.Compression, tag)
			}
			if rec.RawSize != len(data) {
				t.Errorf("raw size = %d, want %d", rec.RawSize, len(data))
			}
			if tag != "none" && len(rec.Raw) >= len(data) {
				t.Errorf("stored %d bytes for %d", len(rec.Raw), len(data))
			}

			raw, err := newService(t, cfg, db).Raw(context.Background(), rec.ID)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(raw, data) {
				t.Error("raw bytes differ from the upload")
			}
		})
	}
}

func TestMapFileAndPiece(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	rec := ingest(t, svc, sampleTorrent(t, "show"))

	fm, err := svc.MapFile(ctx, rec.ID, 1, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if fm.Piece != 1 || fm.Start != 3616 || fm.Length != 10 || fm.Path != "show/subs/en.srt" {
		t.Errorf("MapFile = %+v", fm)
	}

	fm, err = svc.MapFile(ctx, rec.ID, 2, 300, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if fm.Length != 84 {
		t.Errorf("clipped length = %d, want 84", fm.Length)
	}

	if _, err := svc.MapFile(ctx, rec.ID, 2, 385, 1); !errors.Is(err, torrentinfo.ErrOutOfRange) {
		t.Errorf("offset past end: err = %v", err)
	}

	pm, err := svc.MapPiece(ctx, rec.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if pm.Size != 5000 || len(pm.Slices) != 3 {
		t.Fatalf("MapPiece = %+v", pm)
	}
	wantSlices := []SliceRecord{
		{File: 0, Path: "show/video.mkv", Offset: 16384, Size: 3616},
		{File: 1, Path: "show/subs/en.srt", Offset: 0, Size: 1000},
		{File: 2, Path: "show/README.txt", Offset: 0, Size: 384},
	}
	for i, w := range wantSlices {
		if pm.Slices[i] != w {
			t.Errorf("slice %d = %+v, want %+v", i, pm.Slices[i], w)
		}
	}
	if pm.Hash != "abababababababababababababababababababab" {
		t.Errorf("hash = %s", pm.Hash)
	}

	if _, err := svc.MapPiece(ctx, rec.ID, 2); !errors.Is(err, torrentinfo.ErrOutOfRange) {
		t.Errorf("piece 2: err = %v", err)
	}
}

func TestExport(t *testing.T) {
	svc := newTestService(t)
	data := sampleTorrent(t, "show")
	rec := ingest(t, svc, data)

	exported, err := svc.Export(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	m, err := torrentinfo.Parse(exported)
	if err != nil {
		t.Fatal(err)
	}
	if m.InfoHash().HexString() != rec.ID {
		t.Errorf("exported info hash = %s, want %s", m.InfoHash().HexString(), rec.ID)
	}
	if len(m.Trackers()) != 2 || len(m.WebSeeds()) != 1 || m.Comment() != "sample" {
		t.Errorf("exported optional fields lost: %+v %+v %q", m.Trackers(), m.WebSeeds(), m.Comment())
	}
}

func TestRemove(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	rec := ingest(t, svc, sampleTorrent(t, "show"))

	if err := svc.Remove(ctx, rec.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after remove: err = %v", err)
	}
	if _, err := svc.Metadata(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Metadata after remove: err = %v", err)
	}
	for _, model := range []interface{}{&models.File{}, &models.Tracker{}, &models.WebSeed{}} {
		var count int64
		svc.DB().Model(model).Count(&count)
		if count != 0 {
			t.Errorf("%T rows left: %d", model, count)
		}
	}
	if err := svc.Remove(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove: err = %v", err)
	}
}

func TestReindexAppliesConvention(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.PathConvention = "posix"
	db := openDB(t, cfg)
	ctx := context.Background()

	data, err := torrentinfo.NewBuilder("album", 16384).
		AddFile(torrentinfo.FileRecord{Path: []string{"a:b.flac"}, Size: 100}).
		AddFile(torrentinfo.FileRecord{Path: []string{"plain.flac"}, Size: 100}).
		SetPieceHashes(make([]byte, torrentinfo.HashSize)).
		Encode()
	if err != nil {
		t.Fatal(err)
	}
	rec := ingest(t, newService(t, cfg, db), data)

	winCfg := *cfg
	winCfg.Catalog.PathConvention = "windows"
	win := newService(t, &winCfg, db)

	result, err := win.Reindex(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if *result != (SyncResult{Created: 1, Updated: 0, Deleted: 1}) {
		t.Errorf("first reindex = %+v", *result)
	}

	files, err := win.Files(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].FilePath != "album/a_b.flac" || files[1].FilePath != "album/plain.flac" {
		t.Errorf("files = %+v", files)
	}

	result, err = win.Reindex(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if *result != (SyncResult{}) {
		t.Errorf("second reindex = %+v", *result)
	}
}

func TestImportDir(t *testing.T) {
	svc := newTestService(t)
	dir := t.TempDir()

	writeFile := func(name string, data []byte) {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatal(err)
		}
	}
	writeFile("one.torrent", sampleTorrent(t, "one"))
	writeFile("two.TORRENT", sampleTorrent(t, "two"))
	writeFile("broken.torrent", []byte("d4:infoi1ee"))
	writeFile("notes.txt", sampleTorrent(t, "three"))

	n, err := svc.ImportDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("imported %d, want 2", n)
	}

	n, err = svc.ImportDir(context.Background(), dir)
	if err != nil || n != 0 {
		t.Errorf("second import = %d, %v", n, err)
	}
}

func TestIngestFileMissing(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.IngestFile(context.Background(), filepath.Join(t.TempDir(), "absent.torrent"))
	if !errors.Is(err, torrentinfo.ErrIoFailure) {
		t.Errorf("err = %v, want IoFailure", err)
	}
}

func TestListAndStats(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		ingest(t, svc, sampleTorrent(t, name))
	}

	page, total, err := svc.List(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(page) != 1 || page[0].Name != "bravo" {
		t.Errorf("page = %+v, total %d", page, total)
	}
	if page[0].Raw != nil {
		t.Error("list should not load raw bytes")
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalTorrents != 3 || stats.TotalFiles != 9 || stats.TotalBytes != 3*21384 || stats.CachedTorrents != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCacheIsBounded(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.CacheSize = 2
	svc := newService(t, cfg, openDB(t, cfg))

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		ids = append(ids, ingest(t, svc, sampleTorrent(t, name)).ID)
	}
	if svc.CachedCount() != 2 {
		t.Errorf("cached = %d, want 2", svc.CachedCount())
	}
	if _, err := svc.Metadata(context.Background(), ids[0]); err != nil {
		t.Errorf("evicted entry should reload: %v", err)
	}
}

func TestStartImportsDataDir(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.Catalog.DataDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Catalog.DataDir, "drop.torrent"), sampleTorrent(t, "drop"), 0644); err != nil {
		t.Fatal(err)
	}

	svc := newService(t, cfg, openDB(t, cfg))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer svc.Stop()

	_, total, err := svc.List(context.Background(), 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
}

func TestInsertRaceReturnsExisting(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	data := sampleTorrent(t, "race")
	m, err := torrentinfo.Parse(data, svc.opts...)
	if err != nil {
		t.Fatal(err)
	}

	first, created, err := svc.insert(ctx, m, data)
	if err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}

	// a second insert skips the existence check, as a concurrent upload would
	second, created, err := svc.insert(ctx, m, data)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if created {
		t.Error("second insert reported created")
	}
	if second.ID != first.ID {
		t.Errorf("got record %s, want %s", second.ID, first.ID)
	}

	var files int64
	svc.DB().Model(&models.File{}).Where("torrent_id = ?", first.ID).Count(&files)
	if files != 3 {
		t.Errorf("file rows = %d, want 3", files)
	}
}
