package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/gin-gonic/gin"

	"torrent-catalog/config"
	"torrent-catalog/database"
	"torrent-catalog/services"
	"torrent-catalog/torrentinfo"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestCatalog(t *testing.T) (*services.CatalogService, *config.Config) {
	t.Helper()
	cfg, err := config.Parse([]byte("server:\n  env: test\n"))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Dir = dir
	cfg.Catalog.DataDir = filepath.Join(dir, "torrents")

	db, err := database.InitDB(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })

	catalog, err := services.NewCatalogService(cfg, db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	return catalog, cfg
}

func newAPIRouter(t *testing.T, maxUpload int64) (*gin.Engine, *services.CatalogService) {
	t.Helper()
	catalog, _ := newTestCatalog(t)
	h := NewAPIHandler(catalog, maxUpload)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/torrents", h.AddTorrent)
	api.GET("/torrents", h.ListTorrents)
	api.GET("/torrents/:id", h.GetTorrent)
	api.GET("/torrents/:id/files", h.ListFiles)
	api.GET("/torrents/:id/files/:index/map", h.MapFile)
	api.GET("/torrents/:id/pieces/:piece", h.MapPiece)
	api.GET("/torrents/:id/trackers", h.ListTrackers)
	api.GET("/torrents/:id/torrent", h.DownloadTorrent)
	api.POST("/torrents/:id/reindex", h.ReindexTorrent)
	api.DELETE("/torrents/:id", h.RemoveTorrent)
	api.GET("/stats", h.GetStats)
	return r, catalog
}

func sampleTorrent(t *testing.T, name string) []byte {
	t.Helper()
	data, err := torrentinfo.NewBuilder(name, 16384).
		AddFile(torrentinfo.FileRecord{Path: []string{"video.mkv"}, Size: 20000}).
		AddFile(torrentinfo.FileRecord{Path: []string{"subs", "en.srt"}, Size: 1000}).
		AddFile(torrentinfo.FileRecord{Path: []string{"README.txt"}, Size: 384}).
		SetPieceHashes(bytes.Repeat([]byte{0xcd}, 2*torrentinfo.HashSize)).
		AddTracker("http://tracker.example/announce", 0).
		Encode()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func do(r http.Handler, method, target string, body io.Reader, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
}

func upload(t *testing.T, r http.Handler, data []byte) string {
	t.Helper()
	w := do(r, http.MethodPost, "/api/torrents", bytes.NewReader(data), "Content-Type", "application/x-bittorrent")
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: status %d: %s", w.Code, w.Body.String())
	}
	var rec struct {
		ID string `json:"id"`
	}
	decodeJSON(t, w, &rec)
	return rec.ID
}

func TestAddTorrent(t *testing.T) {
	r, _ := newAPIRouter(t, 1<<20)
	data := sampleTorrent(t, "show")

	id := upload(t, r, data)
	if len(id) != 40 {
		t.Errorf("id = %q", id)
	}

	w := do(r, http.MethodPost, "/api/torrents", bytes.NewReader(data))
	if w.Code != http.StatusOK {
		t.Errorf("duplicate upload: status %d", w.Code)
	}
}

func TestAddTorrentMultipart(t *testing.T) {
	r, _ := newAPIRouter(t, 1<<20)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "show.torrent")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(sampleTorrent(t, "show"))
	mw.Close()

	w := do(r, http.MethodPost, "/api/torrents", &body, "Content-Type", mw.FormDataContentType())
	if w.Code != http.StatusCreated {
		t.Errorf("status %d: %s", w.Code, w.Body.String())
	}
}

func TestAddTorrentRejects(t *testing.T) {
	r, _ := newAPIRouter(t, 256)

	w := do(r, http.MethodPost, "/api/torrents", strings.NewReader("d4:infoi3ee"))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d", w.Code)
	}
	var resp map[string]string
	decodeJSON(t, w, &resp)
	if resp["kind"] != "missing_info_dictionary" || resp["error"] == "" {
		t.Errorf("response = %v", resp)
	}

	w = do(r, http.MethodPost, "/api/torrents", bytes.NewReader(bytes.Repeat([]byte("x"), 1024)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized upload: status %d", w.Code)
	}
}

func TestGetTorrent(t *testing.T) {
	r, _ := newAPIRouter(t, 1<<20)
	id := upload(t, r, sampleTorrent(t, "show"))

	w := do(r, http.MethodGet, "/api/torrents/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var summary services.Summary
	decodeJSON(t, w, &summary)
	if summary.InfoHash != id || summary.Name != "show" || len(summary.Files) != 3 {
		t.Errorf("summary = %+v", summary)
	}

	w = do(r, http.MethodGet, "/api/torrents/"+id+"?format=cbor", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/cbor" {
		t.Fatalf("cbor: status %d, type %q", w.Code, w.Header().Get("Content-Type"))
	}
	var decoded services.Summary
	if err := cbor.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.InfoHash != id {
		t.Errorf("cbor info hash = %q", decoded.InfoHash)
	}

	if w := do(r, http.MethodGet, "/api/torrents/"+id+"?format=xml", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad format: status %d", w.Code)
	}
}

func TestErrorStatuses(t *testing.T) {
	r, _ := newAPIRouter(t, 1<<20)
	id := upload(t, r, sampleTorrent(t, "show"))
	missing := strings.Repeat("0", 40)

	tests := []struct {
		method, target string
		want           int
	}{
		{http.MethodGet, "/api/torrents/zzz", http.StatusBadRequest},
		{http.MethodGet, "/api/torrents/" + missing, http.StatusNotFound},
		{http.MethodGet, "/api/torrents/" + missing + "/files", http.StatusNotFound},
		{http.MethodGet, "/api/torrents/" + id + "/files/x/map", http.StatusBadRequest},
		{http.MethodGet, "/api/torrents/" + id + "/files/7/map", http.StatusBadRequest},
		{http.MethodGet, "/api/torrents/" + id + "/files/0/map?offset=20001", http.StatusBadRequest},
		{http.MethodGet, "/api/torrents/" + id + "/files/0/map?length=-1", http.StatusBadRequest},
		{http.MethodGet, "/api/torrents/" + id + "/pieces/2", http.StatusBadRequest},
		{http.MethodGet, "/api/torrents/" + id + "/pieces/one", http.StatusBadRequest},
		{http.MethodDelete, "/api/torrents/" + missing, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			if w := do(r, tt.method, tt.target, nil); w.Code != tt.want {
				t.Errorf("status %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestLayoutEndpoints(t *testing.T) {
	r, _ := newAPIRouter(t, 1<<20)
	id := upload(t, r, sampleTorrent(t, "show"))

	w := do(r, http.MethodGet, "/api/torrents/"+id+"/files", nil)
	var files []map[string]interface{}
	decodeJSON(t, w, &files)
	if len(files) != 3 || files[1]["file_path"] != "show/subs/en.srt" {
		t.Errorf("files = %v", files)
	}

	w = do(r, http.MethodGet, "/api/torrents/"+id+"/files/1/map?offset=10&length=5", nil)
	var fm services.FileMapping
	decodeJSON(t, w, &fm)
	if fm.Piece != 1 || fm.Start != 3626 || fm.Length != 5 {
		t.Errorf("file mapping = %+v", fm)
	}

	w = do(r, http.MethodGet, "/api/torrents/"+id+"/files/2/map", nil)
	decodeJSON(t, w, &fm)
	if fm.Length != 384 {
		t.Errorf("default length = %d, want 384", fm.Length)
	}

	w = do(r, http.MethodGet, "/api/torrents/"+id+"/pieces/1", nil)
	var pm services.PieceMapping
	decodeJSON(t, w, &pm)
	if pm.Size != 5000 || len(pm.Slices) != 3 {
		t.Errorf("piece mapping = %+v", pm)
	}

	w = do(r, http.MethodGet, "/api/torrents/"+id+"/trackers", nil)
	var tiers struct {
		Tiers [][]string `json:"tiers"`
	}
	decodeJSON(t, w, &tiers)
	if len(tiers.Tiers) != 1 || tiers.Tiers[0][0] != "http://tracker.example/announce" {
		t.Errorf("tiers = %v", tiers.Tiers)
	}
}

func TestDownloadTorrent(t *testing.T) {
	r, _ := newAPIRouter(t, 1<<20)
	data := sampleTorrent(t, "show")
	id := upload(t, r, data)

	w := do(r, http.MethodGet, "/api/torrents/"+id+"/torrent", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="show.torrent"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	m, err := torrentinfo.Parse(w.Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if m.InfoHash().HexString() != id {
		t.Errorf("exported info hash = %s", m.InfoHash().HexString())
	}

	w = do(r, http.MethodGet, "/api/torrents/"+id+"/torrent?original=true", nil)
	if !bytes.Equal(w.Body.Bytes(), data) {
		t.Error("original download differs from upload")
	}
}

func TestListRemoveAndStats(t *testing.T) {
	r, _ := newAPIRouter(t, 1<<20)
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, upload(t, r, sampleTorrent(t, fmt.Sprintf("show-%d", i))))
	}

	w := do(r, http.MethodGet, "/api/torrents?limit=2", nil)
	var list struct {
		Torrents []map[string]interface{} `json:"torrents"`
		Total    int64                    `json:"total"`
	}
	decodeJSON(t, w, &list)
	if list.Total != 3 || len(list.Torrents) != 2 {
		t.Errorf("list = %d of %d", len(list.Torrents), list.Total)
	}
	if _, leaked := list.Torrents[0]["raw"]; leaked {
		t.Error("raw bytes leaked into the listing")
	}

	if w := do(r, http.MethodDelete, "/api/torrents/"+ids[0], nil); w.Code != http.StatusOK {
		t.Errorf("delete: status %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/torrents/"+ids[1]+"/reindex", nil); w.Code != http.StatusOK {
		t.Errorf("reindex: status %d", w.Code)
	}

	w = do(r, http.MethodGet, "/api/stats", nil)
	var stats struct {
		Catalog struct {
			TotalTorrents int64 `json:"total_torrents"`
			TotalFiles    int64 `json:"total_files"`
		} `json:"catalog"`
		Database map[string]interface{} `json:"database"`
	}
	decodeJSON(t, w, &stats)
	if stats.Catalog.TotalTorrents != 2 || stats.Catalog.TotalFiles != 6 {
		t.Errorf("stats = %+v", stats.Catalog)
	}
	if stats.Database["torrents_count"] != float64(2) {
		t.Errorf("database stats = %v", stats.Database)
	}
}
