package handlers

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"torrent-catalog/config"
	"torrent-catalog/models"
	"torrent-catalog/services"
)

const webdavPrefix = "/webdav"

// WebDAVHandler exposes the catalog as a read-only WebDAV tree:
// /webdav/<info hash>/<file path>. Files resolve to their layout record,
// since the catalog holds no content bytes.
type WebDAVHandler struct {
	catalog *services.CatalogService
	config  *config.Config
	log     *slog.Logger
}

func NewWebDAVHandler(catalog *services.CatalogService, cfg *config.Config, logger *slog.Logger) *WebDAVHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebDAVHandler{
		catalog: catalog,
		config:  cfg,
		log:     logger,
	}
}

func (h *WebDAVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("DAV", "1")
		w.Header().Set("Allow", "OPTIONS, GET, HEAD, PROPFIND")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		h.handleGet(w, r)
	case "PROPFIND":
		h.handlePropfind(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// davEntry is one resource of the virtual tree.
type davEntry struct {
	name    string
	href    string
	dir     bool
	size    int64
	mime    string
	modTime time.Time
	file    *models.File
}

// davTarget is a resolved request path.
type davTarget struct {
	self     davEntry
	children []davEntry
}

func splitDAVPath(p string) []string {
	p = strings.TrimPrefix(p, webdavPrefix)
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func davHref(segments []string, dir bool) string {
	u := url.URL{Path: webdavPrefix + "/" + strings.Join(segments, "/")}
	href := u.EscapedPath()
	if dir && !strings.HasSuffix(href, "/") {
		href += "/"
	}
	return href
}

func (h *WebDAVHandler) resolve(r *http.Request) (*davTarget, error) {
	segments := splitDAVPath(r.URL.Path)
	if len(segments) == 0 {
		return h.resolveRoot(r)
	}
	return h.resolveTorrent(r, segments[0], segments[1:])
}

func (h *WebDAVHandler) resolveRoot(r *http.Request) (*davTarget, error) {
	target := &davTarget{self: davEntry{name: "/", href: davHref(nil, true), dir: true}}

	const pageSize = 500
	for offset := 0; ; offset += pageSize {
		page, total, err := h.catalog.List(r.Context(), offset, pageSize)
		if err != nil {
			return nil, err
		}
		for _, t := range page {
			target.children = append(target.children, davEntry{
				name:    t.Name,
				href:    davHref([]string{t.ID}, true),
				dir:     true,
				size:    t.TotalSize,
				modTime: t.UpdatedAt,
			})
		}
		if len(page) == 0 || int64(offset+len(page)) >= total {
			break
		}
	}
	return target, nil
}

func (h *WebDAVHandler) resolveTorrent(r *http.Request, id string, rel []string) (*davTarget, error) {
	rec, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	files, err := h.catalog.Files(r.Context(), id)
	if err != nil {
		return nil, err
	}

	base := append([]string{rec.ID}, rel...)
	prefix := strings.Join(rel, "/")

	for i := range files {
		if len(rel) > 0 && files[i].FilePath == prefix {
			return &davTarget{self: fileEntry(base, &files[i], rec.UpdatedAt)}, nil
		}
	}

	name := rec.Name
	if len(rel) > 0 {
		name = rel[len(rel)-1]
	}
	target := &davTarget{self: davEntry{name: name, href: davHref(base, true), dir: true, modTime: rec.UpdatedAt}}

	dirs := make(map[string]int)
	seen := make(map[string]bool)
	for i := range files {
		rest := files[i].FilePath
		if prefix != "" {
			if !strings.HasPrefix(rest, prefix+"/") {
				continue
			}
			rest = rest[len(prefix)+1:]
		}

		if child, _, nested := strings.Cut(rest, "/"); nested {
			if idx, ok := dirs[child]; ok {
				target.children[idx].size += files[i].FileSize
				continue
			}
			dirs[child] = len(target.children)
			target.children = append(target.children, davEntry{
				name:    child,
				href:    davHref(append(base[:len(base):len(base)], child), true),
				dir:     true,
				size:    files[i].FileSize,
				modTime: rec.UpdatedAt,
			})
			continue
		}

		if seen[rest] {
			continue
		}
		seen[rest] = true
		target.children = append(target.children, fileEntry(append(base[:len(base):len(base)], rest), &files[i], rec.UpdatedAt))
	}

	if len(rel) > 0 && len(target.children) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", services.ErrNotFound, rec.ID, prefix)
	}
	return target, nil
}

func fileEntry(segments []string, f *models.File, modTime time.Time) davEntry {
	return davEntry{
		name:    f.FileName,
		href:    davHref(segments, false),
		size:    f.FileSize,
		mime:    f.MimeType,
		modTime: modTime,
		file:    f,
	}
}

func (h *WebDAVHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	target, err := h.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if target.self.dir {
		h.serveDirectoryListing(w, r, target)
		return
	}
	h.serveFileRecord(w, r, target.self)
}

// serveFileRecord answers GET and HEAD on a file with its layout record.
func (h *WebDAVHandler) serveFileRecord(w http.ResponseWriter, r *http.Request, entry davEntry) {
	f := entry.file
	etag := fmt.Sprintf(`"%s-%d-%d-%d"`, f.TorrentID, f.FileIndex, f.Offset, f.FileSize)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Last-Modified", entry.modTime.UTC().Format(http.TimeFormat))

	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	body, err := json.Marshal(f)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		w.Write(body)
	}
}

func (h *WebDAVHandler) serveDirectoryListing(w http.ResponseWriter, r *http.Request, target *davTarget) {
	var b strings.Builder
	title := html.EscapeString(target.self.name)

	b.WriteString(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>` + title + `</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        ul { list-style: none; padding: 0; }
        li { padding: 8px; border-bottom: 1px solid #eee; }
        a { text-decoration: none; color: #0366d6; }
        .size { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <h1>Index of ` + title + `</h1>
    <ul>
`)
	if target.self.href != davHref(nil, true) {
		b.WriteString(`        <li><a href="../">../</a></li>` + "\n")
	}
	for _, child := range target.children {
		name := child.name
		if child.dir {
			name += "/"
		}
		fmt.Fprintf(&b, `        <li><a href="%s">%s</a> <span class="size">(%s)</span></li>`+"\n",
			html.EscapeString(child.href), html.EscapeString(name), services.FormatFileSize(child.size))
	}
	b.WriteString(`    </ul>
</body>
</html>`)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		w.Write([]byte(b.String()))
	}
}

type multistatus struct {
	XMLName   xml.Name      `xml:"D:multistatus"`
	Namespace string        `xml:"xmlns:D,attr"`
	Responses []davResponse `xml:"D:response"`
}

type davResponse struct {
	Href     string      `xml:"D:href"`
	Propstat davPropstat `xml:"D:propstat"`
}

type davPropstat struct {
	Prop   davProp `xml:"D:prop"`
	Status string  `xml:"D:status"`
}

type davProp struct {
	DisplayName   string          `xml:"D:displayname"`
	ResourceType  davResourceType `xml:"D:resourcetype"`
	ContentLength *int64          `xml:"D:getcontentlength,omitempty"`
	ContentType   string          `xml:"D:getcontenttype,omitempty"`
	LastModified  string          `xml:"D:getlastmodified,omitempty"`
}

type davResourceType struct {
	Collection *struct{} `xml:"D:collection,omitempty"`
}

func propResponse(e davEntry) davResponse {
	prop := davProp{DisplayName: e.name}
	if e.dir {
		prop.ResourceType.Collection = &struct{}{}
	} else {
		size := e.size
		prop.ContentLength = &size
		prop.ContentType = e.mime
	}
	if !e.modTime.IsZero() {
		prop.LastModified = e.modTime.UTC().Format(http.TimeFormat)
	}
	return davResponse{
		Href: e.href,
		Propstat: davPropstat{
			Prop:   prop,
			Status: "HTTP/1.1 200 OK",
		},
	}
}

// handlePropfind supports Depth 0 and 1. Depth infinity is answered as 1.
func (h *WebDAVHandler) handlePropfind(w http.ResponseWriter, r *http.Request) {
	target, err := h.resolve(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	ms := multistatus{
		Namespace: "DAV:",
		Responses: []davResponse{propResponse(target.self)},
	}
	if r.Header.Get("Depth") != "0" {
		for _, child := range target.children {
			ms.Responses = append(ms.Responses, propResponse(child))
		}
	}

	body, err := xml.Marshal(ms)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("DAV", "1")
	w.WriteHeader(http.StatusMultiStatus)
	w.Write([]byte(xml.Header))
	w.Write(body)
}

func (h *WebDAVHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrInvalidID):
		http.Error(w, "Not found", http.StatusNotFound)
	default:
		h.log.Error("webdav request failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
