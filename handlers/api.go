package handlers

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"torrent-catalog/database"
	"torrent-catalog/services"
	"torrent-catalog/torrentinfo"
)

type APIHandler struct {
	catalog       *services.CatalogService
	maxUploadSize int64
}

func NewAPIHandler(catalog *services.CatalogService, maxUploadSize int64) *APIHandler {
	return &APIHandler{
		catalog:       catalog,
		maxUploadSize: maxUploadSize,
	}
}

// AddTorrent accepts a .torrent either as the raw request body or as the
// multipart field "file".
func (h *APIHandler) AddTorrent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)

	data, err := h.readUpload(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "torrent file is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, created, err := h.catalog.Ingest(c.Request.Context(), data)
	if err != nil {
		respondError(c, err)
		return
	}

	if created {
		c.JSON(http.StatusCreated, rec)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *APIHandler) readUpload(c *gin.Context) ([]byte, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		return io.ReadAll(c.Request.Body)
	}

	header, err := c.FormFile("file")
	if err != nil {
		return nil, err
	}
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (h *APIHandler) ListTorrents(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	torrents, total, err := h.catalog.List(c.Request.Context(), offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"torrents": torrents,
		"total":    total,
	})
}

// GetTorrent returns the torrent summary as JSON, or as CBOR with
// ?format=cbor.
func (h *APIHandler) GetTorrent(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.catalog.Get(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	summary, err := h.catalog.Summary(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "json":
		c.JSON(http.StatusOK, summary)
	case "cbor":
		data, err := summary.MarshalCBOR()
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/cbor", data)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or cbor"})
	}
}

func (h *APIHandler) ListFiles(c *gin.Context) {
	files, err := h.catalog.Files(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

func (h *APIHandler) ListTrackers(c *gin.Context) {
	tiers, err := h.catalog.Trackers(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

// MapFile answers which piece holds ?offset= of a file. ?length= defaults
// to the rest of the file.
func (h *APIHandler) MapFile(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file index"})
		return
	}
	offset, err := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}
	length := int64(math.MaxInt64)
	if raw := c.Query("length"); raw != "" {
		length, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || length < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid length"})
			return
		}
	}

	mapping, err := h.catalog.MapFile(c.Request.Context(), c.Param("id"), index, offset, length)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapping)
}

func (h *APIHandler) MapPiece(c *gin.Context) {
	piece, err := strconv.Atoi(c.Param("piece"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid piece index"})
		return
	}

	mapping, err := h.catalog.MapPiece(c.Request.Context(), c.Param("id"), piece)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapping)
}

// DownloadTorrent serves the re-encoded torrent, or the bytes exactly as
// uploaded with ?original=true.
func (h *APIHandler) DownloadTorrent(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.catalog.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	var data []byte
	if original, _ := strconv.ParseBool(c.DefaultQuery("original", "false")); original {
		data, err = h.catalog.Raw(c.Request.Context(), id)
	} else {
		data, err = h.catalog.Export(c.Request.Context(), id)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(rec.Name, `"`, "_")+`.torrent"`)
	c.Data(http.StatusOK, "application/x-bittorrent", data)
}

func (h *APIHandler) ReindexTorrent(c *gin.Context) {
	result, err := h.catalog.Reindex(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *APIHandler) RemoveTorrent(c *gin.Context) {
	if err := h.catalog.Remove(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Torrent removed successfully"})
}

func (h *APIHandler) GetStats(c *gin.Context) {
	stats, err := h.catalog.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"catalog":  stats,
		"database": database.GetStats(),
	})
}

// respondError maps service and validation errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	var terr *torrentinfo.Error
	switch {
	case errors.As(err, &terr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": terr.Error(),
			"kind":  terr.Kind.String(),
		})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidID), errors.Is(err, torrentinfo.ErrOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
