package server

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kamusis/sloka-search/internal/corpus"
	"github.com/kamusis/sloka-search/internal/search"
)

type handler struct {
	engine      *search.Engine
	defaultTopK int
	audioDir    string
	log         *slog.Logger
}

// verseJSON is the wire shape of one result.
type verseJSON struct {
	Identifier      string            `json:"identifier"`
	Location        string            `json:"location"`
	Mandala         int               `json:"mandala"`
	Hymn            int               `json:"hymn_number"`
	Sloka           int               `json:"sloka_number"`
	Sanskrit        string            `json:"sanskrit,omitempty"`
	Transliteration string            `json:"transliteration,omitempty"`
	Translation     string            `json:"translation,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Score           *float64          `json:"similarity_score,omitempty"`
}

func toVerseJSON(r search.Result, withScore bool) verseJSON {
	v := r.Verse
	out := verseJSON{
		Identifier:      v.ID,
		Location:        v.Location(),
		Mandala:         v.Mandala,
		Hymn:            v.Hymn,
		Sloka:           v.Stanza,
		Sanskrit:        v.SourceText,
		Transliteration: v.Transliteration,
		Translation:     v.TranslatedText,
		Metadata:        v.Metadata,
	}
	if withScore {
		s := r.Score
		out.Score = &s
	}
	return out
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k"`
}

func (h *handler) home(c *gin.Context) {
	c.String(http.StatusOK, "Welcome to the Veda Explorer API")
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status())
}

func (h *handler) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body", "success": false})
		return
	}
	topK := h.defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	start := time.Now()
	res, err := h.engine.Search(c.Request.Context(), req.Query, topK)
	resp := search.NewResponse(res, err)
	h.log.Info("search",
		slog.String("request_id", c.GetString("request_id")),
		slog.String("query", req.Query),
		slog.Int("top_k", topK),
		slog.Int("results", resp.TotalResults),
		slog.Bool("success", resp.Success),
		slog.Duration("took", time.Since(start)))
	if err != nil {
		h.fail(c, err, resp)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"query":         req.Query,
		"results":       results(resp.Results, true),
		"total_results": resp.TotalResults,
		"success":       true,
	})
}

func (h *handler) random(c *gin.Context) {
	n := 10
	if raw := c.Query("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be an integer", "success": false})
			return
		}
		n = v
	}
	res, err := h.engine.RandomSample(c.Request.Context(), n)
	resp := search.NewResponse(res, err)
	if err != nil {
		h.fail(c, err, resp)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results":       results(resp.Results, false),
		"total_results": resp.TotalResults,
		"success":       true,
	})
}

func (h *handler) partition(c *gin.Context) {
	m, err := strconv.Atoi(c.Param("mandala"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Mandala not found in index"})
		return
	}
	hymns, err := h.engine.Partition(c.Request.Context(), m)
	if err != nil {
		h.fail(c, err, search.NewResponse(nil, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mandala":     m,
		"total_hymns": len(hymns),
		"hymns":       hymns,
	})
}

// reload rebuilds the engine from the dataset on disk, leaving a degraded state.
func (h *handler) reload(c *gin.Context) {
	start := time.Now()
	err := h.engine.Reload(c.Request.Context())
	st := h.engine.Status()
	h.log.Info("reload",
		slog.String("request_id", c.GetString("request_id")),
		slog.String("state", st.State.String()),
		slog.Int("indexed", st.Indexed),
		slog.Duration("took", time.Since(start)))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error(), "status": st})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": st})
}

// stanzaRef parses the mandala/hymn/stanza path parameters.
func stanzaRef(c *gin.Context) ([3]int, bool) {
	var ref [3]int
	for i, name := range []string{"mandala", "hymn", "stanza"} {
		v, err := strconv.Atoi(c.Param(name))
		if err != nil || v < 1 {
			return ref, false
		}
		ref[i] = v
	}
	return ref, true
}

func (h *handler) audio(c *gin.Context) {
	ref, ok := stanzaRef(c)
	if !ok || h.audioDir == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Audio file not found"})
		return
	}
	path := filepath.Join(h.audioDir, strconv.Itoa(ref[0]),
		"Hymn_"+strconv.Itoa(ref[1]), "Stanza_"+strconv.Itoa(ref[2])+".mp3")
	if fi, err := os.Stat(path); err != nil || fi.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Audio file not found"})
		return
	}
	c.Header("Content-Type", "audio/mpeg")
	c.File(path)
}

func (h *handler) verse(c *gin.Context) {
	ref, ok := stanzaRef(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stanza not found"})
		return
	}
	v, err := h.engine.Verse(c.Request.Context(), ref[0], ref[1], ref[2])
	if err != nil {
		h.fail(c, err, search.NewResponse(nil, err))
		return
	}
	c.JSON(http.StatusOK, stanzaJSON(v))
}

// stanzaJSON renders a verse in its dataset shape.
func stanzaJSON(v *corpus.VerseRecord) gin.H {
	out := gin.H{
		"stanza_number": v.Stanza,
		"sanskrit":      v.SourceText,
		"translation":   v.TranslatedText,
	}
	if v.Transliteration != "" {
		out["transliteration"] = v.Transliteration
	}
	for k, val := range v.Metadata {
		out[k] = val
	}
	return out
}

func results(rs []search.Result, withScore bool) []verseJSON {
	out := make([]verseJSON, len(rs))
	for i, r := range rs {
		out[i] = toVerseJSON(r, withScore)
	}
	return out
}

// fail maps engine errors to HTTP statuses.
func (h *handler) fail(c *gin.Context, err error, resp search.Response) {
	_ = c.Error(err)
	var ve *search.ValidationError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.Is(err, search.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, search.ErrNotReady):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"error":         resp.Error,
		"results":       []verseJSON{},
		"total_results": 0,
		"success":       false,
	})
}
