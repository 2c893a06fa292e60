package handlers

import (
	"net/http"

	"github.com/lucidchat/ctxengine/internal/multicache"
)

// CacheHandler exposes the multi-tier cache's (C8) administrative
// operations over HTTP.
type CacheHandler struct {
	cache *multicache.Cache
}

func NewCacheHandler(c *multicache.Cache) *CacheHandler {
	return &CacheHandler{cache: c}
}

func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.GetStats())
}

func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *CacheHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	report := h.cache.Optimize()
	writeJSON(w, http.StatusOK, report)
}

func (h *CacheHandler) Warm(w http.ResponseWriter, r *http.Request) {
	// Cache warming strategies require runtime-supplied loader functions
	// that cannot be expressed in a JSON request body, so this endpoint
	// always answers 501 Not Implemented; strategies are registered
	// in-process through the cache's Go API.
	writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "warm strategies must be registered in-process"})
}
