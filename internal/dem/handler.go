package dem

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// Pattern is the mux pattern ServeHTTP expects.
const Pattern = "GET /dem/{z}/{x}/{y}"

// ServeHTTP serves one tile from the pattern's path values. The y segment
// may carry an extension.
func (f *Fetcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	z, errZ := strconv.ParseUint(r.PathValue("z"), 10, 8)
	x, errX := strconv.ParseUint(r.PathValue("x"), 10, 32)
	ySeg, _, _ := strings.Cut(r.PathValue("y"), ".")
	y, errY := strconv.ParseUint(ySeg, 10, 32)
	if errZ != nil || errX != nil || errY != nil {
		http.Error(w, "bad tile coordinates", http.StatusBadRequest)
		return
	}

	t, err := f.get(r.Context(), uint8(z), uint32(x), uint32(y))
	switch {
	case errors.Is(err, ErrOutOfRange):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		f.logger.Warn("tile fetch failed", "err", err)
		http.Error(w, "upstream error", http.StatusBadGateway)
		return
	case t == nil:
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if t.contentType != "" {
		w.Header().Set("Content-Type", t.contentType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(t.data)))
	w.Write(t.data)
}
