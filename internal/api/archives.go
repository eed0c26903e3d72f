package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dharsanguruparan/FolderDrop/internal/objectstore"
)

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	res, err := s.archives.GetOrBuild(r.Context(), chi.URLParam(r, "folderID"), requestToken(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleLocalArchive serves an archive that could not be written to the cache.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	link, err := s.folders.Download(r.Context(), requestToken(r), chi.URLParam(r, "fileID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, link)
}

func (s *Server) handleLocalArchive(w http.ResponseWriter, r *http.Request) {
	folderID, data, err := s.local.Open(chi.URLParam(r, "id"), r.URL.Query())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", objectstore.AttachmentDisposition(folderID+".zip"))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("write local archive", slog.String("folder_id", folderID), slog.String("error", err.Error()))
	}
}

// handleWarm prebuilds a folder archive, on the queue when one is configured.
func (s *Server) handleWarm(w http.ResponseWriter, r *http.Request) {
	folderID := chi.URLParam(r, "folderID")
	if s.warm != nil {
		if err := s.warm.EnqueueWarm(r.Context(), folderID); err != nil {
			s.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	res, err := s.archives.Warm(r.Context(), folderID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
