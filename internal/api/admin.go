package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dharsanguruparan/FolderDrop/internal/access"
	"github.com/dharsanguruparan/FolderDrop/internal/model"
)

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	list, err := s.folders.List(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

type createFolderRequest struct {
	Name     string `json:"name"`
	Auto     bool   `json:"auto"`
	Password string `json:"password"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	f, err := s.folders.Create(r.Context(), req.Name, req.Auto, req.Password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, f)
}

func (s *Server) handleFolderFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.folders.Files(r.Context(), chi.URLParam(r, "folderID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, files)
}

type pauseRequest struct {
	Kind   model.PauseKind `json:"kind"`
	Paused bool            `json:"paused"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.folders.SetPause(r.Context(), chi.URLParam(r, "folderID"), req.Kind, req.Paused); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := s.folders.DeleteFolder(r.Context(), chi.URLParam(r, "folderID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.folders.DeleteFile(r.Context(), chi.URLParam(r, "fileID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createTokenRequest struct {
	Token            string           `json:"token"`
	Name             string           `json:"name"`
	ExpiresInMinutes int              `json:"expiresInMinutes"`
	MaxUses          int              `json:"maxUses"`
	Permission       model.Permission `json:"permission"`
	AllowedFolders   []string         `json:"allowedFolders"`
	MaxUploadSize    *int64           `json:"maxUploadSize"`
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	tok, err := s.access.CreateCustom(r.Context(), access.CustomToken{
		Token:          req.Token,
		Name:           req.Name,
		ExpiresIn:      time.Duration(req.ExpiresInMinutes) * time.Minute,
		MaxUses:        req.MaxUses,
		Permission:     req.Permission,
		AllowedFolders: req.AllowedFolders,
		MaxUploadSize:  req.MaxUploadSize,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, tok)
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	list, err := s.access.ListTokens(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

type updateTokenRequest struct {
	Uses      *int       `json:"uses"`
	MaxUses   *int       `json:"maxUses"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (s *Server) handleUpdateToken(w http.ResponseWriter, r *http.Request) {
	var req updateTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	tok, err := s.access.UpdateToken(r.Context(), chi.URLParam(r, "tokenID"), access.TokenUpdate{
		Uses:      req.Uses,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tok)
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	if err := s.access.DeleteToken(r.Context(), chi.URLParam(r, "tokenID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAssignFolder(w http.ResponseWriter, r *http.Request) {
	tok, err := s.access.AssignFolder(r.Context(), chi.URLParam(r, "tokenID"), chi.URLParam(r, "folderID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tok)
}

func (s *Server) handleRemoveFolder(w http.ResponseWriter, r *http.Request) {
	tok, err := s.access.RemoveFolder(r.Context(), chi.URLParam(r, "tokenID"), chi.URLParam(r, "folderID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tok)
}

func (s *Server) handlePurgeTokens(w http.ResponseWriter, r *http.Request) {
	n, err := s.access.PurgeExpired(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"deleted": n})
}
