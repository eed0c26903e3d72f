package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dharsanguruparan/FolderDrop/internal/common"
	"github.com/dharsanguruparan/FolderDrop/internal/folders"
)

// maxFieldBytes bounds the non-file multipart fields.
const maxFieldBytes = 4 << 10

type issueRequest struct {
	Name    string `json:"name"`
	Purpose string `json:"purpose"`
}

type issueResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	MaxUses   int       `json:"maxUses"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	raw, tok, err := s.access.Issue(r.Context(), req.Name, req.Purpose, clientIP(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, issueResponse{Token: raw, ExpiresAt: tok.ExpiresAt, MaxUses: tok.MaxUses})
}

// handleUpload accepts a multipart upload into a folder, or a loose drop when
// the route has no folder.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+1<<20)
	mr, err := r.MultipartReader()
	if err != nil {
		s.respondError(w, r, fmt.Errorf("expecting multipart form: %w", common.ErrInvalidArgument))
		return
	}
	tmp, fields, err := s.readUpload(mr)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer tmp.remove()

	in := folders.Upload{
		Token:        requestToken(r),
		FolderID:     chi.URLParam(r, "folderID"),
		Name:         tmp.filename,
		Body:         tmp.f,
		Size:         tmp.size,
		ContentType:  tmp.contentType,
		Title:        fields["title"],
		UploaderName: fields["uploaderName"],
		Purpose:      fields["purpose"],
		IPAddress:    clientIP(r),
		UserAgent:    r.UserAgent(),
	}
	if v := fields["downloadLimit"]; v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.respondError(w, r, fmt.Errorf("downloadLimit %q: %w", v, common.ErrInvalidArgument))
			return
		}
		in.DownloadLimit = &limit
	}
	rec, err := s.folders.Upload(r.Context(), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

type tempUpload struct {
	f           *os.File
	size        int64
	contentType string
	filename    string
}

func (t *tempUpload) remove() {
	t.f.Close()
	os.Remove(t.f.Name())
}

// readUpload spools the "file" part to a temp file and collects the other
// form fields.
func (s *Server) readUpload(mr *multipart.Reader) (*tempUpload, map[string]string, error) {
	fields := make(map[string]string)
	var tmp *tempUpload
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if tmp != nil {
				tmp.remove()
			}
			return nil, nil, readError(err)
		}
		if part.FormName() == "file" && tmp == nil {
			tmp, err = s.spool(part)
			part.Close()
			if err != nil {
				return nil, nil, err
			}
			continue
		}
		value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
		part.Close()
		if err != nil {
			if tmp != nil {
				tmp.remove()
			}
			return nil, nil, readError(err)
		}
		fields[part.FormName()] = strings.TrimSpace(string(value))
	}
	if tmp == nil {
		return nil, nil, fmt.Errorf("missing file part: %w", common.ErrInvalidArgument)
	}
	return tmp, fields, nil
}

func (s *Server) spool(part *multipart.Part) (*tempUpload, error) {
	f, err := os.CreateTemp("", "folderdrop-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmp := &tempUpload{f: f, filename: part.FileName()}
	sniff := make([]byte, 0, 512)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			tmp.size += int64(n)
			if tmp.size > s.cfg.MaxFileSize {
				tmp.remove()
				return nil, common.ErrTooLarge
			}
			if room := cap(sniff) - len(sniff); room > 0 {
				sniff = append(sniff, buf[:min(n, room)]...)
			}
			if _, err := f.Write(buf[:n]); err != nil {
				tmp.remove()
				return nil, fmt.Errorf("write temp file: %w", err)
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			tmp.remove()
			return nil, readError(readErr)
		}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		tmp.remove()
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	tmp.contentType = part.Header.Get("Content-Type")
	if tmp.contentType == "" || tmp.contentType == "application/octet-stream" {
		tmp.contentType = http.DetectContentType(sniff)
	}
	return tmp, nil
}

func readError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return common.ErrTooLarge
	}
	return fmt.Errorf("read upload: %v: %w", err, common.ErrInvalidArgument)
}

type ticketRequest struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func (s *Server) handleRequestUpload(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	ticket, err := s.folders.RequestUpload(r.Context(), requestToken(r), chi.URLParam(r, "folderID"), req.Name, req.Size)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, ticket)
}

type completeRequest struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ContentType  string `json:"contentType"`
	Title        string `json:"title"`
	UploaderName string `json:"uploaderName"`
	Purpose      string `json:"purpose"`
}

func (s *Server) handleCompleteUpload(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	rec, err := s.folders.CompleteUpload(r.Context(), folders.Upload{
		Token:        requestToken(r),
		FolderID:     chi.URLParam(r, "folderID"),
		Name:         req.Name,
		Size:         req.Size,
		ContentType:  req.ContentType,
		Title:        req.Title,
		UploaderName: req.UploaderName,
		Purpose:      req.Purpose,
		IPAddress:    clientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Info("direct upload recorded", slog.String("file_id", rec.ID), slog.String("folder_id", rec.FolderID))
	respondJSON(w, http.StatusCreated, rec)
}
