package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	dserrors "github.com/systmms/userprofile/internal/errors"
	"github.com/systmms/userprofile/internal/metrics"
	"github.com/systmms/userprofile/internal/profiles"
)

// compensationTimeout bounds the rollback delete, which runs even when the
// request context is already cancelled.
const compensationTimeout = 10 * time.Second

type pageData struct {
	Title string
}

type userPageData struct {
	Title    string
	UserID   string
	Name     string
	Age      string
	Phone    string
	Address  string
	PhotoURL string
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	result, err := s.services.CheckDatabase(r.Context())
	if err != nil || !result.Healthy {
		if err != nil {
			s.logger.Warn("Readiness check failed: %v", err)
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "unavailable",
			"message": "database not ready",
		})
		return
	}
	status := "ready"
	if result.Degraded {
		status = "degraded"
		s.logger.Warn("Database degraded: %s", result.Message)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   status,
		"message":  result.Message,
		"metadata": result.Metadata,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "index.html", pageData{Title: "User Profiles"})
}

func (s *Server) handleNewUserForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "new.html", pageData{Title: "New profile"})
}

func (s *Server) handleUserPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.lookupProfile(r)
	if err != nil {
		s.failText(w, r, err)
		return
	}

	data := userPageData{
		Title:  p.Name,
		UserID: p.UserID,
		Name:   p.Name,
	}
	if p.Age != nil {
		data.Age = strconv.Itoa(*p.Age)
	}
	if p.Phone != nil {
		data.Phone = *p.Phone
	}
	if p.Address != nil {
		data.Address = *p.Address
	}
	if p.HasPhoto() {
		data.PhotoURL = "/users/" + url.PathEscape(p.UserID) + "/photo"
	}
	s.render(w, r, "user.html", data)
}

func (s *Server) handleUserPhoto(w http.ResponseWriter, r *http.Request) {
	p, err := s.lookupProfile(r)
	if err == nil && !p.HasPhoto() {
		err = dserrors.NotFoundError{Resource: "photo", ID: p.UserID}
	}
	if err != nil {
		s.failText(w, r, err)
		return
	}

	photos, err := s.services.Photos(r.Context())
	if err != nil {
		s.failText(w, r, err)
		return
	}
	d, err := photos.Download(r.Context(), *p.PhotoBlobName)
	if err != nil {
		s.failText(w, r, err)
		return
	}
	defer d.Body.Close()

	w.Header().Set("Content-Type", d.ContentType)
	if d.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(d.ContentLength, 10))
	}
	if _, err := io.Copy(w, d.Body); err != nil {
		// Headers already sent.
		s.logger.Warn("Streaming photo %s aborted: %v", *p.PhotoBlobName, err)
	}
}

func (s *Server) handleUserPhotoURL(w http.ResponseWriter, r *http.Request) {
	p, err := s.lookupProfile(r)
	if err == nil && !p.HasPhoto() {
		err = dserrors.NotFoundError{Resource: "photo", ID: p.UserID}
	}
	if err != nil {
		s.failJSON(w, r, err)
		return
	}

	photos, err := s.services.Photos(r.Context())
	if err != nil {
		s.failJSON(w, r, err)
		return
	}
	u, err := photos.GenerateTemporaryReadURL(r.Context(), "", *p.PhotoBlobName,
		s.services.Settings().HTTP.PhotoURLExpiryMinutes)
	if err != nil {
		s.failJSON(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"url":        u.URL,
		"expires_at": u.ExpiresAt,
	})
}

func (s *Server) handleUserPhotos(w http.ResponseWriter, r *http.Request) {
	p, err := s.lookupProfile(r)
	if err != nil {
		s.failJSON(w, r, err)
		return
	}

	photos, err := s.services.Photos(r.Context())
	if err != nil {
		s.failJSON(w, r, err)
		return
	}
	names, err := photos.ListBlobNames(r.Context(), p.UserID+"/")
	if err != nil {
		s.failJSON(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": p.UserID,
		"photos":  names,
	})
}

// handleCreateUser validates the form, uploads the optional photo, then
// inserts the profile. If the insert fails after an upload the blob is
// deleted again; a failed delete is logged and counted, never returned.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.services.Settings().HTTP.MaxUploadBytes)

	req, err := parseCreateProfile(r, s.validate)
	if err != nil {
		var bad badRequest
		if errors.As(err, &bad) {
			writeJSON(w, bad.status, map[string]string{"error": bad.msg})
			return
		}
		s.failJSON(w, r, err)
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	ctx := r.Context()
	store, err := s.services.Profiles(ctx)
	if err != nil {
		s.failJSON(w, r, err)
		return
	}

	exists, err := store.UserExists(ctx, req.UserID)
	if err != nil {
		s.failJSON(w, r, err)
		return
	}
	if exists {
		s.failJSON(w, r, dserrors.ConflictError{Resource: "user", ID: req.UserID})
		return
	}

	profile := req.profile()

	var uploaded string
	if req.Photo != nil {
		photos, err := s.services.Photos(ctx)
		if err != nil {
			s.failJSON(w, r, err)
			return
		}
		name := photoBlobName(req.UserID, req.Photo.Filename)
		if err := photos.Upload(ctx, name, req.Photo.Data, req.Photo.ContentType); err != nil {
			s.failJSON(w, r, err)
			return
		}
		uploaded = name
		profile.PhotoBlobName = &uploaded
	}

	if err := store.InsertUserProfile(ctx, profile); err != nil {
		if uploaded != "" {
			s.compensate(ctx, uploaded)
		}
		s.failJSON(w, r, err)
		return
	}

	s.logger.Info("Created profile %s", req.UserID)
	writeJSON(w, http.StatusCreated, map[string]string{
		"status":  "created",
		"user_id": req.UserID,
	})
}

// compensate deletes a blob whose profile row was never written.
func (s *Server) compensate(ctx context.Context, blobName string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	photos, err := s.services.Photos(ctx)
	if err == nil {
		err = photos.Delete(ctx, blobName)
	}
	if err != nil {
		metrics.RecordCompensation(metrics.CompensationFailed)
		s.logger.Error("Orphaned blob %s: rollback delete failed: %v", blobName, err)
		return
	}
	metrics.RecordCompensation(metrics.CompensationDeleted)
	s.logger.Warn("Rolled back blob %s after failed insert", blobName)
}

// lookupProfile loads the profile named in the path, mapping absence to a
// NotFoundError.
func (s *Server) lookupProfile(r *http.Request) (*profiles.UserProfile, error) {
	userID := mux.Vars(r)["user_id"]

	store, err := s.services.Profiles(r.Context())
	if err != nil {
		return nil, err
	}
	p, err := store.FetchUserProfile(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, dserrors.NotFoundError{Resource: "user", ID: userID}
	}
	return p, nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data interface{}) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.failText(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
