package app

import (
	"net/http"
	"strings"
)

// respond writes payload with status, or the mapped error.
func (s *HTTPServer) respond(w http.ResponseWriter, status int, payload map[string]any, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, status, payload)
}

func (s *HTTPServer) handleCheckSlug(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.CheckSlug(r.Context(), r.URL.Query().Get("slug"))
	s.respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handlePublicPage(w http.ResponseWriter, r *http.Request, slug string) {
	payload, err := s.service.PublicPage(r.Context(), slug)
	s.respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, ok := queryInt(w, query.Get("limit"), "limit", 20)
	if !ok {
		return
	}
	offset, ok := queryInt(w, query.Get("offset"), "offset", 0)
	if !ok {
		return
	}
	payload, err := s.service.Search(r.Context(),
		strings.TrimSpace(query.Get("q")), strings.TrimSpace(query.Get("theme")), limit, offset)
	s.respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleGetProfile(w http.ResponseWriter, r *http.Request, session Session) {
	payload, err := s.service.GetProfile(r.Context(), session.UserID)
	s.respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleCreateProfile(w http.ResponseWriter, r *http.Request, session Session) {
	var body ProfileInput
	if !decodeOrReject(w, r, &body) {
		return
	}
	payload, err := s.service.CreateProfile(r.Context(), session.UserID, body)
	s.respond(w, http.StatusCreated, payload, err)
}

func (s *HTTPServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request, session Session) {
	var body ProfileInput
	if !decodeOrReject(w, r, &body) {
		return
	}
	payload, err := s.service.UpdateProfile(r.Context(), session.UserID, body)
	s.respond(w, http.StatusOK, payload, err)
}

// handleUploadAvatar takes the raw image as the request body.
func (s *HTTPServer) handleUploadAvatar(w http.ResponseWriter, r *http.Request, session Session) {
	defer r.Body.Close()
	payload, err := s.service.UploadAvatar(r.Context(), session.UserID, r.Body)
	s.respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleCreateItem(w http.ResponseWriter, r *http.Request, session Session) {
	var body ItemInput
	if !decodeOrReject(w, r, &body) {
		return
	}
	payload, err := s.service.CreateItem(r.Context(), session.UserID, body)
	s.respond(w, http.StatusCreated, payload, err)
}

func (s *HTTPServer) handleReorderItems(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Items []PlacementInput `json:"items"`
	}
	if !decodeOrReject(w, r, &body) {
		return
	}
	payload, err := s.service.ReorderItems(r.Context(), session.UserID, body.Items)
	s.respond(w, http.StatusOK, payload, err)
}

// handleDeleteItem answers {removed:false} for ids the caller does not own.
func (s *HTTPServer) handleDeleteItem(w http.ResponseWriter, r *http.Request, session Session, itemID string) {
	payload, err := s.service.DeleteItem(r.Context(), session.UserID, itemID)
	s.respond(w, http.StatusOK, payload, err)
}
