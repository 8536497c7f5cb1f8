package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/voyagen/playlistvault/internal/models"
	"github.com/voyagen/playlistvault/internal/service"
	"github.com/voyagen/playlistvault/internal/store"
)

// --- playlist handlers ---

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.lib.ListPlaylists(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

type addPlaylistRequest struct {
	Name string              `json:"name"`
	URL  string              `json:"url"`
	Type models.PlaylistType `json:"type"`
}

func (s *Server) handleAddPlaylist(w http.ResponseWriter, r *http.Request) {
	var body addPlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeStatus(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	req := service.Request{ID: uuid.New(), Name: body.Name, URL: body.URL, Type: body.Type}
	if err := s.importer.Validate(req); err != nil {
		s.writeErr(w, err)
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		if s.board != nil {
			req.Observer = s.board.Track(req.ID, req.Name)
		}
		id, err := s.importer.AddPlaylist(r.Context(), req)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		p, err := s.lib.GetPlaylist(r.Context(), id)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
		return
	}

	id, err := s.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		s.writeStatus(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"playlist_id": id,
		"status_url":  "/api/imports/status",
	})
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	p, err := s.lib.GetPlaylist(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.lib.DeletePlaylist(r.Context(), id); err != nil {
		s.writeErr(w, err)
		return
	}
	writeNoContent(w)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	groups, err := s.lib.FetchGroups(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// --- channel handlers ---

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	query := service.ChannelQuery{
		PlaylistID: id,
		Group:      q.Get("group"),
		Search:     q.Get("search"),
		Sort:       store.SortField(q.Get("sort")),
	}
	if v := q.Get("favorite"); v != "" {
		fav, err := strconv.ParseBool(v)
		if err != nil {
			s.writeStatus(w, http.StatusBadRequest, fmt.Errorf("invalid favorite: %s (use true or false)", v))
			return
		}
		query.FavoritesOnly = fav
	}
	limit, offset, err := pagination(r)
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, err)
		return
	}
	query.Limit, query.Offset = limit, offset

	page, err := s.lib.ListChannels(r.Context(), query)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writePage(w, page, limit, offset)
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, err)
		return
	}
	page, err := s.lib.Favorites(r.Context(), limit, offset)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writePage(w, page, limit, offset)
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	ch, err := s.lib.GetChannel(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	fav, err := s.lib.ToggleFavorite(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel_id": id,
		"favorite":   fav,
	})
}

// --- helpers ---

const (
	defaultLimit = 50
	maxLimit     = 200
)

// pagination reads limit and offset, applying the default and maximum page size.
func pagination(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("invalid limit: %s", v)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset: %s", v)
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, offset, nil
}

func writePage(w http.ResponseWriter, page *service.ChannelPage, limit, offset int) {
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": page.Channels,
		"total":    page.Total,
		"limit":    limit,
		"offset":   offset,
	})
}

// pathID parses the {id} path parameter, writing a 400 when it is not a UUID.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	v := r.PathValue("id")
	id, err := uuid.Parse(v)
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, fmt.Errorf("invalid id: %s", v))
		return uuid.Nil, false
	}
	return id, true
}

// statusFor maps service and store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPlaylistBusy):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidSource), errors.Is(err, service.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrFetch):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrDecoding):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrCancelled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
