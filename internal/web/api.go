package web

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"poemhub/internal/core"
	"poemhub/internal/export"
	"poemhub/pkg/domain"
)

func (s *Server) handleListPoems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	dynasty := strings.TrimSpace(r.URL.Query().Get("dynasty"))
	var (
		poems []domain.Poem
		err   error
	)
	switch {
	case q != "":
		poems, err = s.backend.SearchPoems(ctx, q)
	case dynasty != "":
		poems, err = s.backend.PoemsByDynasty(ctx, dynasty)
	default:
		poems, err = s.backend.ListPoems(ctx)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if q != "" && dynasty != "" {
		filtered := poems[:0]
		for _, p := range poems {
			if p.Dynasty == dynasty {
				filtered = append(filtered, p)
			}
		}
		poems = filtered
	}
	respondJSON(w, http.StatusOK, poems)
}

func (s *Server) handleCreatePoem(w http.ResponseWriter, r *http.Request) {
	var draft core.PoemDraft
	if err := decodeBody(r, &draft); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(draft.Title) == "" {
		respondError(w, http.StatusBadRequest, "title required")
		return
	}
	poem, err := s.backend.AddPoem(r.Context(), draft)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, poem)
}

func (s *Server) handleGetPoem(w http.ResponseWriter, r *http.Request) {
	poem, err := s.backend.GetPoem(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, poem)
}

func (s *Server) handleUpdatePoem(w http.ResponseWriter, r *http.Request) {
	var draft core.PoemDraft
	if err := decodeBody(r, &draft); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	poem, err := s.backend.UpdatePoem(r.Context(), mux.Vars(r)["id"], draft)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, poem)
}

func (s *Server) handleDeletePoem(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeletePoem(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := s.backend.ListAuthors(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, authors)
}

func (s *Server) handleCreateAuthor(w http.ResponseWriter, r *http.Request) {
	var changes domain.AuthorChanges
	if err := decodeBody(r, &changes); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(changes.Name) == "" {
		respondError(w, http.StatusBadRequest, "name required")
		return
	}
	author, err := s.backend.AddAuthor(r.Context(), changes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, author)
}

func (s *Server) handleGetAuthor(w http.ResponseWriter, r *http.Request) {
	author, err := s.backend.GetAuthor(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, author)
}

func (s *Server) handleUpdateAuthor(w http.ResponseWriter, r *http.Request) {
	var changes domain.AuthorChanges
	if err := decodeBody(r, &changes); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	author, err := s.backend.UpdateAuthor(r.Context(), mux.Vars(r)["id"], changes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, author)
}

func (s *Server) handleDeleteAuthor(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteAuthor(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.backend.ListCategories(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var changes domain.CategoryChanges
	if err := decodeBody(r, &changes); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(changes.Name) == "" {
		respondError(w, http.StatusBadRequest, "name required")
		return
	}
	category, err := s.backend.AddCategory(r.Context(), changes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, category)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := s.backend.GetCategory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, category)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var changes domain.CategoryChanges
	if err := decodeBody(r, &changes); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	category, err := s.backend.UpdateCategory(r.Context(), mux.Vars(r)["id"], changes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, category)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteCategory(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

type chatRequest struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message required")
		return
	}
	reply, err := s.chat.SendMessage(r.Context(), req.Message, req.Context)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) handleChatHealth(w http.ResponseWriter, r *http.Request) {
	ok := s.chat.TestConnection(r.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]bool{"ok": ok})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var formats []export.Format
	for _, raw := range r.URL.Query()["format"] {
		format, err := export.ParseFormat(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		formats = append(formats, format)
	}
	artifacts, err := s.exporter.Export(r.Context(), formats...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, artifacts)
}
