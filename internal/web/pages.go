package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"poemhub/internal/core"
	"poemhub/internal/state"
	"poemhub/pkg/domain"
)

// SiteName is appended to every page title.
const SiteName = "诗词管理系统"

//go:embed templates/*.html
var templateFS embed.FS

type pageSpec struct {
	Path  string
	Name  string
	Title string
	file  string
	load  func(s *Server, r *http.Request) (any, error)
}

var pageTable = []pageSpec{
	{Path: "/", Name: "home", Title: "首页", file: "home.html", load: (*Server).homeData},
	{Path: "/poems", Name: "poems", Title: "诗词列表", file: "poems.html", load: (*Server).poemsData},
	{Path: "/poems/{id}", Name: "poem-detail", Title: "诗词详情", file: "poem_detail.html", load: (*Server).poemDetailData},
	{Path: "/authors", Name: "authors", Title: "作者列表", file: "authors.html", load: (*Server).authorsData},
	{Path: "/author-poems/{id}", Name: "author-poems", Title: "作者作品", file: "author_poems.html", load: (*Server).authorPoemsData},
	{Path: "/categories", Name: "categories", Title: "分类列表", file: "categories.html", load: (*Server).categoriesData},
	{Path: "/category-poems/{id}", Name: "category-poems", Title: "分类作品", file: "category_poems.html", load: (*Server).categoryPoemsData},
	{Path: "/about", Name: "about", Title: "关于", file: "about.html"},
}

// DocumentTitle formats the title set on every navigation.
func DocumentTitle(pageTitle string) string {
	return pageTitle + " - " + SiteName
}

type pageSet struct {
	byFile   map[string]*template.Template
	notFound *template.Template
}

var templateFuncs = template.FuncMap{
	"join":  strings.Join,
	"lines": func(s string) []string { return strings.Split(s, "\n") },
}

func loadPages() (*pageSet, error) {
	set := &pageSet{byFile: map[string]*template.Template{}}
	files := []string{"not_found.html"}
	for _, p := range pageTable {
		files = append(files, p.file)
	}
	for _, file := range files {
		tmpl, err := template.New("layout").Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+file)
		if err != nil {
			return nil, fmt.Errorf("web: parse %s: %w", file, err)
		}
		set.byFile[file] = tmpl
	}
	set.notFound = set.byFile["not_found.html"]
	return set, nil
}

type pageView struct {
	Title     string
	PageTitle string
	Data      any
	Error     string
}

func (s *Server) page(p pageSpec) http.Handler {
	tmpl := s.pages.byFile[p.file]
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		view := pageView{Title: DocumentTitle(p.Title), PageTitle: p.Title}
		status := http.StatusOK
		if p.load != nil {
			data, err := p.load(s, r)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				s.handleNotFound(w, r)
				return
			case err != nil:
				status = statusFor(err)
				view.Error = err.Error()
			}
			view.Data = data
		}
		s.render(w, tmpl, status, view)
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	view := pageView{Title: DocumentTitle("页面未找到"), PageTitle: "页面未找到"}
	s.render(w, s.pages.notFound, http.StatusNotFound, view)
}

func (s *Server) render(w http.ResponseWriter, tmpl *template.Template, status int, view pageView) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", view); err != nil {
		s.logger.Error("render page", "title", view.PageTitle, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Page-Title", view.Title)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

type homeView struct {
	PoemCount         int
	AuthorCount       int
	CategoryCount     int
	Dynasties         []string
	PopularAuthors    []domain.Author
	PopularCategories []domain.Category
	Recent            []domain.Poem
}

const recentPoems = 6

func (s *Server) homeData(r *http.Request) (any, error) {
	err := s.stores.RefreshAll(r.Context())
	poems := s.stores.Poems.Snapshot().Items
	if len(poems) > recentPoems {
		poems = poems[:recentPoems]
	}
	return homeView{
		PoemCount:         s.stores.Poems.Total(),
		AuthorCount:       s.stores.Authors.Total(),
		CategoryCount:     s.stores.Categories.Total(),
		Dynasties:         s.stores.Poems.Dynasties(),
		PopularAuthors:    s.stores.Authors.Popular(),
		PopularCategories: s.stores.Categories.Popular(),
		Recent:            poems,
	}, err
}

type poemsView struct {
	Query     string
	Dynasty   string
	Dynasties []string
	Poems     []domain.Poem
}

func (s *Server) poemsData(r *http.Request) (any, error) {
	store := s.stores.Poems
	var err error
	if !store.Fetch(r.Context()) {
		err = lastErr(store.LastErr())
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	dynasty := strings.TrimSpace(r.URL.Query().Get("dynasty"))
	items := store.Snapshot().Items
	return poemsView{
		Query:     query,
		Dynasty:   dynasty,
		Dynasties: state.DynastiesOf(items),
		Poems:     state.FilterPoems(items, query, dynasty),
	}, err
}

// lastErr covers a store whose error was cleared by a concurrent action.
func lastErr(err error) error {
	if err == nil {
		return errors.New(core.DefaultErrorMessage)
	}
	return err
}

func (s *Server) poemDetailData(r *http.Request) (any, error) {
	return s.backend.GetPoem(r.Context(), mux.Vars(r)["id"])
}

func (s *Server) authorsData(r *http.Request) (any, error) {
	store := s.stores.Authors
	if !store.Fetch(r.Context()) {
		return store.Snapshot().Items, lastErr(store.LastErr())
	}
	return store.Snapshot().Items, nil
}

type authorPoemsView struct {
	Author domain.Author
	Poems  []domain.Poem
}

func (s *Server) authorPoemsData(r *http.Request) (any, error) {
	id := mux.Vars(r)["id"]
	author, err := s.backend.GetAuthor(r.Context(), id)
	if err != nil {
		return nil, err
	}
	poems, err := s.backend.PoemsByAuthor(r.Context(), id)
	return authorPoemsView{Author: author, Poems: poems}, err
}

func (s *Server) categoriesData(r *http.Request) (any, error) {
	store := s.stores.Categories
	if !store.Fetch(r.Context()) {
		return store.Snapshot().Items, lastErr(store.LastErr())
	}
	return store.Snapshot().Items, nil
}

type categoryPoemsView struct {
	Category domain.Category
	Poems    []domain.Poem
}

func (s *Server) categoryPoemsData(r *http.Request) (any, error) {
	id := mux.Vars(r)["id"]
	category, err := s.backend.GetCategory(r.Context(), id)
	if err != nil {
		return nil, err
	}
	poems, err := s.backend.PoemsByCategory(r.Context(), id)
	return categoryPoemsView{Category: category, Poems: poems}, err
}
