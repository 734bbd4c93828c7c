package main

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// App holds everything the HTTP handlers need.
type App struct {
	cfg      Config
	store    *Store
	renderer *Renderer
	contact  *ContactService
	tracker  *Tracker
	admin    *Admin
	logger   *zap.Logger
	now      func() time.Time
}

type PageView struct {
	Title        string
	ContactEmail string
	Copy         SiteCopy
	Featured     GridView
	Work         WorkView
	Modal        ModalView
	Contact      ContactView
	Year         int
}

func (a *App) page(state *State, contact ContactView) PageView {
	return PageView{
		Title:        a.cfg.Site.Title,
		ContactEmail: a.cfg.Site.ContactEmail,
		Copy:         siteCopy,
		Featured:     FeaturedGrid(state),
		Work:         WorkGrid(state),
		Modal:        CloseModal(),
		Contact:      contact,
		Year:         a.now().Year(),
	}
}

// index renders the whole page. An unknown filter falls back to all work.
func (a *App) index(c *gin.Context) {
	state := a.store.State()
	if filter := c.Query("filter"); filter != "" {
		if err := state.SetFilter(filter); err != nil {
			a.logger.Debug("ignoring filter", zap.Error(err))
		}
	}
	page := a.page(state, ContactView{})
	a.render(c, func(w io.Writer) error { return a.renderer.RenderPortfolio(w, page) })
}

func (a *App) featuredFragment(c *gin.Context) {
	state := a.store.State()
	a.render(c, func(w io.Writer) error { return a.renderer.RenderFeatured(w, state) })
}

// workFragment swaps the work grid and the filter bar for the chosen filter.
func (a *App) workFragment(c *gin.Context) {
	state := a.store.State()
	if err := state.SetFilter(c.Query("filter")); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	a.render(c, func(w io.Writer) error { return a.renderer.RenderGrid(w, state) })
}

// render buffers the output so a template error never leaves a partial
// response behind.
func (a *App) render(c *gin.Context, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (a *App) openModal(c *gin.Context) {
	item, ok := a.store.Find(c.Param("id"))
	if !ok {
		c.HTML(http.StatusNotFound, "modal", CloseModal())
		return
	}
	if c.GetHeader("DNT") != "1" {
		if err := a.tracker.RecordProjectView(c.Request.Context(), c.ClientIP(), item.ID); err != nil {
			a.logger.Error("error recording project view", zap.String("item", item.ID), zap.Error(err))
		}
	}
	c.HTML(http.StatusOK, "modal", a.renderer.OpenModal(item))
}

func (a *App) closeModal(c *gin.Context) {
	c.HTML(http.StatusOK, "modal", CloseModal())
}

// submitContact answers HTMX submissions with the form fragment and plain
// form posts with the whole page.
func (a *App) submitContact(c *gin.Context) {
	var form ContactForm
	if err := c.ShouldBind(&form); err != nil {
		c.String(http.StatusBadRequest, "invalid form")
		return
	}
	view := a.contact.Handle(c.Request.Context(), form, a.tracker.HashIP(c.ClientIP()))

	if c.GetHeader("HX-Request") == "true" {
		c.HTML(http.StatusOK, "contact-form", view)
		return
	}
	page := a.page(a.store.State(), view)
	a.render(c, func(w io.Writer) error { return a.renderer.RenderPortfolio(w, page) })
}

func (a *App) healthz(c *gin.Context) {
	if len(a.store.Items()) == 0 {
		c.String(http.StatusOK, "ok (no items)")
		return
	}
	c.String(http.StatusOK, "ok")
}
