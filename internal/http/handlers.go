package http

import (
	"io/fs"
	"time"

	"metalise/internal/events"
	"metalise/internal/generation"
	"metalise/web"
)

// Dependencies are the long-lived services the handlers share.
type Dependencies struct {
	Recorder  *events.Recorder
	Generator *generation.Generator
	// Pages holds index.html, analytics_dashboard.html, style.css and script.js.
	Pages fs.FS
	Now   func() time.Time
}

// Handlers exposes the HTTP actions. Create it once per server with NewHandlers.
type Handlers struct {
	recorder  *events.Recorder
	generator *generation.Generator
	pages     fs.FS
	now       func() time.Time
}

func NewHandlers(deps Dependencies) *Handlers {
	h := &Handlers{
		recorder:  deps.Recorder,
		generator: deps.Generator,
		pages:     deps.Pages,
		now:       deps.Now,
	}
	if h.pages == nil {
		h.pages = web.Public()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}
