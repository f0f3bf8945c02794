package server

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/a-h/templ"

	"github.com/tkilaker/inkdesk/internal/notify"
)

var esc = templ.EscapeString[string]

// html accumulates the first write error so views can print freely
type html struct {
	w   io.Writer
	err error
}

func (h *html) printf(format string, args ...any) {
	if h.err != nil {
		return
	}
	_, h.err = fmt.Fprintf(h.w, format, args...)
}

func (h *html) raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

func (h *html) render(ctx context.Context, c templ.Component) {
	if h.err != nil || c == nil {
		return
	}
	h.err = c.Render(ctx, h.w)
}

// view adapts a printing function into a component
func view(fn func(ctx context.Context, h *html)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		fn(ctx, h)
		return h.err
	})
}

const styles = `
body{font-family:system-ui,sans-serif;margin:0;display:flex;min-height:100vh;background:#f7f7f8;color:#1f2328}
nav{width:14rem;background:#111827;color:#fff;padding:1rem;box-sizing:border-box}
nav.collapsed{width:4rem;overflow:hidden}
nav a{display:block;color:#d1d5db;padding:.4rem 0;text-decoration:none}
main{flex:1;padding:2rem;max-width:60rem}
.toasts{position:fixed;top:1rem;right:1rem;display:flex;flex-direction:column;gap:.5rem}
.toast{padding:.6rem 1rem;border-radius:.4rem;color:#fff}
.toast-success{background:#16a34a}.toast-error{background:#dc2626}.toast-info{background:#2563eb}
.field{margin-bottom:1rem}.field label{display:block;font-weight:600}
.field-error{color:#dc2626;font-size:.875rem}
.modal{border:1px solid #d1d5db;background:#fff;padding:1rem;border-radius:.5rem;margin:1rem 0}
.card{background:#fff;border:1px solid #e5e7eb;border-radius:.5rem;padding:1rem;margin-bottom:1rem}
.pagination a,.pagination span{margin-right:.5rem}
#editor{background:#fff;border:1px solid #d1d5db;padding:1rem;min-height:20rem;white-space:pre-wrap}
#editor .li::before{content:"\2022  "}
`

const toastScript = `
(function(){
  if(!window.EventSource)return;
  var box=document.querySelector('.toasts');
  var es=new EventSource('/events');
  es.addEventListener('toast',function(e){
    var t=JSON.parse(e.data);
    var d=document.createElement('div');
    d.className='toast toast-'+t.kind;d.textContent=t.message;box.appendChild(d);
    setTimeout(function(){d.remove()},5000);
  });
  window.addEventListener('beforeunload',function(){es.close()});
})();
`

// layoutData is what the page chrome needs from the workspace
type layoutData struct {
	Title            string
	SignedIn         bool
	UserName         string
	SidebarCollapsed bool
	Toasts           []notify.Toast
}

func (s *Server) layout(ctx context.Context, title string, body templ.Component) templ.Component {
	data := layoutData{Title: title}
	if ws := workspaceFrom(ctx); ws != nil {
		data.SignedIn = ws.Auth.Authenticated()
		data.UserName = ws.Auth.User().DisplayName()
		data.SidebarCollapsed = ws.Auth.Preferences().SidebarCollapsed
		data.Toasts = ws.Toasts.Drain()
	}
	return layoutView(data, body)
}

func layoutView(data layoutData, body templ.Component) templ.Component {
	return view(func(ctx context.Context, h *html) {
		h.printf(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>%s | Inkdesk</title><style>%s</style></head><body>`,
			esc(data.Title), styles)

		if data.SignedIn {
			class := ""
			if data.SidebarCollapsed {
				class = ` class="collapsed"`
			}
			h.printf(`<nav%s><form method="post" action="/ui/sidebar"><button type="submit">&#9776;</button></form>`, class)
			h.printf(`<p>%s</p>`, esc(data.UserName))
			h.raw(`<a href="/dashboard">Dashboard</a><a href="/articles/new">Generate</a><a href="/articles">Articles</a><a href="/profile">Profile</a><a href="/settings">Settings</a>`)
			h.raw(`<form method="post" action="/logout"><button type="submit">Log out</button></form></nav>`)
		}

		h.raw(`<div class="toasts">`)
		for _, t := range data.Toasts {
			h.printf(`<div class="toast toast-%s">%s</div>`, esc(string(t.Kind)), esc(t.Message))
		}
		h.raw(`</div><main>`)
		h.printf(`<h1>%s</h1>`, esc(data.Title))
		h.render(ctx, body)
		h.raw(`</main>`)
		if data.SignedIn {
			h.printf(`<script>%s</script>`, toastScript)
		}
		h.raw(`</body></html>`)
	})
}

// input renders a labelled form field with its error
func (h *html) input(kind, name, label, value string, errs map[string]string) {
	h.printf(`<div class="field"><label for="%s">%s</label>`, esc(name), esc(label))
	if kind == "password" {
		value = ""
	}
	h.printf(`<input id="%s" type="%s" name="%s" value="%s">`, esc(name), esc(kind), esc(name), esc(value))
	if msg, ok := errs[name]; ok {
		h.printf(`<div class="field-error">%s</div>`, esc(msg))
	}
	h.raw(`</div>`)
}

// fieldErrors renders errors that have no matching input, in a stable order
func (h *html) fieldErrors(errs map[string]string, known ...string) {
	skip := make(map[string]bool, len(known))
	for _, k := range known {
		skip[k] = true
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		if !skip[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.printf(`<div class="field-error">%s</div>`, esc(errs[k]))
	}
}

// postButton renders a one-button form
func (h *html) postButton(action, label string) {
	h.printf(`<form method="post" action="%s" style="display:inline"><button type="submit">%s</button></form>`,
		esc(action), esc(label))
}

func checked(v bool) string {
	if v {
		return " checked"
	}
	return ""
}

func selected(v bool) string {
	if v {
		return " selected"
	}
	return ""
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
