package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/tkilaker/inkdesk/internal/api"
	"github.com/tkilaker/inkdesk/internal/database"
	"github.com/tkilaker/inkdesk/internal/editor"
	"github.com/tkilaker/inkdesk/internal/modal"
)

const draftWriteTimeout = 5 * time.Second

// handleEditPage opens the editor for an article. An editor with unsaved
// changes is reused; otherwise a newer autosaved draft is restored.
func (s *Server) handleEditPage(w http.ResponseWriter, r *http.Request) {
	article, ok := s.fetchArticle(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	ws := workspaceFrom(ctx)

	ed, open := ws.Editor(article.ID)
	if !open || !ed.Dirty() {
		ed = ws.OpenEditor(article.ID, article.Content)
		if u := ws.Auth.User(); u != nil {
			s.restoreDraft(ctx, ws, ed, u.ID, article)
			ed.OnChange(s.autosave(u.ID, article.ID))
		}
	}

	render(w, r, http.StatusOK, s.layout(ctx, "Edit: "+article.Heading, editView(article, ed)))
}

// restoreDraft loads an autosaved draft newer than the article
func (s *Server) restoreDraft(ctx context.Context, ws *Workspace, ed *editor.Editor, userID int, article *api.Article) {
	draft, err := s.store.GetDraft(ctx, userID, article.ID)
	if err != nil {
		s.logger.Warn("failed to load draft", "article_id", article.ID, "error", err)
		return
	}
	if draft == nil || !draft.UpdatedAt.After(article.UpdatedAt) {
		return
	}
	if strings.TrimSpace(draft.Content) == strings.TrimSpace(article.Content) {
		return
	}
	ed.Load(draft.Content, true)
	ws.Toasts.Info("Restored your unsaved changes")
}

// autosave stores every editor change as a draft
func (s *Server) autosave(userID, articleID int) editor.ChangeFunc {
	return func(markdown string, words int) {
		ctx, cancel := context.WithTimeout(context.Background(), draftWriteTimeout)
		defer cancel()
		draft := &database.Draft{UserID: userID, ArticleID: articleID, Content: markdown, WordCount: words}
		if err := s.store.SaveDraft(ctx, draft); err != nil {
			s.logger.Warn("failed to autosave draft", "article_id", articleID, "error", err)
		}
	}
}

// editorResponse is the editor state returned to the edit page script
type editorResponse struct {
	editor.Result
	Dirty bool   `json:"dirty"`
	HTML  string `json:"html"`
}

func newEditorResponse(ed *editor.Editor, res editor.Result) editorResponse {
	return editorResponse{Result: res, Dirty: ed.Dirty(), HTML: renderBlocks(ed.Document())}
}

// openEditor returns the editor for the {id} parameter or writes an error
func (s *Server) openEditor(w http.ResponseWriter, r *http.Request) (*editor.Editor, bool) {
	id, ok := articleID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid article ID"})
		return nil, false
	}
	ed, ok := workspaceFrom(r.Context()).Editor(id)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "The editor for this article is not open"})
		return nil, false
	}
	return ed, true
}

// handleEditCommand applies a toolbar command
func (s *Server) handleEditCommand(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.openEditor(w, r)
	if !ok {
		return
	}

	var cmd editor.Command
	if err := decodeJSON(r, &cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid command"})
		return
	}

	res, err := ed.Execute(cmd)
	switch {
	case errors.Is(err, editor.ErrUnknownCommand):
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	case errors.Is(err, editor.ErrInvalidLink):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Please enter a valid URL"})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, newEditorResponse(ed, res))
}

// linkAction drives the link dialog from the edit page
type linkAction struct {
	Action    string           `json:"action"`
	Selection editor.Selection `json:"selection"`
	URL       string           `json:"url"`
	Text      string           `json:"text"`
	Key       string           `json:"key"`
	Ctrl      bool             `json:"ctrl"`
}

// linkState is the dialog state after an action
type linkState struct {
	Open      bool   `json:"open"`
	URL       string `json:"url"`
	Text      string `json:"text"`
	CanSubmit bool   `json:"can_submit"`
	Consumed  bool   `json:"consumed,omitempty"`
	*editorResponse
}

// handleEditLink opens, edits, submits or cancels the link dialog
func (s *Server) handleEditLink(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.openEditor(w, r)
	if !ok {
		return
	}

	var action linkAction
	if err := decodeJSON(r, &action); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid link action"})
		return
	}

	dlg := ed.LinkDialog()
	var state linkState
	before := ed.Markdown()

	switch action.Action {
	case "open":
		dlg.Open(action.Selection, action.Text)
	case "url":
		dlg.SetURL(action.URL)
	case "text":
		dlg.SetText(action.Text)
	case "submit":
		dlg.SetURL(action.URL)
		dlg.SetText(action.Text)
		if err := dlg.Submit(r.Context()); err != nil {
			status := http.StatusUnprocessableEntity
			msg := "Please enter a valid URL"
			if errors.Is(err, modal.ErrClosed) {
				status, msg = http.StatusConflict, "The link dialog is not open"
			}
			writeJSON(w, status, map[string]string{"message": msg})
			return
		}
	case "cancel":
		dlg.Cancel()
	case "key":
		consumed, err := dlg.HandleKey(r.Context(), action.Key, action.Ctrl)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": err.Error()})
			return
		}
		state.Consumed = consumed
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": fmt.Sprintf("unknown link action %q", action.Action)})
		return
	}

	state.Open = dlg.IsOpen()
	state.URL, state.Text = dlg.Fields()
	state.CanSubmit = dlg.CanSubmit()
	if after := ed.Markdown(); after != before {
		resp := newEditorResponse(ed, editor.Result{Changed: true, Markdown: after, WordCount: ed.WordCount()})
		state.editorResponse = &resp
	}
	writeJSON(w, http.StatusOK, state)
}

// handleEditSave sends the editor content to the backend
func (s *Server) handleEditSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	id, ok := articleID(r)
	if !ok {
		http.Error(w, "Invalid article ID", http.StatusBadRequest)
		return
	}
	editURL := fmt.Sprintf("/articles/%d/edit", id)

	ed, open := ws.Editor(id)
	if !open {
		ws.Toasts.Info("There are no changes to save")
		redirect(w, r, editURL)
		return
	}

	if err := ws.Client.UpdateArticleContent(ctx, id, ed.SaveContent()); err != nil {
		s.fail(w, r, err, "Failed to update content", editURL)
		return
	}

	ed.MarkSaved()
	if u := ws.Auth.User(); u != nil {
		if err := s.store.DeleteDraft(ctx, u.ID, id); err != nil {
			s.logger.Warn("failed to clear draft", "article_id", id, "error", err)
		}
	}
	ws.CloseEditor(id)

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{"saved": true, "word_count": ed.WordCount()})
		return
	}
	ws.Toasts.Success("Content updated successfully")
	redirect(w, r, fmt.Sprintf("/articles/%d", id))
}

// renderBlocks renders the document for the editable surface. Each block
// carries its index so the page script can report selections.
func renderBlocks(doc *editor.Document) string {
	var sb strings.Builder
	for i, b := range doc.Blocks {
		open, end := "p", "p"
		switch b.Kind {
		case editor.BlockHeading:
			level := min(max(b.Level, 1), 6)
			open = fmt.Sprintf("h%d", level)
			end = open
		case editor.BlockListItem:
			open, end = `div class="li"`, "div"
		}
		fmt.Fprintf(&sb, `<%s data-block="%d">`, open, i)
		if b.Len() == 0 {
			sb.WriteString("<br>")
		}
		for _, in := range b.Inlines {
			writeInlineHTML(&sb, in)
		}
		fmt.Fprintf(&sb, "</%s>", end)
	}
	return sb.String()
}

func writeInlineHTML(sb *strings.Builder, in editor.Inline) {
	text := esc(in.Text)
	if in.Format.Has(editor.FormatUnderline) {
		text = "<u>" + text + "</u>"
	}
	if in.Format.Has(editor.FormatItalic) {
		text = "<em>" + text + "</em>"
	}
	if in.Format.Has(editor.FormatBold) {
		text = "<strong>" + text + "</strong>"
	}
	if in.IsLink() {
		href := in.URL
		if strings.HasPrefix(strings.ToLower(href), "www.") {
			href = "https://" + href
		}
		text = fmt.Sprintf(`<a href="%s" target="%s" rel="%s">%s</a>`, esc(safeURL(href)), esc(in.Target), esc(in.Rel), text)
	}
	sb.WriteString(text)
}

const editorScript = `
(function(){
  var root=document.getElementById('editor'), id=root.dataset.article;
  var words=document.getElementById('word-count'), dirty=document.getElementById('dirty');
  var FAR=1000000000;
  function len(s){return Array.from(s).length}
  function pos(node,off){
    var el=node.nodeType===1?node:node.parentNode;
    while(el&&el!==root&&!(el.dataset&&el.dataset.block!==undefined))el=el.parentNode;
    if(!el||el===root)return {block:0,offset:0};
    var r=document.createRange();r.setStart(el,0);r.setEnd(node,off);
    return {block:+el.dataset.block,offset:len(r.toString())};
  }
  function selection(){
    var s=window.getSelection();
    if(!s.rangeCount||!root.contains(s.anchorNode))return null;
    return {anchor:pos(s.anchorNode,s.anchorOffset),focus:pos(s.focusNode,s.focusOffset)};
  }
  function place(p){
    var el=root.querySelector('[data-block="'+p.block+'"]');if(!el)return;
    var walker=document.createTreeWalker(el,NodeFilter.SHOW_TEXT),left=p.offset,n,r=document.createRange();
    r.setStart(el,0);
    while((n=walker.nextNode())){
      var l=len(n.data);
      if(left<=l){r.setStart(n,Array.from(n.data).slice(0,left).join('').length);break}
      left-=l;r.setStart(n,n.data.length);
    }
    r.collapse(true);var s=window.getSelection();s.removeAllRanges();s.addRange(r);
  }
  function post(path,body){
    return fetch('/articles/'+id+'/edit/'+path,{method:'POST',headers:{'Content-Type':'application/json'},body:JSON.stringify(body)})
      .then(function(r){return r.json().then(function(d){if(!r.ok)throw new Error(d.message||'Request failed');return d})});
  }
  function apply(d){
    if(!d||d.html===undefined)return;
    root.innerHTML=d.html;words.textContent=d.word_count;dirty.hidden=!d.dirty;
    document.querySelectorAll('[data-format]').forEach(function(b){
      b.setAttribute('aria-pressed',(d.active&+b.dataset.format)?'true':'false');
    });
    if(d.selection)place(d.selection.focus);
  }
  function send(cmd){return post('commands',cmd).then(apply).catch(function(e){alert(e.message)})}
  function link(sel){
    post('link',{action:'open',selection:sel}).then(function(d){
      var url=prompt('Link URL (https://... or www....)','');
      if(url===null)return post('link',{action:'cancel'});
      var text=prompt('Link text (optional)',d.text||'');
      return post('link',{action:'submit',url:url,text:text||''}).then(apply);
    }).catch(function(e){alert(e.message)});
  }
  document.querySelectorAll('[data-command]').forEach(function(b){
    b.addEventListener('mousedown',function(e){e.preventDefault()});
    b.addEventListener('click',function(){
      var sel=selection()||{anchor:{block:0,offset:0},focus:{block:0,offset:0}};
      if(b.dataset.command==='link'){link(sel);return}
      var c={command:b.dataset.command,selection:sel};
      if(b.dataset.level)c.level=+b.dataset.level;
      send(c);
    });
  });
  root.addEventListener('beforeinput',function(e){
    var sel=selection();if(!sel)return;
    e.preventDefault();
    var t=e.inputType;
    if(t==='insertText'||t==='insertReplacementText'||t==='insertFromPaste'){
      var text=e.data!=null?e.data:(e.dataTransfer?e.dataTransfer.getData('text/plain'):'');
      send({command:'replace',text:text,selection:sel});
    }else if(t==='insertParagraph'||t==='insertLineBreak'){
      send({command:'replace',text:'\n',selection:sel});
    }else if(t.indexOf('delete')===0){
      var a=sel.anchor,f=sel.focus;
      if(a.block===f.block&&a.offset===f.offset){
        if(t.indexOf('Backward')>0){
          if(a.offset>0)sel.anchor={block:a.block,offset:a.offset-1};
          else if(a.block>0)sel.anchor={block:a.block-1,offset:FAR};
          else return;
        }else{
          var el=root.querySelector('[data-block="'+f.block+'"]');
          if(el&&f.offset<len(el.textContent))sel.focus={block:f.block,offset:f.offset+1};
          else sel.focus={block:f.block+1,offset:0};
        }
      }
      send({command:'replace',text:'',selection:sel});
    }
  });
  root.addEventListener('keydown',function(e){
    if(!(e.ctrlKey||e.metaKey))return;
    var map={b:'bold',i:'italic',u:'underline'},k=e.key.toLowerCase();
    if(map[k]){e.preventDefault();send({command:map[k],selection:selection()})}
  });
})();
`

func editView(article *api.Article, ed *editor.Editor) templ.Component {
	return view(func(ctx context.Context, h *html) {
		h.raw(`<div class="toolbar">`)
		buttons := []struct {
			command, label string
			format         editor.Format
			level          int
		}{
			{"bold", "B", editor.FormatBold, 0},
			{"italic", "I", editor.FormatItalic, 0},
			{"underline", "U", editor.FormatUnderline, 0},
			{"link", "Link", 0, 0},
			{"unlink", "Unlink", 0, 0},
			{"heading", "H1", 0, 1},
			{"heading", "H2", 0, 2},
			{"heading", "H3", 0, 3},
			{"paragraph", "P", 0, 0},
			{"list", "List", 0, 0},
		}
		for _, b := range buttons {
			attrs := ""
			if b.format != 0 {
				attrs += fmt.Sprintf(` data-format="%d" aria-pressed="false"`, b.format)
			}
			if b.level != 0 {
				attrs += fmt.Sprintf(` data-level="%d"`, b.level)
			}
			h.printf(`<button type="button" data-command="%s"%s>%s</button> `, b.command, attrs, esc(b.label))
		}
		h.raw(`</div>`)

		dirtyAttr := " hidden"
		if ed.Dirty() {
			dirtyAttr = ""
		}
		h.printf(`<p><span id="word-count">%d</span> words <span id="dirty"%s>&middot; unsaved changes</span></p>`, ed.WordCount(), dirtyAttr)
		h.printf(`<div id="editor" contenteditable="true" data-article="%d">%s</div>`, article.ID, renderBlocks(ed.Document()))

		h.printf(`<form method="post" action="/articles/%d/edit/save"><button type="submit">Save</button> <a href="/articles/%d">Cancel</a></form>`, article.ID, article.ID)
		h.printf(`<script>%s</script>`, editorScript)
	})
}
