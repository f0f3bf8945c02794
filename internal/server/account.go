package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/tkilaker/inkdesk/internal/api"
	"github.com/tkilaker/inkdesk/internal/availability"
	"github.com/tkilaker/inkdesk/internal/validate"
)

// handleDashboard renders the stats summary
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)

	stats, err := ws.Client.DashboardStats(ctx)
	if err != nil {
		if isSessionExpired(err) {
			s.fail(w, r, err, "", "/login")
			return
		}
		s.logger.Warn("failed to load dashboard stats", "error", err)
		ws.Toasts.Error(api.MessageOf(err, "Failed to load dashboard"))
		stats = &api.DashboardStats{}
	}
	ws.Index.Add(stats.RecentArticles...)

	render(w, r, http.StatusOK, s.layout(ctx, "Dashboard", dashboardView(stats)))
}

// handleToggleSidebar flips the sidebar preference
func (s *Server) handleToggleSidebar(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	collapsed := ws.Auth.ToggleSidebar()
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]bool{"sidebar_collapsed": collapsed})
		return
	}
	back := r.Referer()
	if back == "" {
		back = "/dashboard"
	}
	redirect(w, r, back)
}

// profileForm is the profile page state
type profileForm struct {
	Profile *api.Profile
	Errors  map[string]string
}

// handleProfilePage renders the profile form
func (s *Server) handleProfilePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)

	profile, err := ws.Client.Profile(ctx)
	if err != nil {
		s.fail(w, r, err, "Failed to load profile data", "/dashboard")
		return
	}
	render(w, r, http.StatusOK, s.layout(ctx, "Profile", profileView(profileForm{Profile: profile})))
}

// handleUpdateProfile changes the first and last name
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	first := strings.TrimSpace(r.PostFormValue("first_name"))
	last := strings.TrimSpace(r.PostFormValue("last_name"))
	form := profileForm{Profile: &api.Profile{FirstName: first, LastName: last}}
	if u := ws.Auth.User(); u != nil {
		form.Profile.Username, form.Profile.Email, form.Profile.ProfilePhoto = u.Username, u.Email, u.ProfilePhoto
	}

	err := validation.Errors{
		"first_name": validation.Validate(first, validation.Required.Error("First name is required")),
		"last_name":  validation.Validate(last, validation.Required.Error("Last name is required")),
	}.Filter()
	if err != nil {
		form.Errors = validate.Fields(err)
		render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Profile", profileView(form)))
		return
	}

	if err := ws.Client.UpdateProfileInfo(ctx, first, last); err != nil {
		if isValidation(err) {
			form.Errors = formErrors(err, nil)
			ws.Toasts.Error(api.MessageOf(err, "Invalid name data"))
			render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Profile", profileView(form)))
			return
		}
		s.fail(w, r, err, "Failed to update name information", "/profile")
		return
	}

	ws.Auth.Refresh(ctx)
	ws.Toasts.Success("Profile updated successfully!")
	redirect(w, r, "/profile")
}

// handleUpdatePhoto uploads a new profile photo
func (s *Server) handleUpdatePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes+1<<20)
	file, header, err := r.FormFile("profile_photo")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ws.Toasts.Error("Image size should be less than 5MB")
		} else {
			ws.Toasts.Error("Invalid image file")
		}
		redirect(w, r, "/profile")
		return
	}
	defer file.Close()

	if header.Size > maxPhotoBytes {
		ws.Toasts.Error("Image size should be less than 5MB")
		redirect(w, r, "/profile")
		return
	}
	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		ws.Toasts.Error("Invalid image file")
		redirect(w, r, "/profile")
		return
	}

	if err := ws.Client.UpdateProfilePhoto(ctx, header.Filename, file); err != nil {
		s.fail(w, r, err, "Failed to update profile photo", "/profile")
		return
	}

	ws.Auth.Refresh(ctx)
	ws.Toasts.Success("Profile updated successfully!")
	redirect(w, r, "/profile")
}

// settingsForm is the settings page state
type settingsForm struct {
	User          *api.User
	Username      availability.State
	Email         availability.State
	UsernameValue string
	EmailValue    string
	Errors        map[string]string
}

// handleSettingsPage renders the username, email and password forms
func (s *Server) handleSettingsPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	render(w, r, http.StatusOK, s.layout(ctx, "Settings", settingsView(s.settingsForm(ctx, nil))))
}

func (s *Server) settingsForm(ctx context.Context, errs map[string]string) settingsForm {
	ws := workspaceFrom(ctx)
	form := settingsForm{
		User:     ws.Auth.User(),
		Username: ws.UsernameCheck.State(),
		Email:    ws.EmailCheck.State(),
		Errors:   errs,
	}
	if form.User != nil {
		ws.UsernameCheck.SetCurrent(form.User.Username)
		ws.EmailCheck.SetCurrent(form.User.Email)
		form.UsernameValue, form.EmailValue = form.User.Username, form.User.Email
	}
	if form.Username.Value != "" {
		form.UsernameValue = form.Username.Value
	}
	if form.Email.Value != "" {
		form.EmailValue = form.Email.Value
	}
	return form
}

// checker returns the availability checker named by the {field} parameter
func checker(ws *Workspace, field string) (*availability.Checker, bool) {
	switch field {
	case "username":
		return ws.UsernameCheck, true
	case "email":
		return ws.EmailCheck, true
	}
	return nil, false
}

// handleAvailabilityInput feeds a keystroke into the debounced checker
func (s *Server) handleAvailabilityInput(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	c, ok := checker(ws, chi.URLParam(r, "field"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	var value string
	if wantsJSON(r) {
		var body struct {
			Value string `json:"value"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
			return
		}
		value = body.Value
	} else {
		value = r.FormValue("value")
	}

	writeJSON(w, http.StatusOK, c.Input(strings.TrimSpace(value)))
}

// handleAvailabilityStatus reports the checker's latest state
func (s *Server) handleAvailabilityStatus(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	c, ok := checker(ws, chi.URLParam(r, "field"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, c.State())
}

// availabilityGate blocks a settings submit unless the checker confirmed value
func availabilityGate(c *availability.Checker, value, field string) error {
	state := c.State()
	if state.Value != value {
		state = c.Input(value)
	}
	switch state.Status {
	case availability.StatusAvailable:
		return nil
	case availability.StatusChecking:
		return validation.NewError("availability_pending", "Please wait for the availability check to finish")
	case availability.StatusUnchanged, availability.StatusTaken, availability.StatusInvalid, availability.StatusError:
		if state.Message != "" {
			return validation.NewError("availability_"+state.Label, state.Message)
		}
	}
	return validation.NewError("availability_unknown", "Please enter a new "+field)
}

// handleUpdateUsername changes the username once it is known to be free
func (s *Server) handleUpdateUsername(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	username := strings.TrimSpace(r.FormValue("username"))

	if err := availabilityGate(ws.UsernameCheck, username, "username"); err != nil {
		errs := map[string]string{"username": err.Error()}
		render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Settings", settingsView(s.settingsForm(ctx, errs))))
		return
	}

	if err := ws.Client.UpdateUsername(ctx, username); err != nil {
		if isValidation(err) {
			errs := formErrors(err, nil)
			render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Settings", settingsView(s.settingsForm(ctx, errs))))
			return
		}
		s.fail(w, r, err, "Failed to update username", "/settings")
		return
	}

	ws.Auth.Refresh(ctx)
	ws.UsernameCheck.SetCurrent(username)
	ws.UsernameCheck.Input(username)
	ws.Toasts.Success("Username updated successfully")
	redirect(w, r, "/settings")
}

// handleUpdateEmail changes the email address; the password is required
func (s *Server) handleUpdateEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("email_password")

	errs := validation.Errors{
		"email_password": validation.Validate(password, validation.Required.Error("Password is required")),
	}
	if err := availabilityGate(ws.EmailCheck, email, "email address"); err != nil {
		errs["email"] = err
	}
	if err := errs.Filter(); err != nil {
		render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Settings", settingsView(s.settingsForm(ctx, validate.Fields(err)))))
		return
	}

	if err := ws.Client.UpdateEmail(ctx, api.UpdateEmailRequest{Email: email, Password: password}); err != nil {
		if isValidation(err) {
			ws.Toasts.Error(api.MessageOf(err, "Failed to update email"))
			render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Settings", settingsView(s.settingsForm(ctx, formErrors(err, nil)))))
			return
		}
		s.fail(w, r, err, "Failed to update email", "/settings")
		return
	}

	ws.Auth.Refresh(ctx)
	ws.EmailCheck.SetCurrent(email)
	ws.EmailCheck.Input(email)
	ws.Toasts.Success("Email updated successfully")
	redirect(w, r, "/settings")
}

// handleUpdatePassword changes the password
func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	req := api.UpdatePasswordRequest{
		CurrentPassword:      r.PostFormValue("current_password"),
		Password:             r.PostFormValue("password"),
		PasswordConfirmation: r.PostFormValue("password_confirmation"),
	}

	errs := validation.Errors{
		"current_password":      validation.Validate(req.CurrentPassword, validation.Required.Error("Current password is required")),
		"password_confirmation": validate.PasswordConfirmation(req.Password, req.PasswordConfirmation),
	}
	if err := validate.Password(req.Password); err != nil {
		ws.Toasts.Error("Please create a stronger password")
		errs["password"] = validation.NewError("password_weak", strings.Join(validate.PasswordMessages(req.Password), ". "))
	}
	if err := errs.Filter(); err != nil {
		render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Settings", settingsView(s.settingsForm(ctx, validate.Fields(err)))))
		return
	}

	if err := ws.Client.UpdatePassword(ctx, req); err != nil {
		if isValidation(err) {
			render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Settings", settingsView(s.settingsForm(ctx, formErrors(err, nil)))))
			return
		}
		s.fail(w, r, err, "Failed to update password", "/settings")
		return
	}

	ws.Toasts.Success("Password updated successfully")
	redirect(w, r, "/settings")
}

func dashboardView(stats *api.DashboardStats) templ.Component {
	return view(func(ctx context.Context, h *html) {
		h.raw(`<div class="card">`)
		h.printf(`<p>Total articles: <strong>%d</strong></p>`, stats.Stats.TotalArticles)
		h.printf(`<p>Published: <strong>%d</strong> (%.1f%%)</p>`, stats.Stats.PublishedArticles, stats.Stats.PublicationRate)
		h.printf(`<p>Total words: <strong>%d</strong>, about %d per article</p>`, stats.Stats.TotalWords, stats.AverageWords())
		h.raw(`</div>`)

		if len(stats.PlatformStats) > 0 {
			h.raw(`<h2>Platforms</h2><ul class="card">`)
			for _, p := range stats.PlatformStats {
				h.printf(`<li>%s: %d</li>`, esc(p.PlatformName), p.ArticleCount)
			}
			h.raw(`</ul>`)
		}

		h.raw(`<h2>Recent articles</h2>`)
		if len(stats.RecentArticles) == 0 {
			h.raw(`<p>No articles yet. <a href="/articles/new">Generate some</a>.</p>`)
			return
		}
		h.raw(`<ul class="card">`)
		for _, a := range stats.RecentArticles {
			h.printf(`<li><a href="/articles/%d">%s</a> <small>%s</small></li>`, a.ID, esc(a.Heading), esc(a.Status))
		}
		h.raw(`</ul>`)
	})
}

func profileView(form profileForm) templ.Component {
	return view(func(ctx context.Context, h *html) {
		p := form.Profile
		if p.ProfilePhoto != "" {
			h.printf(`<img src="%s" alt="Profile photo" width="96" height="96">`, esc(p.ProfilePhoto))
		}
		h.printf(`<p>@%s &middot; %s</p>`, esc(p.Username), esc(p.Email))

		h.raw(`<form method="post" action="/profile" class="card">`)
		h.input("text", "first_name", "First name", p.FirstName, form.Errors)
		h.input("text", "last_name", "Last name", p.LastName, form.Errors)
		h.fieldErrors(form.Errors, "first_name", "last_name", "profile_photo")
		h.raw(`<button type="submit">Save</button></form>`)

		h.raw(`<form method="post" action="/profile/photo" enctype="multipart/form-data" class="card">`)
		h.raw(`<div class="field"><label for="profile_photo">Profile photo</label><input id="profile_photo" type="file" name="profile_photo" accept="image/*"></div>`)
		if msg, ok := form.Errors["profile_photo"]; ok {
			h.printf(`<div class="field-error">%s</div>`, esc(msg))
		}
		h.raw(`<button type="submit">Upload</button></form>`)
	})
}

const availabilityScript = `
(function(){
  document.querySelectorAll('[data-availability]').forEach(function(input){
    var field=input.dataset.availability, out=document.getElementById(field+'-availability'), poll;
    function show(s){out.textContent=s.message||'';out.dataset.status=s.status;}
    input.addEventListener('input',function(){
      clearInterval(poll);
      fetch('/settings/'+field+'/check',{method:'POST',headers:{'Content-Type':'application/json'},body:JSON.stringify({value:input.value})})
        .then(function(r){return r.json()}).then(function(s){
          show(s);
          if(s.status!=='checking')return;
          poll=setInterval(function(){
            fetch('/settings/'+field+'/status',{headers:{'Accept':'application/json'}}).then(function(r){return r.json()}).then(function(s){
              if(s.value!==input.value)return;
              show(s);if(s.status!=='checking')clearInterval(poll);
            });
          },300);
        });
    });
  });
})();
`

func settingsView(form settingsForm) templ.Component {
	return view(func(ctx context.Context, h *html) {
		h.raw(`<form method="post" action="/settings/username" class="card"><h2>Username</h2>`)
		h.printf(`<div class="field"><label for="username">Username</label><input id="username" name="username" value="%s" data-availability="username">`, esc(form.UsernameValue))
		h.printf(`<div id="username-availability" data-status="%s">%s</div>`, esc(form.Username.Label), esc(form.Username.Message))
		if msg, ok := form.Errors["username"]; ok {
			h.printf(`<div class="field-error">%s</div>`, esc(msg))
		}
		h.raw(`</div><button type="submit">Update username</button></form>`)

		h.raw(`<form method="post" action="/settings/email" class="card"><h2>Email</h2>`)
		h.printf(`<div class="field"><label for="email">Email</label><input id="email" type="email" name="email" value="%s" data-availability="email">`, esc(form.EmailValue))
		h.printf(`<div id="email-availability" data-status="%s">%s</div>`, esc(form.Email.Label), esc(form.Email.Message))
		if msg, ok := form.Errors["email"]; ok {
			h.printf(`<div class="field-error">%s</div>`, esc(msg))
		}
		h.raw(`</div>`)
		h.input("password", "email_password", "Current password", "", form.Errors)
		h.raw(`<button type="submit">Update email</button></form>`)

		h.raw(`<form method="post" action="/settings/password" class="card"><h2>Password</h2>`)
		h.input("password", "current_password", "Current password", "", form.Errors)
		h.input("password", "password", "New password", "", form.Errors)
		h.input("password", "password_confirmation", "Confirm new password", "", form.Errors)
		h.raw(`<button type="submit">Update password</button></form>`)

		h.fieldErrors(form.Errors, "username", "email", "email_password", "current_password", "password", "password_confirmation")
		h.printf(`<script>%s</script>`, availabilityScript)
	})
}
