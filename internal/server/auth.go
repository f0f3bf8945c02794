package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/tkilaker/inkdesk/internal/api"
	"github.com/tkilaker/inkdesk/internal/validate"
)

// loginForm is the login page state
type loginForm struct {
	Login    string
	Remember bool
	Errors   map[string]string
}

// handleLoginPage renders the login form
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, s.layout(r.Context(), "Log in", loginView(loginForm{})))
}

// handleLogin signs in against the backend
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	form := loginForm{
		Login:    strings.TrimSpace(r.PostFormValue("login")),
		Remember: r.PostFormValue("remember_me") != "",
	}
	password := r.PostFormValue("password")

	err := validation.Errors{
		"login":    validation.Validate(form.Login, validation.Required.Error("Username or email is required")),
		"password": validation.Validate(password, validation.Required.Error("Password is required")),
	}.Filter()
	if err != nil {
		form.Errors = validate.Fields(err)
		render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Log in", loginView(form)))
		return
	}

	err = ws.Client.Login(ctx, api.LoginRequest{Login: form.Login, Password: password, RememberMe: form.Remember})
	if err != nil {
		form.Errors = formErrors(err, nil)
		switch {
		case form.Errors["verification"] != "":
			ws.Toasts.Error(form.Errors["verification"])
		case isValidation(err) || isSessionExpired(err):
			ws.Toasts.Error("Login failed. Please check your credentials.")
		default:
			ws.Toasts.Error(api.MessageOf(err, "Login failed. Please check your credentials."))
		}
		s.logger.Warn("login failed", "login", form.Login, "error", err)
		render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Log in", loginView(form)))
		return
	}

	if err := ws.Auth.Refresh(ctx); err != nil {
		ws.Auth.SetAuthenticated(true)
	}
	ws.Toasts.Success("Login successful!")
	redirect(w, r, "/dashboard")
}

// registerForm is the registration page state
type registerForm struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
	Errors    map[string]string
}

// handleRegisterPage renders the registration form
func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, s.layout(r.Context(), "Create account", registerView(registerForm{})))
}

// handleRegister creates an account
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	req := api.RegisterRequest{
		FirstName:            strings.TrimSpace(r.PostFormValue("first_name")),
		LastName:             strings.TrimSpace(r.PostFormValue("last_name")),
		Username:             strings.TrimSpace(r.PostFormValue("username")),
		Email:                strings.TrimSpace(r.PostFormValue("email")),
		Password:             r.PostFormValue("password"),
		PasswordConfirmation: r.PostFormValue("password_confirmation"),
	}
	form := registerForm{FirstName: req.FirstName, LastName: req.LastName, Username: req.Username, Email: req.Email}

	errs := validation.Errors{
		"first_name":            validation.Validate(req.FirstName, validation.Required.Error("First name is required")),
		"last_name":             validation.Validate(req.LastName, validation.Required.Error("Last name is required")),
		"username":              validate.Username(req.Username),
		"email":                 validate.Email(req.Email),
		"password_confirmation": validate.PasswordConfirmation(req.Password, req.PasswordConfirmation),
	}
	if err := validate.Password(req.Password); err != nil {
		errs["password"] = validation.NewError("password_weak", strings.Join(validate.PasswordMessages(req.Password), ". "))
	}
	if err := errs.Filter(); err != nil {
		form.Errors = validate.Fields(err)
		render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Create account", registerView(form)))
		return
	}

	if err := ws.Client.Register(ctx, req); err != nil {
		form.Errors = formErrors(err, nil)
		switch {
		case isValidation(err):
			ws.Toasts.Error("Please check your inputs and try again.")
		case api.StatusOf(err) >= 500:
			ws.Toasts.Error("Server error. Please try again later.")
		case api.StatusOf(err) == 0:
			ws.Toasts.Error("Network error. Please check your connection.")
		default:
			ws.Toasts.Error(api.MessageOf(err, "An error occurred. Please try again."))
		}
		render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Create account", registerView(form)))
		return
	}

	ws.Toasts.Success("Registration successful! Please check your email to verify your account.")
	redirect(w, r, "/login")
}

// handleLogout ends the backend session and resets the workspace
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	if err := ws.Client.Logout(ctx); err != nil && !isSessionExpired(err) {
		s.logger.Warn("logout failed", "error", err)
		ws.Toasts.Error("Logout failed")
		redirect(w, r, "/dashboard")
		return
	}
	if err := ws.Reset(); err != nil {
		s.logger.Warn("failed to reset workspace", "error", err)
	}
	redirect(w, r, "/login")
}

// handleForgotPasswordPage renders the reset request form
func (s *Server) handleForgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, s.layout(r.Context(), "Forgot password", forgotPasswordView("", false, nil)))
}

// handleForgotPassword asks the backend to mail a reset link
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	email := strings.TrimSpace(r.FormValue("email"))

	if err := validate.Email(email); err != nil {
		errs := map[string]string{"email": err.Error()}
		render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Forgot password", forgotPasswordView(email, false, errs)))
		return
	}

	if err := ws.Client.ForgotPassword(ctx, email); err != nil {
		ws.Toasts.Error(api.MessageOf(err, "Failed to send reset link. Please try again."))
		render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Forgot password", forgotPasswordView(email, false, formErrors(err, nil))))
		return
	}

	ws.Toasts.Success("Password reset link sent successfully!")
	render(w, r, http.StatusOK, s.layout(ctx, "Forgot password", forgotPasswordView(email, true, nil)))
}

// handleResetPasswordPage checks the reset link before showing the form
func (s *Server) handleResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	token := r.URL.Query().Get("token")
	email := r.URL.Query().Get("email")

	if token == "" || email == "" {
		ws.Toasts.Error("Invalid password reset token")
		redirect(w, r, "/forgot-password")
		return
	}
	if err := ws.Client.VerifyResetToken(ctx, token, email); err != nil {
		s.logger.Warn("reset token rejected", "email", email, "error", err)
		ws.Toasts.Error("This password reset link is invalid or has expired")
		redirect(w, r, "/forgot-password")
		return
	}

	render(w, r, http.StatusOK, s.layout(ctx, "Reset password", resetPasswordView(token, email, nil)))
}

// handleResetPassword sets the new password
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	req := api.ResetPasswordRequest{
		Email:                r.PostFormValue("email"),
		Token:                r.PostFormValue("token"),
		Password:             r.PostFormValue("password"),
		PasswordConfirmation: r.PostFormValue("password_confirmation"),
	}

	errs := validation.Errors{
		"password_confirmation": validate.PasswordConfirmation(req.Password, req.PasswordConfirmation),
	}
	if err := validate.Password(req.Password); err != nil {
		errs["password"] = validation.NewError("password_weak", strings.Join(validate.PasswordMessages(req.Password), ". "))
	}
	if err := errs.Filter(); err != nil {
		render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Reset password", resetPasswordView(req.Token, req.Email, validate.Fields(err))))
		return
	}

	if err := ws.Client.ResetPassword(ctx, req); err != nil {
		ws.Toasts.Error(api.MessageOf(err, "Failed to reset password. Please try again."))
		render(w, r, http.StatusUnprocessableEntity, s.layout(ctx, "Reset password", resetPasswordView(req.Token, req.Email, formErrors(err, nil))))
		return
	}

	ws.Toasts.Success("Password has been reset successfully!")
	redirect(w, r, "/login")
}

// handleVerifyEmail confirms an address from the verification mail link
func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	token := chi.URLParam(r, "token")

	if err := ws.Client.VerifyEmail(ctx, token); err != nil {
		s.logger.Warn("email verification failed", "error", err)
		ws.Toasts.Error(api.MessageOf(err, "Email verification failed"))
		render(w, r, http.StatusOK, s.layout(ctx, "Verify email", verifyFailedView(r.URL.Query().Get("email"))))
		return
	}

	ws.Toasts.Success("Email verified successfully!")
	if ok, _ := ws.Auth.Check(ctx); ok {
		ws.Auth.Refresh(ctx)
		redirect(w, r, "/dashboard")
		return
	}
	redirect(w, r, "/login")
}

// handleResendVerification mails the verification link again
func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := workspaceFrom(ctx)
	email := strings.TrimSpace(r.FormValue("email"))
	if email == "" {
		if u := ws.Auth.User(); u != nil {
			email = u.Email
		}
	}
	if email == "" {
		ws.Toasts.Error("Email address is missing")
		redirect(w, r, "/login")
		return
	}

	if err := ws.Client.ResendVerification(ctx, email); err != nil {
		s.fail(w, r, err, "Failed to send verification email", "/login")
		return
	}
	ws.Toasts.Success("Verification email sent successfully!")
	redirect(w, r, "/login")
}

func loginView(form loginForm) templ.Component {
	return view(func(ctx context.Context, h *html) {
		h.raw(`<form method="post" action="/login" class="card">`)
		h.input("text", "login", "Username or email", form.Login, form.Errors)
		h.input("password", "password", "Password", "", form.Errors)
		h.printf(`<div class="field"><label><input type="checkbox" name="remember_me" value="1"%s> Remember me</label></div>`, checked(form.Remember))
		h.fieldErrors(form.Errors, "login", "password")
		h.raw(`<button type="submit">Log in</button></form>`)
		h.raw(`<p><a href="/forgot-password">Forgot your password?</a> | <a href="/register">Create an account</a></p>`)
	})
}

func registerView(form registerForm) templ.Component {
	return view(func(ctx context.Context, h *html) {
		h.raw(`<form method="post" action="/register" class="card">`)
		h.input("text", "first_name", "First name", form.FirstName, form.Errors)
		h.input("text", "last_name", "Last name", form.LastName, form.Errors)
		h.input("text", "username", "Username", form.Username, form.Errors)
		h.input("email", "email", "Email", form.Email, form.Errors)
		h.input("password", "password", "Password", "", form.Errors)
		h.input("password", "password_confirmation", "Confirm password", "", form.Errors)
		h.fieldErrors(form.Errors, "first_name", "last_name", "username", "email", "password", "password_confirmation")
		h.raw(`<button type="submit">Create account</button></form>`)
		h.raw(`<p>Already registered? <a href="/login">Log in</a></p>`)
	})
}

func forgotPasswordView(email string, sent bool, errs map[string]string) templ.Component {
	return view(func(ctx context.Context, h *html) {
		if sent {
			h.printf(`<p class="card">We sent a reset link to %s. Check your inbox.</p>`, esc(email))
		}
		h.raw(`<form method="post" action="/forgot-password" class="card">`)
		h.input("email", "email", "Email", email, errs)
		h.raw(`<button type="submit">Send reset link</button></form>`)
		h.raw(`<p><a href="/login">Back to login</a></p>`)
	})
}

func resetPasswordView(token, email string, errs map[string]string) templ.Component {
	return view(func(ctx context.Context, h *html) {
		h.raw(`<form method="post" action="/reset-password" class="card">`)
		h.printf(`<input type="hidden" name="token" value="%s"><input type="hidden" name="email" value="%s">`, esc(token), esc(email))
		h.input("password", "password", "New password", "", errs)
		h.input("password", "password_confirmation", "Confirm password", "", errs)
		h.fieldErrors(errs, "password", "password_confirmation")
		h.raw(`<button type="submit">Reset password</button></form>`)
	})
}

func verifyFailedView(email string) templ.Component {
	return view(func(ctx context.Context, h *html) {
		h.raw(`<p class="card">The verification link is invalid or has expired.</p>`)
		h.raw(`<form method="post" action="/resend-verification" class="card">`)
		h.input("email", "email", "Email", email, nil)
		h.raw(`<button type="submit">Resend verification email</button></form>`)
	})
}
