package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// LoginRequest signs a client in with a username or email
type LoginRequest struct {
	Login      string `json:"login"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// RegisterRequest creates a new client account
type RegisterRequest struct {
	FirstName            string
	LastName             string
	Username             string
	Email                string
	Password             string
	PasswordConfirmation string
}

// ResetPasswordRequest completes a password reset
type ResetPasswordRequest struct {
	Email                string `json:"email"`
	Token                string `json:"token"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// CheckAuth reports whether the session is authenticated and, if so, the user
func (c *Client) CheckAuth(ctx context.Context) (*AuthStatus, error) {
	var status AuthStatus
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/client/check-auth"}, &status); err != nil {
		return nil, fmt.Errorf("check auth: %w", err)
	}
	return &status, nil
}

// Login signs in and stores the session cookie in the client's jar
func (c *Client) Login(ctx context.Context, req LoginRequest) error {
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/client/login", body: req}, nil); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// Register creates an account. The backend expects multipart form data.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	form, err := encodeMultipart(map[string]string{
		"first_name":            req.FirstName,
		"last_name":             req.LastName,
		"username":              req.Username,
		"email":                 req.Email,
		"password":              req.Password,
		"password_confirmation": req.PasswordConfirmation,
	}, nil)
	if err != nil {
		return err
	}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/client/register", form: form}, nil); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// Logout ends the backend session
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/client/logout"}, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ForgotPassword requests a password reset email
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/client/forgot-password", body: body}, nil); err != nil {
		return fmt.Errorf("forgot password: %w", err)
	}
	return nil
}

// VerifyResetToken checks that a password reset link is still valid
func (c *Client) VerifyResetToken(ctx context.Context, token, email string) error {
	body := map[string]string{"token": token, "email": email}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/client/verify-password-reset-token", body: body}, nil); err != nil {
		return fmt.Errorf("verify reset token: %w", err)
	}
	return nil
}

// ResetPassword sets a new password using a reset token
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/client/reset-password", body: req}, nil); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

// VerifyEmail confirms an email address with the token from the verification mail
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	path := "/api/client/verify-email/" + url.PathEscape(token)
	if err := c.do(ctx, request{method: http.MethodPost, path: path}, nil); err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	return nil
}

// ResendVerification sends the verification email again
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/client/resend-verification", body: body}, nil); err != nil {
		return fmt.Errorf("resend verification: %w", err)
	}
	return nil
}

// filePart is one file attached to a multipart request
type filePart struct {
	field    string
	filename string
	content  io.Reader
}

// encodeMultipart buffers a multipart body so it can be replayed on retry
func encodeMultipart(fields map[string]string, file *filePart) (*multipartBody, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", name, err)
		}
	}

	if file != nil {
		part, err := w.CreateFormFile(file.field, file.filename)
		if err != nil {
			return nil, fmt.Errorf("create form file: %w", err)
		}
		if _, err := io.Copy(part, file.content); err != nil {
			return nil, fmt.Errorf("copy form file: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	return &multipartBody{contentType: w.FormDataContentType(), data: buf.Bytes()}, nil
}
