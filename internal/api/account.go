package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// UpdatePasswordRequest changes the signed-in client's password
type UpdatePasswordRequest struct {
	CurrentPassword      string `json:"current_password"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// UpdateEmailRequest changes the email address; the current password is required
type UpdateEmailRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type availability struct {
	Available bool `json:"available"`
}

// Profile fetches the client profile
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var resp struct {
		Profile *Profile `json:"profile"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/client/profile/show"}, &resp); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if resp.Profile == nil {
		return &Profile{}, nil
	}
	return resp.Profile, nil
}

// UpdateProfileInfo changes the first and last name
func (c *Client) UpdateProfileInfo(ctx context.Context, firstName, lastName string) error {
	body := map[string]string{"first_name": firstName, "last_name": lastName}
	if err := c.do(ctx, request{method: http.MethodPut, path: "/api/client/profile/update/profile-info", body: body}, nil); err != nil {
		return fmt.Errorf("update profile info: %w", err)
	}
	return nil
}

// UpdateProfilePhoto uploads a new profile photo as multipart data
func (c *Client) UpdateProfilePhoto(ctx context.Context, filename string, photo io.Reader) error {
	form, err := encodeMultipart(nil, &filePart{field: "profile_photo", filename: filename, content: photo})
	if err != nil {
		return err
	}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/client/profile/update/profile-photo", form: form}, nil); err != nil {
		return fmt.Errorf("update profile photo: %w", err)
	}
	return nil
}

// UsernameAvailable asks whether a username is free
func (c *Client) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	var resp availability
	body := map[string]string{"username": username}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/client/settings/check-username", body: body}, &resp); err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return resp.Available, nil
}

// EmailAvailable asks whether an email address is free
func (c *Client) EmailAvailable(ctx context.Context, email string) (bool, error) {
	var resp availability
	body := map[string]string{"email": email}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/client/settings/check-email", body: body}, &resp); err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return resp.Available, nil
}

// UpdateUsername changes the username
func (c *Client) UpdateUsername(ctx context.Context, username string) error {
	body := map[string]string{"username": username}
	if err := c.do(ctx, request{method: http.MethodPut, path: "/api/client/settings/update-username", body: body}, nil); err != nil {
		return fmt.Errorf("update username: %w", err)
	}
	return nil
}

// UpdateEmail changes the email address
func (c *Client) UpdateEmail(ctx context.Context, req UpdateEmailRequest) error {
	if err := c.do(ctx, request{method: http.MethodPut, path: "/api/client/settings/update-email", body: req}, nil); err != nil {
		return fmt.Errorf("update email: %w", err)
	}
	return nil
}

// UpdatePassword changes the password
func (c *Client) UpdatePassword(ctx context.Context, req UpdatePasswordRequest) error {
	if err := c.do(ctx, request{method: http.MethodPut, path: "/api/client/settings/update-password", body: req}, nil); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// DashboardStats fetches the dashboard summary
func (c *Client) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	var stats DashboardStats
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/client/dashboard/stats"}, &stats); err != nil {
		return nil, fmt.Errorf("get dashboard stats: %w", err)
	}
	return &stats, nil
}
