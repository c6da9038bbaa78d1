package api

import "context"

// Profile returns the logged-in user.
func (a *API) Profile(ctx context.Context) (*User, error) {
	var u User
	if err := a.get(ctx, "/user/profile", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (a *API) UpdateProfile(ctx context.Context, p ProfileUpdate) error {
	return a.put(ctx, "/user/profile", p, nil)
}

func (a *API) UpdatePassword(ctx context.Context, oldPassword, newPassword string) error {
	return a.put(ctx, "/user/password", PasswordChange{OldPassword: oldPassword, NewPassword: newPassword}, nil)
}

// CheckPassword reports whether password is the current user's password.
func (a *API) CheckPassword(ctx context.Context, password string) (bool, error) {
	var valid bool
	if err := a.post(ctx, "/user/check-password", map[string]string{"password": password}, &valid); err != nil {
		return false, err
	}
	return valid, nil
}
