package api

import "time"

// User is an account as returned by the profile and admin endpoints.
type User struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Nickname   string `json:"nickname,omitempty"`
	Email      string `json:"email,omitempty"`
	Bio        string `json:"bio,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	Role       string `json:"role,omitempty"`
	CreateTime string `json:"createTime,omitempty"`
}

// RegisterRequest is the self-service sign-up form.
type RegisterRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Nickname        string `json:"nickname,omitempty"`
	Email           string `json:"email,omitempty"`
}

// NewUser is the admin form for creating an account. An empty password lets the backend pick its default.
type NewUser struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

// ProfileUpdate holds the fields a user may change on their own profile.
type ProfileUpdate struct {
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
	Bio      string `json:"bio"`
}

// PasswordChange is the body of the change-password call.
type PasswordChange struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// UserQuery filters and pages the admin user list.
type UserQuery struct {
	Page     int
	Size     int
	Username string
}

// UserPage is one page of the admin user list.
type UserPage struct {
	Records []User `json:"records"`
	Total   int64  `json:"total"`
	Size    int64  `json:"size"`
	Current int64  `json:"current"`
	Pages   int64  `json:"pages"`
}

// ServerInfo is a managed host. Password is write-only.
type ServerInfo struct {
	ID       int64  `json:"id,omitempty"`
	Name     string `json:"name"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	IsOnline bool   `json:"isOnline"`
}

// CPUPoint is one sample of a host's CPU usage in percent.
type CPUPoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// SFTPTicket authorizes exactly one SFTP operation on a server.
type SFTPTicket struct {
	ServerID  int64     `json:"serverId"`
	Ticket    string    `json:"sftpTicket"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SFTPEntry is one item of a remote directory listing.
type SFTPEntry struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Type        string    `json:"type"`
	Size        int64     `json:"size"`
	Mtime       time.Time `json:"mtime"`
	Permissions string    `json:"permissions"`
}

// IsDir reports whether the entry is a directory.
func (e SFTPEntry) IsDir() bool { return e.Type == "DIR" }

// UploadResult describes a stored upload.
type UploadResult struct {
	RemotePath string `json:"remotePath"`
	Size       int64  `json:"size"`
}
