package fakeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func withUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, ctxUser{}, username)
}

func userFrom(r *http.Request) string {
	username, _ := r.Context().Value(ctxUser{}).(string)
	return username
}

func (s *Server) routes() {
	s.public("/auth/login", s.handleLogin).Methods(http.MethodPost)
	s.public("/auth/register", s.handleRegister).Methods(http.MethodPost)
	s.public("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)

	s.private("/user/profile", s.handleProfile).Methods(http.MethodGet)
	s.private("/user/profile", s.handleUpdateProfile).Methods(http.MethodPut)
	s.private("/user/password", s.handleUpdatePassword).Methods(http.MethodPut)
	s.private("/user/check-password", s.handleCheckPassword).Methods(http.MethodPost)
	s.private("/user/delete-account", s.handleDeleteAccount).Methods(http.MethodPost)

	s.private("/admin/user/list", s.handleListUsers).Methods(http.MethodGet)
	s.private("/admin/user/add", s.handleAddUser).Methods(http.MethodPost)
	s.private("/admin/user/update", s.handleUpdateUser).Methods(http.MethodPut)
	s.private("/admin/user/delete", s.handleDeleteUser).Methods(http.MethodDelete)
	s.private("/admin/user/reset-pwd/{id:[0-9]+}", s.handleResetPassword).Methods(http.MethodPost)

	s.private("/monitor/cpu-history", s.handleCPUHistory).Methods(http.MethodGet)

	s.private("/server/list", s.handleListServers).Methods(http.MethodGet)
	s.private("/server/save", s.handleSaveServer).Methods(http.MethodPost)
	s.private("/server/{id:[0-9]+}", s.handleDeleteServer).Methods(http.MethodDelete)
	s.private("/server/{id:[0-9]+}/sftp-ticket", s.handleSFTPTicket).Methods(http.MethodGet)

	s.private("/sftp/list", s.handleSFTPList).Methods(http.MethodGet)
	s.private("/sftp/upload", s.handleSFTPUpload).Methods(http.MethodPost)
	s.private("/sftp/download", s.handleSFTPDownload).Methods(http.MethodGet)
}

func (s *Server) counted(route string, fn http.HandlerFunc) http.HandlerFunc {
	v, _ := s.hits.LoadOrStore(route, new(atomic.Int64))
	counter := v.(*atomic.Int64)
	return func(w http.ResponseWriter, r *http.Request) {
		counter.Add(1)
		fn(w, r)
	}
}

func (s *Server) public(route string, fn http.HandlerFunc) *mux.Route {
	return s.api.HandleFunc(route, s.counted(route, fn))
}

func (s *Server) private(route string, fn http.HandlerFunc) *mux.Route {
	return s.api.Handle(route, s.authed(s.counted(route, fn)))
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decode(r, &body); err != nil {
		fail(w, 400, "malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.users[body.Username]
	if !found || u.Password != body.Password {
		fail(w, 500, "invalid username or password")
		return
	}
	access, refresh := s.issuePairLocked(u.Username)
	if s.legacyLogin {
		ok(w, map[string]string{"token": access})
		return
	}
	ok(w, map[string]string{"accessToken": access, "refreshToken": refresh})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username        string `json:"username"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
		Nickname        string `json:"nickname"`
		Email           string `json:"email"`
	}
	if err := decode(r, &body); err != nil {
		fail(w, 400, "malformed request")
		return
	}
	if body.Password != body.ConfirmPassword {
		fail(w, 500, "passwords do not match")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[body.Username]; exists {
		fail(w, 500, "username already exists")
		return
	}
	s.addUser(&User{Username: body.Username, Password: body.Password, Nickname: body.Nickname, Email: body.Email})
	ok(w, nil)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	select {
	case s.refreshStarted <- struct{}{}:
	default:
	}

	s.mu.Lock()
	delay, gate := s.refreshDelay, s.refreshGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decode(r, &body); err != nil {
		fail(w, 400, "malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	username, valid := s.verify(body.RefreshToken, s.refresh)
	if s.refreshFails || !valid {
		fail(w, 500, "refresh token is no longer valid, please log in again")
		return
	}
	delete(s.refresh, body.RefreshToken)
	access, refresh := s.issuePairLocked(username)
	s.minted[access] = true
	ok(w, map[string]string{"accessToken": access, "refreshToken": refresh})
}

func (s *Server) currentUser(r *http.Request) (*User, bool) {
	u, found := s.users[userFrom(r)]
	return u, found
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.currentUser(r)
	if !found {
		fail(w, 404, "user not found")
		return
	}
	ok(w, u)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Nickname string `json:"nickname"`
		Email    string `json:"email"`
		Bio      string `json:"bio"`
	}
	if err := decode(r, &body); err != nil {
		fail(w, 400, "malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.currentUser(r)
	if !found {
		fail(w, 404, "user not found")
		return
	}
	u.Nickname, u.Email, u.Bio = body.Nickname, body.Email, body.Bio
	ok(w, nil)
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := decode(r, &body); err != nil {
		fail(w, 400, "malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.currentUser(r)
	if !found {
		fail(w, 404, "user not found")
		return
	}
	if u.Password != body.OldPassword {
		fail(w, 500, "old password is incorrect")
		return
	}
	u.Password = body.NewPassword
	ok(w, nil)
}

func (s *Server) handleCheckPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := decode(r, &body); err != nil {
		fail(w, 400, "malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.currentUser(r)
	ok(w, found && u.Password == body.Password)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := decode(r, &body); err != nil {
		fail(w, 400, "malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.currentUser(r)
	if !found || u.Password != body.Password {
		fail(w, 500, "password is incorrect")
		return
	}
	delete(s.users, u.Username)
	ok(w, nil)
}

func (s *Server) sortedUsersLocked() []*User {
	users := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	filter := q.Get("username")

	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*User
	for _, u := range s.sortedUsersLocked() {
		if filter == "" || strings.Contains(u.Username, filter) {
			matched = append(matched, u)
		}
	}
	start := (page - 1) * size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	records := matched[start:end]
	if records == nil {
		records = []*User{}
	}
	ok(w, map[string]any{
		"records": records,
		"total":   len(matched),
		"size":    size,
		"current": page,
		"pages":   (len(matched) + size - 1) / size,
	})
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Nickname string `json:"nickname"`
		Email    string `json:"email"`
		Role     string `json:"role"`
	}
	if err := decode(r, &body); err != nil {
		fail(w, 400, "malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[body.Username]; exists {
		fail(w, 500, "username already exists")
		return
	}
	if body.Password == "" {
		body.Password = "123456"
	}
	s.addUser(&User{Username: body.Username, Password: body.Password, Nickname: body.Nickname, Email: body.Email, Role: body.Role})
	ok(w, "user added")
}

func (s *Server) userByIDLocked(id int64) (*User, bool) {
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return nil, false
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var body User
	if err := decode(r, &body); err != nil {
		fail(w, 400, "malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.userByIDLocked(body.ID)
	if !found {
		fail(w, 404, "user not found")
		return
	}
	u.Nickname, u.Email = body.Nickname, body.Email
	if body.Role != "" {
		u.Role = body.Role
	}
	ok(w, nil)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		fail(w, 400, "invalid id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.userByIDLocked(id)
	if !found {
		fail(w, 404, "user not found")
		return
	}
	delete(s.users, u.Username)
	ok(w, nil)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.userByIDLocked(id)
	if !found {
		fail(w, 404, "user not found")
		return
	}
	u.Password = "123456"
	ok(w, nil)
}

func (s *Server) handleCPUHistory(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("ip") == "" {
		fail(w, 400, "ip is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ok(w, s.cpu)
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	ok(w, s.Servers())
}

func (s *Server) handleSaveServer(w http.ResponseWriter, r *http.Request) {
	var body ServerInfo
	if err := decode(r, &body); err != nil {
		fail(w, 400, "malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if body.ID == 0 {
		s.nextServerID++
		body.ID = s.nextServerID
	} else if _, found := s.servers[body.ID]; !found {
		fail(w, 404, "server not found")
		return
	}
	body.Password = ""
	s.servers[body.ID] = &body
	ok(w, "saved")
}

func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.servers[id]; !found {
		fail(w, 404, "server not found")
		return
	}
	delete(s.servers, id)
	delete(s.files, id)
	ok(w, "deleted")
}

func (s *Server) handleSFTPTicket(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.servers[id]; !found {
		fail(w, 404, "server not found")
		return
	}
	ticket := uuid.NewString()
	s.tickets[ticket] = id
	ok(w, map[string]any{
		"serverId":   id,
		"sftpTicket": ticket,
		"expiresAt":  time.Now().Add(time.Minute).UTC().Format(time.RFC3339),
	})
}

// consumeTicket redeems a one-shot ticket. An unknown ticket is answered with
// code 401, like the backend does.
func (s *Server) consumeTicket(w http.ResponseWriter, ticket string) (int64, bool) {
	id, found := s.tickets[ticket]
	if !found {
		fail(w, 401, "sftp ticket is invalid or expired")
		return 0, false
	}
	delete(s.tickets, ticket)
	return id, true
}

type sftpItem struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	Mtime       string `json:"mtime"`
	Permissions string `json:"permissions"`
}

func (s *Server) handleSFTPList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dir := q.Get("path")
	if dir == "" {
		dir = "/"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, valid := s.consumeTicket(w, q.Get("ticket"))
	if !valid {
		return
	}
	items := []sftpItem{}
	for p, content := range s.files[id] {
		if path.Dir(p) != path.Clean(dir) {
			continue
		}
		items = append(items, sftpItem{
			Name:        path.Base(p),
			Path:        p,
			Type:        "FILE",
			Size:        int64(len(content)),
			Mtime:       "2025-01-01T00:00:00Z",
			Permissions: "-rw-r--r--",
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	ok(w, items)
}

func (s *Server) handleSFTPUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		fail(w, 400, "malformed multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		fail(w, 400, "file is required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		fail(w, 500, "upload failed")
		return
	}
	target := path.Join(r.FormValue("targetDir"), header.Filename)
	overwrite := r.FormValue("overwrite") == "true"

	s.mu.Lock()
	defer s.mu.Unlock()
	id, valid := s.consumeTicket(w, r.FormValue("ticket"))
	if !valid {
		return
	}
	if _, exists := s.files[id][target]; exists && !overwrite {
		fail(w, 409, fmt.Sprintf("%s already exists", target))
		return
	}
	if s.files[id] == nil {
		s.files[id] = map[string][]byte{}
	}
	s.files[id][target] = content
	ok(w, map[string]any{"remotePath": target, "size": len(content)})
}

func (s *Server) handleSFTPDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	id, valid := s.tickets[q.Get("ticket")]
	delete(s.tickets, q.Get("ticket"))
	content, found := s.files[id][q.Get("path")]
	s.mu.Unlock()
	if !valid {
		http.Error(w, "sftp ticket is invalid or expired", http.StatusForbidden)
		return
	}
	if !found {
		http.Error(w, "no such file", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(q.Get("path"))))
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	_, _ = w.Write(content)
}
