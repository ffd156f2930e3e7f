package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/org/assetwatch/internal/auth"
	"github.com/org/assetwatch/internal/storage"
	"github.com/org/assetwatch/pkg/models"
)

// --- In-memory storage backend for tests ---

type memStore struct {
	users     map[string]*models.User
	sessions  map[string]*models.Session // keyed by token hash
	devices   map[string]*models.Device
	discovery map[string][]*models.DiscoveryRecord
	lastSweep string
	blocked   map[string]*models.BlockedSite
	router    *models.RouterConfig
	alerts    []*models.Alert
	settings  map[string]string
	activity  []*models.ActivityEntry
	nextID    int64
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]*models.User{},
		sessions:  map[string]*models.Session{},
		devices:   map[string]*models.Device{},
		discovery: map[string][]*models.DiscoveryRecord{},
		blocked:   map[string]*models.BlockedSite{},
		settings:  map[string]string{},
	}
}

func (m *memStore) CreateUser(ctx context.Context, u *models.User) error {
	if _, ok := m.users[u.Username]; ok {
		return storage.ErrAlreadyExists
	}
	m.users[u.Username] = u
	return nil
}

func (m *memStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	if u, ok := m.users[username]; ok {
		return u, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (m *memStore) DeleteUser(ctx context.Context, username string) error {
	if _, ok := m.users[username]; !ok {
		return storage.ErrNotFound
	}
	delete(m.users, username)
	return nil
}

func (m *memStore) TouchUserLogin(ctx context.Context, username string, at time.Time) error {
	if u, ok := m.users[username]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (m *memStore) WriteSession(ctx context.Context, s *models.Session, tokenHash string) error {
	m.sessions[tokenHash] = s
	return nil
}

func (m *memStore) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	if s, ok := m.sessions[tokenHash]; ok {
		return s, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) RevokeSession(ctx context.Context, sessionID string) error {
	for _, s := range m.sessions {
		if s.ID == sessionID && s.RevokedAt == nil {
			now := time.Now()
			s.RevokedAt = &now
		}
	}
	return nil
}

func (m *memStore) RevokeUserSessions(ctx context.Context, username string) error {
	for _, s := range m.sessions {
		if s.Username == username && s.RevokedAt == nil {
			now := time.Now()
			s.RevokedAt = &now
		}
	}
	return nil
}

func (m *memStore) CreateDevice(ctx context.Context, d *models.Device) error {
	m.devices[d.ID] = d
	return nil
}

func (m *memStore) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	if d, ok := m.devices[id]; ok {
		return d, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) ListDevices(ctx context.Context, filter models.DeviceFilter) ([]*models.Device, error) {
	var devices []*models.Device
	for _, d := range m.devices {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.Type != "" && d.Type != filter.Type {
			continue
		}
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

func (m *memStore) UpdateDevice(ctx context.Context, d *models.Device) error {
	if _, ok := m.devices[d.ID]; !ok {
		return storage.ErrNotFound
	}
	m.devices[d.ID] = d
	return nil
}

func (m *memStore) DeleteDevice(ctx context.Context, id string) error {
	if _, ok := m.devices[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *memStore) TouchDevice(ctx context.Context, id, status string, seenAt time.Time) error {
	if d, ok := m.devices[id]; ok {
		d.Status = status
		d.LastSeen = &seenAt
	}
	return nil
}

func (m *memStore) WriteDiscoveryRecords(ctx context.Context, records []*models.DiscoveryRecord) error {
	for _, r := range records {
		m.nextID++
		r.ID = m.nextID
		m.discovery[r.SweepID] = append(m.discovery[r.SweepID], r)
		m.lastSweep = r.SweepID
	}
	return nil
}

func (m *memStore) ListDiscoveryRecords(ctx context.Context, sweepID string, limit int) ([]*models.DiscoveryRecord, error) {
	return m.discovery[sweepID], nil
}

func (m *memStore) LatestSweepID(ctx context.Context) (string, error) {
	if m.lastSweep == "" {
		return "", storage.ErrNotFound
	}
	return m.lastSweep, nil
}

func (m *memStore) AddBlockedSite(ctx context.Context, site *models.BlockedSite) error {
	m.nextID++
	site.ID = m.nextID
	m.blocked[site.Hostname] = site
	return nil
}

func (m *memStore) RemoveBlockedSite(ctx context.Context, hostname string) error {
	if _, ok := m.blocked[hostname]; !ok {
		return storage.ErrNotFound
	}
	delete(m.blocked, hostname)
	return nil
}

func (m *memStore) ListBlockedSites(ctx context.Context) ([]*models.BlockedSite, error) {
	var sites []*models.BlockedSite
	for _, s := range m.blocked {
		sites = append(sites, s)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Hostname < sites[j].Hostname })
	return sites, nil
}

func (m *memStore) GetRouterConfig(ctx context.Context) (*models.RouterConfig, error) {
	if m.router == nil {
		return nil, storage.ErrNotFound
	}
	return m.router, nil
}

func (m *memStore) WriteRouterConfig(ctx context.Context, cfg *models.RouterConfig) error {
	m.router = cfg
	return nil
}

func (m *memStore) CreateAlert(ctx context.Context, a *models.Alert) error {
	m.nextID++
	a.ID = m.nextID
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *memStore) ListAlerts(ctx context.Context, openOnly bool, limit int) ([]*models.Alert, error) {
	var alerts []*models.Alert
	for _, a := range m.alerts {
		if openOnly && a.AckedAt != nil {
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func (m *memStore) AckAlert(ctx context.Context, id int64, username string) error {
	for _, a := range m.alerts {
		if a.ID == id && a.AckedAt == nil {
			now := time.Now()
			a.AckedBy = &username
			a.AckedAt = &now
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *memStore) GetSetting(ctx context.Context, key string) (string, error) {
	if v, ok := m.settings[key]; ok {
		return v, nil
	}
	return "", storage.ErrNotFound
}

func (m *memStore) SetSetting(ctx context.Context, key, value string) error {
	m.settings[key] = value
	return nil
}

func (m *memStore) ListSettings(ctx context.Context) (map[string]string, error) {
	return m.settings, nil
}

func (m *memStore) WriteActivityEntry(ctx context.Context, e *models.ActivityEntry) error {
	m.activity = append(m.activity, e)
	return nil
}

func (m *memStore) QueryActivity(ctx context.Context, filter storage.ActivityFilter) ([]*models.ActivityEntry, error) {
	return m.activity, nil
}

func (m *memStore) CountDevices(ctx context.Context) (int64, error) {
	return int64(len(m.devices)), nil
}
func (m *memStore) CountActiveSessions(ctx context.Context) (int64, error) {
	return int64(len(m.sessions)), nil
}
func (m *memStore) CountOpenAlerts(ctx context.Context) (int64, error) {
	return int64(len(m.alerts)), nil
}
func (m *memStore) Close() {}

// --- test helpers ---

func newTestServer(t *testing.T) (*Server, http.Handler, *memStore) {
	t.Helper()
	store := newMemStore()
	srv := NewServer(store, Config{})

	ctx := context.Background()
	for username, role := range map[string]string{
		"alice": "admin",
		"carol": "manager",
		"bob":   "viewer",
	} {
		hash, err := auth.HashPassword(username + "-password")
		if err != nil {
			t.Fatalf("hashing password: %v", err)
		}
		err = store.CreateUser(ctx, &models.User{
			ID:           username,
			Username:     username,
			PasswordHash: hash,
			Role:         role,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("seeding user %s: %v", username, err)
		}
	}

	return srv, srv.BuildRouter(), store
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(SessionHeader, token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decoding response: %v (body: %s)", err, w.Body.String())
	}
	return result
}

func loginAs(t *testing.T, handler http.Handler, username string, remember bool) string {
	t.Helper()
	w := doJSON(t, handler, "POST", "/v1/auth/login", map[string]any{
		"username":    username,
		"password":    username + "-password",
		"remember_me": remember,
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", username, w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	token, _ := body["auth"].(map[string]any)["session_token"].(string)
	if token == "" {
		t.Fatal("expected session_token in login response")
	}
	return token
}

// --- tests ---

func TestHealthEndpoint(t *testing.T) {
	_, handler, _ := newTestServer(t)

	w := doJSON(t, handler, "GET", "/v1/sys/health", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestLoginBadPassword(t *testing.T) {
	_, handler, _ := newTestServer(t)

	w := doJSON(t, handler, "POST", "/v1/auth/login", map[string]any{
		"username": "alice", "password": "wrong",
	}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d %s", w.Code, w.Body.String())
	}
}

func TestLoginUnknownUser(t *testing.T) {
	_, handler, _ := newTestServer(t)

	w := doJSON(t, handler, "POST", "/v1/auth/login", map[string]any{
		"username": "mallory", "password": "whatever",
	}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestMissingTokenRejected(t *testing.T) {
	_, handler, _ := newTestServer(t)

	w := doJSON(t, handler, "GET", "/v1/devices", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	w = doJSON(t, handler, "GET", "/v1/devices", nil, "ast_bogus")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bogus token, got %d", w.Code)
	}
}

func TestDeviceCRUD(t *testing.T) {
	_, handler, _ := newTestServer(t)
	token := loginAs(t, handler, "alice", false)

	// Create
	w := doJSON(t, handler, "POST", "/v1/devices", map[string]any{
		"name": "front-desk-printer", "type": "printer",
		"ip_address": "10.0.0.12", "mac": "aa:bb:cc:dd:ee:01",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}
	created := decodeBody(t, w)["data"].(map[string]any)
	id := created["id"].(string)

	// Get
	w = doJSON(t, handler, "GET", "/v1/devices/"+id, nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("get failed: %d %s", w.Code, w.Body.String())
	}
	got := decodeBody(t, w)["data"].(map[string]any)
	if got["name"] != "front-desk-printer" {
		t.Errorf("expected name=front-desk-printer, got %v", got["name"])
	}

	// Update
	w = doJSON(t, handler, "PUT", "/v1/devices/"+id, map[string]any{
		"name": "lobby-printer", "type": "printer",
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("update failed: %d %s", w.Code, w.Body.String())
	}

	// List
	w = doJSON(t, handler, "GET", "/v1/devices", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("list failed: %d", w.Code)
	}

	// Delete
	w = doJSON(t, handler, "DELETE", "/v1/devices/"+id, nil, token)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete failed: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, handler, "GET", "/v1/devices/"+id, nil, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestViewerCannotMutateDevices(t *testing.T) {
	_, handler, _ := newTestServer(t)
	token := loginAs(t, handler, "bob", false)

	// Viewer can list
	w := doJSON(t, handler, "GET", "/v1/devices", nil, token)
	if w.Code != http.StatusOK {
		t.Errorf("viewer list should be allowed, got %d", w.Code)
	}

	// But not create or delete
	w = doJSON(t, handler, "POST", "/v1/devices", map[string]any{
		"name": "x", "type": "laptop",
	}, token)
	if w.Code != http.StatusForbidden {
		t.Errorf("viewer create should be 403, got %d", w.Code)
	}
	w = doJSON(t, handler, "DELETE", "/v1/devices/some-id", nil, token)
	if w.Code != http.StatusForbidden {
		t.Errorf("viewer delete should be 403, got %d", w.Code)
	}
}

func TestManagerCannotManageUsers(t *testing.T) {
	_, handler, _ := newTestServer(t)
	token := loginAs(t, handler, "carol", false)

	w := doJSON(t, handler, "GET", "/v1/users", nil, token)
	if w.Code != http.StatusForbidden {
		t.Errorf("manager user list should be 403, got %d", w.Code)
	}

	// But manager can run a discovery sweep
	w = doJSON(t, handler, "POST", "/v1/network/discovery", map[string]any{
		"records": []map[string]any{
			{"ip_address": "10.0.0.7", "mac": "aa:bb:cc:dd:ee:07", "hostname": "nas"},
		},
	}, token)
	if w.Code != http.StatusOK {
		t.Errorf("manager sweep should be allowed, got %d %s", w.Code, w.Body.String())
	}
}

func TestRouterConfigAdminOnly(t *testing.T) {
	_, handler, _ := newTestServer(t)

	manager := loginAs(t, handler, "carol", false)
	w := doJSON(t, handler, "PUT", "/v1/network/router", map[string]any{
		"address": "192.168.1.1",
	}, manager)
	if w.Code != http.StatusForbidden {
		t.Errorf("manager router update should be 403, got %d", w.Code)
	}

	admin := loginAs(t, handler, "alice", false)
	w = doJSON(t, handler, "PUT", "/v1/network/router", map[string]any{
		"address": "192.168.1.1", "dns_servers": []string{"1.1.1.1", "8.8.8.8"},
	}, admin)
	if w.Code != http.StatusOK {
		t.Errorf("admin router update should be allowed, got %d %s", w.Code, w.Body.String())
	}
}

func TestWebsiteBlocking(t *testing.T) {
	_, handler, store := newTestServer(t)
	token := loginAs(t, handler, "carol", false)

	w := doJSON(t, handler, "POST", "/v1/blocking/sites", map[string]any{
		"site": "https://www.Example.com/ads?x=1", "reason": "distraction",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("block failed: %d %s", w.Code, w.Body.String())
	}
	if _, ok := store.blocked["example.com"]; !ok {
		t.Errorf("expected normalized hostname example.com, have %v", store.blocked)
	}

	w = doJSON(t, handler, "DELETE", "/v1/blocking/sites/example.com", nil, token)
	if w.Code != http.StatusNoContent {
		t.Fatalf("unblock failed: %d %s", w.Code, w.Body.String())
	}
}

func TestScanReconcilesDevices(t *testing.T) {
	_, handler, _ := newTestServer(t)
	token := loginAs(t, handler, "alice", false)

	// Register two devices; only one shows up in the sweep.
	w := doJSON(t, handler, "POST", "/v1/devices", map[string]any{
		"name": "nas", "type": "storage", "mac": "aa:bb:cc:dd:ee:07",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, handler, "POST", "/v1/devices", map[string]any{
		"name": "old-laptop", "type": "laptop", "mac": "aa:bb:cc:dd:ee:99",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, handler, "POST", "/v1/network/discovery", map[string]any{
		"records": []map[string]any{
			{"ip_address": "10.0.0.7", "mac": "AA-BB-CC-DD-EE-07"},
		},
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("sweep failed: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, handler, "POST", "/v1/devices/scan", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("scan failed: %d %s", w.Code, w.Body.String())
	}
	data := decodeBody(t, w)["data"].(map[string]any)
	if data["online"].(float64) != 1 || data["offline"].(float64) != 1 {
		t.Errorf("expected online=1 offline=1, got %v", data)
	}
}

func TestScanRaisesOfflineAlert(t *testing.T) {
	_, handler, _ := newTestServer(t)
	token := loginAs(t, handler, "alice", false)

	w := doJSON(t, handler, "POST", "/v1/devices", map[string]any{
		"name": "nas", "type": "storage", "mac": "aa:bb:cc:dd:ee:07", "status": "online",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}

	// Sweep without the device's MAC, then scan: online -> offline.
	w = doJSON(t, handler, "POST", "/v1/network/discovery", map[string]any{
		"records": []map[string]any{
			{"ip_address": "10.0.0.1", "mac": "aa:bb:cc:dd:ee:01"},
		},
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("sweep failed: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, handler, "POST", "/v1/devices/scan", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("scan failed: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, handler, "GET", "/v1/alerts?open=true", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("alert list failed: %d", w.Code)
	}
	alerts, _ := decodeBody(t, w)["data"].(map[string]any)["alerts"].([]any)
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(alerts))
	}
	msg, _ := alerts[0].(map[string]any)["message"].(string)
	if !strings.Contains(msg, "nas") || !strings.Contains(msg, "offline") {
		t.Errorf("unexpected alert message %q", msg)
	}
}

func TestSweepRaisesNewHostAlert(t *testing.T) {
	_, handler, _ := newTestServer(t)
	token := loginAs(t, handler, "carol", false)

	// First sweep establishes the baseline; it must not alert.
	w := doJSON(t, handler, "POST", "/v1/network/discovery", map[string]any{
		"records": []map[string]any{
			{"ip_address": "10.0.0.7", "mac": "aa:bb:cc:dd:ee:07", "hostname": "nas"},
		},
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("first sweep failed: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, handler, "GET", "/v1/alerts", nil, token)
	alerts, _ := decodeBody(t, w)["data"].(map[string]any)["alerts"].([]any)
	if len(alerts) != 0 {
		t.Fatalf("first sweep must not raise alerts, got %d", len(alerts))
	}

	// Second sweep introduces one new host.
	w = doJSON(t, handler, "POST", "/v1/network/discovery", map[string]any{
		"records": []map[string]any{
			{"ip_address": "10.0.0.7", "mac": "aa:bb:cc:dd:ee:07", "hostname": "nas"},
			{"ip_address": "10.0.0.9", "mac": "AA-BB-CC-DD-EE-09", "hostname": "printer-9"},
		},
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("second sweep failed: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, handler, "GET", "/v1/alerts", nil, token)
	alerts, _ = decodeBody(t, w)["data"].(map[string]any)["alerts"].([]any)
	if len(alerts) != 1 {
		t.Fatalf("expected one new-host alert, got %d", len(alerts))
	}
	msg, _ := alerts[0].(map[string]any)["message"].(string)
	if !strings.Contains(msg, "printer-9") {
		t.Errorf("alert should name the new host, got %q", msg)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	_, handler, _ := newTestServer(t)
	token := loginAs(t, handler, "alice", true)

	w := doJSON(t, handler, "POST", "/v1/auth/logout", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("logout failed: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["redirect"] != "/login" {
		t.Errorf("expected redirect=/login, got %v", body["redirect"])
	}

	w = doJSON(t, handler, "GET", "/v1/auth/whoami", nil, token)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", w.Code)
	}
}

func TestWhoamiReportsCapabilities(t *testing.T) {
	_, handler, _ := newTestServer(t)
	token := loginAs(t, handler, "bob", false)

	w := doJSON(t, handler, "GET", "/v1/auth/whoami", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("whoami failed: %d %s", w.Code, w.Body.String())
	}
	data := decodeBody(t, w)["data"].(map[string]any)
	if data["role"] != "viewer" {
		t.Errorf("expected role=viewer, got %v", data["role"])
	}
	caps, _ := data["capabilities"].([]any)
	joined := make([]string, len(caps))
	for i, c := range caps {
		joined[i] = c.(string)
	}
	capsStr := strings.Join(joined, ",")
	if !strings.Contains(capsStr, "view_devices") {
		t.Errorf("viewer should hold view_devices, got %s", capsStr)
	}
	if strings.Contains(capsStr, "manage_users") {
		t.Errorf("viewer must not hold manage_users, got %s", capsStr)
	}
	pages, _ := data["pages"].([]any)
	for _, p := range pages {
		if p == "/settings" {
			t.Error("viewer pages must not include /settings")
		}
	}
}

func TestUserManagement(t *testing.T) {
	_, handler, _ := newTestServer(t)
	admin := loginAs(t, handler, "alice", false)

	// Create a manager account
	w := doJSON(t, handler, "POST", "/v1/users", map[string]any{
		"username": "dana", "password": "dana-password", "role": "Manager",
	}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("user create failed: %d %s", w.Code, w.Body.String())
	}

	// Unknown role is rejected at the boundary
	w = doJSON(t, handler, "POST", "/v1/users", map[string]any{
		"username": "eve", "password": "s3cret-pass", "role": "superuser",
	}, admin)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown role should be 400, got %d", w.Code)
	}

	// Self-deletion is refused
	w = doJSON(t, handler, "DELETE", "/v1/users/alice", nil, admin)
	if w.Code != http.StatusBadRequest {
		t.Errorf("self delete should be 400, got %d", w.Code)
	}

	// Deleting dana revokes her sessions
	dana := loginAs(t, handler, "dana", true)
	w = doJSON(t, handler, "DELETE", "/v1/users/dana", nil, admin)
	if w.Code != http.StatusNoContent {
		t.Fatalf("user delete failed: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, handler, "GET", "/v1/auth/whoami", nil, dana)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("deleted user session should be 401, got %d", w.Code)
	}
}

func TestSettingsAdminOnly(t *testing.T) {
	_, handler, store := newTestServer(t)

	viewer := loginAs(t, handler, "bob", false)
	w := doJSON(t, handler, "GET", "/v1/settings", nil, viewer)
	if w.Code != http.StatusForbidden {
		t.Errorf("viewer settings should be 403, got %d", w.Code)
	}

	admin := loginAs(t, handler, "alice", false)
	w = doJSON(t, handler, "PUT", "/v1/settings", map[string]string{
		"refresh_interval": "30s",
	}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("settings put failed: %d %s", w.Code, w.Body.String())
	}
	if store.settings["refresh_interval"] != "30s" {
		t.Errorf("setting not stored: %v", store.settings)
	}
}

func TestAlertsAckFlow(t *testing.T) {
	_, handler, store := newTestServer(t)
	store.CreateAlert(context.Background(), &models.Alert{ //nolint:errcheck
		Severity: models.SeverityWarning, Message: "device offline", CreatedAt: time.Now(),
	})

	token := loginAs(t, handler, "bob", false)
	w := doJSON(t, handler, "GET", "/v1/alerts?open=true", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("alert list failed: %d", w.Code)
	}

	w = doJSON(t, handler, "POST", "/v1/alerts/1/ack", nil, token)
	if w.Code != http.StatusNoContent {
		t.Fatalf("ack failed: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, handler, "POST", "/v1/alerts/1/ack", nil, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("double ack should be 404, got %d", w.Code)
	}
}

func TestDurableSessionSurvivesRestart(t *testing.T) {
	_, handler, store := newTestServer(t)
	durable := loginAs(t, handler, "alice", true)
	volatile := loginAs(t, handler, "carol", false)

	// A new server over the same storage stands in for a restart:
	// in-process volatile sessions are gone, persisted ones remain.
	restarted := NewServer(store, Config{}).BuildRouter()

	w := doJSON(t, restarted, "GET", "/v1/auth/whoami", nil, durable)
	if w.Code != http.StatusOK {
		t.Errorf("durable session should survive restart, got %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, restarted, "GET", "/v1/auth/whoami", nil, volatile)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("volatile session should die with the process, got %d", w.Code)
	}
}

func TestActivityRequiresReports(t *testing.T) {
	_, handler, _ := newTestServer(t)
	token := loginAs(t, handler, "bob", false)

	// Viewer holds view_reports, so activity is visible.
	w := doJSON(t, handler, "GET", "/v1/sys/activity", nil, token)
	if w.Code != http.StatusOK {
		t.Errorf("viewer activity should be allowed, got %d %s", w.Code, w.Body.String())
	}
}
