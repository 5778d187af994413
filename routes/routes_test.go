package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BerniceZTT/crm_web/controllers"
	"github.com/BerniceZTT/crm_web/middleware"
	"github.com/BerniceZTT/crm_web/repository"
	"github.com/BerniceZTT/crm_web/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const testSession = "6f1c2a4e-8b1d-4c3e-9f00-123456789abc"

// remoteStub 内存版远程存储
type remoteStub struct {
	mu     sync.Mutex
	data   map[string][]map[string]interface{}
	nextID int
	fail   map[string]int
	calls  []string
}

func (s *remoteStub) seed(collection string, raw string) {
	var docs []map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[collection] = append(s.data[collection], docs...)
}

func (s *remoteStub) count(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (s *remoteStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Method + " " + r.URL.Path
	s.calls = append(s.calls, key)
	w.Header().Set("Content-Type", "application/json")
	if status, ok := s.fail[key]; ok {
		w.WriteHeader(status)
		fmt.Fprint(w, `{"message":"backend rejected"}`)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	collection, id := parts[0], ""
	if len(parts) > 1 {
		id = parts[1]
	}
	idx := -1
	for i, d := range s.data[collection] {
		if fmt.Sprint(d["id"]) == id {
			idx = i
		}
	}

	switch r.Method {
	case http.MethodGet:
		items := s.data[collection]
		if items == nil {
			items = []map[string]interface{}{}
		}
		_ = json.NewEncoder(w).Encode(items)
	case http.MethodPost:
		var doc map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&doc)
		s.nextID++
		doc["id"] = fmt.Sprint(s.nextID)
		s.data[collection] = append(s.data[collection], doc)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(doc)
	case http.MethodPut:
		if idx < 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var doc map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&doc)
		doc["id"] = id
		s.data[collection][idx] = doc
		_ = json.NewEncoder(w).Encode(doc)
	case http.MethodDelete:
		if idx < 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		items := s.data[collection]
		s.data[collection] = append(items[:idx:idx], items[idx+1:]...)
		fmt.Fprint(w, `{}`)
	}
}

type testServer struct {
	router *gin.Engine
	remote *remoteStub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	remote := &remoteStub{data: map[string][]map[string]interface{}{}, nextID: 100, fail: map[string]int{}}
	backend := httptest.NewServer(remote)
	t.Cleanup(backend.Close)

	store := repository.NewRemoteStore(backend.URL, 5*time.Second)
	controllers.Setup(&controllers.Env{
		Store:            store,
		Registry:         service.NewWorkspaceRegistry(store, 2),
		Navigation:       service.NewNavigationStore(repository.NewMemoryStore(), time.Hour),
		PageSize:         2,
		DashboardRefresh: 20 * time.Millisecond,
	})

	router := gin.New()
	router.Use(middleware.Session(time.Hour))
	router.Use(middleware.ErrorHandler())
	RegisterRoutes(router)
	return &testServer{router: router, remote: remote}
}

type envelope struct {
	Success    bool              `json:"success"`
	Data       json.RawMessage   `json:"data"`
	Message    string            `json:"message"`
	Error      string            `json:"error"`
	Code       string            `json:"code"`
	Fields     map[string]string `json:"fields"`
	Pagination struct {
		Total int `json:"total"`
		Page  int `json:"page"`
		Limit int `json:"limit"`
		Pages int `json:"pages"`
	} `json:"pagination"`
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.SessionHeader, testSession)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid json %q", method, path, w.Body.String())
	}
	return w.Code, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

const contact = `{"firstName":"Ana","lastName":"Ruiz","email":"ana@acme.co","phone":"300"}`

func TestClientListPagination(t *testing.T) {
	s := newTestServer(t)
	s.remote.seed("clients", `[{"id":"1","nit":"1","name":"A"},{"id":"2","nit":"2","name":"B"},{"id":"3","nit":"3","name":"C"}]`)

	code, env := s.do(t, http.MethodGet, "/api/clients?page=1", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d (%s)", code, env.Error)
	}
	var items []map[string]interface{}
	decode(t, env.Data, &items)
	if len(items) != 1 || items[0]["name"] != "C" {
		t.Errorf("items = %v", items)
	}
	if env.Pagination.Total != 3 || env.Pagination.Pages != 2 || env.Pagination.Page != 1 || env.Pagination.Limit != 2 {
		t.Errorf("pagination = %+v", env.Pagination)
	}
}

func TestCreateClientValidation(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/clients", `{"name":"Acme","contacts":[{"firstName":"Ana"}]}`)
	if code != http.StatusBadRequest || env.Code != "VALIDATION_FAILED" {
		t.Fatalf("status = %d code = %s", code, env.Code)
	}
	if env.Fields["nit"] == "" || env.Fields["contacts[0].email"] == "" {
		t.Errorf("fields = %v", env.Fields)
	}
	if n := s.remote.count("POST"); n != 0 {
		t.Errorf("invalid form reached the backend %d times", n)
	}
}

func TestCreateClientThenDetail(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/clients", `{"nit":"123","name":"Acme","contacts":[`+contact+`]}`)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", code, env.Error)
	}
	var created struct {
		ID string `json:"id"`
	}
	decode(t, env.Data, &created)

	code, env = s.do(t, http.MethodGet, "/api/clients/"+created.ID, "")
	if code != http.StatusOK {
		t.Fatalf("detail status = %d (%s)", code, env.Error)
	}
	var detail struct {
		Client        map[string]interface{}   `json:"client"`
		Opportunities []map[string]interface{} `json:"opportunities"`
		Contacts      []map[string]interface{} `json:"contacts"`
	}
	decode(t, env.Data, &detail)
	if detail.Client["nit"] != "123" || detail.Opportunities == nil || len(detail.Contacts) != 1 {
		t.Errorf("detail = %+v", detail)
	}

	code, _ = s.do(t, http.MethodGet, "/api/clients/999", "")
	if code != http.StatusNotFound {
		t.Errorf("unknown client status = %d", code)
	}
}

func TestUpdateFailureSurfacesBackendMessage(t *testing.T) {
	s := newTestServer(t)
	s.remote.seed("clients", `[{"id":"1","nit":"1","name":"A"}]`)
	s.remote.fail["PUT /clients/1"] = http.StatusInternalServerError

	code, env := s.do(t, http.MethodPut, "/api/clients/1", `{"nit":"1","name":"A2"}`)
	if code != http.StatusBadGateway || env.Code != "REMOTE_STORE_ERROR" || env.Error != "backend rejected" {
		t.Fatalf("status = %d code = %s error = %q", code, env.Code, env.Error)
	}

	delete(s.remote.fail, "PUT /clients/1")
	code, env = s.do(t, http.MethodPut, "/api/clients/1", `{"nit":"1","name":"A2"}`)
	if code != http.StatusOK {
		t.Fatalf("retry status = %d (%s)", code, env.Error)
	}
}

func TestSetClientActiveRequiresFlag(t *testing.T) {
	s := newTestServer(t)
	s.remote.seed("clients", `[{"id":"1","nit":"1","name":"A","active":true}]`)

	if code, _ := s.do(t, http.MethodPatch, "/api/clients/1/active", `{}`); code != http.StatusBadRequest {
		t.Errorf("missing flag status = %d", code)
	}
	code, env := s.do(t, http.MethodPatch, "/api/clients/1/active", `{"active":false}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d (%s)", code, env.Error)
	}
	var c map[string]interface{}
	decode(t, env.Data, &c)
	if c["active"] != false {
		t.Errorf("client = %v", c)
	}
}

func TestOpportunityTransitionGuard(t *testing.T) {
	s := newTestServer(t)
	s.remote.seed("clients", `[{"id":"1","nit":"1","name":"A","opportunities":["10"]}]`)
	s.remote.seed("opportunities", `[{"id":"10","clientId":"1","businessName":"X","businessLine":"desarrollo web","estimatedValue":100,"status":"Apertura"}]`)

	body := `{"businessName":"X","businessLine":"desarrollo web","estimatedValue":100,"status":"Ejecutada"}`
	code, env := s.do(t, http.MethodPut, "/api/opportunities/10", body)
	if code != http.StatusBadRequest || env.Fields["status"] == "" {
		t.Fatalf("status = %d fields = %v", code, env.Fields)
	}
	if n := s.remote.count("PUT"); n != 0 {
		t.Errorf("rejected transition sent %d PUT requests", n)
	}

	body = strings.Replace(body, "Ejecutada", "En Estudio", 1)
	if code, env := s.do(t, http.MethodPut, "/api/opportunities/10", body); code != http.StatusOK {
		t.Errorf("Apertura -> En Estudio status = %d (%s)", code, env.Error)
	}
}

func TestOpportunityListRows(t *testing.T) {
	s := newTestServer(t)
	s.remote.seed("clients", `[{"id":"1","nit":"1","name":"Acme","opportunities":["10"]}]`)
	s.remote.seed("opportunities", `[{"id":"10","businessName":"X","estimatedValue":1234567,"status":"Apertura"}]`)

	code, env := s.do(t, http.MethodGet, "/api/opportunities", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d (%s)", code, env.Error)
	}
	var rows []map[string]interface{}
	decode(t, env.Data, &rows)
	if len(rows) != 1 || rows[0]["clientName"] != "Acme" || rows[0]["valueLabel"] != "$ 1.234.567" {
		t.Errorf("rows = %v", rows)
	}
}

func TestActivitiesForUnknownOpportunityIsEmpty(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/api/opportunities/77/activities", "")
	if code != http.StatusOK || string(env.Data) != "[]" {
		t.Errorf("status = %d data = %s", code, env.Data)
	}
}

func TestAddActivityAndFollowRows(t *testing.T) {
	s := newTestServer(t)
	s.remote.seed("opportunities", `[{"id":"10","businessName":"ERP","status":"Apertura"}]`)

	activity := `{"contactType":"Llamada","contactDate":"2024-06-02","clientContact":` + contact +
		`,"salesExecutive":"Luis","description":"primer contacto"}`
	code, env := s.do(t, http.MethodPost, "/api/opportunities/10/activities", activity)
	if code != http.StatusCreated {
		t.Fatalf("status = %d (%s %v)", code, env.Error, env.Fields)
	}

	code, env = s.do(t, http.MethodGet, "/api/follow", "")
	if code != http.StatusOK {
		t.Fatalf("follow list status = %d", code)
	}
	var rows []map[string]interface{}
	decode(t, env.Data, &rows)
	if len(rows) != 1 || rows[0]["opportunityName"] != "ERP" {
		t.Errorf("rows = %v", rows)
	}

	bad := strings.Replace(activity, "ana@acme.co", "no-es-correo", 1)
	code, env = s.do(t, http.MethodPost, "/api/opportunities/10/activities", bad)
	if code != http.StatusBadRequest || env.Fields["clientContact.email"] == "" {
		t.Errorf("invalid email: status = %d fields = %v", code, env.Fields)
	}
}

func TestDeleteOpportunityCascade(t *testing.T) {
	s := newTestServer(t)
	s.remote.seed("opportunities", `[{"id":"10","businessName":"X"},{"id":"11","businessName":"Y"}]`)
	s.remote.seed("follow", `[{"id":"f1","opportunityId":"10","followUpActivities":[]},{"id":"f2","opportunityId":"11","followUpActivities":[]}]`)

	if code, env := s.do(t, http.MethodDelete, "/api/opportunities/10", ""); code != http.StatusOK {
		t.Fatalf("delete status = %d (%s)", code, env.Error)
	}
	if n := s.remote.count("DELETE /follow"); n != 0 {
		t.Errorf("default delete removed follow-up")
	}
	if code, env := s.do(t, http.MethodDelete, "/api/opportunities/11?cascade=true", ""); code != http.StatusOK {
		t.Fatalf("cascade delete status = %d (%s)", code, env.Error)
	}
	if n := s.remote.count("DELETE /follow/f2"); n != 1 {
		t.Errorf("cascade sent %d follow-up deletes", n)
	}
}

func TestCascadeFailureStillReportsDeletion(t *testing.T) {
	s := newTestServer(t)
	s.remote.seed("opportunities", `[{"id":"10","businessName":"X"}]`)
	s.remote.seed("follow", `[{"id":"f1","opportunityId":"10","followUpActivities":[]}]`)
	s.remote.fail["DELETE /follow/f1"] = http.StatusInternalServerError

	code, env := s.do(t, http.MethodDelete, "/api/opportunities/10?cascade=true", "")
	if code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d (%s)", code, env.Error)
	}
	if !strings.Contains(env.Message, "商机已删除") || !strings.Contains(env.Message, "f1") {
		t.Errorf("message = %q", env.Message)
	}
	var data struct {
		FollowUpDeleted bool `json:"followUpDeleted"`
		Pagination      struct {
			PageIndex int `json:"pageIndex"`
		} `json:"pagination"`
	}
	decode(t, env.Data, &data)
	if data.FollowUpDeleted || data.Pagination.PageIndex != 0 {
		t.Errorf("data = %s", env.Data)
	}
	if code, env := s.do(t, http.MethodGet, "/api/opportunities/10", ""); code != http.StatusNotFound {
		t.Errorf("deleted opportunity detail status = %d (%s)", code, env.Error)
	}
}

func TestNavigationSelectThenDetail(t *testing.T) {
	s := newTestServer(t)
	s.remote.seed("clients", `[{"id":"1","nit":"1","name":"Acme","contacts":[`+contact+`]}]`)
	s.remote.seed("opportunities", `[{"id":"10","clientId":"1","businessName":"X"}]`)

	if code, _ := s.do(t, http.MethodGet, "/api/navigation/opportunity/detail", ""); code != http.StatusNotFound {
		t.Errorf("no selection status = %d", code)
	}
	if code, _ := s.do(t, http.MethodPut, "/api/navigation/opportunity", `{"id":"99"}`); code != http.StatusNotFound {
		t.Errorf("unknown selection status = %d", code)
	}
	if code, env := s.do(t, http.MethodPut, "/api/navigation/opportunity", `{"id":"10"}`); code != http.StatusOK {
		t.Fatalf("select status = %d (%s)", code, env.Error)
	}

	code, env := s.do(t, http.MethodGet, "/api/navigation/opportunity/detail", "")
	if code != http.StatusOK {
		t.Fatalf("detail status = %d (%s)", code, env.Error)
	}
	var detail struct {
		Client     *map[string]interface{}  `json:"client"`
		Activities []map[string]interface{} `json:"activities"`
		Contacts   []map[string]interface{} `json:"contacts"`
	}
	decode(t, env.Data, &detail)
	if detail.Client == nil || detail.Activities == nil || len(detail.Contacts) != 1 {
		t.Errorf("detail = %s", env.Data)
	}

	if code, _ := s.do(t, http.MethodDelete, "/api/navigation", ""); code != http.StatusOK {
		t.Errorf("clear status = %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/api/navigation/opportunity/detail", ""); code != http.StatusNotFound {
		t.Errorf("after clear status = %d", code)
	}
}

func TestDashboard(t *testing.T) {
	s := newTestServer(t)
	s.remote.seed("clients", `[{"id":"1","nit":"1","name":"Acme"}]`)
	s.remote.seed("opportunities", `[{"id":"10","clientId":"1","status":"Apertura","estimatedValue":1000},{"id":"11","clientId":"1","status":"Ejecutada","estimatedValue":3000}]`)

	code, env := s.do(t, http.MethodGet, "/api/dashboard", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d (%s)", code, env.Error)
	}
	var snap struct {
		Metrics struct {
			TotalClients      int     `json:"totalClients"`
			OpenOpportunities int     `json:"openOpportunities"`
			ConversionRate    float64 `json:"conversionRate"`
			ProjectedDisplay  string  `json:"projectedDisplay"`
		} `json:"metrics"`
	}
	decode(t, env.Data, &snap)
	m := snap.Metrics
	if m.TotalClients != 1 || m.OpenOpportunities != 1 || m.ConversionRate != 50 || m.ProjectedDisplay != "$ 4.000" {
		t.Errorf("metrics = %+v", m)
	}
}

func TestDashboardSocketPushesSnapshots(t *testing.T) {
	s := newTestServer(t)
	s.remote.seed("clients", `[{"id":"1","nit":"1","name":"Acme"}]`)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/dashboard", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 2; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var msg controllers.DashboardMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if msg.Type != "snapshot" || msg.Data == nil || msg.Data.Metrics.TotalClients != 1 {
			t.Errorf("message %d = %+v", i, msg)
		}
	}
}

func TestAuditDisabledAndHealth(t *testing.T) {
	s := newTestServer(t)

	if code, env := s.do(t, http.MethodGet, "/api/audit/client/1", ""); code != http.StatusServiceUnavailable || env.Code != "AUDIT_DISABLED" {
		t.Errorf("audit status = %d code = %s", code, env.Code)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}
