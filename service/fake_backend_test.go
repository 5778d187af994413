package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BerniceZTT/crm_web/repository"
)

// fakeBackend 内存版 REST 后端：GET/POST/PUT/DELETE /{collection}[/{id}]
type fakeBackend struct {
	t      *testing.T
	mu     sync.Mutex
	data   map[string][]map[string]interface{}
	nextID int
	fail   map[string]int
	calls  []string
	single map[string]bool
	silent bool
	srv    *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		t:      t,
		data:   make(map[string][]map[string]interface{}),
		nextID: 100,
		fail:   make(map[string]int),
		single: make(map[string]bool),
	}
	fb.srv = httptest.NewServer(http.HandlerFunc(fb.handle))
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) store() *repository.RemoteStore {
	return repository.NewRemoteStore(fb.srv.URL, 5*time.Second)
}

// seed 写入初始数据
func (fb *fakeBackend) seed(collection string, docs ...interface{}) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, d := range docs {
		raw, err := json.Marshal(d)
		if err != nil {
			fb.t.Fatalf("seed marshal: %v", err)
		}
		var m map[string]interface{}
		if err := json.Unmarshal(raw, &m); err != nil {
			fb.t.Fatalf("seed unmarshal: %v", err)
		}
		fb.data[collection] = append(fb.data[collection], m)
	}
}

// failOn 令指定请求返回错误状态，例如 "PUT /clients/1"
func (fb *fakeBackend) failOn(key string, status int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.fail[key] = status
}

func (fb *fakeBackend) clearFailures() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.fail = make(map[string]int)
}

func (fb *fakeBackend) requests() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.calls...)
}

func (fb *fakeBackend) docs(collection string) []map[string]interface{} {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]map[string]interface{}(nil), fb.data[collection]...)
}

func (fb *fakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	key := r.Method + " " + r.URL.Path
	fb.calls = append(fb.calls, key)
	if status, ok := fb.fail[key]; ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"message":"fallo en %s"}`, r.URL.Path)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	collection := parts[0]
	id := ""
	if len(parts) > 1 {
		id = parts[1]
	}

	switch {
	case r.Method == http.MethodGet && id == "":
		items := fb.data[collection]
		if fb.single[collection] && len(items) == 1 {
			writeJSON(w, http.StatusOK, items[0])
			return
		}
		if items == nil {
			items = []map[string]interface{}{}
		}
		writeJSON(w, http.StatusOK, items)
	case r.Method == http.MethodGet:
		if doc, _ := fb.find(collection, id); doc != nil {
			writeJSON(w, http.StatusOK, doc)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodPost:
		var doc map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if v, ok := doc["id"]; !ok || v == "" || v == nil {
			fb.nextID++
			doc["id"] = fmt.Sprint(fb.nextID)
		}
		fb.data[collection] = append(fb.data[collection], doc)
		if fb.silent {
			w.WriteHeader(http.StatusCreated)
			return
		}
		writeJSON(w, http.StatusCreated, doc)
	case r.Method == http.MethodPut:
		var doc map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, idx := fb.find(collection, id)
		if idx < 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		doc["id"] = id
		fb.data[collection][idx] = doc
		if fb.silent {
			w.WriteHeader(http.StatusOK)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case r.Method == http.MethodDelete:
		_, idx := fb.find(collection, id)
		if idx < 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		items := fb.data[collection]
		fb.data[collection] = append(items[:idx:idx], items[idx+1:]...)
		writeJSON(w, http.StatusOK, map[string]interface{}{})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (fb *fakeBackend) find(collection, id string) (map[string]interface{}, int) {
	for i, doc := range fb.data[collection] {
		if fmt.Sprint(doc["id"]) == id {
			return doc, i
		}
	}
	return nil, -1
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func countRequests(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}
