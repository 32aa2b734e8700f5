package hcloud

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/vpcmesh/internal/config"
)

const created = "2026-01-01T00:00:00Z"

// fakeAPI is a stateful stand-in for the networks, firewalls, locations
// and actions endpoints of the Hetzner Cloud API.
type fakeAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	nextID    int64
	networks  map[int64]map[string]any
	firewalls map[int64]map[string]any
	// lockNext makes the next network action fail with "locked".
	lockNext int
	requests map[string]int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{
		nextID:    100,
		networks:  make(map[int64]map[string]any),
		firewalls: make(map[int64]map[string]any),
		requests:  make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /locations", f.listLocations)
	mux.HandleFunc("GET /networks", f.listNetworks)
	mux.HandleFunc("GET /networks/{id}", f.getNetwork)
	mux.HandleFunc("POST /networks", f.createNetwork)
	mux.HandleFunc("DELETE /networks/{id}", f.deleteNetwork)
	mux.HandleFunc("POST /networks/{id}/actions/{action}", f.networkAction)
	mux.HandleFunc("GET /firewalls", f.listFirewalls)
	mux.HandleFunc("GET /firewalls/{id}", f.getFirewall)
	mux.HandleFunc("POST /firewalls", f.createFirewall)
	mux.HandleFunc("DELETE /firewalls/{id}", f.deleteFirewall)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) provider() *Provider {
	return NewProvider("test-token",
		WithHCloudClient(hcloud.NewClient(
			hcloud.WithToken("test-token"),
			hcloud.WithEndpoint(f.server.URL),
		)),
		WithTimeouts(config.TestTimeouts()),
	)
}

func (f *fakeAPI) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[key]
}

func jsonResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func errorResponse(w http.ResponseWriter, statusCode int, code string) {
	jsonResponse(w, statusCode, map[string]any{
		"error": map[string]any{"code": code, "message": code},
	})
}

func pagination(n int) map[string]any {
	return map[string]any{"pagination": map[string]any{
		"page": 1, "per_page": 50, "previous_page": nil, "next_page": nil, "last_page": 1, "total_entries": n,
	}}
}

func successAction(id int64, command string) map[string]any {
	return map[string]any{
		"id": id, "command": command, "status": "success", "progress": 100,
		"started": created, "finished": created, "resources": []any{}, "error": nil,
	}
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id
}

func (f *fakeAPI) listLocations(w http.ResponseWriter, _ *http.Request) {
	locations := []map[string]any{
		{"id": 1, "name": "nbg1", "network_zone": "eu-central"},
		{"id": 2, "name": "fsn1", "network_zone": "eu-central"},
		{"id": 3, "name": "hel1", "network_zone": "eu-central"},
		{"id": 4, "name": "ash", "network_zone": "us-east"},
	}
	for _, l := range locations {
		l["description"], l["country"], l["city"] = l["name"], "DE", l["name"]
		l["latitude"], l["longitude"] = 0.0, 0.0
	}
	jsonResponse(w, http.StatusOK, map[string]any{"locations": locations, "meta": pagination(len(locations))})
}

func (f *fakeAPI) listNetworks(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := r.URL.Query().Get("name")
	list := []map[string]any{}
	for _, n := range f.networks {
		if name == "" || n["name"] == name {
			list = append(list, n)
		}
	}
	jsonResponse(w, http.StatusOK, map[string]any{"networks": list, "meta": pagination(len(list))})
}

func (f *fakeAPI) getNetwork(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.networks[pathID(r)]
	if !ok {
		errorResponse(w, http.StatusNotFound, "not_found")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"network": n})
}

func (f *fakeAPI) createNetwork(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string            `json:"name"`
		IPRange string            `json:"ip_range"`
		Labels  map[string]string `json:"labels"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests["create_network"]++
	f.nextID++
	n := map[string]any{
		"id": f.nextID, "name": body.Name, "ip_range": body.IPRange, "labels": body.Labels,
		"subnets": []map[string]any{}, "routes": []map[string]any{}, "servers": []int64{},
		"protection": map[string]any{"delete": false}, "created": created,
	}
	f.networks[f.nextID] = n
	jsonResponse(w, http.StatusCreated, map[string]any{"network": n})
}

func (f *fakeAPI) deleteNetwork(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests["delete_network"]++
	delete(f.networks, pathID(r))
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeAPI) networkAction(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	action := r.PathValue("action")
	f.requests[action]++
	n, ok := f.networks[pathID(r)]
	if !ok {
		errorResponse(w, http.StatusNotFound, "not_found")
		return
	}
	if f.lockNext > 0 {
		f.lockNext--
		errorResponse(w, http.StatusLocked, "locked")
		return
	}

	switch action {
	case "add_subnet":
		n["subnets"] = append(n["subnets"].([]map[string]any), map[string]any{
			"type": body["type"], "ip_range": body["ip_range"], "network_zone": body["network_zone"], "gateway": "",
		})
	case "add_route":
		n["routes"] = append(n["routes"].([]map[string]any), map[string]any{
			"destination": body["destination"], "gateway": body["gateway"],
		})
	case "delete_route":
		var kept []map[string]any
		for _, rt := range n["routes"].([]map[string]any) {
			if rt["destination"] != body["destination"] {
				kept = append(kept, rt)
			}
		}
		n["routes"] = append([]map[string]any{}, kept...)
	}
	f.nextID++
	jsonResponse(w, http.StatusCreated, map[string]any{"action": successAction(f.nextID, action)})
}

func (f *fakeAPI) listFirewalls(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := r.URL.Query().Get("name")
	list := []map[string]any{}
	for _, fw := range f.firewalls {
		if name == "" || fw["name"] == name {
			list = append(list, fw)
		}
	}
	jsonResponse(w, http.StatusOK, map[string]any{"firewalls": list, "meta": pagination(len(list))})
}

func (f *fakeAPI) getFirewall(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fw, ok := f.firewalls[pathID(r)]
	if !ok {
		errorResponse(w, http.StatusNotFound, "not_found")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"firewall": fw})
}

func (f *fakeAPI) createFirewall(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name   string            `json:"name"`
		Labels map[string]string `json:"labels"`
		Rules  []map[string]any  `json:"rules"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests["create_firewall"]++
	f.nextID++
	fw := map[string]any{
		"id": f.nextID, "name": body.Name, "labels": body.Labels, "rules": body.Rules,
		"applied_to": []any{}, "created": created,
	}
	f.firewalls[f.nextID] = fw
	jsonResponse(w, http.StatusCreated, map[string]any{"firewall": fw, "actions": []any{}})
}

func (f *fakeAPI) deleteFirewall(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests["delete_firewall"]++
	delete(f.firewalls, pathID(r))
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeAPI) firewallRules(id int64) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.firewalls[id]["rules"].([]map[string]any)
}
