//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// baseURL is the judge server under test. Override with OJ_E2E_BASE_URL.
func baseURL() string { return getenv("OJ_E2E_BASE_URL", "http://127.0.0.1:12345") }

// e2eLanguage must name a language present in the live server's config.
func e2eLanguage() string { return getenv("OJ_E2E_LANGUAGE", "c") }

// e2eProblemID must name a problem present in the live server's config.
func e2eProblemID(t *testing.T) int64 {
	t.Helper()
	var id int64
	if _, err := fmt.Sscan(getenv("OJ_E2E_PROBLEM_ID", "1"), &id); err != nil {
		t.Fatalf("bad OJ_E2E_PROBLEM_ID: %v", err)
	}
	return id
}

func newClient() *http.Client { return &http.Client{Timeout: 15 * time.Second} }

// waitForServerReady polls /readyz until the server reports healthy.
func waitForServerReady(t *testing.T, client *http.Client, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL() + "/readyz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("server at %s not ready within %v", baseURL(), timeout)
}

// postJSON posts body to path and decodes the response into out. It returns
// the HTTP status code.
func postJSON(t *testing.T, client *http.Client, path string, body, out any) int {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := client.Post(baseURL()+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode POST %s response: %v", path, err)
		}
	}
	return resp.StatusCode
}

// putJSON sends an empty-body PUT to path and decodes the response into out.
// It returns the HTTP status code.
func putJSON(t *testing.T, client *http.Client, path string, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, baseURL()+path, nil)
	if err != nil {
		t.Fatalf("build PUT %s: %v", path, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("PUT %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode PUT %s response: %v", path, err)
		}
	}
	return resp.StatusCode
}

// getJSON fetches path and decodes the response into out. It returns the
// HTTP status code.
func getJSON(t *testing.T, client *http.Client, path string, out any) int {
	t.Helper()
	resp, err := client.Get(baseURL() + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode GET %s response: %v", path, err)
		}
	}
	return resp.StatusCode
}

// createUser registers a fresh user with a unique name and returns its id.
func createUser(t *testing.T, client *http.Client) int64 {
	t.Helper()
	name := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	var user map[string]any
	if code := postJSON(t, client, "/users", map[string]any{"name": name}, &user); code != http.StatusOK {
		t.Fatalf("create user: status %d, body %#v", code, user)
	}
	id, ok := user["id"].(float64)
	if !ok {
		t.Fatalf("user id missing: %#v", user)
	}
	return int64(id)
}

// submitJob posts a submission to the open contest and returns the job id.
func submitJob(t *testing.T, client *http.Client, userID int64, source string) int64 {
	t.Helper()
	var job map[string]any
	code := postJSON(t, client, "/jobs", map[string]any{
		"source_code": source,
		"language":    e2eLanguage(),
		"user_id":     userID,
		"contest_id":  0,
		"problem_id":  e2eProblemID(t),
	}, &job)
	if code != http.StatusOK {
		t.Fatalf("submit: status %d, body %#v", code, job)
	}
	id, ok := job["id"].(float64)
	if !ok {
		t.Fatalf("job id missing: %#v", job)
	}
	return int64(id)
}

// waitForFinished polls the job until it leaves the queue and returns the
// final job document.
func waitForFinished(t *testing.T, client *http.Client, jobID int64, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var job map[string]any
		code := getJSON(t, client, fmt.Sprintf("/jobs/%d", jobID), &job)
		if code != http.StatusOK {
			t.Fatalf("poll job %d: status %d, body %#v", jobID, code, job)
		}
		if st, _ := job["state"].(string); st == "Finished" || st == "Canceled" {
			return job
		}
		time.Sleep(300 * time.Millisecond)
	}
	t.Fatalf("job %d not finished within %v", jobID, timeout)
	return nil
}
