// Copyright 2026 The Kitchen Konnect Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build e2e

// Package e2e drives a running kkauth server over HTTP. The server must run
// with LOCAL_DEV=true so that cookies travel over plain http, and the
// bootstrap step shells out to the container named by KKAUTH_E2E_CONTAINER.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	baseURL   = getEnv("KKAUTH_API_URL", "http://127.0.0.1:8080")
	apiBase   = baseURL + "/api/auth"
	container = getEnv("KKAUTH_E2E_CONTAINER", "docker-kkauth_test-1")
)

const password = "password123"

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

type TestClient struct {
	httpClient *http.Client
	access     string
	csrf       string
}

func NewTestClient() *TestClient {
	jar, _ := cookiejar.New(nil)
	return &TestClient{
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
		},
	}
}

func (c *TestClient) Do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, apiBase+path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	if c.access != "" {
		req.Header.Set("Authorization", "Bearer "+c.access)
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRFToken", c.csrf)
	}

	return c.httpClient.Do(req)
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (c *TestClient) hasRefreshCookie(t *testing.T) bool {
	u, err := url.Parse(baseURL)
	require.NoError(t, err)
	for _, ck := range c.httpClient.Jar.Cookies(u) {
		if ck.Name == "refresh" && ck.Value != "" {
			return true
		}
	}
	return false
}

func TestE2E_Workflows(t *testing.T) {
	suffix := time.Now().UnixNano()
	reviewerName := fmt.Sprintf("e2e-root-%d", suffix)
	applicantName := fmt.Sprintf("e2e-applicant-%d", suffix)

	reviewer := NewTestClient()
	applicant := NewTestClient()

	var applicantID string

	// 1. Reviewer bootstrap
	t.Run("Reviewer Bootstrap", func(t *testing.T) {
		resp, err := reviewer.Do("POST", "/register", map[string]string{
			"username": reviewerName,
			"email":    reviewerName + "@kkauth.local",
			"password": password,
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()

		cmd := exec.Command("docker", "exec", container, "./kkauth", "bootstrap", reviewerName)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "bootstrap command failed: %s", string(out))

		resp, err = reviewer.Do("POST", "/token?delivery=body", map[string]string{
			"username": reviewerName,
			"password": password,
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		tokens := decodeBody[map[string]string](t, resp)
		require.NotEmpty(t, tokens["refresh"])
		reviewer.access = tokens["access"]

		resp, err = reviewer.Do("GET", "/me", nil)
		require.NoError(t, err)
		me := decodeBody[map[string]any](t, resp)
		assert.Equal(t, "admin", me["role"])
		assert.True(t, me["is_superuser"].(bool))
	})

	// 2. Applicant registers asking for the regulator role
	t.Run("Applicant Registration", func(t *testing.T) {
		resp, err := applicant.Do("POST", "/register", map[string]string{
			"username":      applicantName,
			"email":         applicantName + "@kkauth.local",
			"password":      password,
			"desired_role":  "regulator",
			"justification": "e2e food inspector",
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		res := decodeBody[map[string]string](t, resp)
		applicantID = res["id"]
		applicant.access = res["access"]
		assert.Equal(t, res["access"], res["token"])
		assert.True(t, applicant.hasRefreshCookie(t))

		resp, err = applicant.Do("GET", "/admin/users", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	// 3. Reviewer approves
	t.Run("Verification Review", func(t *testing.T) {
		require.NotEmpty(t, applicantID)

		resp, err := reviewer.Do("GET", "/verification/requests?status=pending", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		list := decodeBody[struct {
			Requests []struct {
				ID          string `json:"id"`
				RequesterID string `json:"requester_id"`
			} `json:"requests"`
		}](t, resp)

		var requestID string
		for _, r := range list.Requests {
			if r.RequesterID == applicantID {
				requestID = r.ID
			}
		}
		require.NotEmpty(t, requestID)

		resp, err = reviewer.Do("PATCH", "/verification/requests/"+requestID, map[string]string{"status": "approved"})
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, err = reviewer.Do("PATCH", "/verification/requests/"+requestID, map[string]string{"status": "approved"})
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		resp, err = applicant.Do("GET", "/me", nil)
		require.NoError(t, err)
		me := decodeBody[map[string]any](t, resp)
		assert.Equal(t, "regulator", me["role"])
		assert.EqualValues(t, 50, me["admin_rank"])
	})

	// 4. Cookie refresh and logout
	t.Run("Cookie Session Lifecycle", func(t *testing.T) {
		resp, err := applicant.Do("GET", "/csrf", nil)
		require.NoError(t, err)
		applicant.csrf = decodeBody[map[string]string](t, resp)["csrfToken"]
		require.NotEmpty(t, applicant.csrf)

		resp, err = applicant.Do("POST", "/token/refresh", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		applicant.access = decodeBody[map[string]string](t, resp)["access"]

		resp, err = applicant.Do("POST", "/logout", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.False(t, applicant.hasRefreshCookie(t))

		resp, err = applicant.Do("POST", "/token/refresh", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
