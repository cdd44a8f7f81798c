// Package wings talks to the node daemon. Every capability the panel
// delegates (power, backups, firewall, proxies, imports, fastdl) goes
// through the Client here, and every scoped credential the daemon
// verifies comes from the Issuer.
package wings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mythicalltd/featherpanel/internal/models"
)

// DefaultTimeout bounds a single daemon request. There are no retries;
// a slow or dead daemon surfaces as one failed response.
const DefaultTimeout = 30 * time.Second

// Response is the uniform result of any daemon call. Transport failures
// are folded into a synthetic 500 response so callers branch on status
// alone and never handle a separate error path.
type Response struct {
	StatusCode int
	Data       map[string]interface{}
	errMsg     string
}

// IsSuccessful reports whether the daemon answered with a 2xx status.
func (r *Response) IsSuccessful() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Error returns the daemon's error message when the body carried one,
// otherwise the transport error or the status text.
func (r *Response) Error() string {
	if r.Data != nil {
		if msg, ok := r.Data["error"].(string); ok && msg != "" {
			return msg
		}
		if msg, ok := r.Data["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if r.errMsg != "" {
		return r.errMsg
	}
	return http.StatusText(r.StatusCode)
}

// Client is a per-node daemon API client authenticated with the node's
// long-lived bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the given node. A zero timeout uses
// DefaultTimeout.
func NewClient(node *models.Node, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: BaseURL(node),
		token:   node.DaemonToken,
		http:    &http.Client{Timeout: timeout},
	}
}

// request performs one daemon call. It never returns a Go error; any
// failure before a status line is read becomes a synthetic 500.
func (c *Client) request(method, path string, body interface{}) *Response {
	var reqBody *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &Response{StatusCode: http.StatusInternalServerError, errMsg: fmt.Sprintf("failed to encode request body: %v", err)}
		}
		reqBody = bytes.NewBuffer(encoded)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return &Response{StatusCode: http.StatusInternalServerError, errMsg: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Response{StatusCode: http.StatusInternalServerError, errMsg: fmt.Sprintf("daemon unreachable: %v", err)}
	}
	defer resp.Body.Close()

	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		// Non-JSON bodies are fine; status alone decides success.
		data = nil
	}
	return &Response{StatusCode: resp.StatusCode, Data: data}
}

// --- Power and console ---

// PowerAction asks the daemon to change process state. Kill gets a
// longer grace window because it follows a failed stop.
func (c *Client) PowerAction(serverUUID, action string) *Response {
	waitSeconds := 30
	if action == "kill" {
		waitSeconds = 60
	}
	return c.request(http.MethodPost, "/api/servers/"+serverUUID+"/power", map[string]interface{}{
		"action":       action,
		"wait_seconds": waitSeconds,
	})
}

// SendCommands writes console commands to the server process stdin.
func (c *Client) SendCommands(serverUUID string, commands []string) *Response {
	return c.request(http.MethodPost, "/api/servers/"+serverUUID+"/commands", map[string]interface{}{
		"commands": commands,
	})
}

// ServerStatus fetches the daemon's view of a server process.
func (c *Client) ServerStatus(serverUUID string) *Response {
	return c.request(http.MethodGet, "/api/servers/"+serverUUID, nil)
}

// SyncServer tells the daemon to re-read the server's configuration.
func (c *Client) SyncServer(serverUUID string) *Response {
	return c.request(http.MethodPost, "/api/servers/"+serverUUID+"/sync", nil)
}

// --- Backups ---

func (c *Client) CreateBackup(serverUUID, adapter, backupUUID, ignore string) *Response {
	payload := map[string]interface{}{
		"adapter": adapter,
		"uuid":    backupUUID,
	}
	if ignore != "" {
		payload["ignore"] = ignore
	}
	return c.request(http.MethodPost, "/api/servers/"+serverUUID+"/backup", payload)
}

func (c *Client) RestoreBackup(serverUUID, backupUUID, adapter string, truncate bool, downloadURL string) *Response {
	payload := map[string]interface{}{
		"adapter":            adapter,
		"truncate_directory": truncate,
	}
	if downloadURL != "" {
		payload["download_url"] = downloadURL
	}
	return c.request(http.MethodPost, "/api/servers/"+serverUUID+"/backup/"+backupUUID+"/restore", payload)
}

func (c *Client) DeleteBackup(serverUUID, backupUUID string) *Response {
	return c.request(http.MethodDelete, "/api/servers/"+serverUUID+"/backup/"+backupUUID, nil)
}

// --- Firewall ---

func (c *Client) GetFirewallRules(serverUUID string) *Response {
	return c.request(http.MethodGet, "/api/servers/"+serverUUID+"/firewall", nil)
}

func (c *Client) GetFirewallRulesByPort(serverUUID string, port int) *Response {
	return c.request(http.MethodGet, fmt.Sprintf("/api/servers/%s/firewall/port/%d", serverUUID, port), nil)
}

func (c *Client) CreateFirewallRule(serverUUID string, rule map[string]interface{}) *Response {
	return c.request(http.MethodPost, "/api/servers/"+serverUUID+"/firewall", rule)
}

func (c *Client) UpdateFirewallRule(serverUUID string, ruleID int, rule map[string]interface{}) *Response {
	return c.request(http.MethodPut, fmt.Sprintf("/api/servers/%s/firewall/%d", serverUUID, ruleID), rule)
}

func (c *Client) DeleteFirewallRule(serverUUID string, ruleID int) *Response {
	return c.request(http.MethodDelete, fmt.Sprintf("/api/servers/%s/firewall/%d", serverUUID, ruleID), nil)
}

// SyncFirewall flushes the daemon's rule set to the host firewall.
func (c *Client) SyncFirewall(serverUUID string) *Response {
	return c.request(http.MethodPost, "/api/servers/"+serverUUID+"/firewall/sync", nil)
}

// --- Reverse proxy ---

func (c *Client) CreateProxy(serverUUID string, cfg map[string]interface{}) *Response {
	return c.request(http.MethodPost, "/api/servers/"+serverUUID+"/proxy/create", cfg)
}

func (c *Client) DeleteProxy(serverUUID, domain string) *Response {
	return c.request(http.MethodPost, "/api/servers/"+serverUUID+"/proxy/delete", map[string]interface{}{
		"domain": domain,
	})
}

// --- Imports ---

func (c *Client) ImportServer(serverUUID string, job map[string]interface{}) *Response {
	return c.request(http.MethodPost, "/api/servers/"+serverUUID+"/import", job)
}

// --- FastDL ---

func (c *Client) GetFastDL(serverUUID string) *Response {
	return c.request(http.MethodGet, "/api/servers/"+serverUUID+"/fastdl", nil)
}

func (c *Client) EnableFastDL(serverUUID string, cfg map[string]interface{}) *Response {
	return c.request(http.MethodPost, "/api/servers/"+serverUUID+"/fastdl/enable", cfg)
}

func (c *Client) DisableFastDL(serverUUID string) *Response {
	return c.request(http.MethodPost, "/api/servers/"+serverUUID+"/fastdl/disable", nil)
}

func (c *Client) UpdateFastDL(serverUUID string, cfg map[string]interface{}) *Response {
	return c.request(http.MethodPut, "/api/servers/"+serverUUID+"/fastdl", cfg)
}

// --- Node ---

// SystemInfo fetches daemon version and host details, used by the admin
// node test-connection endpoint and the heartbeat.
func (c *Client) SystemInfo() *Response {
	return c.request(http.MethodGet, "/api/system", nil)
}
