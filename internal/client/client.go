package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Client talks to a photovault server.
type Client struct {
	BaseURL    string
	ExternalID int64
	HTTPClient *http.Client
}

// New creates a client for the given server and account.
func New(baseURL string, externalID int64) *Client {
	return &Client{
		BaseURL:    baseURL,
		ExternalID: externalID,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// apiError is the server's error envelope.
type apiError struct {
	Error string `json:"error"`
}

// decodeError turns a non-2xx response into an error carrying the server's
// message.
func decodeError(resp *http.Response) error {
	var e apiError
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return fmt.Errorf("%s (%s)", e.Error, resp.Status)
}

// RegisterResult is the server's response to a registration.
type RegisterResult struct {
	AccountID     int64  `json:"account_id"`
	ExternalID    int64  `json:"external_id"`
	CapacityBytes int64  `json:"capacity_bytes"`
	Message       string `json:"message"`
}

// Register creates an account for the client's external ID.
func (c *Client) Register(username string) (*RegisterResult, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"external_id": c.ExternalID,
		"username":    username,
	})

	resp, err := c.HTTPClient.Post(c.BaseURL+"/api/register", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, decodeError(resp)
	}

	var result RegisterResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// UploadResult is the server's response to a photo upload.
type UploadResult struct {
	Filename       string `json:"filename"`
	SizeBytes      int64  `json:"size_bytes"`
	ContentHash    string `json:"content_hash"`
	SessionStarted bool   `json:"session_started"`
	UsedBytes      int64  `json:"used_bytes"`
	CapacityBytes  int64  `json:"capacity_bytes"`
}

// SendPhoto uploads a single file.
func (c *Client) SendPhoto(path, replyTo string) (*UploadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("photo", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if replyTo != "" {
		writer.WriteField("reply_to", replyTo)
	}
	writer.Close()

	url := fmt.Sprintf("%s/api/accounts/%d/photos", c.BaseURL, c.ExternalID)
	resp, err := c.HTTPClient.Post(url, writer.FormDataContentType(), &body)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, decodeError(resp)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// SendDir uploads every image in a directory, stopping at the first failure.
func (c *Client) SendDir(dir, replyTo string) ([]*UploadResult, error) {
	paths, err := CollectImages(dir)
	if err != nil {
		return nil, err
	}

	var results []*UploadResult
	for _, path := range paths {
		result, err := c.SendPhoto(path, replyTo)
		if err != nil {
			return results, fmt.Errorf("upload of %s failed: %w", path, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// Random downloads a random photo into dest and returns its size.
func (c *Client) Random(dest string) (int64, error) {
	url := fmt.Sprintf("%s/api/accounts/%d/photos/random", c.BaseURL, c.ExternalID)
	resp, err := c.HTTPClient.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}

	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		os.Remove(dest)
		return 0, fmt.Errorf("download interrupted: %w", err)
	}
	return n, nil
}

// StatsResult holds per-account usage numbers.
type StatsResult struct {
	Photos        int64  `json:"photos"`
	UsedBytes     int64  `json:"used_bytes"`
	CapacityBytes int64  `json:"capacity_bytes"`
	UsedHuman     string `json:"used_human"`
	CapacityHuman string `json:"capacity_human"`
}

// Stats fetches the account's usage numbers.
func (c *Client) Stats() (*StatsResult, error) {
	url := fmt.Sprintf("%s/api/accounts/%d/stats", c.BaseURL, c.ExternalID)
	resp, err := c.HTTPClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var result StatsResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// LeaveResult reports where the deletion flow stands.
type LeaveResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Leave advances the two-step account deletion. The first call arms it, a
// second call within the confirmation window deletes the account.
func (c *Client) Leave(replyTo string) (*LeaveResult, error) {
	payload, _ := json.Marshal(map[string]string{"reply_to": replyTo})

	url := fmt.Sprintf("%s/api/accounts/%d/leave", c.BaseURL, c.ExternalID)
	resp, err := c.HTTPClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, decodeError(resp)
	}

	var result LeaveResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}
