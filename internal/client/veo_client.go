package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/failure"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// VideoGenerator defines the long-running video job boundary
type VideoGenerator interface {
	SubmitVideo(ctx context.Context, apiKey string, req *VideoRequest) (*VideoOperation, error)
	GetVideoOperation(ctx context.Context, apiKey, name string) (*VideoOperation, error)
	DownloadVideo(ctx context.Context, apiKey, uri string) ([]byte, string, error)
}

// VeoClient implements VideoGenerator for the Veo models of the Generative
// Language API
type VeoClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// VideoRequest is one render job submission
type VideoRequest struct {
	Model       string
	Prompt      string
	AspectRatio string
	Resolution  string
}

type veoInstance struct {
	Prompt string `json:"prompt"`
}

type veoParameters struct {
	AspectRatio string `json:"aspectRatio"`
	Resolution  string `json:"resolution"`
	SampleCount int    `json:"sampleCount"`
}

type veoPredictRequest struct {
	Instances  []veoInstance `json:"instances"`
	Parameters veoParameters `json:"parameters"`
}

// VideoOperation is the long-running operation handle returned on submit and
// on every poll
type VideoOperation struct {
	Name     string                  `json:"name"`
	Done     bool                    `json:"done"`
	Error    *failure.OperationError `json:"error,omitempty"`
	Response *VideoResponse          `json:"response,omitempty"`
}

// VideoResponse is the payload of a finished operation
type VideoResponse struct {
	GenerateVideoResponse *GenerateVideoResponse `json:"generateVideoResponse,omitempty"`
}

type GenerateVideoResponse struct {
	GeneratedSamples []GeneratedSample `json:"generatedSamples"`
}

type GeneratedSample struct {
	Video GeneratedVideo `json:"video"`
}

type GeneratedVideo struct {
	URI string `json:"uri"`
}

// NewCompletedOperation builds a finished operation holding one video.
func NewCompletedOperation(name, uri string) *VideoOperation {
	return &VideoOperation{
		Name: name,
		Done: true,
		Response: &VideoResponse{
			GenerateVideoResponse: &GenerateVideoResponse{
				GeneratedSamples: []GeneratedSample{{Video: GeneratedVideo{URI: uri}}},
			},
		},
	}
}

// VideoURI returns the locator of the first generated video, or "".
func (op *VideoOperation) VideoURI() string {
	if op.Response == nil || op.Response.GenerateVideoResponse == nil {
		return ""
	}
	samples := op.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) == 0 {
		return ""
	}
	return samples[0].Video.URI
}

// NewVeoClient creates a new Veo API client
func NewVeoClient(gemini *config.GeminiConfig, veo *config.VeoConfig, logger *zap.Logger) *VeoClient {
	perMinute := veo.SubmitPerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	return &VeoClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: strings.TrimRight(gemini.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		logger:  logger.Named("veo"),
	}
}

// SubmitVideo starts a render job. Submissions are paced by the client
// limiter since every job draws from the same quota.
func (c *VeoClient) SubmitVideo(ctx context.Context, apiKey string, req *VideoRequest) (*VideoOperation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body := veoPredictRequest{
		Instances: []veoInstance{{Prompt: req.Prompt}},
		Parameters: veoParameters{
			AspectRatio: req.AspectRatio,
			Resolution:  req.Resolution,
			SampleCount: 1,
		},
	}
	endpoint := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, req.Model)

	var op VideoOperation
	if err := c.post(ctx, apiKey, endpoint, body, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// GetVideoOperation fetches the current state of a render job
func (c *VeoClient) GetVideoOperation(ctx context.Context, apiKey, name string) (*VideoOperation, error) {
	var op VideoOperation
	if err := c.get(ctx, apiKey, c.baseURL+"/"+strings.TrimLeft(name, "/"), &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// DownloadVideo fetches the rendered clip bytes and their content type
func (c *VeoClient) DownloadVideo(ctx context.Context, apiKey, uri string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download video: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read video: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", failure.NewAPIError("veo", resp.StatusCode, data)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = "video/mp4"
	}
	return data, contentType, nil
}

// post sends a POST request with JSON body
func (c *VeoClient) post(ctx context.Context, apiKey, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, apiKey, result)
}

// get sends a GET request and parses JSON response
func (c *VeoClient) get(ctx context.Context, apiKey, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, apiKey, result)
}

// doRequest executes an HTTP request and parses the response
func (c *VeoClient) doRequest(req *http.Request, apiKey string, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	c.logger.Debug("request", zap.String("method", req.Method), zap.String("path", req.URL.Path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", zap.String("path", req.URL.Path), zap.Error(err))
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("response",
		zap.Int("status", resp.StatusCode),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failure.NewAPIError("veo", resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
