package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

const defaultDetectorURL = "http://localhost:8000"

// Client calls a detect-and-embed HTTP service. The service receives a JPEG
// frame and responds with the detected faces and their embeddings.
type Client struct {
	baseURL string
	dim     int
	client  *http.Client
}

// NewClient creates a detector client. dim is the expected embedding
// dimensionality; responses with a different dimension are rejected so a
// misconfigured service cannot poison the store.
func NewClient(baseURL string, dim int) *Client {
	if baseURL == "" {
		baseURL = defaultDetectorURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		client:  &http.Client{},
	}
}

type detectResponse struct {
	Faces []struct {
		BBox      [4]int    `json:"bbox"` // x1, y1, x2, y2
		Embedding []float32 `json:"embedding"`
	} `json:"faces"`
}

// DetectAndEmbed encodes the image as JPEG, posts it to the service and
// returns the detected faces. Zero faces is a normal, empty result.
func (c *Client) DetectAndEmbed(ctx context.Context, img image.Image) ([]Detection, error) {
	var frame bytes.Buffer
	if err := jpeg.Encode(&frame, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	body, err := c.postMultipartImage(ctx, "/detect", frame.Bytes())
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse detector response: %w", err)
	}

	detections := make([]Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.Embedding) != c.dim {
			return nil, fmt.Errorf("detector returned embedding of dim %d, want %d", len(f.Embedding), c.dim)
		}
		detections = append(detections, Detection{
			BBox:      image.Rect(f.BBox[0], f.BBox[1], f.BBox[2], f.BBox[3]),
			Embedding: f.Embedding,
		})
	}
	return detections, nil
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
