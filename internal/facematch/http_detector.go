package facematch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

const (
	defaultDetectorURL = "http://localhost:8000"

	// DefaultMinFaceSize is the smallest face side in pixels that is kept.
	DefaultMinFaceSize = 60

	// overlapIoU is the IoU above which two detections are treated as one face.
	overlapIoU = 0.5
)

// HTTPDetector detects faces using the face detection server
type HTTPDetector struct {
	baseURL     string
	minFaceSize int
	minScore    float64
	client      *http.Client
}

// NewHTTPDetector creates a new detector client
func NewHTTPDetector(baseURL string, minFaceSize int, minScore float64, timeout time.Duration) *HTTPDetector {
	if baseURL == "" {
		baseURL = defaultDetectorURL
	}
	if minFaceSize <= 0 {
		minFaceSize = DefaultMinFaceSize
	}
	return &HTTPDetector{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		minFaceSize: minFaceSize,
		minScore:    minScore,
		client:      &http.Client{Timeout: timeout},
	}
}

// faceDetection represents a single detected face
type faceDetection struct {
	BBox     []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore float64   `json:"det_score"`
}

// detectResponse represents the response from the face detection endpoint
type detectResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
}

// Detect posts the image as PNG and returns the detected face regions that
// pass the size and score filters, with overlapping detections merged.
func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]Region, error) {
	var encoded bytes.Buffer
	if err := imaging.Encode(&encoded, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	body, err := d.postMultipartImage(ctx, "/detect/faces", encoded.Bytes())
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	bounds := image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy())
	regions := make([]Region, 0, len(resp.Faces))
	scores := make([]float64, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if f.DetScore < d.minScore {
			continue
		}
		r, ok := CornerBBoxToRegion(f.BBox)
		if !ok {
			continue
		}
		r = ClampRegion(r, bounds)
		if r.W < d.minFaceSize || r.H < d.minFaceSize {
			continue
		}
		regions = append(regions, r)
		scores = append(scores, f.DetScore)
	}

	return SuppressOverlaps(regions, scores, overlapIoU), nil
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
func (d *HTTPDetector) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.png"`)
	h.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// Health checks that the detection server responds.
func (d *HTTPDetector) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New("detector unhealthy: status " + resp.Status)
	}
	return nil
}
