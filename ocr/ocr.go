// Package ocr reads the text out of images with the OCR.space API.
package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const DefaultURL = "https://api.ocr.space/parse/image"

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// IsImage reports whether an attachment can be sent for recognition. The
// content type wins when the platform reports one.
func IsImage(contentType, filename string) bool {
	if contentType != "" {
		return imageTypes[strings.ToLower(contentType)]
	}
	return imageExtensions[strings.ToLower(path.Ext(filename))]
}

type Client struct {
	apiKey   string
	url      string
	language string
	engine   string
	http     *http.Client
}

func NewClient(apiKey, endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	return &Client{
		apiKey:   apiKey,
		url:      endpoint,
		language: "eng",
		engine:   "2",
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type parseResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
}

// errorMessage handles both shapes the API uses: a string or a list.
func (r *parseResponse) errorMessage() string {
	var list []string
	if err := json.Unmarshal(r.ErrorMessage, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	var s string
	if err := json.Unmarshal(r.ErrorMessage, &s); err == nil && s != "" {
		return s
	}
	return "OCR failed"
}

// ExtractText fetches the image at imageURL through the API and returns
// the recognized text, or "" when the image holds none.
func (c *Client) ExtractText(ctx context.Context, imageURL string) (string, error) {
	form := url.Values{}
	form.Set("apikey", c.apiKey)
	form.Set("url", imageURL)
	form.Set("language", c.language)
	form.Set("OCREngine", c.engine)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.url,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr error (status %d)", resp.StatusCode)
	}

	var result parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode ocr response: %w", err)
	}
	if result.IsErroredOnProcessing {
		return "", fmt.Errorf("ocr: %s", result.errorMessage())
	}

	texts := make([]string, 0, len(result.ParsedResults))
	for _, r := range result.ParsedResults {
		texts = append(texts, r.ParsedText)
	}
	return strings.TrimSpace(strings.Join(texts, "\n")), nil
}
