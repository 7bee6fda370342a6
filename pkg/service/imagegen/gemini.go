package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/utils/safe"
)

const (
	// DefaultModel is the Gemini model used for image generation
	DefaultModel = "gemini-2.0-flash-preview-image-generation"

	// DefaultEndpoint is the Generative Language API base URL
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
)

// Gemini generates images through the Generative Language API. It implements
// interfaces.ImageGenerator.
type Gemini struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

// Option is a functional option for Gemini configuration
type Option func(*Gemini)

// WithModel overrides the image generation model.
func WithModel(model string) Option {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

// WithEndpoint overrides the API base URL. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(g *Gemini) {
		g.endpoint = endpoint
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(g *Gemini) {
		g.httpClient = httpClient
	}
}

// NewGemini creates an image generator using the given API key.
func NewGemini(apiKey string, opts ...Option) (*Gemini, error) {
	if apiKey == "" {
		return nil, goerr.New("Gemini API key is required")
	}

	g := &Gemini{
		apiKey:     apiKey,
		model:      DefaultModel,
		endpoint:   DefaultEndpoint,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// GenerateImage asks the model for an image and returns the decoded bytes
// with their MIME type.
func (g *Gemini) GenerateImage(ctx context.Context, prompt string) ([]byte, string, error) {
	if prompt == "" {
		return nil, "", goerr.New("image prompt is required")
	}

	reqBody := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: prompt}},
		}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}

	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to encode image request")
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.endpoint, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to build image request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, "", goerr.Wrap(err, "image generation request failed", goerr.V("model", g.model))
	}
	defer safe.Close(ctx, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, "", goerr.New("image generation returned non-OK status",
			goerr.V("status", resp.StatusCode), goerr.V("model", g.model))
	}

	var body generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, "", goerr.Wrap(err, "failed to decode image response")
	}

	for _, cand := range body.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, "", goerr.Wrap(err, "failed to decode image data")
			}
			return data, p.InlineData.MimeType, nil
		}
	}

	return nil, "", goerr.New("model returned no image", goerr.V("model", g.model))
}
