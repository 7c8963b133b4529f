// SPDX-License-Identifier: MIT

package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinirec/analysis-worker/internal/log"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Gemini implements Client against the generative-language v1beta REST API.
type Gemini struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// GeminiOption configures the adapter.
type GeminiOption func(*Gemini)

// WithBaseURL points the adapter at a non-default endpoint. Tests pass an
// httptest server URL.
func WithBaseURL(u string) GeminiOption {
	return func(g *Gemini) { g.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) GeminiOption {
	return func(g *Gemini) { g.httpClient = c }
}

// NewGemini returns an adapter authenticated with apiKey. Per-call deadlines
// come from the caller's context; the client itself carries no timeout.
func NewGemini(apiKey string, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai: API key is required")
	}
	g := &Gemini{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
		logger:     log.WithComponent("genai"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Wire types for the v1beta surface. Only the fields the worker touches.

type wireFile struct {
	Name     string `json:"name,omitempty"`
	URI      string `json:"uri,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	State    string `json:"state,omitempty"`
}

type wireFileEnvelope struct {
	File wireFile `json:"file"`
}

type wireFileData struct {
	FileURI  string `json:"fileUri"`
	MimeType string `json:"mimeType,omitempty"`
}

type wireVideoMetadata struct {
	StartOffset string  `json:"startOffset,omitempty"`
	EndOffset   string  `json:"endOffset,omitempty"`
	FPS         float64 `json:"fps,omitempty"`
}

type wirePart struct {
	Text          string             `json:"text,omitempty"`
	FileData      *wireFileData      `json:"fileData,omitempty"`
	VideoMetadata *wireVideoMetadata `json:"videoMetadata,omitempty"`
}

type wireContent struct {
	Parts []wirePart `json:"parts"`
	Role  string     `json:"role,omitempty"`
}

type wireGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   *Schema `json:"responseSchema,omitempty"`
}

type wireGenerateRequest struct {
	Contents         []wireContent        `json:"contents"`
	GenerationConfig wireGenerationConfig `json:"generationConfig"`
}

type wireGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type wireErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// UploadMedia pushes a local file through the multipart upload endpoint and
// returns the backend's handle. The file typically comes back PROCESSING;
// callers poll GetMedia until ACTIVE.
func (g *Gemini) UploadMedia(ctx context.Context, path, mimeType string) (*MediaFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("genai: open upload source: %w", err)
	}
	defer func() { _ = f.Close() }()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := mw.CreatePart(metaHeader)
	if err != nil {
		return nil, fmt.Errorf("genai: build upload metadata: %w", err)
	}
	meta := map[string]any{"file": map[string]any{"displayName": fileDisplayName(path)}}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return nil, fmt.Errorf("genai: encode upload metadata: %w", err)
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", mimeType)
	mediaPart, err := mw.CreatePart(mediaHeader)
	if err != nil {
		return nil, fmt.Errorf("genai: build upload media part: %w", err)
	}
	if _, err := io.Copy(mediaPart, f); err != nil {
		return nil, fmt.Errorf("genai: read upload source: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("genai: finalize upload body: %w", err)
	}

	u := g.baseURL + "/upload/v1beta/files?uploadType=multipart"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &body)
	if err != nil {
		return nil, fmt.Errorf("genai: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())
	req.Header.Set("X-Goog-Upload-Protocol", "multipart")
	g.authorize(req)

	var env wireFileEnvelope
	if err := g.do(req, &env); err != nil {
		return nil, err
	}
	return fileFromWire(env.File), nil
}

// GetMedia re-fetches an uploaded file handle by its resource name
// (for example "files/abc123").
func (g *Gemini) GetMedia(ctx context.Context, name string) (*MediaFile, error) {
	u := g.baseURL + "/v1beta/" + strings.TrimPrefix(name, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("genai: build file request: %w", err)
	}
	g.authorize(req)

	var file wireFile
	if err := g.do(req, &file); err != nil {
		return nil, err
	}
	return fileFromWire(file), nil
}

// Generate runs one generateContent call and returns the concatenated
// candidate text.
func (g *Gemini) Generate(ctx context.Context, in GenerateRequest) (string, error) {
	parts := make([]wirePart, 0, len(in.Parts))
	for _, p := range in.Parts {
		if p.Media != nil {
			wp := wirePart{FileData: &wireFileData{
				FileURI:  p.Media.URI,
				MimeType: p.Media.MimeType,
			}}
			if m := p.Media.Metadata; m != nil {
				wp.VideoMetadata = &wireVideoMetadata{
					StartOffset: offsetString(m.StartOffsetSec),
					EndOffset:   offsetString(m.EndOffsetSec),
					FPS:         m.FPS,
				}
			}
			parts = append(parts, wp)
			continue
		}
		parts = append(parts, wirePart{Text: p.Text})
	}

	payload := wireGenerateRequest{
		Contents: []wireContent{{Parts: parts, Role: "user"}},
		GenerationConfig: wireGenerationConfig{
			Temperature:      in.Config.Temperature,
			ResponseMimeType: in.Config.ResponseMIMEType,
			ResponseSchema:   in.Config.ResponseSchema,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("genai: encode generate request: %w", err)
	}

	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, url.PathEscape(in.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("genai: build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	g.authorize(req)

	started := time.Now()
	var resp wireGenerateResponse
	if err := g.do(req, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	g.logger.Debug().
		Str(log.FieldModel, in.Model).
		Dur("elapsed", time.Since(started)).
		Int("response_chars", sb.Len()).
		Msg("generate completed")
	return sb.String(), nil
}

func (g *Gemini) authorize(req *http.Request) {
	req.Header.Set("X-Goog-Api-Key", g.apiKey)
}

// do executes req and decodes the response into out, mapping non-2xx
// responses to *APIError so the policy layer can classify them.
func (g *Gemini) do(req *http.Request, out any) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("genai: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("genai: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var env wireErrorEnvelope
		if json.Unmarshal(data, &env) == nil && env.Error.Message != "" {
			apiErr.Status = env.Error.Status
			apiErr.Message = env.Error.Message
			if env.Error.Code != 0 {
				apiErr.Code = env.Error.Code
			}
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("genai: decode response: %w", err)
	}
	return nil
}

func fileFromWire(f wireFile) *MediaFile {
	return &MediaFile{
		Name:     f.Name,
		URI:      f.URI,
		MimeType: f.MimeType,
		State:    FileState(f.State),
	}
}

// offsetString renders seconds in the API's duration format ("26.000s").
func offsetString(sec float64) string {
	return fmt.Sprintf("%.3fs", sec)
}

func fileDisplayName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
