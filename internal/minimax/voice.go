package minimax

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Voice clone defaults.
const (
	PurposeVoiceClone   = "voice_clone"
	DefaultCloneModel   = "speech-2.6-hd"
	DefaultPreviewText  = "測試語音輸出"
	voiceIDPrefix       = "ClonedVoice"
	voiceIDLayout       = "20060102150405"
	formFieldPurpose    = "purpose"
	formFieldFile       = "file"
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	contentTypeJSON     = "application/json"
	errFmtAPI           = "%w: %s returned %d %s"
	errFmtHTTP          = "%s returned HTTP %d: %s"
)

// Static errors.
var (
	ErrAPI          = errors.New("minimax API error")
	ErrNoFileID     = errors.New("upload response carries no file_id")
	ErrEmptyVoiceID = errors.New("voice id is empty")
)

// CloneRequest is the voice_clone body.
type CloneRequest struct {
	FileID                  int64  `json:"file_id"`
	VoiceID                 string `json:"voice_id"`
	Model                   string `json:"model,omitempty"`
	NoiseReduction          bool   `json:"noise_reduction"`
	NeedVolumeNormalization bool   `json:"need_volume_normalization"`
	Text                    string `json:"text,omitempty"`
}

// CloneResponse is the voice_clone answer.
type CloneResponse struct {
	DemoAudio string   `json:"demo_audio"`
	BaseResp  BaseResp `json:"base_resp"`
}

type uploadResponse struct {
	File struct {
		FileID   int64  `json:"file_id"`
		Filename string `json:"filename"`
		Bytes    int64  `json:"bytes"`
	} `json:"file"`
	BaseResp BaseResp `json:"base_resp"`
}

// VoiceClient uploads samples and creates cloned voices. Both calls are
// synchronous and are not part of the job protocol.
type VoiceClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewVoiceClient creates a VoiceClient for the API rooted at baseURL.
func NewVoiceClient(baseURL, apiKey string, timeout time.Duration) *VoiceClient {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}

	return &VoiceClient{
		baseURL:    base,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewVoiceID derives a voice id that satisfies the vendor rules
// (letter first, letters and digits, at least 8 characters).
func NewVoiceID(now time.Time) string {
	return voiceIDPrefix + now.Format(voiceIDLayout)
}

// NewCloneRequest returns a request with noise reduction and volume normalisation on.
func NewCloneRequest(fileID int64, voiceID string) CloneRequest {
	return CloneRequest{
		FileID:                  fileID,
		VoiceID:                 voiceID,
		Model:                   DefaultCloneModel,
		NoiseReduction:          true,
		NeedVolumeNormalization: true,
		Text:                    DefaultPreviewText,
	}
}

// UploadFile sends a local audio file and returns its file_id.
func (c *VoiceClient) UploadFile(ctx context.Context, path, purpose string) (int64, error) {
	body, contentType, err := multipartFile(path, purpose)
	if err != nil {
		return 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathUpload, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentType)

	var response uploadResponse

	err = c.do(httpReq, pathUpload, &response)
	if err != nil {
		return 0, err
	}

	err = checkBaseResp(pathUpload, response.BaseResp)
	if err != nil {
		return 0, err
	}

	if response.File.FileID == 0 {
		return 0, ErrNoFileID
	}

	return response.File.FileID, nil
}

// CloneVoice registers req.VoiceID from an uploaded sample.
func (c *VoiceClient) CloneVoice(ctx context.Context, req CloneRequest) (CloneResponse, error) {
	if req.VoiceID == "" {
		return CloneResponse{}, ErrEmptyVoiceID
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return CloneResponse{}, fmt.Errorf("failed to marshal clone request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathClone, bytes.NewReader(payload))
	if err != nil {
		return CloneResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)

	var response CloneResponse

	err = c.do(httpReq, pathClone, &response)
	if err != nil {
		return CloneResponse{}, err
	}

	err = checkBaseResp(pathClone, response.BaseResp)
	if err != nil {
		return CloneResponse{}, err
	}

	return response, nil
}

func (c *VoiceClient) do(httpReq *http.Request, op string, out any) error {
	httpReq.Header.Set(headerAuthorization, "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(errFmtHTTP, op, resp.StatusCode, string(body))
	}

	err = json.Unmarshal(body, out)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}

func checkBaseResp(op string, baseResp BaseResp) error {
	if baseResp.OK() {
		return nil
	}

	return fmt.Errorf(errFmtAPI, ErrAPI, op, baseResp.StatusCode, baseResp.StatusMsg)
}

func multipartFile(path, purpose string) (io.Reader, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var buffer bytes.Buffer

	writer := multipart.NewWriter(&buffer)

	err = writer.WriteField(formFieldPurpose, purpose)
	if err != nil {
		return nil, "", fmt.Errorf("failed to write form field: %w", err)
	}

	part, err := writer.CreateFormFile(formFieldFile, filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	_, err = io.Copy(part, file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to copy %s: %w", path, err)
	}

	err = writer.Close()
	if err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buffer, writer.FormDataContentType(), nil
}
