package gradio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// Upload sends a local file to the app and returns the FileData to pass to a call.
func (a *Adapter) Upload(ctx context.Context, httpClient *http.Client, path string) (FileData, error) {
	body, contentType, err := multipartFiles(path)
	if err != nil {
		return FileData{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+pathUpload, body)
	if err != nil {
		return FileData{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	a.authorize(httpReq)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return FileData{}, fmt.Errorf("failed to upload %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return FileData{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return FileData{}, fmt.Errorf("upload returned HTTP %d: %s", resp.StatusCode, string(payload))
	}

	var paths []string

	err = json.Unmarshal(payload, &paths)
	if err != nil {
		return FileData{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	if len(paths) == 0 || paths[0] == "" {
		return FileData{}, ErrNoUploadPath
	}

	file := NewFileData(paths[0])
	file.URL = a.baseURL + pathFile + paths[0]

	return file, nil
}

func multipartFiles(path string) (io.Reader, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var buffer bytes.Buffer

	writer := multipart.NewWriter(&buffer)

	part, err := writer.CreateFormFile("files", filepath.Base(path))
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
