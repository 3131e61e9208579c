package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"canvaschat/internal/domain"
	"canvaschat/internal/infra/tracer"
)

// UploadImage posts a multipart form with a "file" field and returns the
// stored URL. Non-image content is rejected synchronously, before any bytes
// leave the client.
func (c *Client) UploadImage(ctx context.Context, filename, contentType string, r io.Reader) (*domain.UploadResult, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return nil, domain.NewDomainError("UploadImage", domain.ErrNotImage,
			fmt.Sprintf("content type %q", contentType))
	}

	ctx, span := tracer.StartSpan(ctx, "backend.upload")
	defer span.End()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("copy upload body: %w", err)
	}
	if err := mw.Close(); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload-image", &buf)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		err := mapHTTPError(httpResp.StatusCode, respBody)
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("UploadImage", err)
	}

	var result domain.UploadResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal upload response: %w", err)
	}

	tracer.SetOK(span)
	c.logger.Debug("image uploaded", "filename", filename, "url", result.URL)
	return &result, nil
}

// ResolveURL expands a backend-relative path (e.g. /storage/images/x.png)
// into an absolute URL against the backend host. Absolute URLs pass through.
func (c *Client) ResolveURL(path string) string {
	if path == "" || strings.Contains(path, "://") {
		return path
	}
	// baseURL ends with the API prefix; storage paths hang off the host root.
	base := c.baseURL
	if i := strings.Index(base, "://"); i >= 0 {
		if j := strings.Index(base[i+3:], "/"); j >= 0 {
			base = base[:i+3+j]
		}
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
