package execsvc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"goprep/domain/core"
	"goprep/domain/dataset"
	"goprep/domain/preprocess"
	"goprep/internal/errors"
	"goprep/ports"

	"github.com/tidwall/gjson"
)

const serviceName = "preprocess"

// uploadShare is the part of the reported progress covered by the upload;
// the rest is reached once the response is parsed.
const uploadShare = 90

// Client talks to the remote preprocessing service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the service rooted at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var (
	_ ports.ExecutionService = (*Client)(nil)
	_ ports.DownloadResolver = (*Client)(nil)
)

// Preprocess uploads every dataset in one multipart request and returns the
// artifact reference the service produced for each of them.
func (c *Client) Preprocess(ctx context.Context, req preprocess.WireRequest, datasets []dataset.Handle, progress ports.ProgressFunc) (preprocess.Result, error) {
	body, contentType, err := buildForm(req, datasets)
	if err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}

	reader := &progressReader{r: bytes.NewReader(body), total: int64(len(body)), report: progress}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/preprocess", reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.ContentLength = int64(len(body))
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	log.Printf("[ExecClient] POST /preprocess %d in %v (%d dataset(s), %d bytes sent)",
		resp.StatusCode, time.Since(start).Round(time.Millisecond), len(datasets), len(body))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.ExternalServiceError(serviceName, &ports.ServiceError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    errorDetail(respBody),
		})
	}

	result, err := parseResult(respBody)
	if err != nil {
		return nil, errors.ExternalServiceError(serviceName, err)
	}
	if progress != nil {
		progress(100)
	}
	return result, nil
}

// DownloadURL returns where the browser can fetch a preprocessed file
func (c *Client) DownloadURL(ref core.ArtifactRef) string {
	return c.baseURL + "/download-preprocessed/" + url.PathEscape(ref.String())
}

func buildForm(req preprocess.WireRequest, datasets []dataset.Handle) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, ds := range datasets {
		if err := addFile(w, ds); err != nil {
			return nil, "", err
		}
	}

	fields := []struct{ name, value string }{
		{"missing_strategy", string(req.MissingStrategy)},
		{"scaling", strconv.FormatBool(req.Scaling)},
		{"scaling_columns", req.ScalingColumns},
		{"encoding", string(req.Encoding)},
		{"encoding_columns", req.EncodingColumns},
		{"target_column", req.TargetColumn},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func addFile(w *multipart.Writer, ds dataset.Handle) error {
	f, err := os.Open(ds.Path)
	if err != nil {
		return fmt.Errorf("open dataset %s: %w", ds.ID, err)
	}
	defer f.Close()

	part, err := w.CreateFormFile("files", ds.ID.String())
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read dataset %s: %w", ds.ID, err)
	}
	return nil
}

// parseResult reads {"<id>": {"preprocessed_file": "<ref>"}, ...}.
func parseResult(body []byte) (preprocess.Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("response is not a JSON object")
	}

	result := make(preprocess.Result)
	var parseErr error
	root.ForEach(func(key, value gjson.Result) bool {
		ref := value.Get("preprocessed_file")
		if ref.Type != gjson.String || ref.String() == "" {
			parseErr = fmt.Errorf("entry %q has no preprocessed_file", key.String())
			return false
		}
		result[core.DatasetID(key.String())] = core.ArtifactRef(ref.String())
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return result, nil
}

// errorDetail extracts the service's own message from an error body.
func errorDetail(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error", "message", "detail"} {
			if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
		return ""
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(bytes.TrimSpace(body))
}

// progressReader reports how much of the request body has been sent.
type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	report ports.ProgressFunc
	mu     sync.Mutex
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.report != nil && p.total > 0 {
		p.mu.Lock()
		p.sent += int64(n)
		pct := int(p.sent * uploadShare / p.total)
		p.mu.Unlock()
		p.report(pct)
	}
	return n, err
}
