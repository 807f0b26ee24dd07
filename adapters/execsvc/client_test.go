package execsvc

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"goprep/domain/core"
	"goprep/domain/dataset"
	"goprep/domain/preprocess"
	"goprep/internal/errors"
	"goprep/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataset(t *testing.T, name, content string) dataset.Handle {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return dataset.NewHandle(path)
}

func TestPreprocessSendsMultipartForm(t *testing.T) {
	a := writeDataset(t, "A.csv", "x,y\n1,a\n")
	b := writeDataset(t, "B.csv", "x,y\n2,b\n")

	var mu sync.Mutex
	got := map[string][]string{}
	var uploaded []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/preprocess", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}

		mu.Lock()
		for k, v := range r.MultipartForm.Value {
			got[k] = v
		}
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			if !assert.NoError(t, err) {
				continue
			}
			data, _ := io.ReadAll(f)
			f.Close()
			uploaded = append(uploaded, fh.Filename+":"+string(data))
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"A.csv": {"preprocessed_file": "A_preprocessed.csv"}, "B.csv": {"preprocessed_file": "B_preprocessed.csv"}}`)
	}))
	defer server.Close()

	req := preprocess.WireRequest{
		MissingStrategy: preprocess.MissingMedian,
		Scaling:         true,
		ScalingColumns:  "x",
		Encoding:        preprocess.EncodingKFold,
		TargetColumn:    "y",
	}
	var progress []int
	client := NewClient(server.URL, 5*time.Second)
	result, err := client.Preprocess(context.Background(), req, []dataset.Handle{a, b}, func(p int) { progress = append(progress, p) })
	require.NoError(t, err)

	assert.Equal(t, preprocess.Result{"A.csv": "A_preprocessed.csv", "B.csv": "B_preprocessed.csv"}, result)
	assert.Equal(t, []string{"median"}, got["missing_strategy"])
	assert.Equal(t, []string{"true"}, got["scaling"])
	assert.Equal(t, []string{"x"}, got["scaling_columns"])
	assert.Equal(t, []string{"kfold"}, got["encoding"])
	assert.Equal(t, []string{""}, got["encoding_columns"])
	assert.Equal(t, []string{"y"}, got["target_column"])
	assert.Equal(t, []string{"A.csv:x,y\n1,a\n", "B.csv:x,y\n2,b\n"}, uploaded)

	require.NotEmpty(t, progress)
	assert.IsNonDecreasing(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1])
}

func TestPreprocessServiceErrorCarriesMessage(t *testing.T) {
	a := writeDataset(t, "A.csv", "x\n1\n")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": "Target column 'y' not found"}`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, time.Second).Preprocess(context.Background(), preprocess.WireRequest{}, []dataset.Handle{a}, nil)
	require.Error(t, err)

	var svcErr *ports.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, http.StatusBadRequest, svcErr.StatusCode)
	assert.Equal(t, "Target column 'y' not found", svcErr.Message)
	assert.Equal(t, errors.CodeExternalService, errors.GetCode(err))
}

func TestPreprocessNonJSONErrorBody(t *testing.T) {
	a := writeDataset(t, "A.csv", "x\n1\n")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, time.Second).Preprocess(context.Background(), preprocess.WireRequest{}, []dataset.Handle{a}, nil)
	var svcErr *ports.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "upstream exploded", svcErr.Message)
}

func TestPreprocessMalformedResponse(t *testing.T) {
	a := writeDataset(t, "A.csv", "x\n1\n")
	for name, body := range map[string]string{
		"not json":     `<html>`,
		"array":        `[1,2]`,
		"missing file": `{"A.csv": {"other": "x"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			defer server.Close()

			result, err := NewClient(server.URL, time.Second).Preprocess(context.Background(), preprocess.WireRequest{}, []dataset.Handle{a}, nil)
			assert.Error(t, err)
			assert.Nil(t, result)
		})
	}
}

func TestPreprocessMissingFile(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1", time.Second).Preprocess(context.Background(), preprocess.WireRequest{},
		[]dataset.Handle{dataset.NewHandle("/nonexistent/A.csv")}, nil)
	assert.ErrorContains(t, err, "open dataset A.csv")
}

func TestDownloadURL(t *testing.T) {
	c := NewClient("http://exec:5000", time.Second)
	assert.Equal(t, "http://exec:5000/download-preprocessed/A_preprocessed.csv", c.DownloadURL(core.ArtifactRef("A_preprocessed.csv")))
	assert.Equal(t, "http://exec:5000/download-preprocessed/my%20file.csv", c.DownloadURL("my file.csv"))
}
