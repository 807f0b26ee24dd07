package ui

import (
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"goprep/app"
	"goprep/domain/core"
	"goprep/domain/dataset"
	"goprep/domain/preprocess"
	"goprep/internal/errors"
	"goprep/ui/middleware"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

const uploadField = "files"

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// submissionView adds resolved download URLs to a ledger record
type submissionView struct {
	*preprocess.Submission
	Downloads map[core.DatasetID]string `json:"downloads,omitempty"`
}

func (s *Server) view(sub *preprocess.Submission) submissionView {
	v := submissionView{Submission: sub}
	if len(sub.Result) > 0 {
		v.Downloads = make(map[core.DatasetID]string, len(sub.Result))
		for id, ref := range sub.Result {
			v.Downloads[id] = s.service.DownloadURL(ref)
		}
	}
	return v
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleListDatasets(c *gin.Context) {
	view, err := s.service.Columns(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view.Datasets)
}

func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Code: errors.CodeInvalidInput, Message: "upload exceeds the size limit"})
			return
		}
		writeError(c, errors.InvalidInput("expected a multipart form with one or more files: "+err.Error()))
		return
	}
	files := c.Request.MultipartForm.File[uploadField]
	if len(files) == 0 {
		writeError(c, errors.InvalidInput("no files in form field \""+uploadField+"\""))
		return
	}

	sessionID := middleware.SessionID(c)
	handles := make([]dataset.Handle, 0, len(files))
	for _, fh := range files {
		handle, err := s.storeUpload(c, sessionID, fh)
		if err != nil {
			writeError(c, err)
			return
		}
		handles = append(handles, handle)
	}
	c.JSON(http.StatusCreated, handles)
}

func (s *Server) storeUpload(c *gin.Context, sessionID string, fh *multipart.FileHeader) (dataset.Handle, error) {
	f, err := fh.Open()
	if err != nil {
		return dataset.Handle{}, errors.InvalidInput("cannot read uploaded file " + fh.Filename)
	}
	defer f.Close()
	return s.service.Upload(c.Request.Context(), sessionID, f, fh.Filename)
}

func (s *Server) handleRemoveDataset(c *gin.Context) {
	id := core.DatasetID(c.Param("id"))
	if err := s.service.RemoveDataset(c.Request.Context(), middleware.SessionID(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleColumns(c *gin.Context) {
	view, err := s.service.Columns(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Config(middleware.SessionID(c)))
}

func (s *Server) handlePatchConfig(c *gin.Context) {
	var patch app.ConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeError(c, errors.InvalidInput("invalid configuration body: "+err.Error()))
		return
	}
	snap, err := s.service.UpdateConfig(middleware.SessionID(c), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleResetConfig(c *gin.Context) {
	snap, err := s.service.ResetConfig(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleToggleColumn(c *gin.Context) {
	column := c.Param("column")
	if column == "" {
		writeError(c, errors.InvalidInput("malformed column name"))
		return
	}
	snap, err := s.service.ToggleColumn(middleware.SessionID(c), c.Param("kind"), column)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleValidate(c *gin.Context) {
	if err := s.service.Validate(c.Request.Context(), middleware.SessionID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (s *Server) handleSubmit(c *gin.Context) {
	sub, err := s.service.Submit(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.view(sub))
}

func (s *Server) handleListSubmissions(c *gin.Context) {
	limit := cast.ToInt(c.Query("limit"))
	if limit <= 0 {
		limit = 50
	}
	subs, err := s.service.Submissions(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]submissionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, s.view(sub))
	}
	c.JSON(http.StatusOK, views)
}

func submissionID(c *gin.Context) (core.SubmissionID, error) {
	id, err := core.ParseSubmissionID(c.Param("id"))
	if err != nil {
		return "", errors.InvalidInput(err.Error())
	}
	return id, nil
}

func (s *Server) handleGetSubmission(c *gin.Context) {
	id, err := submissionID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	sub, err := s.service.Submission(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.view(sub))
}

func (s *Server) handleReport(c *gin.Context) {
	id, err := submissionID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	report, err := s.service.Report(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if c.Query("format") == "markdown" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(report.HTML))
}

// handleDownload serves local artifacts directly and redirects to the
// execution service for remote ones.
func (s *Server) handleDownload(c *gin.Context) {
	ref, err := core.ParseArtifactRef(c.Param("ref"))
	if err != nil {
		writeError(c, errors.InvalidInput(err.Error()))
		return
	}

	if s.artifacts == nil {
		c.Redirect(http.StatusFound, s.service.DownloadURL(ref))
		return
	}
	path, err := s.artifacts.ArtifactPath(ref)
	if err != nil {
		writeError(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[API] %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, errorResponse{Code: errors.GetCode(err), Message: errors.Message(err)})
}

func statusFor(err error) int {
	if errors.IsValidation(err) {
		return http.StatusUnprocessableEntity
	}
	switch errors.GetCode(err) {
	case errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeSubmissionInProgress:
		return http.StatusConflict
	case errors.CodeExternalService, errors.CodeOrchestration:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
