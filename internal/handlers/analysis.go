package handlers

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gridwatch/healthindexer/internal/services"
	"github.com/gridwatch/healthindexer/pkg/errors"
	"github.com/gridwatch/healthindexer/pkg/response"
)

// maxAnalysisBodyBytes caps uploads; the form carries a handful of images.
const maxAnalysisBodyBytes = 32 << 20

// AnalysisHandler accepts analysis submissions and serves history.
type AnalysisHandler struct {
	analyses *services.AnalysisService
}

func NewAnalysisHandler(analyses *services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analyses: analyses}
}

// POST /api/analysis
// The multipart body is buffered so the metadata fields can be read here
// while the byte-identical payload is forwarded to the model service.
func (h *AnalysisHandler) Submit(c *gin.Context) {
	contentType := c.GetHeader("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		response.Error(c, errors.NewBadRequest("multipart form data is required"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAnalysisBodyBytes+1))
	if err != nil {
		response.Error(c, errors.NewBadRequest("failed to read request body"))
		return
	}
	if len(body) > maxAnalysisBodyBytes {
		response.Error(c, errors.New("PAYLOAD_TOO_LARGE", "Upload exceeds the size limit", http.StatusRequestEntityTooLarge))
		return
	}

	sub, err := parseSubmission(bytes.NewReader(body), params["boundary"])
	if err != nil {
		response.Error(c, err)
		return
	}

	log, err := h.analyses.Analyze(requestContext(c), currentUserID(c), *sub, contentType, bytes.NewReader(body))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"analysis": log})
}

// GET /api/analysis/history
func (h *AnalysisHandler) History(c *gin.Context) {
	logs, err := h.analyses.HistoryForUser(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"history": logs})
}

// parseSubmission extracts the metadata fields from the multipart form
// without consuming file parts into memory.
func parseSubmission(body io.Reader, boundary string) (*services.Submission, error) {
	reader := multipart.NewReader(body, boundary)
	sub := &services.Submission{}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errInvalidForm
		}

		if part.FileName() != "" {
			_ = part.Close()
			continue
		}

		value, err := readFormValue(part)
		_ = part.Close()
		if err != nil {
			return nil, errInvalidForm
		}

		switch part.FormName() {
		case "transformer_id":
			sub.TransformerID = value
		case "location":
			sub.Location = value
		case "latitude":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				sub.Latitude = &v
			}
		case "longitude":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				sub.Longitude = &v
			}
		case "date":
			sub.Date = value
		case "time":
			sub.Time = value
		}
	}

	if sub.TransformerID == "" {
		return nil, errMissingTransformerID
	}
	if sub.Location == "" {
		return nil, errMissingLocation
	}

	return sub, nil
}

func readFormValue(part *multipart.Part) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(part, 4096))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

var (
	errInvalidForm          = errors.NewBadRequest("invalid multipart form")
	errMissingTransformerID = errors.NewBadRequest("transformer_id is required")
	errMissingLocation      = errors.NewBadRequest("location is required")
)
