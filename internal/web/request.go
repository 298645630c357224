package web

import (
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/JonMunkholm/metascaler/internal/core"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// bodyOverhead allows for form fields and JSON framing around the file.
const bodyOverhead = 1 << 20

//go:embed schemas/run_request.schema.json
var runRequestSchemaJSON string

var runRequestSchema = jsonschema.MustCompileString("run_request.schema.json", runRequestSchemaJSON)

// runRequestBody is the JSON form of a run submission.
type runRequestBody struct {
	FileName    string   `json:"file_name"`
	FileContent string   `json:"file_content"`
	AssetTypes  []string `json:"asset_types"`
	DryRun      *bool    `json:"dry_run"`
	Format      string   `json:"format"`
	Sheet       string   `json:"sheet"`
}

// decodeRunRequest reads a run submission from either a multipart form or a
// JSON body. Runs are dry unless the caller explicitly sets dry_run=false.
func (s *Server) decodeRunRequest(w http.ResponseWriter, r *http.Request) (core.RunRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		r.Body = http.MaxBytesReader(w, r.Body, s.bodyLimit(true))
		return decodeJSONRunRequest(r.Body)
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, s.bodyLimit(false))
		return decodeMultipartRunRequest(r)
	default:
		return core.RunRequest{}, fmt.Errorf("%w: unsupported content type %q", core.ErrInvalidRequest, mediaType)
	}
}

// bodyLimit bounds a request body so the file can still be rejected with a
// clear size error by the service when it is only slightly too large.
func (s *Server) bodyLimit(base64Encoded bool) int64 {
	limit := s.cfg.Run.MaxFileSize
	if limit <= 0 {
		return 1<<63 - 1
	}
	if base64Encoded {
		limit = limit/3*4 + 4
	}
	return limit + bodyOverhead
}

func decodeJSONRunRequest(body io.Reader) (core.RunRequest, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return core.RunRequest{}, readBodyError(err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return core.RunRequest{}, fmt.Errorf("%w: body is not valid JSON: %v", core.ErrInvalidRequest, err)
	}
	if err := runRequestSchema.Validate(doc); err != nil {
		return core.RunRequest{}, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}

	var req runRequestBody
	if err := json.Unmarshal(data, &req); err != nil {
		return core.RunRequest{}, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}
	content, err := base64.StdEncoding.DecodeString(req.FileContent)
	if err != nil {
		return core.RunRequest{}, fmt.Errorf("%w: file_content is not base64: %v", core.ErrInvalidRequest, err)
	}

	dryRun := true
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}
	return core.RunRequest{
		FileName:   req.FileName,
		Data:       content,
		Format:     req.Format,
		Sheet:      req.Sheet,
		AssetTypes: splitList(req.AssetTypes),
		DryRun:     dryRun,
	}, nil
}

func decodeMultipartRunRequest(r *http.Request) (core.RunRequest, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return core.RunRequest{}, readBodyError(err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return core.RunRequest{}, core.ErrNoFile
		}
		return core.RunRequest{}, readBodyError(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return core.RunRequest{}, readBodyError(err)
	}

	dryRun, err := parseDryRun(r.FormValue("dry_run"))
	if err != nil {
		return core.RunRequest{}, err
	}

	return core.RunRequest{
		FileName:   header.Filename,
		Data:       data,
		Format:     r.FormValue("format"),
		Sheet:      r.FormValue("sheet"),
		AssetTypes: splitList(r.MultipartForm.Value["asset_types"]),
		DryRun:     dryRun,
	}, nil
}

// parseDryRun defaults to true when the field is absent.
func parseDryRun(v string) (bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: dry_run must be a boolean, got %q", core.ErrInvalidRequest, v)
	}
	return b, nil
}

// splitList accepts repeated values, comma-separated values, or both.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// readBodyError keeps size violations recognizable and marks everything else
// as a malformed request.
func readBodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("file too large: request body exceeds %d bytes", tooLarge.Limit)
	}
	return fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
}
