package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/feichai0017/document-tables/pkg/logger"
)

// DocumentValidator checks uploads before they reach storage
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize  int64               // bytes
	AllowedTypes map[string][]string // extension -> accepted MIME types
	MaxPageCount int
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type FileInfo struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	MimeType    string `json:"mimeType"`
	Extension   string `json:"extension"`
	Hash        string `json:"hash"`
	PageCount   int    `json:"pageCount,omitempty"`
}

// FileInput is an upload as received from the transport
type FileInput struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadSeeker
}

func DefaultConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: 15 * 1024 * 1024,
		AllowedTypes: map[string][]string{
			".pdf": {"application/pdf"},
		},
		MaxPageCount: 1000,
	}
}

func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultConfig()
	}
	return &DocumentValidator{
		logger: log.Named("validator"),
		config: config,
	}
}

// Message joins the validation errors into one caller-facing sentence.
func (r *ValidationResult) Message() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// ValidateFile checks size, extension, declared and sniffed MIME type and the
// PDF structure. The body is rewound before returning.
func (v *DocumentValidator) ValidateFile(in FileInput) (*ValidationResult, error) {
	result := &ValidationResult{
		IsValid: true,
		Errors:  make([]ValidationError, 0),
		FileInfo: FileInfo{
			Filename:    in.Filename,
			Size:        in.Size,
			ContentType: strings.TrimSpace(strings.SplitN(in.ContentType, ";", 2)[0]),
			Extension:   strings.ToLower(filepath.Ext(in.Filename)),
		},
	}
	if in.Body == nil {
		return nil, errors.New("upload has no body")
	}

	hash, size, err := v.calculateHash(in.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hash
	result.FileInfo.Size = size

	if errs := v.performBasicValidation(result.FileInfo); len(errs) > 0 {
		result.Errors = append(result.Errors, errs...)
	}

	mimeType, err := v.detectMimeType(in.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to detect mime type: %w", err)
	}
	result.FileInfo.MimeType = mimeType

	if errs := v.validateMimeType(result.FileInfo); len(errs) > 0 {
		result.Errors = append(result.Errors, errs...)
	}

	// Structural checks only make sense once the bytes are known to be a PDF.
	if len(result.Errors) == 0 && result.FileInfo.Extension == ".pdf" {
		pages, errs := v.validatePDF(in.Body, result.FileInfo)
		result.FileInfo.PageCount = pages
		result.Errors = append(result.Errors, errs...)
	}

	if _, err := in.Body.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file pointer: %w", err)
	}

	result.IsValid = len(result.Errors) == 0
	return result, nil
}

func (v *DocumentValidator) performBasicValidation(info FileInfo) []ValidationError {
	var errs []ValidationError

	if info.Size == 0 {
		errs = append(errs, ValidationError{
			Code:    "EMPTY_FILE",
			Message: "file is empty",
			Field:   "size",
		})
	}
	if info.Size > v.config.MaxFileSize {
		errs = append(errs, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("file size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}
	if _, ok := v.config.AllowedTypes[info.Extension]; !ok {
		errs = append(errs, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("file type %q is not allowed", info.Extension),
			Field:   "extension",
		})
	}
	return errs
}

func (v *DocumentValidator) validateMimeType(info FileInfo) []ValidationError {
	allowed, ok := v.config.AllowedTypes[info.Extension]
	if !ok {
		return nil
	}

	var errs []ValidationError
	if info.ContentType != "" && !contains(allowed, info.ContentType) {
		errs = append(errs, ValidationError{
			Code:    "INVALID_CONTENT_TYPE",
			Message: fmt.Sprintf("content type %s is not allowed", info.ContentType),
			Field:   "contentType",
		})
	}
	if !contains(allowed, info.MimeType) {
		errs = append(errs, ValidationError{
			Code:    "INVALID_MIME_TYPE",
			Message: fmt.Sprintf("file content %s does not match extension %s", info.MimeType, info.Extension),
			Field:   "mimeType",
		})
	}
	return errs
}

// validatePDF rejects documents that are encrypted or too long. A document
// pdfcpu cannot parse is let through: extraction decides, and the failure is
// recorded on the document.
func (v *DocumentValidator) validatePDF(body io.ReadSeeker, info FileInfo) (pages int, errs []ValidationError) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Warn("PDF structure could not be read",
				logger.String("filename", info.Filename),
				logger.Any("panic", r),
			)
			pages, errs = 0, nil
		}
	}()
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return 0, nil
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(body, conf)
	if err != nil {
		if isPasswordError(err) {
			return 0, []ValidationError{{
				Code:    "ENCRYPTED_PDF",
				Message: "encrypted PDFs are not supported",
				Field:   "file",
			}}
		}
		v.logger.Warn("PDF structure could not be read",
			logger.String("filename", info.Filename),
			logger.Error(err),
		)
		return 0, nil
	}
	if err := ctx.EnsurePageCount(); err != nil {
		v.logger.Warn("PDF page count unavailable", logger.String("filename", info.Filename), logger.Error(err))
		return 0, nil
	}

	if ctx.Encrypt != nil {
		errs = append(errs, ValidationError{
			Code:    "ENCRYPTED_PDF",
			Message: "encrypted PDFs are not supported",
			Field:   "file",
		})
	}
	if v.config.MaxPageCount > 0 && ctx.PageCount > v.config.MaxPageCount {
		errs = append(errs, ValidationError{
			Code:    "TOO_MANY_PAGES",
			Message: fmt.Sprintf("document has %d pages, maximum is %d", ctx.PageCount, v.config.MaxPageCount),
			Field:   "file",
		})
	}
	return ctx.PageCount, errs
}

func isPasswordError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}

func (v *DocumentValidator) detectMimeType(body io.ReadSeeker) (string, error) {
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	buffer := make([]byte, 512)
	n, err := io.ReadFull(body, buffer)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	return http.DetectContentType(buffer[:n]), nil
}

func (v *DocumentValidator) calculateHash(body io.ReadSeeker) (string, int64, error) {
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return "", 0, err
	}
	hash := sha256.New()
	n, err := io.Copy(hash, body)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hash.Sum(nil)), n, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
