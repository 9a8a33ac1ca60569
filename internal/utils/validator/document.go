// internal/utils/validator/document.go
package validator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/feichai0017/document-alerts/pkg/logger"
)

var pdfMagic = []byte("%PDF-")

// DocumentValidator 文档验证器
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize  int64               // 最大文件大小（字节）
	AllowedTypes map[string][]string // 允许的文件类型 {扩展名: []MIME类型}
	MaxPageCount int                 // PDF最大页数
}

// ValidationResult 验证结果
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

// ValidationError 验证错误
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// FileInfo 文件信息
type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
	Pages     int    `json:"pages,omitempty"`
}

// DefaultAllowedTypes maps accepted extensions to their MIME types.
func DefaultAllowedTypes() map[string][]string {
	return map[string][]string{
		".pdf":  {"application/pdf"},
		".jpg":  {"image/jpeg"},
		".jpeg": {"image/jpeg"},
		".png":  {"image/png"},
		".tiff": {"image/tiff", "application/octet-stream"},
	}
}

// NewDocumentValidator 创建新的文档验证器
func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = &ValidatorConfig{
			MaxFileSize:  50 * 1024 * 1024, // 50MB
			AllowedTypes: DefaultAllowedTypes(),
			MaxPageCount: 1000,
		}
	}

	return &DocumentValidator{
		logger: log.Named("validator"),
		config: config,
	}
}

// Validate checks an uploaded document. declaredType is the client's
// content-type hint and may be empty.
func (v *DocumentValidator) Validate(filename, declaredType string, content []byte) *ValidationResult {
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  filename,
			Size:      int64(len(content)),
			Extension: strings.ToLower(filepath.Ext(filename)),
			MimeType:  detectMimeType(content),
		},
	}
	sum := sha256.Sum256(content)
	result.FileInfo.Hash = hex.EncodeToString(sum[:])

	// 基本验证
	result.add(v.performBasicValidation(result.FileInfo))
	// MIME类型验证
	result.add(v.validateMimeType(result.FileInfo, declaredType))
	if result.IsValid && result.FileInfo.Extension == ".pdf" {
		result.add(v.validatePDF(content, &result.FileInfo))
	}

	if !result.IsValid {
		v.logger.Warn("Document rejected",
			logger.String("filename", filename),
			logger.Int("errors", len(result.Errors)),
			logger.String("firstError", result.Errors[0].Code),
		)
	}
	return result
}

func (r *ValidationResult) add(errs []ValidationError) {
	if len(errs) == 0 {
		return
	}
	r.IsValid = false
	r.Errors = append(r.Errors, errs...)
}

// Err joins the validation errors into a single error, or nil when valid.
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return fmt.Errorf("invalid document: %s", strings.Join(msgs, "; "))
}

// ContentType returns the canonical MIME type for the validated extension.
func (v *DocumentValidator) ContentType(ext string) string {
	if mimes := v.config.AllowedTypes[strings.ToLower(ext)]; len(mimes) > 0 {
		return mimes[0]
	}
	return ""
}

// 基本验证
func (v *DocumentValidator) performBasicValidation(fileInfo FileInfo) []ValidationError {
	var errors []ValidationError

	if fileInfo.Size == 0 {
		errors = append(errors, ValidationError{
			Code:    "EMPTY_FILE",
			Message: "File is empty",
			Field:   "size",
		})
	}

	// 检查文件大小
	if fileInfo.Size > v.config.MaxFileSize {
		errors = append(errors, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}

	// 检查文件扩展名
	if _, ok := v.config.AllowedTypes[fileInfo.Extension]; !ok {
		errors = append(errors, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("File type %s is not allowed", fileInfo.Extension),
			Field:   "extension",
		})
	}

	return errors
}

// MIME类型验证
func (v *DocumentValidator) validateMimeType(fileInfo FileInfo, declaredType string) []ValidationError {
	allowedMimes, ok := v.config.AllowedTypes[fileInfo.Extension]
	if !ok {
		return nil
	}

	var errors []ValidationError
	if !contains(allowedMimes, fileInfo.MimeType) {
		errors = append(errors, ValidationError{
			Code:    "INVALID_MIME_TYPE",
			Message: fmt.Sprintf("Invalid MIME type %s for extension %s", fileInfo.MimeType, fileInfo.Extension),
			Field:   "mimeType",
		})
	}
	if declared := mediaType(declaredType); declared != "" && declared != "application/octet-stream" && !contains(allowedMimes, declared) {
		errors = append(errors, ValidationError{
			Code:    "CONTENT_TYPE_MISMATCH",
			Message: fmt.Sprintf("Declared content type %s does not match extension %s", declared, fileInfo.Extension),
			Field:   "contentType",
		})
	}
	return errors
}

// PDF特定验证
func (v *DocumentValidator) validatePDF(content []byte, fileInfo *FileInfo) []ValidationError {
	if !bytes.HasPrefix(content, pdfMagic) {
		return []ValidationError{{
			Code:    "INVALID_PDF",
			Message: "File does not start with a PDF header",
			Field:   "content",
		}}
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pages, err := api.PageCount(bytes.NewReader(content), conf)
	if err != nil {
		return []ValidationError{{
			Code:    "INVALID_PDF",
			Message: fmt.Sprintf("Unable to read PDF page tree: %v", err),
			Field:   "content",
		}}
	}
	fileInfo.Pages = pages

	if pages > v.config.MaxPageCount {
		return []ValidationError{{
			Code:    "TOO_MANY_PAGES",
			Message: fmt.Sprintf("PDF has %d pages, maximum is %d", pages, v.config.MaxPageCount),
			Field:   "pages",
		}}
	}
	return nil
}

// 检测MIME类型
func detectMimeType(content []byte) string {
	head := content
	if len(head) > 512 {
		head = head[:512]
	}
	return mediaType(http.DetectContentType(head))
}

func mediaType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
