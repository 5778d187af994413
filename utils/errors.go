package utils

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

// ApiError 自定义API错误
type ApiError struct {
	StatusCode int
	Message    string
	ErrorCode  string
	Fields     map[string]string
}

// Error 实现error接口
func (e *ApiError) Error() string {
	return e.Message
}

// NewApiError 创建API错误
func NewApiError(message string, statusCode int, errorCode string) *ApiError {
	return &ApiError{
		StatusCode: statusCode,
		Message:    message,
		ErrorCode:  errorCode,
	}
}

// CreateNotFoundError 创建资源不存在错误
func CreateNotFoundError(resource string) *ApiError {
	return NewApiError(resource+"不存在", http.StatusNotFound, "RESOURCE_NOT_FOUND")
}

// CreateBadRequestError 创建错误请求错误
func CreateBadRequestError(message string) *ApiError {
	return NewApiError(message, http.StatusBadRequest, "BAD_REQUEST")
}

// CreateConflictError 创建操作冲突错误（同一实体的变更仍在进行中）
func CreateConflictError(message string) *ApiError {
	return NewApiError(message, http.StatusConflict, "MUTATION_PENDING")
}

// ValidationError 表单校验错误，Fields 为字段到提示信息的映射
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// NewValidationError 创建校验错误
func NewValidationError(message string, fields map[string]string) *ValidationError {
	if message == "" {
		message = "请完整填写必填字段"
	}
	return &ValidationError{Message: message, Fields: fields}
}

// StatusCoder 携带HTTP状态码的错误，远程存储错误实现该接口
type StatusCoder interface {
	error
	HTTPStatus() int
}

// ToApiError 将业务错误转换为 ApiError
func ToApiError(err error) *ApiError {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return &ApiError{
			StatusCode: http.StatusBadRequest,
			Message:    vErr.Message,
			ErrorCode:  "VALIDATION_FAILED",
			Fields:     vErr.Fields,
		}
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return NewApiError(sc.Error(), sc.HTTPStatus(), "REMOTE_STORE_ERROR")
	}
	return nil
}

// HandleError 处理错误并返回适当的响应
func HandleError(c *gin.Context, err error) {
	if c == nil || err == nil {
		return
	}
	errorMessage := err.Error()
	LogError(err, map[string]interface{}{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
	}, "API错误: "+errorMessage)

	if apiErr := ToApiError(err); apiErr != nil {
		response := gin.H{"success": false, "error": apiErr.Message}
		if apiErr.ErrorCode != "" {
			response["code"] = apiErr.ErrorCode
		}
		if len(apiErr.Fields) > 0 {
			response["fields"] = apiErr.Fields
		}
		c.JSON(apiErr.StatusCode, response)
		return
	}

	// 其他未预期的错误
	ErrorResponse(c, errorMessage, http.StatusInternalServerError)
}

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, data interface{}, message string, statusCode ...int) {
	code := http.StatusOK
	if len(statusCode) > 0 {
		code = statusCode[0]
	}

	response := gin.H{"success": true}
	if data != nil {
		response["data"] = data
	}
	if message != "" {
		response["message"] = message
	}

	c.JSON(code, response)
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, message string, statusCode int) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   message,
	})
}
