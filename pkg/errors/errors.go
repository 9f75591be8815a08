// Package errors 提供统一的错误处理框架
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code 错误码
type Code string

const (
	// 通用错误码
	CodeUnknown      Code = "UNKNOWN"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeNotFound     Code = "NOT_FOUND"
	CodeTimeout      Code = "TIMEOUT"
	CodeRateLimited  Code = "RATE_LIMITED"

	// 实例校验相关（构造期不变量）
	CodeMatrixShape          Code = "MATRIX_SHAPE"
	CodeDanglingReference    Code = "DANGLING_REFERENCE"
	CodeDuplicateMatrixIndex Code = "DUPLICATE_MATRIX_INDEX"
	CodeMatrixIndexGap       Code = "MATRIX_INDEX_GAP"
	CodeUncoveredService     Code = "UNCOVERED_SERVICE"
	CodeNoCompatibleGiver    Code = "NO_COMPATIBLE_CAREGIVER"
	CodeDuplicateServiceType Code = "DUPLICATE_SERVICE_TYPE"
	CodeSyncWindow           Code = "SYNCHRONIZATION_WINDOW"
	CodeInvalidTimeRange     Code = "INVALID_TIME_RANGE"
	CodeInvalidDuration      Code = "INVALID_DURATION"
	CodeValidationFail       Code = "VALIDATION_FAILED"

	// 解内部一致性相关（路线构造期）
	CodeRouteShape      Code = "ROUTE_SHAPE"
	CodeRouteChronology Code = "ROUTE_CHRONOLOGY"
	CodeEmptyRoute      Code = "EMPTY_ROUTE"
	CodeDuplicateRoute  Code = "DUPLICATE_ROUTE"

	// 交叉验证相关（验证器）
	CodeUncoveredPatient  Code = "UNCOVERED_PATIENT"
	CodeUnknownPatient    Code = "UNKNOWN_PATIENT"
	CodeUnknownCaregiver  Code = "UNKNOWN_CAREGIVER"
	CodeUnmetRequirement  Code = "UNMET_REQUIREMENT"
	CodeConflictingVisits Code = "CONFLICTING_VISITS"
	CodeTravelInfeasible  Code = "TRAVEL_INFEASIBLE"
	CodeServiceTooShort   Code = "SERVICE_TOO_SHORT"
	CodeShiftViolation    Code = "SHIFT_VIOLATION"
	CodeSyncViolation     Code = "SYNCHRONIZATION_VIOLATION"
	CodeTimeWindow        Code = "TIME_WINDOW"
	CodeQualification     Code = "QUALIFICATION"
	CodeNotNormalized     Code = "NOT_NORMALIZED"
)

// AppError 应用错误
type AppError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Cause      error                  `json:"-"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithField 添加字段
func (e *AppError) WithField(key string, value interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// New 创建新错误
func New(code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Newf 创建带格式化消息的新错误
func Newf(code Code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误
func Wrap(err error, code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// codeToHTTPStatus 错误码转HTTP状态码
func codeToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeValidationFail, CodeInvalidTimeRange, CodeInvalidDuration,
		CodeMatrixShape, CodeDanglingReference, CodeDuplicateMatrixIndex, CodeMatrixIndexGap,
		CodeUncoveredService, CodeNoCompatibleGiver, CodeDuplicateServiceType, CodeSyncWindow,
		CodeRouteShape, CodeRouteChronology, CodeEmptyRoute, CodeDuplicateRoute:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUncoveredPatient, CodeUnknownPatient, CodeUnknownCaregiver, CodeUnmetRequirement,
		CodeConflictingVisits, CodeTravelInfeasible, CodeServiceTooShort, CodeShiftViolation,
		CodeSyncViolation, CodeTimeWindow, CodeQualification, CodeNotNormalized:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Is 检查错误是否为特定类型
func Is(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCode 获取错误码
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetHTTPStatus 获取HTTP状态码
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// 预定义错误
var (
	ErrNotFound     = New(CodeNotFound, "资源不存在")
	ErrInvalidInput = New(CodeInvalidInput, "输入参数无效")
	ErrInternal     = New(CodeInternal, "内部错误")
	ErrTimeout      = New(CodeTimeout, "操作超时")
)

// InvalidInput 创建输入无效错误
func InvalidInput(field, reason string) *AppError {
	return New(CodeInvalidInput, fmt.Sprintf("字段 '%s' 无效: %s", field, reason))
}

// Validation 创建实例不变量违反错误
func Validation(code Code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Verification 创建交叉验证失败错误
// 消息中必须带上足以定位问题的实体标识和被比较的时间值
func Verification(code Code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// ValidationErrors 验证错误集合
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// ValidationError 单个验证错误
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error 实现 error 接口
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "验证失败"
	}
	return fmt.Sprintf("验证失败: %s - %s", ve.Errors[0].Field, ve.Errors[0].Message)
}

// Add 添加验证错误
func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

// HasErrors 检查是否有错误
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToAppError 转换为 AppError
func (ve *ValidationErrors) ToAppError() *AppError {
	err := New(CodeValidationFail, "验证失败")
	err.Fields = make(map[string]interface{})
	for _, e := range ve.Errors {
		err.Fields[e.Field] = e.Message
	}
	return err
}
