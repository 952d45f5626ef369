package service

import (
	"errors"
	"fmt"

	"SocialScheduler/internal/model"

	"gorm.io/gorm"
)

// NotFoundError 资源不存在（内容、账号、事件、模板、帖子）
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError 入参不合法，不会产生任何写入
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// BusyError 组织的排期锁被其他请求占用
type BusyError struct {
	OrganizationID string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("organization %s is being scheduled by another request", e.OrganizationID)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func notFound(resource string, id interface{}) error {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

// translateNotFound gorm.ErrRecordNotFound -> NotFoundError，其余错误原样返回
func translateNotFound(err error, resource string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(resource, id)
	}
	return err
}

func unknownPlatform(field, name string) error {
	return invalid(field, "unknown platform %q, expected one of %v", name, model.KnownPlatforms())
}
