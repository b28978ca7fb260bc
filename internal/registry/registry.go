// Package registry 提供函数注册表。
// 注册表是从函数名称到可调用函数的静态映射，在进程启动时构建一次，
// 之后只读，可被多个请求并发读取而无需加锁。
package registry

import (
	"fmt"
	"sort"

	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/domain"
)

// Registry 是不可变的函数注册表。
type Registry struct {
	entries map[string]domain.FunctionEntry
}

// New 使用给定的函数条目创建注册表。
// 任一条目无效或名称重复时返回错误。
func New(entries ...domain.FunctionEntry) (*Registry, error) {
	r := &Registry{entries: make(map[string]domain.FunctionEntry, len(entries))}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("register function %q: %w", e.Name, err)
		}
		if _, exists := r.entries[e.Name]; exists {
			return nil, fmt.Errorf("register function %q: %w", e.Name, domain.ErrDuplicateFunction)
		}
		r.entries[e.Name] = e
	}
	return r, nil
}

// MustNew 与 New 相同，但在出错时 panic。
// 用于 main 包中的静态注册。
func MustNew(entries ...domain.FunctionEntry) *Registry {
	r, err := New(entries...)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve 按名称查找函数。
// 未找到时返回 NoHandlerForTarget 配置错误。
func (r *Registry) Resolve(target string) (domain.FunctionEntry, error) {
	entry, ok := r.entries[target]
	if !ok {
		return domain.FunctionEntry{}, config.NoHandlerForTarget(target)
	}
	return entry, nil
}

// ResolveConfig 查找配置的目标函数，并校验其签名类型与配置一致。
func (r *Registry) ResolveConfig(cfg *config.Config) (domain.FunctionEntry, error) {
	entry, err := r.Resolve(cfg.Target)
	if err != nil {
		return domain.FunctionEntry{}, err
	}
	if entry.Kind != cfg.SignatureType {
		return domain.FunctionEntry{}, config.SignatureMismatch(entry.Name, entry.Kind, cfg.SignatureType)
	}
	return entry, nil
}

// Names 返回所有已注册函数的名称，按字母排序。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
