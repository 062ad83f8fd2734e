package tools

import (
	"context"
	"fmt"
)

// Handler 定义具体操作的执行入口。
type Handler interface {
	Name() string
	Description() string
	Params() Schema
	Handle(ctx context.Context, inv Invocation) (Result, error)
}

// OperationSpec 是注册表中的一项，启动后不可变。
type OperationSpec struct {
	Name        string
	Description string
	Schema      Schema
	Handler     Handler
}

// Registry 按注册顺序保存操作目录，保证分类器提示词稳定可复现。
type Registry struct {
	specs []OperationSpec
	index map[string]int
}

// NewRegistry 构造注册表。目录是静态的，重名或非法 schema 直接 panic。
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{index: make(map[string]int, len(handlers))}
	for _, h := range handlers {
		if h == nil {
			continue
		}
		name := h.Name()
		if _, dup := r.index[name]; dup {
			panic(fmt.Sprintf("tools: duplicate operation %q", name))
		}
		schema := h.Params()
		if err := schema.Validate(); err != nil {
			panic(fmt.Sprintf("tools: operation %q: %v", name, err))
		}
		r.index[name] = len(r.specs)
		r.specs = append(r.specs, OperationSpec{
			Name:        name,
			Description: h.Description(),
			Schema:      schema,
			Handler:     h,
		})
	}
	return r
}

func (r *Registry) Lookup(name string) (OperationSpec, bool) {
	i, ok := r.index[name]
	if !ok {
		return OperationSpec{}, false
	}
	return r.specs[i], true
}

// Describe 按注册顺序返回全部操作。
func (r *Registry) Describe() []OperationSpec {
	out := make([]OperationSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for _, s := range r.specs {
		names = append(names, s.Name)
	}
	return names
}

func (r *Registry) Len() int { return len(r.specs) }
