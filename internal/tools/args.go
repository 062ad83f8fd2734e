package tools

import (
	"encoding/json"
	"fmt"
)

// Args 是经过 schema 校验的参数：string、int64 或 map[string]string。
type Args map[string]any

func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

func (a Args) Int(name string) int64 {
	n, _ := a[name].(int64)
	return n
}

func (a Args) Map(name string) map[string]string {
	m, _ := a[name].(map[string]string)
	return m
}

// Into 将参数绑定到带 json tag 的结构体。
func (a Args) Into(dst any) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("bind args: %w", err)
	}
	return nil
}

// Clone 返回浅拷贝，map 类型参数同样复制。
func (a Args) Clone() Args {
	out := make(Args, len(a))
	for k, v := range a {
		if m, ok := v.(map[string]string); ok {
			v = copyStrings(m)
		}
		out[k] = v
	}
	return out
}
