package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ParamType 对应 JSON Schema 的基本类型。
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeObject  ParamType = "object"
)

// ParamKind 标记参数的语义，决定 dispatcher 在调用 handler 前施加的沙箱检查。
type ParamKind string

const (
	PlainParam ParamKind = ""
	PathParam  ParamKind = "path"
	URLParam   ParamKind = "url"
	QueryParam ParamKind = "query"
)

// Param 描述一个操作参数。
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Default     any
	Pattern     string
	Enum        []string
	Min         *int64
	Max         *int64
	Kind        ParamKind
	// Schemes 仅对 URLParam 生效，为空时只允许 http/https。
	Schemes []string
}

// Int 返回指向 v 的指针，用于填写 Min/Max。
func Int(v int64) *int64 { return &v }

// Schema 是有序的参数列表。
type Schema []Param

var patternCache sync.Map // string -> *regexp.Regexp

func compilePattern(p string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	patternCache.Store(p, re)
	return re, nil
}

// Validate 检查 schema 自身是否合法：名称唯一、类型已知、正则可编译、默认值符合约束。
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for _, p := range s {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("parameter with empty name")
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		switch p.Type {
		case TypeString, TypeInteger, TypeObject:
		default:
			return fmt.Errorf("parameter %q: unknown type %q", p.Name, p.Type)
		}
		if p.Pattern != "" {
			if _, err := compilePattern(p.Pattern); err != nil {
				return fmt.Errorf("parameter %q: %w", p.Name, err)
			}
		}
		if p.Default != nil {
			if _, err := p.coerce(p.Default); err != nil {
				return fmt.Errorf("parameter %q default: %w", p.Name, err)
			}
		}
	}
	return nil
}

// OfKind 返回指定语义的参数，保持声明顺序。
func (s Schema) OfKind(kind ParamKind) []Param {
	var out []Param
	for _, p := range s {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// JSONSchema 渲染提供给分类器的参数描述。
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s))
	required := make([]string, 0, len(s))
	for _, p := range s {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Pattern != "" {
			prop["pattern"] = p.Pattern
		}
		if len(p.Enum) > 0 {
			prop["enum"] = append([]string(nil), p.Enum...)
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Min != nil {
			prop["minimum"] = *p.Min
		}
		if p.Max != nil {
			prop["maximum"] = *p.Max
		}
		if p.Type == TypeObject {
			prop["additionalProperties"] = map[string]any{"type": "string"}
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// Decode 按 schema 解析分类器返回的 JSON 参数：
// 拒绝未知参数，补齐默认值，检查类型、正则、枚举与范围。
func (s Schema) Decode(raw json.RawMessage) (Args, error) {
	values := map[string]any{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var decoded any
		if err := dec.Decode(&decoded); err != nil {
			return nil, fmt.Errorf("arguments are not valid JSON: %w", err)
		}
		obj, ok := decoded.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("arguments must be a JSON object")
		}
		values = obj
	}

	known := make(map[string]struct{}, len(s))
	for _, p := range s {
		known[p.Name] = struct{}{}
	}
	var unknown []string
	for name := range values {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown argument(s): %s", strings.Join(unknown, ", "))
	}

	args := make(Args, len(s))
	for _, p := range s {
		v, present := values[p.Name]
		if present && v == nil {
			present = false
		}
		if !present {
			if p.Default != nil {
				v = p.Default
			} else if p.Required {
				return nil, fmt.Errorf("missing required argument %q", p.Name)
			} else {
				continue
			}
		}
		coerced, err := p.coerce(v)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", p.Name, err)
		}
		args[p.Name] = coerced
	}
	return args, nil
}

func (p Param) coerce(v any) (any, error) {
	switch p.Type {
	case TypeString:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %s", jsonTypeName(v))
		}
		return p.checkString(str)
	case TypeInteger:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if p.Min != nil && n < *p.Min {
			return nil, fmt.Errorf("must be >= %d, got %d", *p.Min, n)
		}
		if p.Max != nil && n > *p.Max {
			return nil, fmt.Errorf("must be <= %d, got %d", *p.Max, n)
		}
		return n, nil
	case TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			if strs, ok := v.(map[string]string); ok {
				return copyStrings(strs), nil
			}
			return nil, fmt.Errorf("expected object, got %s", jsonTypeName(v))
		}
		out := make(map[string]string, len(obj))
		for k, val := range obj {
			str, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("field %q: expected string, got %s", k, jsonTypeName(val))
			}
			out[k] = str
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %q", p.Type)
}

func (p Param) checkString(str string) (string, error) {
	if len(p.Enum) > 0 {
		matched := ""
		for _, e := range p.Enum {
			if strings.EqualFold(strings.TrimSpace(str), e) {
				matched = e
				break
			}
		}
		if matched == "" {
			return "", fmt.Errorf("must be one of %s, got %q", strings.Join(p.Enum, ", "), str)
		}
		str = matched
	}
	if p.Pattern != "" {
		re, err := compilePattern(p.Pattern)
		if err != nil {
			return "", err
		}
		if !re.MatchString(str) {
			return "", fmt.Errorf("value %q does not match pattern %s", str, p.Pattern)
		}
	}
	return str, nil
}

// toInt64 接受整数及整数值的浮点、数字字符串。
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", n.String())
		}
		return floatToInt(f)
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return floatToInt(n)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("expected integer, got %s", jsonTypeName(v))
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("expected integer, got %v", f)
	}
	return int64(f), nil
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func copyStrings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
