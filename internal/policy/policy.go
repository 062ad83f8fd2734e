package policy

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Decision 表示一次策略检查的结论。
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// restrictedFragments 出现在任务描述中即视为越界访问。
var restrictedFragments = []string{"../", "/etc/", "/var/", "/home/", "/root/", "/usr/", "/proc/", "/sys/", "/dev/"}

// absPathPattern 只匹配以 / 开头的词，logs/app.log 这类相对路径不算。
var absPathPattern = regexp.MustCompile(`(?:^|[\s"'(=])(/[^\s"')]+)`)

// CheckDataAccess 检查自由文本是否引用了沙箱根目录以外的路径。
// 这是对文本的保守审查，真实的路径参数仍由 sandbox.Root 校验。
func CheckDataAccess(text string, root string) Decision {
	for _, frag := range restrictedFragments {
		if strings.Contains(text, frag) {
			return deny(fmt.Sprintf("Access to files outside %s is not allowed.", root))
		}
	}
	cleanRoot := filepath.Clean(root)
	for _, m := range absPathPattern.FindAllStringSubmatch(text, -1) {
		match := m[1]
		clean := filepath.Clean(match)
		if clean == cleanRoot || strings.HasPrefix(clean, cleanRoot+string(filepath.Separator)) {
			continue
		}
		return deny(fmt.Sprintf("Access to %s is denied.", match))
	}
	return allow()
}

// CheckNoDeletion 拒绝带有删除意图的文本。
func CheckNoDeletion(text string) Decision {
	if ContainsDeleteIntent(text) {
		return deny("File deletion is strictly prohibited anywhere in the system.")
	}
	return allow()
}
