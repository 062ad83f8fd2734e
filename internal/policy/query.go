package policy

import (
	"fmt"
	"strings"
)

// ForbiddenSQL 只读查询中不允许出现的关键字（子串匹配，大小写不敏感）。
var ForbiddenSQL = []string{
	"DROP", "DELETE", "ALTER", "INSERT", "UPDATE", "TRUNCATE",
	"CREATE", "REPLACE", "ATTACH", "DETACH", "PRAGMA", "VACUUM",
}

// CheckReadOnlyQuery 在打开数据库连接前拒绝可能修改数据的语句。
// 列名如 "updated_at" 同样会命中。
func CheckReadOnlyQuery(sql string) error {
	if strings.TrimSpace(sql) == "" {
		return fmt.Errorf("empty query")
	}
	upper := strings.ToUpper(sql)
	for _, kw := range ForbiddenSQL {
		if strings.Contains(upper, kw) {
			return fmt.Errorf("destructive SQL keyword %s is not allowed", kw)
		}
	}
	return nil
}
