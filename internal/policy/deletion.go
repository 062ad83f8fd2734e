package policy

import (
	"regexp"
	"strings"
)

// DeleteWords 触发删除意图过滤的整词（大小写不敏感）。
var DeleteWords = []string{
	"delete", "remove", "erase", "destroy", "purge",
	"truncate", "clean up", "wipe", "shred", "expunge",
	"rm", "rmdir", "unlink", "del", "fstrim",
}

var deletePattern = compileDeletePattern(DeleteWords)

func compileDeletePattern(words []string) *regexp.Regexp {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, regexp.QuoteMeta(w))
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// ContainsDeleteIntent 在分类之前对原始指令做整词匹配。
// "remove duplicates" 这类无害指令同样会命中。
func ContainsDeleteIntent(text string) bool {
	return deletePattern.MatchString(text)
}

// MatchedDeleteWord 返回第一个命中的词，未命中时为空。
func MatchedDeleteWord(text string) string {
	return strings.ToLower(deletePattern.FindString(text))
}
