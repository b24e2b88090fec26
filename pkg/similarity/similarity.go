// Package similarity 提供了基于关键词集合的问题查重功能。
package similarity

import (
	"strings"
	"unicode"
)

// minASCIITokenLen 过滤过短的拉丁词（如 "a"、"I"）。
const minASCIITokenLen = 2

// Keywords 将文本切分为关键词集合（去重）。
// 中文没有天然的词边界，连续汉字段落按相邻双字切分；
// 拉丁字母/数字按空白与标点切分，并过滤长度不足的词。
func Keywords(text string) []string {
	seen := make(map[string]struct{})
	var keywords []string
	add := func(tok string) {
		if _, ok := seen[tok]; ok {
			return
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}

	var han []rune
	var ascii strings.Builder
	flushHan := func() {
		// 相邻双字：覆盖词语级别的重叠，单字噪声被自然排除
		for i := 0; i+1 < len(han); i++ {
			add(string(han[i : i+2]))
		}
		han = han[:0]
	}
	flushASCII := func() {
		if ascii.Len() >= minASCIITokenLen {
			add(strings.ToLower(ascii.String()))
		}
		ascii.Reset()
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flushASCII()
			han = append(han, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushHan()
			ascii.WriteRune(r)
		default:
			flushHan()
			flushASCII()
		}
	}
	flushHan()
	flushASCII()
	return keywords
}

// Jaccard 计算两个关键词集合的 Jaccard 相似度（交集大小 / 并集大小）。
// 任一集合为空时返回 0。
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, k := range a {
		setA[k] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, k := range b {
		setB[k] = struct{}{}
	}

	intersection := 0
	for k := range setA {
		if _, ok := setB[k]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// IsDuplicate 判断候选问题是否与历史问题重复。
// 完全相同（去除首尾空白后）必定重复；否则关键词 Jaccard 相似度超过阈值判定重复。
// 历史为空时永不重复。
func IsDuplicate(candidate string, history []string, threshold float64) bool {
	if len(history) == 0 {
		return false
	}
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return false
	}

	candidateKeywords := Keywords(trimmed)
	for _, old := range history {
		if strings.TrimSpace(old) == trimmed {
			return true
		}
		if Jaccard(candidateKeywords, Keywords(old)) > threshold {
			return true
		}
	}
	return false
}
