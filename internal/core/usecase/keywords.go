package usecase

import (
	"strings"
	"unicode"
)

const maxKeywords = 5

// stopWords is a fixed bilingual list. Keyword extraction is a best-effort
// query-understanding aid, not a tokenizer correctness guarantee.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "of": {}, "to": {}, "in": {}, "on": {}, "at": {},
	"by": {}, "for": {}, "and": {}, "or": {}, "not": {}, "with": {},
	"from": {}, "this": {}, "that": {}, "these": {}, "those": {}, "it": {},
	"its": {}, "what": {}, "which": {}, "who": {}, "whom": {}, "how": {},
	"why": {}, "when": {}, "where": {}, "can": {}, "could": {}, "will": {},
	"would": {}, "should": {}, "about": {}, "please": {}, "tell": {},
	"me": {}, "my": {}, "your": {}, "do": {}, "does": {}, "did": {},
	"的": {}, "了": {}, "是": {}, "在": {}, "和": {}, "与": {}, "或": {},
	"及": {}, "被": {}, "把": {}, "让": {}, "吗": {}, "呢": {}, "吧": {},
	"啊": {}, "我": {}, "你": {}, "他": {}, "她": {}, "它": {}, "我们": {},
	"你们": {}, "他们": {}, "这": {}, "那": {}, "这个": {}, "那个": {},
	"什么": {}, "怎么": {}, "怎样": {}, "如何": {}, "为什么": {}, "哪些": {},
	"哪个": {}, "一个": {}, "请问": {}, "关于": {}, "介绍": {}, "一下": {},
}

// ExtractKeywords pulls at most maxKeywords search terms out of a query.
// CJK text without whitespace word boundaries tokenizes as one long run,
// so sliding n-grams are generated to give the keyword index something to
// match on. Heuristic by design.
func ExtractKeywords(query string) []string {
	tokens := splitWordRuns(query)

	candidates := tokens
	if len(tokens) == 1 && containsCJK(query) {
		candidates = append(candidates, cjkNGrams(query)...)
	}

	seen := make(map[string]struct{}, len(candidates))
	keywords := make([]string, 0, maxKeywords)
	for _, token := range candidates {
		token = strings.ToLower(token)
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		if len([]rune(token)) <= 1 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		keywords = append(keywords, token)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

// splitWordRuns splits on non-word boundaries, keeping runs of letters,
// digits and underscores (CJK characters are letters and group into runs).
func splitWordRuns(s string) []string {
	if s == "" {
		return nil
	}
	tokens := make([]string, 0, 8)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

// cjkNGrams slides windows of length 4, 3, 2 over the raw text and keeps
// substrings composed entirely of CJK characters.
func cjkNGrams(s string) []string {
	runes := []rune(s)
	grams := make([]string, 0, len(runes))
	for _, n := range []int{4, 3, 2} {
		for i := 0; i+n <= len(runes); i++ {
			window := runes[i : i+n]
			if allCJK(window) {
				grams = append(grams, string(window))
			}
		}
	}
	return grams
}

func containsCJK(s string) bool {
	for _, r := range s {
		if isCJK(r) {
			return true
		}
	}
	return false
}

func allCJK(runes []rune) bool {
	for _, r := range runes {
		if !isCJK(r) {
			return false
		}
	}
	return true
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r)
}
