package merge

import (
	"strings"

	"clauseguard/internal/types"
)

// categoryEntry maps a coarse risk category to the keywords that indicate
// it. Keywords are matched against lowercased titles; within a category the
// longest keyword wins so that e.g. 违约金 is preferred over 违约.
type categoryEntry struct {
	Name     string
	Keywords []string
}

// categoryCorpus is scanned in order; the first category with a matching
// keyword claims the finding.
var categoryCorpus = []categoryEntry{
	{"penalty", []string{"违约金", "违约", "滞纳金", "penalty", "liquidated damages", "breach"}},
	{"interest", []string{"利息", "利率", "复利", "interest", "usury"}},
	{"payment", []string{"付款", "支付", "价款", "结算", "payment", "price", "fee", "invoice"}},
	{"termination", []string{"解除", "终止", "termination", "terminate", "rescission"}},
	{"liability", []string{"赔偿", "责任", "免责", "liability", "indemn", "damages", "limitation of liability"}},
	{"confidentiality", []string{"保密", "confidential", "non-disclosure"}},
	{"ip", []string{"知识产权", "专利", "商标", "著作权", "intellectual property", "patent", "trademark", "copyright"}},
	{"dispute", []string{"争议", "仲裁", "管辖", "诉讼", "dispute", "arbitration", "jurisdiction", "governing law"}},
	{"warranty", []string{"保证", "担保", "质保", "warranty", "guarantee", "surety"}},
	{"term", []string{"期限", "续约", "自动续", "term", "renewal", "auto-renew", "lock-in"}},
}

// Categorize assigns a coarse category from title and reasons. Findings with
// no matching keyword land in "general".
func Categorize(f types.RiskFinding) string {
	text := strings.ToLower(f.Title)
	for _, entry := range categoryCorpus {
		for _, kw := range entry.Keywords {
			if strings.Contains(text, kw) {
				return entry.Name
			}
		}
	}
	// Fall back to the description when the title is uninformative.
	text = strings.ToLower(f.Description)
	for _, entry := range categoryCorpus {
		for _, kw := range entry.Keywords {
			if strings.Contains(text, kw) {
				return entry.Name
			}
		}
	}
	return "general"
}

// dominantKeyword returns the longest category keyword contained in the
// title, empty when none matches. Shared dominant keywords let the
// similarity metric corroborate titles whose phrasing differs but whose
// subject is identical (逾期违约金过高 vs 违约金比例超标).
func dominantKeyword(title string) string {
	text := strings.ToLower(title)
	best := ""
	for _, entry := range categoryCorpus {
		for _, kw := range entry.Keywords {
			if strings.Contains(text, kw) && len(kw) > len(best) {
				best = kw
			}
		}
	}
	return best
}

// titleSimilarity scores two titles in [0,1]. The base metric is the Dice
// coefficient over rune bigrams; when both titles share the same dominant
// keyword the score floor rises to 0.5, since agreeing on the subject term
// is itself strong evidence of a duplicate.
func titleSimilarity(a, b string, sharedKeyword bool) float64 {
	d := diceBigrams(strings.ToLower(a), strings.ToLower(b))
	if sharedKeyword {
		return 0.5 + 0.5*d
	}
	return d
}

// diceBigrams computes the Dice coefficient over rune bigrams.
func diceBigrams(a, b string) float64 {
	if a == b {
		return 1
	}
	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}
	common := 0
	for bg, na := range ba {
		if nb, ok := bb[bg]; ok {
			if na < nb {
				common += na
			} else {
				common += nb
			}
		}
	}
	totalA, totalB := 0, 0
	for _, n := range ba {
		totalA += n
	}
	for _, n := range bb {
		totalB += n
	}
	return 2 * float64(common) / float64(totalA+totalB)
}

func bigrams(s string) map[string]int {
	runes := []rune(s)
	out := make(map[string]int)
	for i := 0; i+1 < len(runes); i++ {
		out[string(runes[i:i+2])]++
	}
	return out
}
