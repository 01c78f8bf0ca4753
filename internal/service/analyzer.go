package service

import (
	"math"
	"regexp"
	"strings"

	"github.com/liliang-cn/ragproxy/internal/config"
	"github.com/liliang-cn/ragproxy/internal/domain"
)

// Feature keys the analyzer scores. They match the option names on the wire.
const (
	FeatureRetrieval = "retrieval_enabled"
	FeatureWebSearch = "web_search_enabled"
)

// featureRule holds the match signals for one feature.
type featureRule struct {
	keywords         []string
	patterns         []*regexp.Regexp
	negativePatterns []*regexp.Regexp
}

// Analyzer scores the literal text of a user query and recommends which
// enrichment sources to enable. It is stateless after construction and safe
// to share across requests.
type Analyzer struct {
	minConfidence  float64
	keywordWeight  float64
	patternWeight  float64
	negativeWeight float64
	rules          map[string]featureRule
}

// NewAnalyzer builds an analyzer with the built-in rule sets and the tuning
// constants from configuration.
func NewAnalyzer(cfg config.EnrichmentConfig) *Analyzer {
	return &Analyzer{
		minConfidence:  cfg.MinConfidence,
		keywordWeight:  cfg.KeywordWeight,
		patternWeight:  cfg.PatternWeight,
		negativeWeight: cfg.NegativeWeight,
		rules: map[string]featureRule{
			FeatureRetrieval: {
				keywords: []string{
					"知识库", "文档", "资料", "数据库", "文章", "论文", "书籍",
					"报告", "内部资料", "参考", "资料库", "信息库",
				},
				patterns: compileAll(
					`(?:查找|查询|搜索|检索|寻找).*(?:知识库|文档|资料)`,
					`.*(?:知识库|文档|资料).*(?:相关内容|相关信息)`,
					`(?:根据|基于).*(?:知识库|文档|资料)`,
					`.*内部(?:资料|文档|知识).*`,
				),
				negativePatterns: compileAll(
					`不要.*(?:知识库|文档)`,
				),
			},
			FeatureWebSearch: {
				keywords: []string{
					"搜索", "查一下", "查询", "网上", "互联网", "最新", "新闻",
					"最近", "最新消息", "网络", "在线", "实时", "谷歌", "百度",
				},
				patterns: compileAll(
					`(?:搜索|查询|查找|检索).*(?:网络|互联网|在线)`,
					`.*(?:最新|最近|近期|当前).*(?:情况|消息|新闻|进展)`,
					`.*(?:互联网|网络|在线|外部).*(?:查询|搜索)`,
					`.*现在.*(?:是什么|怎样|如何)`,
				),
				negativePatterns: compileAll(
					`不要.*(?:搜索|上网)`,
				),
			},
		},
	}
}

func compileAll(exprs ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		compiled = append(compiled, regexp.MustCompile(e))
	}
	return compiled
}

// Analyze scores a query against every feature rule and returns the features
// whose confidence reaches the threshold. An empty query yields an empty map.
func (a *Analyzer) Analyze(query string) map[string]bool {
	decisions := make(map[string]bool)
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return decisions
	}

	for feature, rule := range a.rules {
		score := a.score(query, rule)
		confidence := logistic(score)
		decisions[feature] = confidence >= a.minConfidence
	}
	return decisions
}

// score sums the weights of every matched signal. A single negative pattern
// can outweigh a keyword or pattern hit.
func (a *Analyzer) score(query string, rule featureRule) float64 {
	var score float64
	for _, kw := range rule.keywords {
		if strings.Contains(query, kw) {
			score += a.keywordWeight
		}
	}
	for _, p := range rule.patterns {
		if p.MatchString(query) {
			score += a.patternWeight
		}
	}
	for _, p := range rule.negativePatterns {
		if p.MatchString(query) {
			score += a.negativeWeight
		}
	}
	return score
}

// logistic squashes a raw signal sum into (0,1) so several weak signals can
// combine into a confident decision.
func logistic(score float64) float64 {
	return 1 / (1 + math.Exp(-score))
}

// OptionsFromRequest analyzes the latest user text of a request. Requests
// without user text get an empty recommendation.
func (a *Analyzer) OptionsFromRequest(req *domain.ChatRequest) map[string]bool {
	query := req.LatestUserText()
	if query == "" {
		return map[string]bool{}
	}
	return a.Analyze(query)
}
