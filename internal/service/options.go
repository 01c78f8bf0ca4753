package service

import "github.com/liliang-cn/ragproxy/internal/domain"

// EffectiveOptions are the enrichment switches after precedence resolution.
type EffectiveOptions struct {
	Retrieval bool
	Web       bool
}

// MergeOptions resolves the enrichment switches for one request.
//
// Precedence, highest first: an explicit client flag, then an auto-detected
// flag, then the default (off). A detected value never overwrites an explicit
// one, including an explicit false.
func MergeOptions(explicit domain.Options, detected map[string]bool) EffectiveOptions {
	var eff EffectiveOptions

	if explicit.RetrievalEnabled != nil {
		eff.Retrieval = *explicit.RetrievalEnabled
	} else {
		eff.Retrieval = detected[FeatureRetrieval]
	}

	if explicit.WebSearchEnabled != nil {
		eff.Web = *explicit.WebSearchEnabled
	} else {
		eff.Web = detected[FeatureWebSearch]
	}

	return eff
}
