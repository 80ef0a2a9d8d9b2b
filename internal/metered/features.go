package metered

// Attribution tags for the platform's metered features. Every debit
// carries one of these so the ledger stays auditable per feature.
const (
	FeatureRankCheck         = "rank-check"
	FeatureBacklinkLookup    = "backlink-lookup"
	FeatureDifficulty        = "difficulty-analysis"
	FeatureSentimentBatch    = "sentiment-batch"
	FeatureKeywordResearch   = "keyword-research"
	FeatureContentGeneration = "content-generation"
)

// Default cost functions per feature. Rank checks charge per grid
// cell, backlink and difficulty lookups are flat per target, keyword
// research gets cheaper per keyword at volume, and content generation
// charges a flat amount per article.
var (
	RankCheckCost         = PerUnit(1)
	BacklinkLookupCost    = Flat(2)
	DifficultyCost        = Flat(1)
	SentimentBatchCost    = PerUnit(1)
	ContentGenerationCost = Flat(5)

	KeywordResearchCost = Tiered{
		{UpTo: 100, PerUnit: 2},
		{UpTo: 1000, PerUnit: 1},
		{UpTo: 0, PerUnit: 1},
	}
)
