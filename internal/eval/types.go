// Package eval measures retrieval quality. A query set pairs search
// queries with the results a good index should return; the tester embeds
// each query, retrieves from the vector index, and scores the ranked
// results with recall@k and MRR. A BM25 baseline ranks the same queries
// with keyword search over identically chunked text, so embedding
// retrieval always has a lexical yardstick to beat.
package eval

import "time"

// DefaultTopK is the result depth when the caller does not choose one.
const DefaultTopK = 10

// Query is one test case: a search text and the results that count as
// relevant when it runs.
type Query struct {
	// Text is the search input.
	Text string `yaml:"query"`

	// ExpectedChunks lists chunk ids that count as relevant. Exact
	// matching, for query sets pinned to a known chunking.
	ExpectedChunks []string `yaml:"expected_chunks,omitempty"`

	// ExpectedDocs lists document ids that count as relevant. A returned
	// chunk satisfies one when its document_id metadata matches, so these
	// expectations survive rechunking.
	ExpectedDocs []string `yaml:"expected_docs,omitempty"`
}

// Expected returns the number of relevance targets the query names.
func (q Query) Expected() int {
	return len(q.ExpectedChunks) + len(q.ExpectedDocs)
}

// QuerySet is a collection of queries loaded from a YAML file.
type QuerySet struct {
	// Name labels the set in reports. Defaults to the file name.
	Name string `yaml:"name"`

	Queries []Query `yaml:"queries"`
}

// QueryResult is the scored outcome of a single query.
type QueryResult struct {
	// Text is the query that ran.
	Text string

	// Recall is the fraction of expected targets found in the top k.
	Recall float64

	// ReciprocalRank is 1/rank of the first relevant hit, 0 when no
	// returned result was relevant.
	ReciprocalRank float64

	// FirstHit is the 1-based rank of the first relevant result, 0 when
	// none came back.
	FirstHit int

	// Found and Expected count relevance targets.
	Found    int
	Expected int

	// Returned is how many results the ranker produced.
	Returned int

	// Err is set when the query could not be scored at all. Errored
	// queries count toward Report.Failed and are excluded from the means.
	Err error
}

// Report aggregates one evaluation run over a query set.
type Report struct {
	// Set is the query set name.
	Set string

	// Ranker identifies what produced the rankings: "embedding" or "bm25".
	Ranker string

	// TopK is the result depth each query was scored at.
	TopK int

	// Recall is mean recall@k over scored queries.
	Recall float64

	// MRR is the mean reciprocal rank over scored queries.
	MRR float64

	// Queries counts the whole set; Failed counts the queries that
	// errored instead of scoring.
	Queries int
	Failed  int

	Results  []QueryResult
	Duration time.Duration
}
