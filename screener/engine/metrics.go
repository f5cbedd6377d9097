package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var joinProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "vigil_join_duration_sec",
	Help: "Total duration of join screening",
})

var joinProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vigil_join_processed",
	Help: "Number of join events processed, by result",
}, []string{"result"})

var actionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vigil_actions",
	Help: "Number of match actions, by action and status",
}, []string{"action", "status"})

var nameCheckCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vigil_name_checks",
	Help: "Number of names checked against the corpus, by tier (none for no match)",
}, []string{"tier"})

var verdictCacheCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vigil_verdict_cache",
	Help: "Verdict cache lookups, by result",
}, []string{"result"})

var corpusIdentities = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "vigil_corpus_identities",
	Help: "Number of usable identities in the current corpus",
})

var corpusPatterns = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "vigil_corpus_patterns",
	Help: "Number of name patterns in the current corpus",
})

var corpusReloadCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vigil_corpus_reloads",
	Help: "Number of corpus reloads, by result",
}, []string{"result"})
