package usecase

import (
	"time"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/ports"
)

type nopMetrics struct{}

func (nopMetrics) ObserveRuleSetBuild(int, int, error) {}
func (nopMetrics) ObserveParagraph(domain.ParagraphStatus, bool) {}
func (nopMetrics) ObserveAppliedRule(domain.RuleType) {}
func (nopMetrics) ObserveEmbedBatch(int, error) {}
func (nopMetrics) StartReview() {}
func (nopMetrics) FinishReview(time.Duration, error) {}

type nopProgress struct{}

func (nopProgress) Report(domain.ProgressEvent) {}

func metricsOrNop(m ports.ReviewMetrics) ports.ReviewMetrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}

func progressOrNop(p ports.ProgressReporter) ports.ProgressReporter {
	if p == nil {
		return nopProgress{}
	}
	return p
}
