package memory

import (
	"github.com/Ravikumarchavva/agent-framework/pkg/llms"
	"github.com/Ravikumarchavva/agent-framework/pkg/protocol"
)

// tokenEstimator adapts the shared token counter for retention decisions.
type tokenEstimator struct {
	counter *llms.TokenCounter
}

func newTokenEstimator(model string) tokenEstimator {
	return tokenEstimator{counter: llms.NewTokenCounter(model)}
}

func (e tokenEstimator) estimate(messages []*protocol.Message) int {
	return e.counter.CountMessages(messages)
}

func (e tokenEstimator) estimateOne(msg *protocol.Message) int {
	return e.counter.CountMessage(msg)
}
