package services

import (
	"github.com/flowly/flowly/internal/core/event"
	"github.com/flowly/flowly/internal/core/graph"
	imetrics "github.com/flowly/flowly/internal/infrastructure/metrics"
)

// ObserveGraphSize keeps the node and connection gauges in step with store.
// The returned subscription is registered under event.Wildcard.
func ObserveGraphSize(store *graph.Store) event.Subscription {
	imetrics.SetGraphSize(store.NodeCount(), store.ConnectionCount())
	return store.Events().SubscribeAll(func(string, graph.Event) error {
		imetrics.SetGraphSize(store.NodeCount(), store.ConnectionCount())
		return nil
	})
}
