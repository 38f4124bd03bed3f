// Package queueconfig resolves a batch's logical type and optional
// named-queue overrides to a concrete queue name.
package queueconfig

import (
	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/internal/config"
)

// Service resolves queue names against a loaded Config.
type Service struct {
	cfg *config.BatchConfig
}

// New builds a Service bound to cfg.
func New(cfg *config.BatchConfig) *Service {
	return &Service{cfg: cfg}
}

// Resolve applies the queue-name resolution priority order:
//
//  1. explicitQueueConfig, if the builder set one directly.
//  2. named.<queueName>'s queue_config, if queueName is set and
//     registered.
//  3. queues.types.<batchType>'s queue_config, if set.
//  4. the per-type default override (queues.default.parallel|sequential).
//  5. the hardcoded fallback: "batchjob" / "chainedjobs".
func (s *Service) Resolve(batchType batchjob.BatchType, queueName, explicitQueueConfig string) string {
	if explicitQueueConfig != "" {
		return explicitQueueConfig
	}

	if queueName != "" {
		if named, ok := s.cfg.Queues.Named[queueName]; ok && named.QueueConfig != "" {
			return named.QueueConfig
		}
	}

	if override, ok := s.cfg.Queues.Types[string(batchType)]; ok && override.QueueConfig != "" {
		return override.QueueConfig
	}

	switch batchType {
	case batchjob.TypeSequential:
		if s.cfg.Queues.Default.Sequential != "" {
			return s.cfg.Queues.Default.Sequential
		}
		return "chainedjobs"
	default:
		if s.cfg.Queues.Default.Parallel != "" {
			return s.cfg.Queues.Default.Parallel
		}
		return "batchjob"
	}
}
