package worker

import (
	"context"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/stats"
)

type Worker interface {
	Init(stats stats.Builder) error

	// Run blocks until the worker finished its run or ctx is done
	Run(ctx context.Context) error
}
