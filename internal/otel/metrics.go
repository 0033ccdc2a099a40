package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce       sync.Once
	taskCommandsCounter   metric.Int64Counter
	cyclesCounter         metric.Int64Counter
	cycleDuration         metric.Float64Histogram
	stageDuration         metric.Float64Histogram
	tasksDetectedCounter  metric.Int64Counter
	ticksSkippedCounter   metric.Int64Counter
	notificationsCounter  metric.Int64Counter
	sseConnectionsGauge   metric.Int64ObservableGauge
	sseEventsCounter      metric.Int64Counter
	sseConnections        int64
	sseConnectionsMu      sync.Mutex
)

// InitMetrics creates the meter instruments. Safe to call multiple times; only runs once.
// Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		taskCommandsCounter, err = m.Int64Counter("taskwatch_task_commands_total", metric.WithDescription("Task commands (create, start, snooze, complete, dismiss, delete) by outcome"))
		if err != nil {
			return
		}
		cyclesCounter, err = m.Int64Counter("taskwatch_cycles_total", metric.WithDescription("Capture cycles by outcome"))
		if err != nil {
			return
		}
		cycleDuration, err = m.Float64Histogram("taskwatch_cycle_duration_seconds", metric.WithDescription("Capture cycle duration in seconds"))
		if err != nil {
			return
		}
		stageDuration, err = m.Float64Histogram("taskwatch_stage_duration_seconds", metric.WithDescription("Capture and analysis call duration in seconds"))
		if err != nil {
			return
		}
		tasksDetectedCounter, err = m.Int64Counter("taskwatch_tasks_detected_total", metric.WithDescription("Tasks created from capture cycles"))
		if err != nil {
			return
		}
		ticksSkippedCounter, err = m.Int64Counter("taskwatch_ticks_skipped_total", metric.WithDescription("Timer ticks skipped because a cycle was in flight"))
		if err != nil {
			return
		}
		notificationsCounter, err = m.Int64Counter("taskwatch_notifications_total", metric.WithDescription("Notification deliveries by sink and outcome"))
		if err != nil {
			return
		}
		sseEventsCounter, err = m.Int64Counter("taskwatch_sse_events_total", metric.WithDescription("Total SSE events published"))
		if err != nil {
			return
		}
		sseConnectionsGauge, err = m.Int64ObservableGauge("taskwatch_sse_connections", metric.WithDescription("Current SSE subscriber count"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			sseConnectionsMu.Lock()
			n := sseConnections
			sseConnectionsMu.Unlock()
			o.ObserveInt64(sseConnectionsGauge, n)
			return nil
		}, sseConnectionsGauge)
	})
	return err
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordTaskCommand records one task command.
func RecordTaskCommand(ctx context.Context, command string, err error) {
	if taskCommandsCounter == nil {
		return
	}
	taskCommandsCounter.Add(ctx, 1, metric.WithAttributes(AttrCommand.String(command), AttrOutcome.String(outcome(err))))
}

// RecordCycle records a finished capture cycle. result is "ok" or an error class such
// as "permission_denied", "capture_error", "analysis_error".
func RecordCycle(ctx context.Context, result string, duration time.Duration) {
	if cyclesCounter != nil {
		cyclesCounter.Add(ctx, 1, metric.WithAttributes(AttrOutcome.String(result)))
	}
	if cycleDuration != nil {
		cycleDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrOutcome.String(result)))
	}
}

// RecordStage records the duration of the capture or analysis call within a cycle.
func RecordStage(ctx context.Context, stage string, duration time.Duration, err error) {
	if stageDuration == nil {
		return
	}
	stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrStage.String(stage), AttrOutcome.String(outcome(err))))
}

// RecordTasksDetected adds n tasks created by a cycle.
func RecordTasksDetected(ctx context.Context, n int) {
	if tasksDetectedCounter == nil || n <= 0 {
		return
	}
	tasksDetectedCounter.Add(ctx, int64(n))
}

// RecordSkippedTick counts a tick dropped by single-flight.
func RecordSkippedTick(ctx context.Context) {
	if ticksSkippedCounter != nil {
		ticksSkippedCounter.Add(ctx, 1)
	}
}

// RecordNotification records one delivery attempt.
func RecordNotification(ctx context.Context, sink string, err error) {
	if notificationsCounter == nil {
		return
	}
	notificationsCounter.Add(ctx, 1, metric.WithAttributes(AttrSink.String(sink), AttrOutcome.String(outcome(err))))
}

// RecordSSEEvent records one SSE event published.
func RecordSSEEvent(ctx context.Context) {
	if sseEventsCounter != nil {
		sseEventsCounter.Add(ctx, 1)
	}
}

// AddSSEConnection adds 1 to the SSE connection gauge (call on subscribe).
func AddSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections++
	sseConnectionsMu.Unlock()
}

// RemoveSSEConnection subtracts 1 from the SSE connection gauge (call on unsubscribe).
func RemoveSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections--
	if sseConnections < 0 {
		sseConnections = 0
	}
	sseConnectionsMu.Unlock()
}

// TaskCountFunc returns task counts keyed by status. Used for the taskwatch_tasks gauge.
type TaskCountFunc func(ctx context.Context) map[string]int64

// InitMetricsWithTaskCount creates instruments and optionally registers a callback for task gauges.
// Call after InitMeterProvider. If taskCount is nil, task gauges are not reported.
func InitMetricsWithTaskCount(ctx context.Context, taskCount TaskCountFunc) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	if taskCount == nil {
		return nil
	}
	m := Meter()
	tasksGauge, err := m.Int64ObservableGauge("taskwatch_tasks", metric.WithDescription("Number of tasks by effective status"))
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		for status, n := range taskCount(ctx) {
			o.ObserveInt64(tasksGauge, n, metric.WithAttributes(AttrStatus.String(status)))
		}
		return nil
	}, tasksGauge)
	return err
}
