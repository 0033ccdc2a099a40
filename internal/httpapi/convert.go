package httpapi

import (
	"github.com/ankittk/taskwatch/internal/capture"
	"github.com/ankittk/taskwatch/internal/config"
	"github.com/ankittk/taskwatch/internal/store"
	"github.com/ankittk/taskwatch/internal/tasks"
	"github.com/ankittk/taskwatch/internal/watch"
	"github.com/ankittk/taskwatch/pkg/models"
)

func toAPITask(t store.Task) models.Task {
	return models.Task{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		Context:         t.Context,
		InitialPriority: t.InitialPriority,
		CurrentPriority: t.CurrentPriority,
		PriorityBand:    tasks.Band(t.CurrentPriority),
		Status:          t.Status,
		SourceWindow:    t.SourceWindow,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		SnoozedUntil:    t.SnoozedUntil,
	}
}

func toAPITasks(ts []store.Task) []models.Task {
	out := make([]models.Task, 0, len(ts))
	for _, t := range ts {
		out = append(out, toAPITask(t))
	}
	return out
}

func storedCaptureToAPI(c store.CaptureContext) models.CaptureContext {
	return models.CaptureContext{
		ID:          c.ID,
		Text:        c.Text,
		WindowTitle: c.WindowTitle,
		AppName:     c.AppName,
		Width:       c.Width,
		Height:      c.Height,
		CapturedAt:  c.CapturedAt,
	}
}

func captureToAPI(c capture.Context) models.CaptureContext {
	return models.CaptureContext{
		ID:          c.ID,
		Text:        c.Text,
		WindowTitle: c.WindowTitle,
		AppName:     c.AppName,
		Width:       c.Width,
		Height:      c.Height,
		CapturedAt:  c.CapturedAt,
	}
}

func toAPIStatus(s watch.Status) models.WatchStatus {
	return models.WatchStatus{
		IsWatching:              s.IsWatching,
		IsCapturing:             s.IsCapturing,
		LastCaptureAt:           s.LastCaptureAt,
		CapturesSinceStart:      s.CapturesSinceStart,
		TasksDetectedSinceStart: s.TasksDetectedSinceStart,
		LastError:               s.LastError,
		IntervalSecs:            s.IntervalSecs,
	}
}

func toAPIProvider(c config.LLMConfig) models.ProviderConfig {
	return models.ProviderConfig{Provider: c.Provider, Model: c.Model, Endpoint: c.Endpoint, Enabled: c.Enabled}
}

func fromAPIProvider(c models.ProviderConfig) config.LLMConfig {
	return config.LLMConfig{Provider: c.Provider, Model: c.Model, Endpoint: c.Endpoint, Enabled: c.Enabled}
}

func toAPISettings(s config.Settings) models.Settings {
	return models.Settings{
		CaptureIntervalSecs:  s.CaptureIntervalSecs,
		PriorityDecayRate:    s.PriorityDecayRate,
		NotificationsEnabled: s.NotificationsEnabled,
		LLM:                  toAPIProvider(s.LLM),
		Capture: models.CaptureSettings{
			Mode:        s.Capture.Mode,
			Command:     s.Capture.Command,
			Args:        s.Capture.Args,
			TimeoutSecs: s.Capture.TimeoutSecs,
		},
		AnalysisTimeoutSecs:   s.AnalysisTimeoutSecs,
		ContextRetentionHours: s.ContextRetentionHours,
		Notify: models.NotifySettings{
			Desktop:         s.Notify.Desktop,
			SlackWebhookURL: s.Notify.SlackWebhookURL,
			AMQPURL:         s.Notify.AMQPURL,
			AMQPExchange:    s.Notify.AMQPExchange,
		},
	}
}

func fromAPISettings(s models.Settings) config.Settings {
	return config.Settings{
		CaptureIntervalSecs:  s.CaptureIntervalSecs,
		PriorityDecayRate:    s.PriorityDecayRate,
		NotificationsEnabled: s.NotificationsEnabled,
		LLM:                  fromAPIProvider(s.LLM),
		Capture: config.CaptureConfig{
			Mode:        s.Capture.Mode,
			Command:     s.Capture.Command,
			Args:        s.Capture.Args,
			TimeoutSecs: s.Capture.TimeoutSecs,
		},
		AnalysisTimeoutSecs:   s.AnalysisTimeoutSecs,
		ContextRetentionHours: s.ContextRetentionHours,
		Notify: config.NotifyConfig{
			Desktop:         s.Notify.Desktop,
			SlackWebhookURL: s.Notify.SlackWebhookURL,
			AMQPURL:         s.Notify.AMQPURL,
			AMQPExchange:    s.Notify.AMQPExchange,
		},
	}
}
