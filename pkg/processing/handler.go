package processing

import (
	customlog "github.com/medirover/controller/pkg/log"
)

// LoggingResultHandler logs processing results and forwards every one of
// them, failed decodes included, to the next handler
type LoggingResultHandler struct {
	logger customlog.Logger
	next   ResultHandler
}

// NewLoggingResultHandler creates a new logging result handler
func NewLoggingResultHandler(logger customlog.Logger, next ResultHandler) *LoggingResultHandler {
	return &LoggingResultHandler{
		logger: customlog.OrDefault(logger),
		next:   next,
	}
}

// HandleResult handles a processed message result
func (h *LoggingResultHandler) HandleResult(result *ProcessResult) {
	if result.Error != nil {
		h.logger.Warnf("Error decoding message #%d for channel '%s': %v", result.Sequence, result.Channel, result.Error)
	} else {
		summary := string(result.Raw)
		if len(summary) > 100 {
			summary = summary[:100] + "..."
		}
		h.logger.Debugf("Processed message #%d for channel '%s': %s", result.Sequence, result.Channel, summary)
	}

	if h.next != nil {
		h.next(result)
	}
}

// CreateHandlerFunc creates a ResultHandler function for the ProcessingPool
func (h *LoggingResultHandler) CreateHandlerFunc() ResultHandler {
	return func(processResult *ProcessResult) {
		if processResult == nil {
			h.logger.Errorf("Received nil ProcessResult")
			return
		}
		h.HandleResult(processResult)
	}
}
