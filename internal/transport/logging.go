// SPDX-License-Identifier: MIT
package transport

import (
	applog "soukou/internal/log"
)

// LoggingTransport implements the Transport interface by logging data at
// debug level. It is useful for watching frames without a client.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data.
func (lt *LoggingTransport) Send(data any) error {
	switch m := data.(type) {
	case FrameMessage:
		applog.WithField("transient", m.Transient).Debugf("Frame t=%.3fs rms=%.4f dbfs=%.1f bars=%d",
			m.TimeSec, m.RMS, m.DBFS, len(m.Bars))
	case EventMessage:
		applog.Infof("Transport: Event %s", m.Event)
	default:
		applog.Debugf("Transport: Received (%T): %+v", data, data)
	}
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
