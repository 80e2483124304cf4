// Package log creates the application log, and decorates logs.Log with component prefixes.
package log

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/logging"
	"github.com/cyclopcam/logs"
)

// gcpLog sends log messages to Google Cloud Logging
type gcpLog struct {
	client *logging.Client
	gcp    *logging.Logger
}

// NewLog logs to Google Cloud Logging if GCP_PROJECT_ID and GCP_LOGNAME are set,
// and to stdout otherwise.
func NewLog() (logs.Log, error) {
	gcpProjectID := os.Getenv("GCP_PROJECT_ID")
	gcpLogname := os.Getenv("GCP_LOGNAME")
	if gcpProjectID == "" || gcpLogname == "" {
		return logs.NewLog()
	}
	fmt.Printf("Logging to GCP %v / %v (you won't see further logs on stdout)\n", gcpProjectID, gcpLogname)
	client, err := logging.NewClient(context.Background(), gcpProjectID)
	if err != nil {
		return nil, fmt.Errorf("Failed to create GCP logging client: %w", err)
	}
	return &gcpLog{
		client: client,
		gcp:    client.Logger(gcpLogname),
	}, nil
}

func (l *gcpLog) write(severity logging.Severity, format string, a ...any) {
	l.gcp.Log(logging.Entry{
		Severity: severity,
		Payload:  fmt.Sprintf(format, a...),
	})
}

func (l *gcpLog) Close() {
	l.gcp.Flush()
	l.client.Close()
}

func (l *gcpLog) Debugf(format string, a ...any) {
	l.write(logging.Debug, format, a...)
}

func (l *gcpLog) Infof(format string, a ...any) {
	l.write(logging.Info, format, a...)
}

func (l *gcpLog) Warnf(format string, a ...any) {
	l.write(logging.Warning, format, a...)
}

func (l *gcpLog) Errorf(format string, a ...any) {
	l.write(logging.Error, format, a...)
}

func (l *gcpLog) Criticalf(format string, a ...any) {
	l.write(logging.Critical, format, a...)
}
