package events

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Logger is the part of *frame.Service the event handlers log through.
type Logger interface {
	Log(ctx context.Context) *logrus.Entry
}
