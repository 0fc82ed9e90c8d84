//go:build !linux

package epd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"taskcal/internal/log"
)

// stub stands in for the panel on development machines: frames are
// validated and dropped.
type stub struct {
	log *logrus.Entry
}

// Open returns the logging stub. It never fails, so the refresh pipeline
// behaves identically on a laptop and on the appliance.
func Open(_ context.Context, logger *logrus.Entry) (Panel, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger.Info("epd: no panel on this platform, frames will be discarded")
	return &stub{log: logger}, nil
}

func (s *stub) Display(_ context.Context, buf []byte) error {
	if len(buf) != BufferSize {
		return fmt.Errorf("epd: frame is %d bytes, want %d", len(buf), BufferSize)
	}
	s.log.WithField("bytes", len(buf)).Info("epd stub: frame discarded")
	return nil
}

func (s *stub) Clear(context.Context) error {
	s.log.Debug("epd stub: clear")
	return nil
}

func (s *stub) Sleep() error { return nil }

func (s *stub) Close() error { return nil }
