// Package checkin turns a student's code into an attendance record and
// announces it to the session's live observers.
package checkin

import (
	"context"
	"log"
	"time"

	"sams/pkg/interfaces"
	"sams/pkg/types"
)

// Processor implements interfaces.CheckInProcessor
type Processor struct {
	dbManager interfaces.DatabaseManager
	publisher interfaces.Publisher
	throttle  *Throttle
	now       func() time.Time
}

// NewProcessor creates a check-in processor. throttle may be nil.
func NewProcessor(dbManager interfaces.DatabaseManager, publisher interfaces.Publisher, throttle *Throttle) *Processor {
	return &Processor{
		dbManager: dbManager,
		publisher: publisher,
		throttle:  throttle,
		now:       time.Now,
	}
}

// SetClock replaces the time source
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

// CheckIn records attendance with a server-assigned time. The store decides
// every failure mode; a success is published after commit and never waits
// on delivery.
func (p *Processor) CheckIn(ctx context.Context, studentUserID int64, code string) (*types.CheckInRecord, error) {
	now := p.now().UTC()

	if p.throttle != nil && !p.throttle.Allow(studentUserID, now) {
		log.Printf("Check-in throttled: user_id=%d", studentUserID)
		return nil, interfaces.ErrCheckInThrottled
	}

	record, err := p.dbManager.CheckIn(ctx, studentUserID, code, now)
	if err != nil {
		return nil, err
	}

	delivered := 0
	if p.publisher != nil {
		delivered = p.publisher.Publish(code, types.Event{
			Type:        types.EventNewCheckIn,
			SessionCode: code,
			Payload:     record,
			Timestamp:   record.CheckInTime,
		})
	}

	log.Printf("Checked in: user_id=%d code=%s observers=%d", studentUserID, code, delivered)
	return record, nil
}

// RunCleanup prunes idle throttle state until ctx is done
func (p *Processor) RunCleanup(ctx context.Context, every time.Duration) error {
	if p.throttle == nil {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := p.throttle.Cleanup(p.now()); n > 0 {
				log.Printf("Check-in throttle cleanup: removed=%d", n)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
