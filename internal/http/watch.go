package http

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/wartelsys/wartel/internal/feed"
	"github.com/wartelsys/wartel/internal/ledger"
	"github.com/wartelsys/wartel/internal/models"
	"github.com/wartelsys/wartel/internal/store"
)

// WatchSessionsHandler streams the full session set over SSE: one snapshot
// on connect, then one per change. Observers never see deltas; each event
// replaces the previous one wholesale.
func WatchSessionsHandler(bus *feed.Bus, st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		events, cancel := bus.Subscribe(ctx)
		defer cancel()

		sessions, errList := st.ListSessions(ctx, false)
		if errList != nil {
			log.Warnf("watch: initial session snapshot: %v", errList)
			sessions = nil
		}
		c.SSEvent("snapshot", formatSessionSet(sessions))
		c.Writer.Flush()

		c.Stream(func(w io.Writer) bool {
			select {
			case event, ok := <-events:
				if !ok {
					return false
				}
				if event.Collection != feed.CollectionSessions {
					return true
				}
				c.SSEvent("snapshot", formatSessionSet(event.Sessions))
				return true
			case <-ctx.Done():
				return false
			}
		})
	}
}

// WatchVouchersHandler streams the full voucher set over SSE.
func WatchVouchersHandler(bus *feed.Bus, l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		events, cancel := bus.Subscribe(ctx)
		defer cancel()

		vouchers, errList := l.List(ctx)
		if errList != nil {
			log.Warnf("watch: initial voucher snapshot: %v", errList)
			vouchers = nil
		}
		c.SSEvent("snapshot", formatVoucherSet(vouchers))
		c.Writer.Flush()

		c.Stream(func(w io.Writer) bool {
			select {
			case event, ok := <-events:
				if !ok {
					return false
				}
				if event.Collection != feed.CollectionVouchers {
					return true
				}
				c.SSEvent("snapshot", formatVoucherSet(event.Vouchers))
				return true
			case <-ctx.Done():
				return false
			}
		})
	}
}

func formatSessionSet(sessions []models.Session) gin.H {
	now := time.Now().UTC()
	out := make([]gin.H, 0, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		out = append(out, gin.H{
			"id":                  s.ID,
			"voucher_code":        s.VoucherCode,
			"receiver_identifier": s.ReceiverIdentifier,
			"call_type":           s.CallType,
			"owner_id":            s.OwnerID,
			"active":              s.Active,
			"start_time":          s.StartTime,
			"end_time":            s.EndTime,
			"deadline":            s.Deadline,
			"seeded_duration":     s.SeededDuration,
			"remaining_duration":  s.Remaining(now),
			"terminated_by":       s.TerminatedBy,
		})
	}
	return gin.H{"sessions": out}
}

func formatVoucherSet(vouchers []models.Voucher) gin.H {
	now := time.Now().UTC()
	out := make([]gin.H, 0, len(vouchers))
	for i := range vouchers {
		v := &vouchers[i]
		out = append(out, gin.H{
			"code":               v.Code,
			"total_duration":     v.TotalDuration,
			"remaining_duration": v.RemainingDuration,
			"price":              v.Price,
			"used":               v.Used,
			"created_at":         v.CreatedAt,
			"expires_at":         v.ExpiresAt,
			"redeemable":         v.Redeemable(now),
		})
	}
	return gin.H{"vouchers": out}
}
