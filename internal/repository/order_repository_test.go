package repository

import (
	"strings"
	"testing"

	"github.com/inkfolio/commission-backend/internal/model"
)

func TestStatusUpdateStampsTimestamps(t *testing.T) {
	stamped := map[string]string{
		model.OrderAdvancePaid: "paid_at=NOW()",
		model.OrderCompleted:   "completed_at=NOW()",
		model.OrderDelivered:   "delivered_at=NOW()",
	}
	for status, column := range stamped {
		if q := statusUpdateQuery(status); !strings.Contains(q, column) {
			t.Errorf("%s must stamp %s, got %q", status, column, q)
		}
	}

	plain := []string{
		model.OrderPending, model.OrderInProgress, model.OrderRevisionRequested,
		model.OrderFinalPaid, model.OrderCancelled, model.OrderRefunded,
	}
	for _, status := range plain {
		if q := statusUpdateQuery(status); strings.Contains(q, "NOW()") {
			t.Errorf("%s must not stamp a timestamp, got %q", status, q)
		}
	}
}
