package collection

import (
	"github.com/jbctechsolutions/bandsync/internal/domain/group"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/logging"
)

// Services bundles the collections of every group entity type.
type Services struct {
	Events   *Collection[group.Event]
	Setlists *Collection[group.Setlist]
	Finance  *Collection[group.FinanceRecord]
	Chat     *Collection[group.ChatMessage]
}

// NewServices creates the group collections. Finance records cannot be
// edited or deleted while offline; everything else can.
func NewServices(sync Syncer, logger *logging.Logger) *Services {
	return &Services{
		Events: New(sync, group.EntityEvents,
			func(e group.Event) string { return e.ID },
			Config[group.Event]{Policy: Policy{AllowOfflineEdits: true}, Validate: group.Event.Validate, Logger: logger}),
		Setlists: New(sync, group.EntitySetlists,
			func(s group.Setlist) string { return s.ID },
			Config[group.Setlist]{Policy: Policy{AllowOfflineEdits: true}, Validate: group.Setlist.Validate, Logger: logger}),
		Finance: New(sync, group.EntityFinance,
			func(f group.FinanceRecord) string { return f.ID },
			Config[group.FinanceRecord]{Policy: Policy{AllowOfflineEdits: false}, Validate: group.FinanceRecord.Validate, Logger: logger}),
		Chat: New(sync, group.EntityChat,
			func(m group.ChatMessage) string { return m.ID },
			Config[group.ChatMessage]{Policy: Policy{AllowOfflineEdits: true}, Validate: group.ChatMessage.Validate, Logger: logger}),
	}
}
