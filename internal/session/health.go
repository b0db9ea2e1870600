package session

import (
	"github.com/rickgao/coinboard/internal/poller"
	"github.com/rickgao/coinboard/internal/version"
)

// Status values reported by Health.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusStopped  = "stopped"
)

// Health is a point-in-time summary of the session.
type Health struct {
	SessionID string        `json:"sessionId"`
	Status    string        `json:"status"`
	Catalog   CatalogHealth `json:"catalog"`
	Poller    poller.Stats  `json:"poller"`
	Flashing  int           `json:"flashing"`
	Stale     bool          `json:"stale"`
	Build     version.Info  `json:"build"`
}

// CatalogHealth summarizes the catalog store.
type CatalogHealth struct {
	SortKey      string `json:"sortKey"`
	RequestedKey string `json:"requestedKey"`
	Instruments  int    `json:"instruments"`
	Loading      bool   `json:"loading"`
}

// Health reports catalog and poller state. The session is degraded while
// the catalog is empty or the ticker data is stale.
func (s *Session) Health() Health {
	h := Health{
		SessionID: s.id,
		Catalog: CatalogHealth{
			SortKey:      s.store.ActiveKey(),
			RequestedKey: s.store.RequestedKey(),
			Instruments:  s.store.Len(),
			Loading:      s.store.Loading(),
		},
		Poller:   s.poller.Stats(),
		Flashing: s.tracker.ActiveTimers(),
		Stale:    s.stale(),
		Build:    version.Get(),
	}

	switch {
	case s.Stopped():
		h.Status = StatusStopped
	case h.Catalog.Instruments == 0 || h.Stale:
		h.Status = StatusDegraded
	default:
		h.Status = StatusOK
	}
	return h
}
