package store

import (
	"time"

	"github.com/SpiceChicken/kiwoom-stock/internal/model"
)

// TradeStore persists the trade-record lifecycle. Implementations must
// assign the record id on insert and never delete rows; a close is a
// status transition.
type TradeStore interface {
	// InsertOpen writes a new OPEN record and returns its id.
	InsertOpen(p *model.Position) (int64, error)
	// UpdateClose marks a record CLOSED with its exit attributes.
	UpdateClose(id int64, sellPrice float64, sellTime time.Time, profitRate float64, reason string) error
	// LoadOpen returns every OPEN record keyed by instrument code.
	LoadOpen() (map[string]*model.Position, error)
	// SumClosedProfitToday sums profit rates over records closed on the
	// given day. Returns 0.0 when no rows match.
	SumClosedProfitToday(day time.Time) (float64, error)
	Close() error
}

// NoopStore satisfies TradeStore without persisting anything. Used when
// the database cannot be opened so the engine still runs (positions then
// survive only in memory).
type NoopStore struct {
	nextID int64
}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (n *NoopStore) InsertOpen(*model.Position) (int64, error) {
	n.nextID++
	return n.nextID, nil
}

func (n *NoopStore) UpdateClose(int64, float64, time.Time, float64, string) error { return nil }

func (n *NoopStore) LoadOpen() (map[string]*model.Position, error) {
	return map[string]*model.Position{}, nil
}

func (n *NoopStore) SumClosedProfitToday(time.Time) (float64, error) { return 0.0, nil }

func (n *NoopStore) Close() error { return nil }
