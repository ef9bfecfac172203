// Package history persists the per-bot trade log in a Badger key-value store.
// Each bot's trades live as one JSON array under a single key, trimmed to the
// most recent entries; lifetime totals are kept under a companion key so they
// survive trimming and restarts.
package history

import (
	"encoding/json"
	"fmt"

	"kuma-grid-bot-go/internal/models"

	"github.com/dgraph-io/badger/v3"
)

// maxStoredTrades bounds the per-bot trade array. Totals are tracked
// separately, so trimming never loses accounting.
const maxStoredTrades = 1000

// Store wraps one Badger database shared by all bots of the process.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the trade database in dir. An empty dir opens an
// in-memory database, used by tests.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open trade database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Bot returns the trade log view for one bot id.
func (s *Store) Bot(botID string) *BotLog {
	return &BotLog{
		db:        s.db,
		tradesKey: []byte("trades:" + botID),
		totalsKey: []byte("totals:" + botID),
	}
}

// BotLog is the per-bot trade log. All methods are safe for concurrent use;
// Badger serializes the transactions.
type BotLog struct {
	db        *badger.DB
	tradesKey []byte
	totalsKey []byte
}

type storedTotals struct {
	PnL    float64 `json:"pnl"`
	Volume float64 `json:"volume"`
}

func getJSON(txn *badger.Txn, key []byte, dst any) error {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}

func setJSON(txn *badger.Txn, key []byte, src any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// Append stores one trade and folds it into the lifetime totals in the same
// transaction. The trade array keeps only the newest maxStoredTrades entries.
func (l *BotLog) Append(trade models.Trade) error {
	return l.db.Update(func(txn *badger.Txn) error {
		var trades []models.Trade
		if err := getJSON(txn, l.tradesKey, &trades); err != nil {
			return err
		}
		trades = append(trades, trade)
		if len(trades) > maxStoredTrades {
			trades = trades[len(trades)-maxStoredTrades:]
		}
		if err := setJSON(txn, l.tradesKey, trades); err != nil {
			return err
		}

		var totals storedTotals
		if err := getJSON(txn, l.totalsKey, &totals); err != nil {
			return err
		}
		if trade.PnL != nil {
			totals.PnL += *trade.PnL
		}
		totals.PnL += trade.Fee
		totals.Volume += trade.Price * trade.Quantity
		return setJSON(txn, l.totalsKey, totals)
	})
}

// Recent returns up to limit trades, newest first.
func (l *BotLog) Recent(limit int) ([]models.Trade, error) {
	var trades []models.Trade
	err := l.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, l.tradesKey, &trades)
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.Trade, 0, limit)
	for i := len(trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, trades[i])
	}
	return out, nil
}

// All returns every stored trade, oldest first.
func (l *BotLog) All() ([]models.Trade, error) {
	var trades []models.Trade
	err := l.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, l.tradesKey, &trades)
	})
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// Totals returns the lifetime realized P&L (fees included, signed) and traded
// volume.
func (l *BotLog) Totals() (float64, float64, error) {
	var totals storedTotals
	err := l.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, l.totalsKey, &totals)
	})
	if err != nil {
		return 0, 0, err
	}
	return totals.PnL, totals.Volume, nil
}

// Clear deletes the bot's trades and totals.
func (l *BotLog) Clear() error {
	return l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(l.tradesKey); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Delete(l.totalsKey); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return nil
	})
}
