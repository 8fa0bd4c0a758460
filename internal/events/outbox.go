package events

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/oyster/internal/storage"
)

// OutboxPrefix is the storage namespace of undelivered events.
var OutboxPrefix = []byte("o/") // o/<seq(8, big-endian)> -> Event JSON

// Outbox is the persistent queue of committed, undelivered events.
type Outbox struct {
	db *storage.PrefixDB
}

// NewOutbox creates an outbox over db.
func NewOutbox(db storage.DB) *Outbox {
	return &Outbox{db: storage.NewPrefixDB(db, OutboxPrefix)}
}

// Stage writes ev into b. The event becomes visible when b commits,
// together with whatever else the batch carries.
func (o *Outbox) Stage(b storage.Batch, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("outbox marshal: %w", err)
	}
	return o.db.Wrap(b).Put(seqKey(ev.Seq), data)
}

// Pending returns up to limit events in sequence order.
// A limit of zero means no limit.
func (o *Outbox) Pending(limit int) ([]Event, error) {
	var out []Event
	errStop := errors.New("stop")
	err := o.db.ForEach(nil, func(key, value []byte) error {
		var ev Event
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("outbox entry %x: %w", key, err)
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	return out, nil
}

// Ack removes delivered events.
func (o *Outbox) Ack(evs []Event) error {
	if len(evs) == 0 {
		return nil
	}
	b := o.db.NewBatch()
	for i := range evs {
		if err := b.Delete(seqKey(evs[i].Seq)); err != nil {
			return err
		}
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("outbox ack: %w", err)
	}
	return nil
}

// Len returns the number of undelivered events.
func (o *Outbox) Len() (int, error) {
	n := 0
	err := o.db.ForEach(nil, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}
