// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package events publishes observable vault state transitions. Every event
// carries enough data for an external indexer to reconstruct full ledger
// history without replaying internal state.
package events

import (
	"sync"

	"github.com/luxfi/cache/lru"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/pubsub"
)

// Type discriminates vault events.
type Type uint8

const (
	TypeDeposit Type = iota + 1
	TypeRedeem
	TypeQueueEnter
	TypeCheckpoint
	TypeClaim
	TypeHarvest
	TypeFeeUpdate
)

func (t Type) String() string {
	switch t {
	case TypeDeposit:
		return "deposit"
	case TypeRedeem:
		return "redeem"
	case TypeQueueEnter:
		return "queueEnter"
	case TypeCheckpoint:
		return "checkpoint"
	case TypeClaim:
		return "claim"
	case TypeHarvest:
		return "harvest"
	case TypeFeeUpdate:
		return "feeUpdate"
	default:
		return "unknown"
	}
}

// Event is one observable state transition. Fields irrelevant to the event
// type are zero.
type Event struct {
	Seq       uint64      `json:"seq"`
	Type      Type        `json:"type"`
	VaultID   ids.ID      `json:"vaultID"`
	Holder    ids.ShortID `json:"holder"`
	Assets    uint64      `json:"assets"`
	Shares    uint64      `json:"shares"`
	Ticket    uint64      `json:"ticket"`
	NewTicket uint64      `json:"newTicket"`
	Index     int         `json:"index"`
	Epoch     uint64      `json:"epoch"`
	Reward    int64       `json:"reward"`
	Timestamp uint64      `json:"timestamp"`
}

var _ pubsub.Filterer = (*filterer)(nil)

type filterer struct {
	event *Event
}

// Filter matches subscriptions against the event's holder address.
func (f *filterer) Filter(filters []pubsub.Filter) ([]bool, interface{}) {
	resp := make([]bool, len(filters))
	for i, filter := range filters {
		resp[i] = filter.Check(f.event.Holder[:])
	}
	return resp, f.event
}

// Log assigns sequence numbers, retains recent events for indexer catch-up,
// and streams them to pubsub subscribers.
type Log struct {
	mu     sync.Mutex
	seq    uint64
	recent *lru.Cache[uint64, *Event]
	server *pubsub.Server
}

func NewLog(logger log.Logger, retention int) *Log {
	return &Log{
		recent: lru.NewCache[uint64, *Event](retention),
		server: pubsub.New(logger),
	}
}

// Publish assigns the next sequence number to [event] and fans it out.
func (l *Log) Publish(event *Event) {
	l.mu.Lock()
	l.seq++
	event.Seq = l.seq
	l.recent.Put(event.Seq, event)
	l.mu.Unlock()

	l.server.Publish(&filterer{event: event})
}

// Seq returns the sequence number of the newest event.
func (l *Log) Seq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Recent returns up to [limit] of the newest retained events, oldest first.
func (l *Log) Recent(limit int) []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	var recent []*Event
	for seq := l.seq; seq > 0 && len(recent) < limit; seq-- {
		event, ok := l.recent.Get(seq)
		if !ok {
			break
		}
		recent = append(recent, event)
	}
	// Reverse into chronological order.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent
}

// Server exposes the pubsub endpoint for mounting on an HTTP router.
func (l *Log) Server() *pubsub.Server {
	return l.server
}
