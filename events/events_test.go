// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/pubsub"
)

type mockFilter struct {
	addr []byte
}

func (f *mockFilter) Check(addr []byte) bool {
	return bytes.Equal(addr, f.addr)
}

func TestFilterMatchesHolder(t *testing.T) {
	require := require.New(t)

	holder := ids.ShortID{1}
	other := ids.ShortID{2}
	f := &filterer{event: &Event{
		Type:   TypeDeposit,
		Holder: holder,
	}}

	matched, payload := f.Filter([]pubsub.Filter{
		&mockFilter{addr: holder[:]},
		&mockFilter{addr: other[:]},
	})
	require.Equal([]bool{true, false}, matched)
	require.Equal(f.event, payload)
}

func TestPublishAssignsSequence(t *testing.T) {
	require := require.New(t)

	l := NewLog(log.NewNoOpLogger(), 16)
	require.Zero(l.Seq())

	first := &Event{Type: TypeDeposit}
	second := &Event{Type: TypeRedeem}
	l.Publish(first)
	l.Publish(second)

	require.Equal(uint64(1), first.Seq)
	require.Equal(uint64(2), second.Seq)
	require.Equal(uint64(2), l.Seq())
}

func TestRecentReturnsChronological(t *testing.T) {
	require := require.New(t)

	l := NewLog(log.NewNoOpLogger(), 16)
	for i := 0; i < 5; i++ {
		l.Publish(&Event{Type: TypeDeposit, Assets: uint64(i)})
	}

	recent := l.Recent(3)
	require.Len(recent, 3)
	require.Equal(uint64(3), recent[0].Seq)
	require.Equal(uint64(5), recent[2].Seq)

	// Asking for more than retained returns everything.
	require.Len(l.Recent(100), 5)
}

func TestRecentStopsAtEviction(t *testing.T) {
	require := require.New(t)

	l := NewLog(log.NewNoOpLogger(), 4)
	for i := 0; i < 10; i++ {
		l.Publish(&Event{Type: TypeDeposit})
	}

	recent := l.Recent(100)
	require.Len(recent, 4)
	require.Equal(uint64(7), recent[0].Seq)
	require.Equal(uint64(10), recent[3].Seq)
}

func TestTypeString(t *testing.T) {
	require := require.New(t)

	require.Equal("deposit", TypeDeposit.String())
	require.Equal("feeUpdate", TypeFeeUpdate.String())
	require.Equal("unknown", Type(0).String())
}
