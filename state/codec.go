// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"math"

	"github.com/luxfi/codec"
	"github.com/luxfi/codec/linearcodec"
)

const (
	// CodecVersion0 is the initial storage layout. Bump the version and add a
	// migration at load time if the layout ever changes; positional
	// compatibility is never assumed.
	CodecVersion0 uint16 = 0

	CodecVersion = CodecVersion0
)

var Codec codec.Manager

func init() {
	c0 := linearcodec.NewDefault()
	Codec = codec.NewManager(math.MaxInt32)

	if err := Codec.RegisterCodec(CodecVersion0, c0); err != nil {
		panic(err)
	}
}
