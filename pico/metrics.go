// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package pico

import (
	"github.com/ethereum/go-ethereum/metrics"
)

var (
	propInvInPacketsMeter  = metrics.NewRegisteredMeter("pico/prop/inv/in/packets", nil)
	propInvInVectorsMeter  = metrics.NewRegisteredMeter("pico/prop/inv/in/vectors", nil)
	propInvOutPacketsMeter = metrics.NewRegisteredMeter("pico/prop/inv/out/packets", nil)
	propInvOutVectorsMeter = metrics.NewRegisteredMeter("pico/prop/inv/out/vectors", nil)

	reqDataOutMeter   = metrics.NewRegisteredMeter("pico/req/data/out/vectors", nil)
	reqHeaderOutMeter = metrics.NewRegisteredMeter("pico/req/header/out/vectors", nil)
	reqTimeoutMeter   = metrics.NewRegisteredMeter("pico/req/data/timeout", nil)

	blockInMeter  = metrics.NewRegisteredMeter("pico/obj/block/in", nil)
	headerInMeter = metrics.NewRegisteredMeter("pico/obj/header/in", nil)
	txInMeter     = metrics.NewRegisteredMeter("pico/obj/tx/in", nil)
	notFoundMeter = metrics.NewRegisteredMeter("pico/obj/notfound/in", nil)

	unsolicitedDropMeter = metrics.NewRegisteredMeter("pico/obj/unsolicited", nil)

	txRelayPaidMeter = metrics.NewRegisteredMeter("pico/relay/txns/paid", nil)
	txRelayFreeMeter = metrics.NewRegisteredMeter("pico/relay/txns/free", nil)
	txRelayDropMeter = metrics.NewRegisteredMeter("pico/relay/txns/drop", nil)
	blockRelayMeter  = metrics.NewRegisteredMeter("pico/relay/blocks", nil)

	servedBlockMeter  = metrics.NewRegisteredMeter("pico/serve/block", nil)
	servedHeaderMeter = metrics.NewRegisteredMeter("pico/serve/header", nil)
	servedTxMeter     = metrics.NewRegisteredMeter("pico/serve/tx", nil)
	servedMissMeter   = metrics.NewRegisteredMeter("pico/serve/miss", nil)

	proofRequestOutMeter = metrics.NewRegisteredMeter("pico/proof/out", nil)
	proofInvalidMeter    = metrics.NewRegisteredMeter("pico/proof/invalid", nil)
	proofTimeoutMeter    = metrics.NewRegisteredMeter("pico/proof/timeout", nil)
	proofStrayMeter      = metrics.NewRegisteredMeter("pico/proof/stray", nil)
)
