// Package chainmsg is the message bus the chain manager uses to announce
// externally visible transitions (§4.2, "Emits NewBlock or
// NewAlternativeBlock messages on success; emits ChainSwitch on reorg"),
// grounded on the corpus's channel-per-client notification server pattern
// (github.com/decred/dcrwallet's wallet.NotificationServer): clients are
// guaranteed delivery in registration order, with no synchronization
// promised between distinct clients.
package chainmsg

import (
	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/debug"
)

// NewBlock announces a block accepted onto the main chain.
type NewBlock struct {
	Hash   cnbinary.Hash
	Height uint64
}

// NewAlternativeBlock announces a block accepted onto an alternative chain.
type NewAlternativeBlock struct {
	Hash   cnbinary.Hash
	Height uint64
}

// ChainSwitch announces a reorg: the main chain rolled back to
// CommonAncestor and replayed NewTipChain on top of it, in order from the
// block above the common ancestor to the new tip.
type ChainSwitch struct {
	CommonAncestor cnbinary.Hash
	NewTipChain    []cnbinary.Hash
}

// Bus delivers chain transition messages to subscribers in the order they
// registered. Each subscriber receives every message on its own unbuffered
// channel; a slow subscriber blocks the publisher, matching the corpus's
// own notification server (callers that need to decouple should read off
// their channel on a dedicated goroutine).
type Bus struct {
	mu                 debug.Mutex
	newBlockClients    []chan *NewBlock
	newAltBlockClients []chan *NewAlternativeBlock
	chainSwitchClients []chan *ChainSwitch
}

// New returns an empty message bus.
func New() *Bus {
	return &Bus{mu: debug.NewMutex("chainmsg.Bus")}
}

// NewBlockClient receives NewBlock messages over C. Done must be called
// exactly once when the subscriber is finished.
type NewBlockClient struct {
	C   chan *NewBlock
	bus *Bus
}

// SubscribeNewBlock registers a new subscriber for NewBlock messages.
func (b *Bus) SubscribeNewBlock() NewBlockClient {
	c := make(chan *NewBlock)
	b.mu.Lock()
	b.newBlockClients = append(b.newBlockClients, c)
	b.mu.Unlock()
	return NewBlockClient{C: c, bus: b}
}

// Done deregisters the subscriber and drains any message left in flight.
func (c NewBlockClient) Done() {
	go func() {
		for range c.C {
		}
	}()
	go func() {
		b := c.bus
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, ch := range b.newBlockClients {
			if ch == c.C {
				b.newBlockClients = append(b.newBlockClients[:i], b.newBlockClients[i+1:]...)
				close(ch)
				break
			}
		}
	}()
}

// NewAltBlockClient receives NewAlternativeBlock messages over C.
type NewAltBlockClient struct {
	C   chan *NewAlternativeBlock
	bus *Bus
}

// SubscribeNewAlternativeBlock registers a new subscriber for
// NewAlternativeBlock messages.
func (b *Bus) SubscribeNewAlternativeBlock() NewAltBlockClient {
	c := make(chan *NewAlternativeBlock)
	b.mu.Lock()
	b.newAltBlockClients = append(b.newAltBlockClients, c)
	b.mu.Unlock()
	return NewAltBlockClient{C: c, bus: b}
}

// Done deregisters the subscriber and drains any message left in flight.
func (c NewAltBlockClient) Done() {
	go func() {
		for range c.C {
		}
	}()
	go func() {
		b := c.bus
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, ch := range b.newAltBlockClients {
			if ch == c.C {
				b.newAltBlockClients = append(b.newAltBlockClients[:i], b.newAltBlockClients[i+1:]...)
				close(ch)
				break
			}
		}
	}()
}

// ChainSwitchClient receives ChainSwitch messages over C.
type ChainSwitchClient struct {
	C   chan *ChainSwitch
	bus *Bus
}

// SubscribeChainSwitch registers a new subscriber for ChainSwitch messages.
func (b *Bus) SubscribeChainSwitch() ChainSwitchClient {
	c := make(chan *ChainSwitch)
	b.mu.Lock()
	b.chainSwitchClients = append(b.chainSwitchClients, c)
	b.mu.Unlock()
	return ChainSwitchClient{C: c, bus: b}
}

// Done deregisters the subscriber and drains any message left in flight.
func (c ChainSwitchClient) Done() {
	go func() {
		for range c.C {
		}
	}()
	go func() {
		b := c.bus
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, ch := range b.chainSwitchClients {
			if ch == c.C {
				b.chainSwitchClients = append(b.chainSwitchClients[:i], b.chainSwitchClients[i+1:]...)
				close(ch)
				break
			}
		}
	}()
}

// PublishNewBlock notifies every NewBlock subscriber, in registration order.
func (b *Bus) PublishNewBlock(n *NewBlock) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.newBlockClients {
		c <- n
	}
}

// PublishNewAlternativeBlock notifies every NewAlternativeBlock subscriber,
// in registration order.
func (b *Bus) PublishNewAlternativeBlock(n *NewAlternativeBlock) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.newAltBlockClients {
		c <- n
	}
}

// PublishChainSwitch notifies every ChainSwitch subscriber, in registration
// order.
func (b *Bus) PublishChainSwitch(n *ChainSwitch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.chainSwitchClients {
		c <- n
	}
}
