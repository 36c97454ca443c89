package p2p

import (
	"crypto/tls"
	"log"
	"net"
	"sync"
	"time"
)

// Handler is called for each message received from any connected peer.
type Handler func(peer *Peer, msg Message)

// DefaultMaxPeers bounds simultaneous sessions a Network will accept.
const DefaultMaxPeers = 50

// Network listens for incoming peer connections, dials outgoing ones, and
// routes each peer's decoded messages to the handler registered for its
// message type. One goroutine per peer reads its frames; the peer map is
// guarded by a mutex so Broadcast and the accept loop can run concurrently.
type Network struct {
	listenAddr string
	maxPeers   int
	tlsConfig  *tls.Config

	mu       sync.RWMutex
	peers    map[string]*Peer
	handlers map[string]Handler

	listener net.Listener
	stopCh   chan struct{}
}

// NewNetwork creates a Network that will listen on listenAddr once Start is
// called.
func NewNetwork(listenAddr string) *Network {
	return &Network{
		listenAddr: listenAddr,
		maxPeers:   DefaultMaxPeers,
		peers:      make(map[string]*Peer),
		handlers:   make(map[string]Handler),
		stopCh:     make(chan struct{}),
	}
}

// WithTLS configures the Network to require mTLS on both accepted and
// dialed connections, layering the garbage-padded session handshake on top
// of it. Passing nil reverts to plain TCP.
func (n *Network) WithTLS(cfg *tls.Config) *Network {
	n.tlsConfig = cfg
	return n
}

// Handle registers the handler invoked for messages of the given type.
func (n *Network) Handle(msgType string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[msgType] = h
}

// Start begins accepting inbound connections in the background.
func (n *Network) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return err
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Stop closes the listener and every connected peer.
func (n *Network) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// Dial connects to addr, registers the resulting peer, and starts reading
// from it.
func (n *Network) Dial(addr string) (*Peer, error) {
	peer, err := ConnectTLS(addr, n.tlsConfig)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.peers[addr] = peer
	n.mu.Unlock()
	go n.readLoop(peer)
	return peer, nil
}

// Peer returns the connected peer registered under addr, or nil.
func (n *Network) Peer(addr string) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[addr]
}

// Broadcast sends msg to every connected peer, logging (not failing on) any
// individual send error so one bad peer cannot block the rest.
func (n *Network) Broadcast(msg Message) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			log.Printf("[p2p] broadcast to %s: %v", p.Addr, err)
		}
	}
}

func (n *Network) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				log.Printf("[p2p] accept error: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.RLock()
		peerCount := len(n.peers)
		n.mu.RUnlock()
		if peerCount >= n.maxPeers {
			log.Printf("[p2p] max peers (%d) reached, rejecting %s", n.maxPeers, conn.RemoteAddr())
			conn.Close()
			continue
		}
		peer, err := Accept(conn)
		if err != nil {
			log.Printf("[p2p] handshake from %s failed: %v", conn.RemoteAddr(), err)
			continue
		}
		n.mu.Lock()
		n.peers[peer.Addr] = peer
		n.mu.Unlock()
		go n.readLoop(peer)
	}
}

func (n *Network) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[p2p] readLoop panic from %s: %v", peer.Addr, r)
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.Addr)
		n.mu.Unlock()
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		n.mu.RLock()
		h, ok := n.handlers[msg.Type]
		n.mu.RUnlock()
		if ok {
			h(peer, msg)
		}
	}
}
