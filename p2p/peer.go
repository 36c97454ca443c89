// Package p2p implements the encrypted peer-session transport: a
// length-prefixed, garbage-padded handshake that derives a ChaCha20-Poly1305
// tunnel from an ephemeral X25519 key exchange, and an actor that routes
// decoded messages to per-type handlers across all connected peers.
// Grounded almost one-to-one on the original implementation's peer module.
//
// The ephemeral DH key is never bound to either side's long-lived identity
// key — preserved as-is from the source protocol rather than hardened,
// per the guidance to leave open questions alone unless consciously
// changed. This means the handshake alone does not defeat a
// man-in-the-middle; identity is established one layer up, by signatures
// over application messages (block/view-change signatures, transaction
// signatures), not by this transport.
package p2p

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/tolchain/consensuscore/crypto"
)

// State tracks a Peer's position in the connection/handshake lifecycle.
type State int

const (
	StateConnecting State = iota
	StateConnectedTo
	StateConnectedFrom
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnectedTo:
		return "connected_to"
	case StateConnectedFrom:
		return "connected_from"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Message is a routed, decoded payload exchanged between two ready peers.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Peer is one encrypted session with a remote node: a TCP connection
// wrapped in the garbage-padded hello handshake and an AEAD tunnel keyed by
// the resulting shared secret. A Peer is only usable for Send/Receive once
// its State is StateReady.
type Peer struct {
	Addr string

	conn net.Conn

	mu    sync.Mutex
	state State
	enc   *crypto.Encryptor
}

// Connect dials addr over plain TCP and runs the initiator side of the
// handshake. The ChaCha20-Poly1305 session this establishes is the only
// confidentiality layer.
func Connect(addr string) (*Peer, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, ioErrorf("dial %s: %w", addr, err)
	}
	return newPeer(addr, conn, true)
}

// ConnectTLS dials addr through an mTLS handshake (when tlsConf is non-nil)
// before layering the garbage-padded session handshake on top, so a peer's
// certificate authenticates the connection at the transport level in
// addition to the application-level signatures checked later. tlsConf nil
// behaves exactly like Connect.
func ConnectTLS(addr string, tlsConf *tls.Config) (*Peer, error) {
	if tlsConf == nil {
		return Connect(addr)
	}
	conn, err := tls.Dial("tcp", addr, tlsConf)
	if err != nil {
		return nil, ioErrorf("tls dial %s: %w", addr, err)
	}
	return newPeer(addr, conn, true)
}

func newPeer(addr string, conn net.Conn, initiator bool) (*Peer, error) {
	p := &Peer{Addr: addr, conn: conn, state: StateConnecting}
	if err := p.handshake(initiator); err != nil {
		conn.Close()
		p.setState(StateError)
		return nil, err
	}
	return p, nil
}

// Accept wraps an already-accepted inbound connection (plain or TLS) and
// runs the responder side of the handshake.
func Accept(conn net.Conn) (*Peer, error) {
	return newPeer(conn.RemoteAddr().String(), conn, false)
}

func (p *Peer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// State reports the peer's current lifecycle state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// handshake runs the garbage + ephemeral-key hello exchange and derives the
// session's AEAD. initiator distinguishes which side speaks first, mirroring
// read_client_hello/send_client_hello vs. read_server_hello/send_server_hello
// in the original: the dialer sends first, the acceptor replies.
func (p *Peer) handshake(initiator bool) error {
	if initiator {
		p.setState(StateConnectedTo)
	} else {
		p.setState(StateConnectedFrom)
	}

	priv, pub, err := crypto.GenerateEphemeralKeyPair()
	if err != nil {
		return keysErrorf("generating ephemeral key: %w", err)
	}

	var remotePub crypto.EphemeralPublicKey
	if initiator {
		if err := writeGarbage(p.conn); err != nil {
			return err
		}
		if _, err := p.conn.Write(pub[:]); err != nil {
			return ioErrorf("sending client hello: %w", err)
		}
		if err := readGarbage(p.conn); err != nil {
			return err
		}
		if err := readRawKey(p.conn, (*[32]byte)(&remotePub)); err != nil {
			return err
		}
	} else {
		if err := readGarbage(p.conn); err != nil {
			return err
		}
		if err := readRawKey(p.conn, (*[32]byte)(&remotePub)); err != nil {
			return err
		}
		if err := writeGarbage(p.conn); err != nil {
			return err
		}
		if _, err := p.conn.Write(pub[:]); err != nil {
			return ioErrorf("sending server hello: %w", err)
		}
	}

	shared, err := crypto.DeriveShared(priv, remotePub)
	if err != nil {
		return keysErrorf("deriving shared secret: %w", err)
	}
	enc, err := crypto.NewEncryptor(shared)
	if err != nil {
		return keysErrorf("building session encryptor: %w", err)
	}

	p.mu.Lock()
	p.enc = enc
	p.state = StateReady
	p.mu.Unlock()
	return nil
}

// Send encrypts and frames msg for the remote peer. Safe for concurrent use.
func (p *Peer) Send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("p2p: marshal message: %w", err)
	}

	p.mu.Lock()
	enc := p.enc
	ready := p.state == StateReady
	p.mu.Unlock()
	if !ready {
		return fmt.Errorf("p2p: send to %s before handshake ready", p.Addr)
	}

	sealed, err := enc.Seal(data)
	if err != nil {
		return fmt.Errorf("p2p: sealing message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := writeFrame(p.conn, sealed); err != nil {
		p.state = StateError
		return err
	}
	return nil
}

// Receive blocks for the next frame, decrypts it, and decodes it into a
// Message. Concurrent Receive calls are not supported — one reader per
// Peer, matching the original's single read loop per session.
func (p *Peer) Receive() (Message, error) {
	p.mu.Lock()
	enc := p.enc
	ready := p.state == StateReady
	p.mu.Unlock()
	if !ready {
		return Message{}, fmt.Errorf("p2p: receive from %s before handshake ready", p.Addr)
	}

	sealed, err := readFrame(p.conn)
	if err != nil {
		p.setState(StateError)
		return Message{}, err
	}
	plaintext, err := enc.Open(sealed)
	if err != nil {
		p.setState(StateError)
		return Message{}, fmt.Errorf("p2p: opening frame: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(plaintext, &msg); err != nil {
		p.setState(StateError)
		return Message{}, fmt.Errorf("p2p: unmarshal message: %w", err)
	}
	return msg, nil
}

// Close shuts down the underlying connection.
func (p *Peer) Close() error {
	p.setState(StateError)
	return p.conn.Close()
}
