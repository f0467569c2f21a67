package signal

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/quickchat/quickcall/internal/proto"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The relay authenticates by the first frame, not by origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Relay routes signaling messages between connected users. It holds no call
// state: the first frame on a connection must be auth, every later routable
// frame is forwarded to its target user verbatim. One connection per user;
// a new connection for the same user replaces the old one.
type Relay struct {
	mu    sync.Mutex
	peers map[string]*relayPeer
}

type relayPeer struct {
	userID string
	conn   *websocket.Conn

	// gorilla allows one concurrent writer per connection.
	writeMu sync.Mutex
}

func (p *relayPeer) send(m proto.Message) error {
	data, err := proto.Encode(m)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func NewRelay() *Relay {
	return &Relay{peers: make(map[string]*relayPeer)}
}

// ServeHTTP upgrades the request and runs the per-connection loop until the
// peer goes away.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Warnf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	peer, err := r.handshake(conn)
	if err != nil {
		log.Debugf("handshake from %s: %v", req.RemoteAddr, err)
		return
	}
	defer r.unregister(peer)

	log.Infof("peer %s connected", peer.userID)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Infof("peer %s gone: %v", peer.userID, err)
			return
		}
		msg, err := proto.Decode(data)
		if err != nil {
			_ = peer.send(proto.NewError("bad-message", err.Error()))
			continue
		}
		r.route(peer, msg)
	}
}

// handshake reads the auth frame and registers the peer.
func (r *Relay) handshake(conn *websocket.Conn) (*relayPeer, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	msg, err := proto.Decode(data)
	if err != nil {
		return nil, err
	}
	auth, ok := msg.(*proto.Auth)
	if !ok || auth.UserID == "" {
		return nil, errNoAuth
	}

	peer := &relayPeer{userID: auth.UserID, conn: conn}
	r.mu.Lock()
	if old, ok := r.peers[auth.UserID]; ok {
		old.conn.Close()
	}
	r.peers[auth.UserID] = peer
	r.mu.Unlock()
	return peer, nil
}

var errNoAuth = &authError{}

type authError struct{}

func (*authError) Error() string { return "first frame must be auth" }

func (r *Relay) unregister(peer *relayPeer) {
	r.mu.Lock()
	if r.peers[peer.userID] == peer {
		delete(r.peers, peer.userID)
	}
	r.mu.Unlock()
}

// route forwards a routable message to its target, or answers the sender
// with a peer-offline error.
func (r *Relay) route(from *relayPeer, m proto.Message) {
	target, ok := proto.Target(m)
	if !ok {
		log.Debugf("peer %s sent non-routable %s", from.userID, m.MsgType())
		return
	}

	r.mu.Lock()
	to, online := r.peers[target]
	r.mu.Unlock()
	if !online {
		_ = from.send(proto.NewError("peer-offline", "user "+target+" is not connected"))
		return
	}

	if err := to.send(m); err != nil {
		log.Warnf("forward %s to %s: %v", m.MsgType(), target, err)
		_ = from.send(proto.NewError("delivery-failed", "could not deliver to "+target))
	}
}

// Peers returns the ids of currently connected users.
func (r *Relay) Peers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	return out
}
