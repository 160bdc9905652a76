package inmemory

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/couchparty/server/internal/repository/connection"
)

type entry struct {
	conn     *websocket.Conn
	memberID string
	roomID   string
	// Broadcasts reach the same connection from many reader goroutines;
	// gorilla allows one concurrent writer, so writes are serialized here.
	writeMu sync.Mutex
}

type repo struct {
	byConn     map[*websocket.Conn]*entry
	byMemberID map[string]*entry
	mu         sync.RWMutex
}

func NewRepo() *repo {
	return &repo{
		byConn:     make(map[*websocket.Conn]*entry),
		byMemberID: make(map[string]*entry),
	}
}

func (r *repo) Add(conn *websocket.Conn, roomID, memberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[conn]; ok {
		return connection.ErrAlreadyExists
	}
	if _, ok := r.byMemberID[memberID]; ok {
		return connection.ErrAlreadyExists
	}

	e := &entry{conn: conn, memberID: memberID, roomID: roomID}
	r.byConn[conn] = e
	r.byMemberID[memberID] = e

	return nil
}

// RemoveByConn drops the bookkeeping for the connection. Closing the
// socket is the caller's job.
func (r *repo) RemoveByConn(conn *websocket.Conn) (roomID, memberID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byConn[conn]
	if !ok {
		return "", "", connection.ErrNotFound
	}

	delete(r.byConn, conn)
	delete(r.byMemberID, e.memberID)

	return e.roomID, e.memberID, nil
}

func (r *repo) RemoveByMemberID(memberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byMemberID[memberID]
	if !ok {
		return connection.ErrNotFound
	}

	delete(r.byConn, e.conn)
	delete(r.byMemberID, memberID)

	return nil
}

func (r *repo) GetConn(memberID string) (*websocket.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byMemberID[memberID]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return e.conn, nil
}

func (r *repo) GetMemberID(conn *websocket.Conn) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byConn[conn]
	if !ok {
		return "", connection.ErrNotFound
	}

	return e.memberID, nil
}

func (r *repo) GetRoomID(conn *websocket.Conn) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byConn[conn]
	if !ok {
		return "", connection.ErrNotFound
	}

	return e.roomID, nil
}

func (r *repo) WriteJSON(conn *websocket.Conn, v any) error {
	r.mu.RLock()
	e, ok := r.byConn[conn]
	r.mu.RUnlock()

	if !ok {
		return connection.ErrNotFound
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	return e.conn.WriteJSON(v)
}

func (r *repo) Stats() (rooms, clients int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range r.byConn {
		seen[e.roomID] = struct{}{}
	}

	return len(seen), len(r.byConn)
}
