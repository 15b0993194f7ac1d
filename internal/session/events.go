package session

// HandlerFunc is the shape every registered per-dataID handler takes: the
// received packet, the transport it arrived over, and (server-side) the
// originating peer id. Client-side callers pass 0 for peerID.
type HandlerFunc func(pack PacketView, method Method, peerID uint32)

// PacketView is the subset of codec.Packet that handlers need to read an
// inbound payload. It is declared here, rather than imported from codec,
// so session stays a leaf package; client/server adapt a *codec.Packet to
// this interface at the dispatch boundary.
type PacketView interface {
	DataID() uint16
	RemoveUint8() uint8
	RemoveUint16() uint16
	RemoveUint32() uint32
	RemoveString() string
	Reset()
}

// HandlerRegistry holds an ordered handler list per dataID, dispatched
// last-registered-first as the spec requires. It is accessed only from the
// Update goroutine of the owning client or server, so unlike the teacher's
// plugins/services registries it carries no mutex.
type HandlerRegistry struct {
	byID map[uint16][]HandlerFunc
}

// NewHandlerRegistry returns an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{byID: make(map[uint16][]HandlerFunc)}
}

// Register appends fn to the handler list for dataID.
func (r *HandlerRegistry) Register(dataID uint16, fn HandlerFunc) {
	r.byID[dataID] = append(r.byID[dataID], fn)
}

// Dispatch runs every handler registered for dataID, last-registered first,
// stopping early if shouldAbort reports true after a handler runs (set by
// the caller when a handler has disconnected the session).
func (r *HandlerRegistry) Dispatch(dataID uint16, pack PacketView, method Method, peerID uint32, shouldAbort func() bool) {
	handlers := r.byID[dataID]
	for i := len(handlers) - 1; i >= 0; i-- {
		handlers[i](pack, method, peerID)
		if shouldAbort != nil && shouldAbort() {
			return
		}
	}
}

// Has reports whether any handlers are registered for dataID.
func (r *HandlerRegistry) Has(dataID uint16) bool {
	return len(r.byID[dataID]) > 0
}
