package mqtt

// bufferedMsg is a serialized message waiting for the broker.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer holds up to a fixed number of messages while disconnected,
// evicting the oldest when full. Callers synchronize access.
type ringBuffer struct {
	slots   []bufferedMsg
	oldest  int
	count   int
	dropped int
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{slots: make([]bufferedMsg, capacity)}
}

// push appends msg, evicting the oldest message if the buffer is full. It
// reports whether a message was evicted.
func (r *ringBuffer) push(msg bufferedMsg) (evicted bool) {
	size := len(r.slots)
	if r.count < size {
		r.slots[(r.oldest+r.count)%size] = msg
		r.count++
		return false
	}
	r.slots[r.oldest] = msg
	r.oldest = (r.oldest + 1) % size
	r.dropped++
	return true
}

// drain empties the buffer, returning its messages oldest first and the
// number evicted since the previous drain.
func (r *ringBuffer) drain() ([]bufferedMsg, int) {
	dropped := r.dropped
	r.dropped = 0
	if r.count == 0 {
		return nil, dropped
	}

	size := len(r.slots)
	out := make([]bufferedMsg, 0, r.count)
	for ; r.count > 0; r.count-- {
		out = append(out, r.slots[r.oldest])
		r.slots[r.oldest] = bufferedMsg{}
		r.oldest = (r.oldest + 1) % size
	}
	r.oldest = 0
	return out, dropped
}

func (r *ringBuffer) len() int {
	return r.count
}
