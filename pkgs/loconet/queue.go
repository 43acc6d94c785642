package loconet

import "github.com/keskad/traintastic-go/pkgs/loconet/message"

// sendQueueCapacity is the byte budget of the send queues: Kernel.Send
// bounds the three priority queues' combined buffered bytes by it, and
// append bounds a single queue by it.
const sendQueueCapacity = 4096

// sendQueue is a priority-level FIFO of pending outbound frames, bounded
// by total buffered bytes rather than message count.
type sendQueue struct {
	messages []message.Message
	bytes    int
}

// append enqueues msg, returning false if the queue's byte budget would
// be exceeded (the caller should drop the message rather than block).
func (q *sendQueue) append(msg message.Message) bool {
	if q.bytes+len(msg) > sendQueueCapacity {
		return false
	}
	q.messages = append(q.messages, msg)
	q.bytes += len(msg)
	return true
}

func (q *sendQueue) empty() bool {
	return len(q.messages) == 0
}

func (q *sendQueue) front() message.Message {
	return q.messages[0]
}

func (q *sendQueue) pop() {
	if len(q.messages) == 0 {
		return
	}
	q.bytes -= len(q.messages[0])
	q.messages = q.messages[1:]
}

func (q *sendQueue) clear() {
	q.messages = nil
	q.bytes = 0
}
