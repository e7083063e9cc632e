package queue

import "container/list"

// fifo holds the pending items of one lane in submission order.
//
// It is not safe for concurrent use; the Manager lock guards it.
type fifo struct {
	items *list.List
}

func newFIFO() *fifo {
	return &fifo{items: list.New()}
}

// push appends an item at the tail.
func (q *fifo) push(item *Item) {
	q.items.PushBack(item)
}

// pop removes and returns the head item, or nil when empty.
func (q *fifo) pop() *Item {
	front := q.items.Front()
	if front == nil {
		return nil
	}
	return q.items.Remove(front).(*Item)
}

// drain removes every item and returns them in submission order.
func (q *fifo) drain() []*Item {
	out := make([]*Item, 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Item))
	}
	q.items.Init()
	return out
}

// len returns the number of waiting items.
func (q *fifo) len() int {
	return q.items.Len()
}
