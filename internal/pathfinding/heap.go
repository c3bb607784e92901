package pathfinding

import "container/heap"

// frontierItem is a tentative entry. Stale entries are left in the heap and
// skipped when popped (lazy decrease-key).
type frontierItem struct {
	id       string
	priority float64
	seq      int
}

// frontierHeap orders by priority, then by insertion sequence so equal-cost
// entries pop in a reproducible order.
type frontierHeap []frontierItem

func (h frontierHeap) Len() int { return len(h) }
func (h frontierHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h frontierHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *frontierHeap) Push(x any) { *h = append(*h, x.(frontierItem)) }

func (h *frontierHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// frontier is owned by exactly one search call
type frontier struct {
	items frontierHeap
	next  int
}

func (f *frontier) push(id string, priority float64) {
	heap.Push(&f.items, frontierItem{id: id, priority: priority, seq: f.next})
	f.next++
}

func (f *frontier) pop() frontierItem {
	return heap.Pop(&f.items).(frontierItem)
}

func (f *frontier) empty() bool {
	return f.items.Len() == 0
}
