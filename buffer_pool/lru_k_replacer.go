package buffer_pool

import (
	"fmt"
	"sync"

	"github.com/zhukovaskychina/xstorage-engine/common"
)

// lruKNode 单个帧的访问记录
type lruKNode struct {
	// history 最近k次访问的时间戳，最旧的在前
	history   []uint64
	evictable bool
}

// LRUKReplacer 在固定帧集合[0, poolSize)上维护LRU-K淘汰策略。
// 淘汰时选择后向k距离最大的可淘汰帧：访问次数不足k次的帧
// 距离视为正无穷，按首次访问时间先后淘汰；访问次数达到k次的帧
// 按第k次前访问时间先后淘汰。
type LRUKReplacer struct {
	mu        sync.Mutex
	nodes     map[common.FrameID]*lruKNode
	currentTS uint64
	k         int
	poolSize  int
	curSize   int // 当前可淘汰的帧数量
}

// NewLRUKReplacer 创建LRU-K替换器
func NewLRUKReplacer(poolSize int, k int) *LRUKReplacer {
	if poolSize <= 0 || k <= 0 {
		panic(fmt.Sprintf("invalid replacer parameters: poolSize=%d k=%d", poolSize, k))
	}
	return &LRUKReplacer{
		nodes:    make(map[common.FrameID]*lruKNode),
		k:        k,
		poolSize: poolSize,
	}
}

// RecordAccess 记录一次帧访问，首次访问时创建记录
func (r *LRUKReplacer) RecordAccess(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrameID(frameID)

	r.currentTS++
	node, ok := r.nodes[frameID]
	if !ok {
		node = &lruKNode{history: make([]uint64, 0, r.k)}
		r.nodes[frameID] = node
	}
	node.history = append(node.history, r.currentTS)
	if len(node.history) > r.k {
		node.history = node.history[1:]
	}
}

// SetEvictable 设置帧的可淘汰标记，无记录的帧为no-op
func (r *LRUKReplacer) SetEvictable(frameID common.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrameID(frameID)

	node, ok := r.nodes[frameID]
	if !ok {
		return
	}
	if node.evictable != evictable {
		if evictable {
			r.curSize++
		} else {
			r.curSize--
		}
	}
	node.evictable = evictable
}

// Remove 移除帧的访问记录。未知帧为no-op，移除不可淘汰的帧属于调用方错误
func (r *LRUKReplacer) Remove(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrameID(frameID)

	node, ok := r.nodes[frameID]
	if !ok {
		return
	}
	if !node.evictable {
		panic(fmt.Sprintf("remove of non-evictable frame %d", frameID))
	}
	delete(r.nodes, frameID)
	r.curSize--
}

// Evict 淘汰后向k距离最大的可淘汰帧，成功时移除其记录
func (r *LRUKReplacer) Evict() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	victim := common.FrameID(-1)
	victimCold := false
	var victimTS uint64

	for frameID, node := range r.nodes {
		if !node.evictable {
			continue
		}
		cold := len(node.history) < r.k
		// history[0] 冷帧是首次访问时间，热帧是最近k次中最旧的一次
		ts := node.history[0]
		if victim == common.FrameID(-1) {
			victim, victimCold, victimTS = frameID, cold, ts
			continue
		}
		if cold != victimCold {
			// 冷帧的后向k距离为正无穷，优先于任何热帧
			if cold {
				victim, victimCold, victimTS = frameID, cold, ts
			}
			continue
		}
		if ts < victimTS {
			victim, victimCold, victimTS = frameID, cold, ts
		}
	}

	if victim == common.FrameID(-1) {
		return common.FrameID(-1), false
	}
	delete(r.nodes, victim)
	r.curSize--
	return victim, true
}

// Size 返回当前可淘汰的帧数量
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.curSize
}

func (r *LRUKReplacer) checkFrameID(frameID common.FrameID) {
	if frameID < 0 || int(frameID) >= r.poolSize {
		panic(fmt.Sprintf("frame id %d out of range [0, %d)", frameID, r.poolSize))
	}
}
