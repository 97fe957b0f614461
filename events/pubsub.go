package events

import (
	"reflect"
	"sync"
	"sync/atomic"
)

type Subscriber func(interface{})

// Hub dispatches published values to the callbacks subscribed to their
// type under a topic. A nil topic is a valid topic.
type Hub struct {
	sync.Mutex
	channels map[reflect.Type]*Channel
}

type Channel struct {
	topics map[interface{}]*SubscribeInfo
}

type SubscribeInfo struct {
	subscribers      sync.Map // uint64 -> Subscriber
	prevSubscriberID uint64
}

func NewHub() *Hub {
	return &Hub{
		channels: make(map[reflect.Type]*Channel),
	}
}

func (h *Hub) getEndpoint(ty reflect.Type, topic interface{}) *SubscribeInfo {
	h.Lock()
	defer h.Unlock()

	ch, ok := h.channels[ty]
	if !ok {
		ch = newChannel()
		h.channels[ty] = ch
	}

	ep, ok := ch.topics[topic]
	if !ok {
		ep = newSubscribeInfo()
		ch.topics[topic] = ep
	}

	return ep
}

func (h *Hub) Publish(topic interface{}, data interface{}) {
	ep := h.getEndpoint(reflect.TypeOf(data), topic)
	ep.publish(data)
}

// Subscribe registers cb, a func(T) bool, for values of type T published
// under topic. Calls to cb never overlap. cb returning false or calling
// the returned func unsubscribes it.
func (h *Hub) Subscribe(topic interface{}, cb interface{}) func() {
	return h.doSubscribe(topic, cb, true)
}

// SubscribeAsync is Subscribe without the guarantee that calls to cb never
// overlap.
func (h *Hub) SubscribeAsync(topic interface{}, cb interface{}) func() {
	return h.doSubscribe(topic, cb, false)
}

func (h *Hub) doSubscribe(topic interface{}, cb interface{}, locked bool) func() {
	cbVal := reflect.ValueOf(cb)

	if cbVal.Kind() != reflect.Func {
		panic("expected func for callback")
	}

	if cbVal.Type().NumIn() != 1 {
		panic("expected exactly one argument for callback")
	}

	if cbVal.Type().NumOut() != 1 || cbVal.Type().Out(0).Kind() != reflect.Bool {
		panic("expected exactly one boolean value for callback return")
	}

	ty := cbVal.Type().In(0)
	ep := h.getEndpoint(ty, topic)
	id := atomic.AddUint64(&ep.prevSubscriberID, 1)
	mutex := &sync.Mutex{}
	runnable := int32(1)

	ep.subscribers.Store(id, Subscriber(func(msg interface{}) {
		if locked {
			mutex.Lock()
			defer mutex.Unlock()
		}

		if atomic.LoadInt32(&runnable) == 0 {
			return
		}

		ret := cbVal.Call([]reflect.Value{reflect.ValueOf(msg)})
		if !ret[0].Bool() {
			ep.subscribers.Delete(id)
			atomic.StoreInt32(&runnable, 0)
		}
	}))

	return func() {
		atomic.StoreInt32(&runnable, 0)
		ep.subscribers.Delete(id)
	}
}

func newSubscribeInfo() *SubscribeInfo {
	return &SubscribeInfo{}
}

func newChannel() *Channel {
	return &Channel{
		topics: make(map[interface{}]*SubscribeInfo),
	}
}

func (s *SubscribeInfo) publish(msg interface{}) {
	s.subscribers.Range(func(_ interface{}, _sub interface{}) bool {
		sub := _sub.(Subscriber)
		sub(msg)
		return true
	})
}
