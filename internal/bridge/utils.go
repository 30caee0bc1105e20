package bridge

import "sync"

var bufPool8k = sync.Pool{
	New: func() interface{} {
		return make([]byte, relayBufSize)
	},
}
