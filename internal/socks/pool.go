package socks

import "sync"

var bufPool512 = sync.Pool{
	New: func() interface{} {
		return make([]byte, 512)
	},
}
