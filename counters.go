package encxorm

import "sync/atomic"

// Counters tracks how many fields were actually sent to the encryptor.
// Values only grow until Reset.
type Counters struct {
	encrypted atomic.Int64
	decrypted atomic.Int64
}

func (c *Counters) Encrypted() int64 {
	return c.encrypted.Load()
}

func (c *Counters) Decrypted() int64 {
	return c.decrypted.Load()
}

func (c *Counters) Reset() {
	c.encrypted.Store(0)
	c.decrypted.Store(0)
}
