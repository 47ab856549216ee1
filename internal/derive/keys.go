package derive

// Keys is a derived key set: secret key, signing key, and salt, each
// KeySize bytes. Keys are held only in volatile memory and wiped with Zero
// when the owning session locks.
type Keys struct {
	Secret  []byte
	Signing []byte
	Salt    []byte
}

// Clone returns an independent copy of the key set.
func (k *Keys) Clone() *Keys {
	c := &Keys{
		Secret:  make([]byte, len(k.Secret)),
		Signing: make([]byte, len(k.Signing)),
		Salt:    make([]byte, len(k.Salt)),
	}
	copy(c.Secret, k.Secret)
	copy(c.Signing, k.Signing)
	copy(c.Salt, k.Salt)
	return c
}

// Zero overwrites all key material in place. Best-effort: the runtime may
// have copied the buffers, but this keeps the common path clean.
func (k *Keys) Zero() {
	wipe(k.Secret)
	wipe(k.Signing)
	wipe(k.Salt)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
