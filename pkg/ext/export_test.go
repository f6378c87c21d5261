package ext

// NewSimpleIDGeneratorAt returns a simple generator whose next ID is last+1.
func NewSimpleIDGeneratorAt(last uint64) IDGenerator {
	g := &simpleIDGenerator{}
	g.leastSigBits.Store(last)
	return g
}
