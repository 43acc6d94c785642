package message

// WireSizer adapts this package's Size/IsValid functions to the
// wire.Sizer interface so a loconet.Kernel can drive a wire.Handler.
type WireSizer struct{}

func (WireSizer) Size(buf []byte) (int, bool) {
	return Size(buf)
}

func (WireSizer) Valid(frame []byte) bool {
	return IsValid(Message(frame))
}
