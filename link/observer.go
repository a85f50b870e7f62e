package link

// Observer is the supervisor-facing callback surface: a single value
// carrying typed methods, replacing the original four async function
// pointers plus the device-list callback; a nil Observer silently drops
// every callback.
type Observer interface {
	// OnDeviceList delivers a batched discovery push.
	OnDeviceList(devices []DeviceInfo)
	// OnFlash delivers the outcome of a Flash operation.
	OnFlash(dev DeviceID, ctx any, result int)
	// OnStartChannel delivers the outcome of a SetStartChannel operation.
	OnStartChannel(dev DeviceID, ctx any, result int)
	// OnDeviceID delivers the outcome of a SetDeviceID operation.
	OnDeviceID(dev DeviceID, ctx any, result int)
	// OnRFChannel delivers the outcome of a SetRFChannel operation.
	OnRFChannel(dev DeviceID, ctx any, result int)
}

// NopObserver drops every callback; it is the default when no Observer is
// attached.
type NopObserver struct{}

func (NopObserver) OnDeviceList(devices []DeviceInfo) {}
func (NopObserver) OnFlash(dev DeviceID, ctx any, result int) {}
func (NopObserver) OnStartChannel(dev DeviceID, ctx any, result int) {}
func (NopObserver) OnDeviceID(dev DeviceID, ctx any, result int) {}
func (NopObserver) OnRFChannel(dev DeviceID, ctx any, result int) {}
