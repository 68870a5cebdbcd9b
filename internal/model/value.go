package model

// ModuleValue is a single sensor or actuator reading: which module
// produced it, and its numeric value.
type ModuleValue struct {
	ModuleID ModuleID
	Value    float64
}

// SensorData is one device's reading at one point in time: the device it
// came from, a monotonic microsecond timestamp, and the values read in
// that poll.
type SensorData struct {
	DeviceID  DeviceID
	Timestamp int64 // monotonic microseconds since epoch
	Values    []ModuleValue
}
