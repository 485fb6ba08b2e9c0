package mqtt

import "strings"

// DefaultTopicPrefix is used when Topics has no prefix.
const DefaultTopicPrefix = "ubiexport"

// Topics builds topic names under Prefix.
//
//	topics := mqtt.Topics{Prefix: "awqp/cls"}
//	topics.Device("pile-temp-and-cercospora-monitor", "Field 7")
//	// awqp/cls/export/pile-temp-and-cercospora-monitor/device/Field 7
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// Status is the retained online/offline topic.
func (t Topics) Status() string {
	return t.prefix() + "/status"
}

// Export is the summary topic for a device type.
func (t Topics) Export(deviceType string) string {
	return t.prefix() + "/export/" + Segment(deviceType)
}

// Device is the per-device row topic.
func (t Topics) Device(deviceType, deviceName string) string {
	return t.Export(deviceType) + "/device/" + Segment(deviceName)
}

var segmentReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_", "\x00", "")

// Segment makes s safe to use as a single topic level. An empty result
// becomes "_".
func Segment(s string) string {
	out := segmentReplacer.Replace(s)
	if out == "" {
		return "_"
	}
	return out
}
