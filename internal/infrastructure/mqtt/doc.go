// Package mqtt publishes export results to the partner's MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS validation and a payload size limit
//   - A retained online/offline status topic with Last Will and Testament
//   - Topic naming under the configured prefix
//
// # Topics
//
//	<prefix>/status                                retained client status
//	<prefix>/export/<device_type>                  export summary
//	<prefix>/export/<device_type>/device/<name>    one exported row
//
// Topic segments taken from device names are sanitised so they never
// contain MQTT separators or wildcards.
//
// # Security Considerations
//
//   - Use TLS (cfg.Broker.TLS=true) when the broker is off-host
//   - Credentials come from config or UBIEXPORT_MQTT_* environment variables
package mqtt
