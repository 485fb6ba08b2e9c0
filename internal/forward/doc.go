// Package forward delivers a finished export to downstream sinks.
//
// Two sinks exist:
//   - MQTT publishes an export summary and one message per exported device
//     to the partner broker.
//   - InfluxDB fetches the most recent readings of every exported variable
//     and writes them as points.
//
// Each sink implements Forwarder. Run delivers to every configured sink and
// reports all failures together; one failing sink does not stop the others.
package forward
