// Package influxdb forwards Ubidots readings of exported variables to an
// InfluxDB v2 bucket using the official influxdb-client-go v2 library.
//
// Every reading becomes one point of the configured measurement, tagged
// with device type, device name, variable label and variable id, with a
// single float field "value" at the reading's own timestamp.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // forwarding turned off
//	}
//	defer client.Close()
//
//	err = client.WriteReadings(ctx, readings)
//
// # Error Handling
//
// Writes are blocking and return the server's error, so a one-shot export
// knows whether forwarding succeeded before it exits. Points are sent in
// batches of batch_size.
package influxdb
