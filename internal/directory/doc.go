// Package directory turns raw Ubidots device and variable records into flat
// tables and joins them.
//
// The device directory flattens each device's property bag into columns and
// extracts the fixed location. The variable directory lists one device's
// variables. Join walks the devices of one type and produces the long
// (device name, variable label, variable id) table consumed by reshape.
//
// Every call rebuilds from the upstream; nothing is cached here.
package directory
