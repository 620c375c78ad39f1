// Package device defines the transport independent model of a Bluetooth Low Energy
// peripheral as seen by a central.
//
// It contains:
//   - Address and advertised Properties of a peripheral
//   - Characteristic metadata cached after GATT discovery
//   - CentralEvent, the registry level notification fanned out to consumers
//   - the Peripheral capability set implemented once per transport
//   - typed operational errors (ConnectionError, NotSupportedError)
package device
