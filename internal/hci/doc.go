// Package hci implements the adapter session layer: discovery and device
// inventory over BlueZ's D-Bus interface (Adapter1/Device1/ObjectManager),
// Classic availability tracking, and short-lived GATT connections.
//
// AdapterManager constructs and caches one AdapterSession per named
// adapter (e.g. "hci0"); external drivers reach the radio only through
// AdapterSession.Connect and the hci/driver package's capability
// contracts.
package hci
