// Package bridge is the gateway context of the TCP bridge.
//
// A Bridge owns the client registry and the event, lab and settings stores,
// and connects them to both sides of the gateway:
//
//   - as a bus.Handlers it receives simulation bus messages and hands them to
//     the router or the simulation machine;
//   - as the server's line handler it classifies client lines and applies
//     capability documents, commands, requests and topic publications.
//
// On start the bridge announces itself on the bus with an operational
// description and, when configured, a module configuration document.
package bridge
